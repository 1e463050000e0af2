package config

import (
	"errors"
)

// Database configuration loaded from environment variables.
var (
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// loadDatabaseConfig loads the PostgreSQL settings. DB_USER and DB_NAME are required.
func loadDatabaseConfig() error {
	var err error

	DBHost = getEnvOrDefault("DB_HOST", "localhost")
	if DBPort, err = getEnvAsIntOrDefault("DB_PORT", 5432); err != nil {
		return err
	}
	if DBUser, err = getEnv("DB_USER"); err != nil {
		return err
	}
	DBPassword = getEnvOrDefault("DB_PASSWORD", "")
	if DBName, err = getEnv("DB_NAME"); err != nil {
		return err
	}
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	if DBPort <= 0 || DBPort > 65535 {
		return errors.New("environment variable DB_PORT must be a valid port")
	}
	return nil
}

// LoadDatabaseConfig loads only the database settings, for maintenance scripts.
func LoadDatabaseConfig() error {
	return loadDatabaseConfig()
}
