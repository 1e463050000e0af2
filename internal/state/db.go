// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN returns the lib/pq connection string for cfg.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// schemaSQL creates every table the service writes. Amounts are NUMERIC(78, 0) so any 256-bit
// integer fits.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS vault_events (
		event_id UUID PRIMARY KEY,
		tx_id UUID NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		caller VARCHAR(128) NOT NULL,
		receiver VARCHAR(128),
		owner VARCHAR(128),
		assets NUMERIC(78, 0),
		shares NUMERIC(78, 0),
		fee NUMERIC(78, 0),
		swap_path TEXT[],
		payload JSONB NOT NULL,
		event_timestamp TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_vault_events_timestamp ON vault_events(event_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_vault_events_type ON vault_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_vault_events_tx ON vault_events(tx_id);

	CREATE TABLE IF NOT EXISTS vault_snapshots (
		snapshot_id SERIAL PRIMARY KEY,
		cycle_number INTEGER NOT NULL,
		cycle_id UUID NOT NULL,
		snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		total_assets NUMERIC(78, 0) NOT NULL,
		total_shares NUMERIC(78, 0) NOT NULL,
		share_price NUMERIC(78, 0),
		target_health_factor NUMERIC(78, 0) NOT NULL,
		current_health_factor NUMERIC(78, 0),
		oracle_price NUMERIC(78, 0),
		entry_fee_bps INTEGER NOT NULL,
		exit_fee_bps INTEGER NOT NULL,
		strategy VARCHAR(128),
		rebalance_error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_vault_snapshots_timestamp ON vault_snapshots(snapshot_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_vault_snapshots_cycle ON vault_snapshots(cycle_number DESC);

	CREATE TABLE IF NOT EXISTS vault_parameters (
		params_id SERIAL PRIMARY KEY,
		version INTEGER NOT NULL,
		config_name VARCHAR(255) NOT NULL DEFAULT 'default',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		entry_fee_bps INTEGER NOT NULL,
		exit_fee_bps INTEGER NOT NULL,
		entry_fee_recipient VARCHAR(128) NOT NULL,
		exit_fee_recipient VARCHAR(128) NOT NULL,
		target_health_factor NUMERIC(78, 0) NOT NULL,
		CONSTRAINT uq_vault_parameters_config_version UNIQUE (config_name, version)
	);
	CREATE INDEX IF NOT EXISTS idx_vault_parameters_config_active ON vault_parameters(config_name, is_active, activated_at DESC);

	-- Rebalance counter table for persistent global cycle tracking
	CREATE TABLE IF NOT EXISTS rebalance_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	INSERT INTO rebalance_counter (id, current_cycle)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// dropSQL removes every table created by EnsureSchema.
const dropSQL = `
	DROP TABLE IF EXISTS vault_events CASCADE;
	DROP TABLE IF EXISTS vault_snapshots CASCADE;
	DROP TABLE IF EXISTS vault_parameters CASCADE;
	DROP TABLE IF EXISTS rebalance_counter CASCADE;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema drops every table. Used by the reset script.
func DropSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, err := DB.Exec(dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Warn().Msg("Dropped all vault tables")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
