package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Global logger instance
	Logger zerolog.Logger
)

// Options controls where and how the global logger writes.
type Options struct {
	Level   string    // debug, info, warn or error; anything else means info
	JSON    bool      // Plain JSON lines instead of the console writer
	Out     io.Writer // Defaults to stdout
	LogFile string    // Optional file receiving a copy of every line
}

// Initialize sets up the global logger with appropriate configuration
func Initialize(logLevel string) {
	if err := InitializeWithOptions(Options{Level: logLevel}); err != nil {
		log.Error().Err(err).Msg("Failed to initialize logger")
	}
}

// InitializeWithOptions sets up the global logger. A log file that cannot be opened is
// reported and the logger still writes to Out.
func InitializeWithOptions(opts Options) error {
	zerolog.TimeFieldFormat = time.RFC3339

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}

	var fileErr error
	if opts.LogFile != "" {
		file, err := FileWriter(opts.LogFile)
		if err != nil {
			fileErr = err
		} else {
			out = zerolog.MultiLevelWriter(out, file)
		}
	}

	Logger = zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	// Replace standard log with zerolog
	log.Logger = Logger

	if fileErr != nil {
		Logger.Error().Err(fileErr).Str("path", opts.LogFile).Msg("Failed to open log file, logging to console only")
	}
	return fileErr
}

// ParseLevel maps a configured level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a logger with a component field for better filtering.
// Call it after Initialize: the returned logger keeps the writer that was current then.
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter returns a writer to a log file for optional use alongside console logging
func FileWriter(path string) (io.Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return file, nil
}
