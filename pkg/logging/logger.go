// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs per-task and per-page events.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs operation start and completion.
	LevelInfo LogLevel = "info"

	// LevelWarn logs absorbed task failures.
	LevelWarn LogLevel = "warn"

	// LevelError logs panics and teardown problems.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to a zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-unit progress
//   - Page fetched (page, items, duration)
//   - Task started/finished
//   - Worker goroutine exit
//
// Info: operation lifecycle
//   - Paginated fetch planned (expected_total, expected_pages)
//   - Operation complete (delivered, failures, duration)
//   - Executor opened/closed
//
// Warn: absorbed failures
//   - Page read failed (page, page_size)
//   - Task returned an error (task_index)
//   - Retry attempts against the REST API
//   - Count cache unavailable (fallback to direct count)
//
// Error: conditions requiring attention
//   - Task panicked
//   - Shutdown deadline exceeded
//   - Requests failed after retries
//
// Context Fields:
//   - component: emitting package (pool, pagination, parallel, client, cache)
//   - operation_id: uuid of one logical fetch or task batch
//   - pool: pool name
//   - page, page_size: page coordinates
//   - task_index: submission index of an arbitrary task
//   - expected_total, expected_pages: dispatch plan
//   - duration: elapsed time
