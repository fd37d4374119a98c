// Package logging configures zerolog for the configuration cache and hands
// out component loggers.
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
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Component names attached to log lines.
const (
	ComponentManager    = "config-cache"
	ComponentPersistent = "persistent-tier"
	ComponentSnapshot   = "snapshot-tier"
	ComponentRemote     = "remote-direct"
	ComponentClient     = "config-client"
	ComponentServer     = "http-server"
	ComponentWarmup     = "warmup"
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

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	var output io.Writer = out
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForComponent is NewLogger for the Logger fields of the tier and manager
// options.
func ForComponent(component string) *zerolog.Logger {
	l := NewLogger(component)
	return &l
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache hits and misses (key, tier, duration)
//   - Promotions and revalidations
//   - Snapshot load statistics
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Warmup summaries
//   - Persistent tier load at startup
//
// Warn: Warning conditions that don't prevent operation
//   - Tier failures (treated as misses)
//   - Writes to read-only tiers
//   - Quota recovery and dropped writes
//   - Lookup timeouts
//
// Error: Error conditions requiring attention
//   - Storage unreachable at startup
//   - Configuration errors
//
// Context Fields:
//   - key: cache key ("category" or "category:field")
//   - tier: tier identifier
//   - operation: tier operation that failed
//   - session: manager session id
//   - duration: lookup duration
//   - ttl: entry TTL
