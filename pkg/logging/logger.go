// Package logging configures zerolog for the proxy and its library packages.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr when nil.
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Output: os.Stderr,
	}
}

// Setup configures the global logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel maps a level name to a zerolog level, falling back to info.
// "warning" is accepted as an alias of warn.
func ParseLevel(level string) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	switch name {
	case "debug", "info", "warn", "error":
		lvl, err := zerolog.ParseLevel(name)
		if err == nil {
			return lvl
		}
	}
	return zerolog.InfoLevel
}

// NewLogger derives a logger from the global one tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// FromContext returns the logger stored in ctx, or fallback when there is
// none.
func FromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}

// Level guide:
//
// Debug: signed request parameters (timestamp only), page boundaries,
// quota reads.
//
// Info: startup/shutdown, completed aggregations, served HTTP requests.
//
// Warn: non-200 upstream answers, quota near exhaustion, slow pages.
//
// Error: transport failures, quota exhausted, configuration errors.
//
// Fields in use: component, endpoint, status, duration, error_class,
// offset, limit, request_size, retrieved, calls_used, request_id.
