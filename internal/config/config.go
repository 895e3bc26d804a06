// Package config loads lattice configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/lattice/internal/schema"
)

// Config holds all configuration.
type Config struct {
	// JournalPath is the SQLite journal file. Empty disables journaling.
	JournalPath string

	// ValidationCategory is the category used when none is requested.
	// Empty runs every Validate rule.
	ValidationCategory string

	// MaxSchemaDepth bounds super-class walks.
	MaxSchemaDepth int

	// SessionTimeout cancels sessions that stay open longer. Zero disables it.
	SessionTimeout time.Duration

	// Logging.
	LogLevel  string // "debug", "info", "warn" or "error"
	LogFormat string // "text" or "json"
}

// Load reads configuration from LATTICE_* environment variables with
// defaults. Callers load a .env file first if they want one.
func Load() (Config, error) {
	var errs []error
	depth, err := envInt("LATTICE_MAX_SCHEMA_DEPTH", schema.DefaultMaxDepth)
	errs = append(errs, err)
	timeout, err := envDuration("LATTICE_SESSION_TIMEOUT", 0)
	errs = append(errs, err)

	cfg := Config{
		JournalPath:        envStr("LATTICE_JOURNAL", ""),
		ValidationCategory: envStr("LATTICE_VALIDATION_CATEGORY", ""),
		MaxSchemaDepth:     depth,
		SessionTimeout:     timeout,
		LogLevel:           envStr("LATTICE_LOG_LEVEL", "info"),
		LogFormat:          envStr("LATTICE_LOG_FORMAT", "text"),
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.MaxSchemaDepth <= 0 {
		return fmt.Errorf("config: LATTICE_MAX_SCHEMA_DEPTH must be positive")
	}
	if c.SessionTimeout < 0 {
		return fmt.Errorf("config: LATTICE_SESSION_TIMEOUT must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: LATTICE_LOG_LEVEL: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: LATTICE_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Logger builds a slog logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown level %q", s)
	}
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
