// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging builds the zerolog logger shared by the CLI and messenger.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "RADARSTAT_LOG_LEVEL"
	EnvLogNoColor   = "RADARSTAT_LOG_NOCOLOR"
	EnvLogTimestamp = "RADARSTAT_LOG_TIMESTAMP"
)

// Config selects level and console formatting
type Config struct {
	Level     zerolog.Level
	NoColor   bool
	Timestamp bool
}

// DefaultConfig logs warnings and above with timestamps
func DefaultConfig() Config {
	return Config{
		Level:     zerolog.WarnLevel,
		Timestamp: true,
	}
}

// New returns a console logger writing to out. The level argument, when
// non-empty, wins over the default; environment variables win over both.
func New(app, level string, out io.Writer) zerolog.Logger {
	cfg := DefaultConfig()
	if lvl, ok := ParseLevel(level); ok {
		cfg.Level = lvl
	}
	ApplyEnv(&cfg)
	return NewWithConfig(app, cfg, out)
}

// NewWithConfig returns a console logger for an explicit config
func NewWithConfig(app string, cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	output := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		output.PartsExclude = []string{zerolog.TimestampFieldName}
	}

	ctx := zerolog.New(output).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if app != "" {
		ctx = ctx.Str("app", app)
	}
	return ctx.Logger()
}

// ApplyEnv overrides cfg from RADARSTAT_LOG_* variables
func ApplyEnv(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
}

// ParseLevel maps a level name to zerolog; ok is false for empty or unknown names
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
