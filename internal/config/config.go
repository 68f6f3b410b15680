// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads radarstat settings from an optional TOML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Thermoquad/radarstat/internal/messenger"
	"github.com/Thermoquad/radarstat/internal/transport"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("config: invalid")

// Config holds the connection and messenger settings
type Config struct {
	Transport  transport.Kind
	Address    string
	BaudRate   int
	SensorID   int
	Username   string
	SkipVerify bool

	Timeout         time.Duration
	MaxAttempts     int
	SettleTime      time.Duration
	FullSampleBytes int
	LogLimit        int

	LogLevel     string
	PollInterval time.Duration
	MetricsAddr  string
	RecordPath   string
}

// Default returns the settings used when neither file nor flags say otherwise
func Default() Config {
	return Config{
		Transport:       transport.TCP,
		BaudRate:        transport.DefaultBaudRate,
		SensorID:        1,
		Timeout:         2 * time.Second,
		MaxAttempts:     messenger.DefaultMaxAttempts,
		SettleTime:      150 * time.Millisecond,
		FullSampleBytes: messenger.DefaultFullSampleBytes,
		LogLimit:        messenger.DefaultLogLimit,
		LogLevel:        "warn",
		PollInterval:    10 * time.Second,
	}
}

// radarstat.toml key mapping
type fileConfig struct {
	Transport       string `toml:"transport"`
	Addr            string `toml:"addr"`
	Baud            int    `toml:"baud"`
	Sensor          int    `toml:"sensor"`
	Username        string `toml:"username"`
	NoSSLVerify     bool   `toml:"no_ssl_verify"`
	Timeout         string `toml:"timeout"`
	MaxAttempts     int    `toml:"max_attempts"`
	SettleTime      string `toml:"settle_time"`
	FullSampleBytes int    `toml:"full_sample_bytes"`
	LogLimit        int    `toml:"log_limit"`
	LogLevel        string `toml:"log_level"`
	PollInterval    string `toml:"poll_interval"`
	MetricsAddr     string `toml:"metrics_addr"`
	Record          string `toml:"record"`
}

// Load reads path and overlays every key it defines onto Default
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	if meta.IsDefined("transport") {
		kind, err := transport.ParseKind(raw.Transport)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		cfg.Transport = kind
	}
	if meta.IsDefined("addr") {
		cfg.Address = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("baud") {
		cfg.BaudRate = raw.Baud
	}
	if meta.IsDefined("sensor") {
		cfg.SensorID = raw.Sensor
	}
	if meta.IsDefined("username") {
		cfg.Username = strings.TrimSpace(raw.Username)
	}
	if meta.IsDefined("no_ssl_verify") {
		cfg.SkipVerify = raw.NoSSLVerify
	}
	if meta.IsDefined("max_attempts") {
		cfg.MaxAttempts = raw.MaxAttempts
	}
	if meta.IsDefined("full_sample_bytes") {
		cfg.FullSampleBytes = raw.FullSampleBytes
	}
	if meta.IsDefined("log_limit") {
		cfg.LogLimit = raw.LogLimit
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("record") {
		cfg.RecordPath = strings.TrimSpace(raw.Record)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"timeout", raw.Timeout, &cfg.Timeout},
		{"settle_time", raw.SettleTime, &cfg.SettleTime},
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise fail deep inside a conversation
func (c Config) Validate() error {
	switch {
	case c.SensorID < x3.MinSensorID || c.SensorID > x3.MaxSensorID:
		return fmt.Errorf("%w: sensor id %d (%d-%d)", ErrInvalid, c.SensorID, x3.MinSensorID, x3.MaxSensorID)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalid)
	case c.MaxAttempts < 1 || c.MaxAttempts > messenger.DefaultMaxAttempts:
		return fmt.Errorf("%w: max_attempts %d (1-%d)", ErrInvalid, c.MaxAttempts, messenger.DefaultMaxAttempts)
	case c.SettleTime < 0:
		return fmt.Errorf("%w: settle_time must not be negative", ErrInvalid)
	case c.FullSampleBytes < 1:
		return fmt.Errorf("%w: full_sample_bytes must be at least 1", ErrInvalid)
	case c.LogLimit < 0:
		return fmt.Errorf("%w: log_limit must not be negative", ErrInvalid)
	case c.PollInterval < 0:
		return fmt.Errorf("%w: poll_interval must not be negative", ErrInvalid)
	}
	if c.Transport == transport.Serial {
		if _, err := x3.BaudCode(c.BaudRate); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}

// Endpoint returns the transport endpoint; password is supplied by the caller
func (c Config) Endpoint(password string) transport.Endpoint {
	return transport.Endpoint{
		Address:    c.Address,
		BaudRate:   c.BaudRate,
		Username:   c.Username,
		Password:   password,
		SkipVerify: c.SkipVerify,
	}
}
