// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/radarstat/internal/config"
	"github.com/Thermoquad/radarstat/internal/logging"
	"github.com/Thermoquad/radarstat/internal/messenger"
	"github.com/Thermoquad/radarstat/internal/transport"
)

// PasswordEnv holds the WebSocket password so it never appears on the command line
const PasswordEnv = "RADARSTAT_PASSWORD"

// loadConfig reads --config when given and overlays every flag the user set
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return config.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("transport") || configPath == "" {
		kind, err := transport.ParseKind(transportName)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Transport = kind
	}
	if flags.Changed("addr") {
		cfg.Address = strings.TrimSpace(address)
	}
	if flags.Changed("baud") {
		cfg.BaudRate = baudRate
	}
	if flags.Changed("sensor") {
		cfg.SensorID = sensorID
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeout
	}
	if flags.Changed("username") {
		cfg.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.SkipVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if cfg.Address == "" {
		return config.Config{}, fmt.Errorf("--addr is required (host:port, device path or ws:// URL)")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger builds the stderr logger for cfg
func newLogger(cfg config.Config) zerolog.Logger {
	return logging.New("radarstat", cfg.LogLevel, os.Stderr)
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal; read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// endpoint resolves the transport endpoint, prompting for a password when needed
func endpoint(cfg config.Config) (transport.Endpoint, error) {
	password := ""
	if cfg.Transport == transport.WebSocket && cfg.Username != "" {
		var err error
		if password, err = GetPassword(); err != nil {
			return transport.Endpoint{}, err
		}
	}
	return cfg.Endpoint(password), nil
}

func dialOptions(log zerolog.Logger) transport.Options {
	opts := transport.DefaultOptions()
	opts.Logger = log
	return opts
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// messengerOptions maps cfg onto messenger settings
func messengerOptions(cfg config.Config, ep transport.Endpoint, log zerolog.Logger) messenger.Options {
	opts := messenger.DefaultOptions()
	opts.Endpoint = ep
	opts.Kind = cfg.Transport
	opts.SensorID = cfg.SensorID
	opts.Timeout = cfg.Timeout
	opts.MaxAttempts = cfg.MaxAttempts
	opts.SettleTime = cfg.SettleTime
	opts.FullSampleBytes = cfg.FullSampleBytes
	opts.LogLimit = cfg.LogLimit
	opts.Dial = transport.Dialer(dialOptions(log))
	opts.Logger = log
	return opts
}

// openMessenger connects and fetches the configuration documents.
// mutate may attach metrics or an observer before the first exchange.
func openMessenger(ctx context.Context, cfg config.Config, log zerolog.Logger, mutate ...func(*messenger.Options)) (*messenger.Messenger, error) {
	ep, err := endpoint(cfg)
	if err != nil {
		return nil, err
	}
	opts := messengerOptions(cfg, ep, log)
	for _, fn := range mutate {
		fn(&opts)
	}

	m, err := messenger.New(opts)
	if err != nil {
		return nil, err
	}
	if err := m.Open(ctx); err != nil {
		m.Close()
		return nil, fmt.Errorf("open %s: %w", ep.Describe(cfg.Transport), err)
	}
	return m, nil
}

// openTransport dials the sensor without a messenger, for passive listeners
func openTransport(ctx context.Context, cfg config.Config, log zerolog.Logger) (transport.Transport, string, error) {
	ep, err := endpoint(cfg)
	if err != nil {
		return nil, "", err
	}
	tr, err := transport.Dial(ctx, cfg.Transport, ep, dialOptions(log))
	if err != nil {
		return nil, "", err
	}
	return tr, ep.Describe(cfg.Transport), nil
}
