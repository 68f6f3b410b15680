// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

// Version is reported by --version and the build_info metric
const Version = "1.0.0"

var (
	// Connection flags
	transportName string
	address       string
	baudRate      int
	sensorID      int
	timeout       time.Duration

	// WebSocket flags
	wsUsername    string
	wsNoSSLVerify bool

	// General flags
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "radarstat",
	Short: "X3 Radar Sensor Gateway",
	Long: `Radarstat - A CLI tool for talking to X3 vehicle detection radar sensors.

Polls lane telemetry (volume, occupancy, speed), reads and changes sensor
configuration, switches operating modes and logs raw protocol traffic.

Connection modes:
  TCP:       --transport tcp --addr 10.0.0.5:10001
  UDP:       --transport udp --addr 10.0.0.5:10001
  Serial:    --transport serial --addr /dev/ttyUSB0 [--baud 9600]
  WebSocket: --transport websocket --addr ws://host/path [--username user]

Settings can also come from a TOML file given with --config; flags win.

For WebSocket authentication, the password is read from the RADARSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&transportName, "transport", "t", "tcp", "Transport: tcp, udp, serial or websocket")
	flags.StringVarP(&address, "addr", "a", "", "Sensor address (host:port, device path or ws:// URL)")
	flags.IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")
	flags.IntVarP(&sensorID, "sensor", "s", 1, "Sensor ID (1-255)")
	flags.DurationVar(&timeout, "timeout", 2*time.Second, "Reply timeout per attempt")

	flags.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth (websocket only)")
	flags.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	flags.StringVarP(&configPath, "config", "c", "", "TOML config file")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default warn)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
