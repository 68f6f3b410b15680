// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/radarstat/internal/messenger"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

var modeCmd = &cobra.Command{
	Use:   "mode normal|polled|stat",
	Short: "Switch the sensor operating mode",
	Long: `Switch the sensor operating mode and persist it to flash.

  normal  the sensor pushes a telemetry cycle every data interval
  polled  the sensor answers DATA_POLL only
  stat    statistics mode`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"normal", "polled", "stat"},
	RunE:      runMode,
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change a sensor parameter",
	Long: `Change one sensor parameter. Each change is committed, saved to flash
and read back from the sensor before the command returns.`,
}

var (
	selfTestPolled bool
	setTimeUTC     bool
)

var selfTestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run the sensor built-in test",
	Long: `Ask the sensor to run its built-in test and print the result.

Exit codes:
  0 - Test passed
  1 - Test failed or no result received
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runSelfTest,
}

// paramCommand builds a "set" subcommand that opens a messenger and applies fn
func paramCommand(use, short string, args cobra.PositionalArgs, fn func(ctx context.Context, m *messenger.Messenger, args []string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMessenger(cmd, func(ctx context.Context, m *messenger.Messenger) error {
				done, err := fn(ctx, m, args)
				if err != nil {
					return err
				}
				fmt.Println(done)
				if iv, ok := m.IntervalInfo(); ok {
					fmt.Print(x3.FormatVariant(iv))
				}
				return nil
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(selfTestCmd)

	selfTestCmd.Flags().BoolVar(&selfTestPolled, "polled", false, "Run the polled test instead of the immediate one")

	setCmd.AddCommand(
		paramCommand("sensitivity LEVEL", "Set detection sensitivity (1-15)", cobra.ExactArgs(1),
			func(ctx context.Context, m *messenger.Messenger, args []string) (string, error) {
				level, err := strconv.Atoi(args[0])
				if err != nil {
					return "", fmt.Errorf("invalid sensitivity %q", args[0])
				}
				return fmt.Sprintf("Sensitivity set to %d", level), m.UpdateSensitivity(ctx, level)
			}),
		paramCommand("zones N", "Set the number of detection zones (1-8)", cobra.ExactArgs(1),
			func(ctx context.Context, m *messenger.Messenger, args []string) (string, error) {
				zones, err := strconv.Atoi(args[0])
				if err != nil {
					return "", fmt.Errorf("invalid zone count %q", args[0])
				}
				return fmt.Sprintf("Zone count set to %d", zones), m.UpdateZoneCount(ctx, zones)
			}),
		paramCommand("interval DURATION", "Set the data interval (10s-15m, whole seconds)", cobra.ExactArgs(1),
			func(ctx context.Context, m *messenger.Messenger, args []string) (string, error) {
				d, err := parseInterval(args[0])
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Data interval set to %s", d), m.UpdateDataInterval(ctx, d)
			}),
		paramCommand("baud RATE", "Set the sensor serial baud rate", cobra.ExactArgs(1),
			func(ctx context.Context, m *messenger.Messenger, args []string) (string, error) {
				baud, err := strconv.Atoi(args[0])
				if err != nil {
					return "", fmt.Errorf("invalid baud rate %q", args[0])
				}
				return fmt.Sprintf("Baud rate set to %d", baud), m.UpdateBaudRate(ctx, baud)
			}),
		paramCommand("time [RFC3339]", "Set the sensor clock (default now)", cobra.MaximumNArgs(1),
			func(ctx context.Context, m *messenger.Messenger, args []string) (string, error) {
				t := time.Now()
				if setTimeUTC {
					t = t.UTC()
				}
				if len(args) == 1 {
					var err error
					if t, err = time.Parse(time.RFC3339, args[0]); err != nil {
						return "", fmt.Errorf("invalid time %q: %v", args[0], err)
					}
				}
				return fmt.Sprintf("Sensor clock set to %s", t.Format("2006-01-02 15:04:05")), m.SetSensorTime(ctx, t)
			}),
		paramCommand("bins KPH...", "Set the speed bin boundaries (up to 7, kph)", cobra.RangeArgs(1, x3.SpeedBinCount),
			func(ctx context.Context, m *messenger.Messenger, args []string) (string, error) {
				bins, err := parseBins(args)
				if err != nil {
					return "", err
				}
				msg := fmt.Sprintf("Speed bins set to %v kph", x3.NormalizeSpeedBins(bins))
				if err := m.UpdateSpeedBins(ctx, bins); err != nil {
					return "", err
				}
				if sb, ok := m.SpeedBins(); ok {
					msg += "\n" + strings.TrimRight(x3.FormatVariant(sb), "\n")
				}
				return msg, nil
			}),
	)

	for _, c := range setCmd.Commands() {
		if strings.HasPrefix(c.Use, "time") {
			c.Flags().BoolVar(&setTimeUTC, "utc", false, "Send UTC instead of local time")
		}
	}
}

// withMessenger opens a messenger for cmd, runs fn and closes it
func withMessenger(cmd *cobra.Command, fn func(ctx context.Context, m *messenger.Messenger) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	m, err := openMessenger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer m.Close()

	return fn(ctx, m)
}

// parseMode maps a mode name to its value
func parseMode(s string) (x3.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return x3.ModeNormal, nil
	case "polled", "poll":
		return x3.ModePolled, nil
	case "stat", "statistics":
		return x3.ModeStat, nil
	}
	return 0, fmt.Errorf("unknown mode %q (use normal, polled or stat)", s)
}

// parseInterval accepts a Go duration or a bare number of seconds
func parseInterval(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}

func parseBins(args []string) ([]int, error) {
	bins := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(strings.TrimSuffix(a, ","))
		if err != nil {
			return nil, fmt.Errorf("invalid speed bin %q", a)
		}
		bins[i] = v
	}
	return bins, nil
}

func runMode(cmd *cobra.Command, args []string) error {
	mode, err := parseMode(args[0])
	if err != nil {
		return err
	}
	return withMessenger(cmd, func(ctx context.Context, m *messenger.Messenger) error {
		if err := m.EnterMode(ctx, mode); err != nil {
			return err
		}
		fmt.Printf("Sensor %d switched to %s mode\n", m.SensorID(), mode)
		return nil
	})
}

func runSelfTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	m, err := openMessenger(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer m.Close()

	kind := "immediate"
	if selfTestPolled {
		kind = "polled"
	}
	fmt.Printf("Running %s built-in test on sensor %d...\n", kind, m.SensorID())

	res, ok, err := m.RunSelfTest(ctx, !selfTestPolled)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no test result received")
	}
	if !res.Passed {
		fmt.Printf("FAIL: fault bits 0x%04X\n", res.Bits)
		return fmt.Errorf("built-in test failed")
	}
	fmt.Printf("PASS\n")
	return nil
}
