// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/radarstat/pkg/x3"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show sensor firmware and configuration",
	Long: `Connect, fetch the four configuration documents and print them:

  SOFTWARE_INFO   firmware version and serial number
  INTERVAL_INFO   data interval, zones, sensitivity, baud rate and mode
  POWER_VECTOR    per-lane power levels
  SPEED_BIN_INFO  speed bin boundaries

A document the sensor did not return is reported as unavailable.`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	msgr, err := openMessenger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer msgr.Close()

	fmt.Printf("Radarstat - Sensor Info\n")
	fmt.Printf("Connection: %s\n", msgr.Endpoint().Describe(msgr.Kind()))
	fmt.Printf("Sensor: %d\n\n", msgr.SensorID())

	printDocument := func(name string, v x3.Variant, ok bool) {
		fmt.Printf("%s:\n", name)
		if !ok {
			fmt.Printf("  (unavailable)\n")
			return
		}
		fmt.Print(x3.FormatVariant(v))
	}

	sw, ok := msgr.SoftwareInfo()
	printDocument("Software", sw, ok)
	iv, ok := msgr.IntervalInfo()
	printDocument("Interval", iv, ok)
	pv, ok := msgr.PowerVector()
	printDocument("Power Vector", pv, ok)
	sb, ok := msgr.SpeedBins()
	printDocument("Speed Bins", sb, ok)

	stats := msgr.Statistics()
	fmt.Printf("\n%d requests, %d retries, %d timeouts\n", stats.Requests, stats.Retries, stats.Timeouts)
	return nil
}
