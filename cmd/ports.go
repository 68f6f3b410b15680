// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/radarstat/internal/transport"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and supported baud rates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.SerialPorts()
		if err != nil {
			return fmt.Errorf("list serial ports: %w", err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		fmt.Printf("\nSupported baud rates: %v\n", x3.SupportedBaudRates())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
