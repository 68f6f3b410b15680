// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/radarstat/pkg/x3"
)

var (
	packetTestWait   int
	packetTestListen bool
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid X3 frame",
	Long: `Send one DATA_POLL and wait for any valid X3 frame until timeout.

Invalid bytes and frames with a bad checksum are ignored. With --listen no
poll is sent, which suits sensors already streaming in normal mode.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing connectivity to a sensor or a serial bridge.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestWait, "wait", 10, "Seconds to wait for a frame")
	packetTestCmd.Flags().BoolVar(&packetTestListen, "listen", false, "Listen only, do not poll")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	log := newLogger(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	tr, connInfo, err := openTransport(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer tr.Close()

	fmt.Printf("Radarstat - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestWait)

	if !packetTestListen {
		poll := x3.NewDataPoll(byte(cfg.SensorID))
		if err := tr.Send(poll.MustEncode()); err != nil {
			fmt.Fprintf(os.Stderr, "Send error: %v\n", err)
			os.Exit(2)
		}
		fmt.Printf("Sent DATA_POLL to sensor %d\n", cfg.SensorID)
	}
	fmt.Printf("Waiting for valid X3 frame...\n\n")

	waitCtx, stop := context.WithTimeout(ctx, time.Duration(packetTestWait)*time.Second)
	defer stop()

	var got *x3.Packet
	invalid := 0
	err = listen(waitCtx, tr, func(p *x3.Packet) {
		if got != nil {
			return
		}
		if !p.Valid() {
			invalid++
			return
		}
		got = p
		stop()
	})

	switch {
	case got != nil:
		if invalid > 0 {
			fmt.Printf("(ignored %d invalid frames)\n", invalid)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Qualifier: %s (0x%02X)\n", x3.Name(got.Qualifier()), got.Qualifier())
		fmt.Printf("  Length: %d bytes\n", got.PayloadSize())
		fmt.Printf("  Checksum: 0x%02X\n", got.Checksum())
		os.Exit(0)

	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestWait)
		os.Exit(1)

	case err != nil && !errors.Is(err, context.Canceled):
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	}

	return nil
}
