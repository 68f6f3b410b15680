// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/radarstat/internal/transport"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw packet log in human-readable format",
	Long: `Continuously decode and display X3 frames as they arrive.

Nothing is sent to the sensor. In normal mode the sensor pushes a telemetry
cycle every data interval; in polled mode it stays silent unless another
host is polling it.

Each frame is shown with its timestamp, qualifier and decoded fields. Frames
with a bad checksum or a missing tail are shown as a hex dump.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	tr, connInfo, err := openTransport(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer tr.Close()

	fmt.Printf("Radarstat - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	err = listen(ctx, tr, func(p *x3.Packet) {
		fmt.Print(x3.FormatPacket(p))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// listen feeds every byte from tr through a stream decoder until ctx ends or
// the transport fails. A partial frame left when the link drops is passed on
// as a truncated packet.
func listen(ctx context.Context, tr transport.Transport, handle func(*x3.Packet)) error {
	decoder := x3.NewDecoder()
	buf := make([]byte, 4096)

	for {
		n, err := tr.Wait(ctx, time.Second)
		if err != nil {
			for _, p := range decoder.Flush() {
				handle(p)
			}
			if errors.Is(err, transport.ErrDisconnected) {
				return fmt.Errorf("connection closed: %w", err)
			}
			return err
		}
		if n == 0 {
			continue
		}

		k, err := tr.Receive(buf)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, p := range decoder.Feed(buf[:k]) {
			p.SetTimestamp(now)
			handle(p)
		}
	}
}
