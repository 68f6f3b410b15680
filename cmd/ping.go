// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/radarstat/internal/messenger"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

var (
	pingCount int
	pingDelay time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round trips to the sensor",
	Long: `Send SOFTWARE_INFO_REQUEST to the sensor and time each reply.

Every request gets a single attempt with the configured --timeout. This is
useful for verifying:
  - The link (or serial bridge) carries traffic both ways
  - The sensor ID is right
  - Reply latency through terminal servers and bridges

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingDelay, "delay", time.Second, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	ep, err := endpoint(cfg)
	if err != nil {
		return err
	}
	opts := messengerOptions(cfg, ep, log)
	opts.MaxAttempts = 1

	m, err := messenger.New(opts)
	if err != nil {
		return err
	}
	defer m.Close()

	fmt.Printf("Radarstat - Ping\n")
	fmt.Printf("Connection: %s\n", ep.Describe(cfg.Transport))
	fmt.Printf("Timeout: %s per ping\n", cfg.Timeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	var (
		ok    int
		total time.Duration
	)
	for i := 1; i <= pingCount; i++ {
		if i > 1 {
			select {
			case <-ctx.Done():
			case <-time.After(pingDelay):
			}
		}
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		resp, err := m.SendMessage(ctx, x3.NewSoftwareInfoRequest(byte(cfg.SensorID)))
		rtt := time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}

		if p := findReply(resp, x3.QualSoftwareInfo); p != nil {
			ok++
			total += rtt
			fmt.Printf("Ping %d: reply from sensor %d in %s\n", i, cfg.SensorID, rtt.Round(time.Microsecond))
		} else if len(resp) > 0 {
			fmt.Printf("Ping %d: unexpected reply %s\n", i, x3.Name(resp[0].Qualifier()))
		} else {
			fmt.Printf("Ping %d: TIMEOUT\n", i)
		}
	}

	fmt.Printf("\n%d/%d replies", ok, pingCount)
	if ok > 0 {
		fmt.Printf(", average %s", (total / time.Duration(ok)).Round(time.Microsecond))
	}
	fmt.Println()

	if ok != pingCount {
		os.Exit(1)
	}
	return nil
}

// findReply returns the first valid packet with qualifier q
func findReply(packets []*x3.Packet, q byte) *x3.Packet {
	for _, p := range packets {
		if p.Valid() && p.Qualifier() == q {
			return p
		}
	}
	return nil
}
