// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/radarstat/internal/archive"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

var (
	replayFrames bool
	replayStats  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print samples from a recorded archive",
	Long: `Read a CBOR archive written by "poll --record" and regroup the
received frames into samples offline.

No sensor connection is needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayFrames, "frames", false, "Print every frame, both directions")
	replayCmd.Flags().BoolVar(&replayStats, "stats", true, "Print frame statistics at the end")
}

func runReplay(cmd *cobra.Command, args []string) error {
	r, err := archive.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	fmt.Printf("Radarstat - Replay\n")
	fmt.Printf("Archive: %s (format %d)\n", args[0], h.Version)
	fmt.Printf("Recorded: %s, sensor %d", h.Started.Format("2006-01-02 15:04:05"), h.SensorID)
	if h.Endpoint != "" {
		fmt.Printf(", %s", h.Endpoint)
	}
	fmt.Printf("\n\n")

	entries, err := r.All()
	if err != nil {
		// Keep what was readable; a recording cut short by a crash ends mid-record
		fmt.Printf("Warning: %v (showing %d readable frames)\n\n", err, len(entries))
	}

	if replayFrames {
		for _, e := range entries {
			arrow := "<-"
			if e.Direction == x3.ToSensor {
				arrow = "->"
			}
			fmt.Printf("%s ", arrow)
			fmt.Print(x3.FormatPacket(e.Packet))
		}
		fmt.Println()
	}

	received := archive.Received(entries)
	samples := x3.GroupSamples(received)
	for _, s := range samples {
		fmt.Print(x3.FormatSample(s))
		fmt.Println()
	}
	fmt.Printf("%d frames (%d received), %d samples\n", len(entries), len(received), len(samples))

	if replayStats {
		stats := x3.NewStatistics()
		for _, p := range received {
			stats.Update(p, x3.ValidatePacket(p))
		}
		fmt.Println()
		fmt.Print(stats.String())
	}
	return nil
}
