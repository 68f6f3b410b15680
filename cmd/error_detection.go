// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/radarstat/internal/transport"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and anomalies",
	Long: `Listen to the sensor and track framing errors and implausible values.

This command validates each frame and detects:
  - Checksum mismatches and truncated frames
  - Unknown qualifiers and payload length mismatches
  - Anomalous telemetry (lane counts above 8, occupancy above 100%,
    speeds above 200 kph, clock fields that are not BCD)

Nothing is sent to the sensor. By default, only errors are displayed. Use
--show-all to display valid frames too.

Periodic statistics summaries are printed at the configured interval in
text mode.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
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

	if useTUI {
		err = runTUIMode(ctx, tr, connInfo)
	} else {
		err = runTextMode(ctx, tr, connInfo)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sampleTracker groups passively received telemetry into cycles. A cycle is
// reported once the marker of the next one arrives.
type sampleTracker struct {
	pending []*x3.Packet
}

func (t *sampleTracker) add(p *x3.Packet) (x3.Sample, bool) {
	if !p.Valid() || !x3.IsTelemetry(p.Qualifier()) {
		return x3.Sample{}, false
	}

	var done x3.Sample
	ok := false
	if p.Qualifier() == x3.QualSampleMarker && len(t.pending) > 0 {
		if samples := x3.GroupSamples(t.pending); len(samples) > 0 {
			done, ok = samples[len(samples)-1], true
		}
		t.pending = t.pending[:0]
	}
	t.pending = append(t.pending, p)
	return done, ok
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(p *x3.Packet, errs []x3.ValidationError) {
	timestamp := p.Timestamp().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp, x3.Name(p.Qualifier()), p.Qualifier())

	for i, err := range errs {
		switch err.Type {
		case x3.AnomalyChecksum, x3.AnomalyTruncated, x3.AnomalyLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
		case x3.AnomalySpeedRange, x3.AnomalyOccupancyRange, x3.AnomalyLaneCount:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if lane, ok := err.Details["lane"].(int); ok {
				fmt.Printf("    lane=%d\n", lane)
			}
		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Print(x3.FormatHex(p.Payload()))
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(ctx context.Context, tr transport.Transport, connInfo string) error {
	m := initialModel("RADARSTAT - ERROR DETECTION", connInfo, false, showAll)
	p := tea.NewProgram(m)

	go func() {
		tracker := &sampleTracker{}
		err := listen(ctx, tr, func(pkt *x3.Packet) {
			p.Send(packetMsg{packet: pkt, validationErrors: x3.ValidatePacket(pkt)})
			if s, ok := tracker.add(pkt); ok {
				p.Send(sampleMsg{sample: s, fresh: true})
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			p.Send(connectionLostMsg{err: err})
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(ctx context.Context, tr transport.Transport, connInfo string) error {
	fmt.Printf("Radarstat - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := x3.NewStatistics()
	tracker := &sampleTracker{}

	// listen owns the transport; the ticker goroutine only prints
	var (
		statsTicker = time.NewTicker(time.Duration(statsInterval) * time.Second)
		frames      = make(chan *x3.Packet, 64)
		done        = make(chan error, 1)
	)
	defer statsTicker.Stop()

	go func() {
		done <- listen(ctx, tr, func(p *x3.Packet) { frames <- p })
		close(frames)
	}()

	for {
		select {
		case p, ok := <-frames:
			if !ok {
				fmt.Println()
				fmt.Print(stats.String())
				return <-done
			}
			errs := x3.ValidatePacket(p)
			stats.Update(p, errs)

			switch {
			case len(errs) > 0:
				printValidationErrors(p, errs)
			case showAll:
				fmt.Print(x3.FormatPacket(p))
			}
			if s, ok := tracker.add(p); ok && showAll {
				fmt.Print(x3.FormatSample(s))
				fmt.Println()
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
