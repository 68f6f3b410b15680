// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/radarstat/internal/messenger"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

var (
	monitorInterval time.Duration
	monitorShowAll  bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI showing live lane data",
	Long: `Poll the sensor on a fixed interval and show the newest sample in a
terminal UI.

Features:
  - Lane table (volume by class, occupancy, speed)
  - Conversation statistics (requests, retries, timeouts, NAKs)
  - Event log of checksum errors, truncated frames and anomalies
  - Automatic reconnection on connection loss

When a poll fails the previous sample stays on screen and is counted as
stale.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 0, "Poll interval (default from config, 10s)")
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Log every frame, not just errors")
}

// tuiObserver forwards messenger traffic to a running program
type tuiObserver struct {
	p atomic.Pointer[tea.Program]
}

func (o *tuiObserver) PacketSent(p *x3.Packet) {
	if prog := o.p.Load(); prog != nil {
		prog.Send(packetMsg{packet: p, sent: true})
	}
}

func (o *tuiObserver) PacketReceived(p *x3.Packet) {
	if prog := o.p.Load(); prog != nil {
		prog.Send(packetMsg{packet: p, validationErrors: x3.ValidatePacket(p)})
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	interval := cfg.PollInterval
	if cmd.Flags().Changed("interval") {
		interval = monitorInterval
	}
	if interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	ctx, cancel := signalContext()
	defer cancel()

	obs := &tuiObserver{}
	msgr, err := openMessenger(ctx, cfg, log, func(o *messenger.Options) {
		o.Observer = obs
	})
	if err != nil {
		return err
	}
	defer msgr.Close()

	connInfo := msgr.Endpoint().Describe(msgr.Kind())
	m := initialModel("RADARSTAT - MONITOR", fmt.Sprintf("%s | Sensor %d | every %s", connInfo, msgr.SensorID(), interval), true, monitorShowAll)
	p := tea.NewProgram(m, tea.WithAltScreen())
	obs.p.Store(p)

	go func() {
		if sw, ok := msgr.SoftwareInfo(); ok {
			p.Send(infoMsg(fmt.Sprintf("Firmware %s, serial %d", sw.Version(), sw.Serial())))
		}
		if iv, ok := msgr.IntervalInfo(); ok {
			p.Send(infoMsg(fmt.Sprintf("Mode %s, interval %s, %d zones", iv.Mode(), iv.Interval(), iv.Zones())))
		}

		for {
			p.Send(pollStartMsg{})
			s, fresh := msgr.RequestData(ctx)
			stats := msgr.Statistics()
			p.Send(sampleMsg{sample: s, fresh: fresh, stats: &stats})

			select {
			case <-ctx.Done():
				p.Quit()
				return
			case <-time.After(interval):
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	cancel()
	return nil
}
