// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/radarstat/internal/archive"
	"github.com/Thermoquad/radarstat/internal/messenger"
	"github.com/Thermoquad/radarstat/internal/telemetry"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

var (
	pollCount       int
	pollInterval    time.Duration
	pollRecord      string
	pollMetricsAddr string
	pollStats       bool
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll the sensor for lane data",
	Long: `Request a sample from the sensor on a fixed interval and print it.

Each cycle sends DATA_POLL (retrying on timeout or NAK) and prints the lane
table reconstructed from the reply. When the sensor does not answer, the
previous sample is printed again and marked stale.

With --record every frame sent and received is written to a CBOR archive
that the replay command can read back. With --metrics-addr a Prometheus
endpoint is served at /metrics for the duration of the run.

Exit codes:
  0 - At least one fresh sample received
  1 - No fresh sample received
  2 - Connection error`,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().IntVarP(&pollCount, "count", "n", 0, "Number of polls (0 polls until interrupted)")
	pollCmd.Flags().DurationVar(&pollInterval, "interval", 0, "Poll interval (default from config, 10s)")
	pollCmd.Flags().StringVar(&pollRecord, "record", "", "Record traffic to this CBOR archive (overwritten)")
	pollCmd.Flags().StringVar(&pollMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	pollCmd.Flags().BoolVar(&pollStats, "stats", false, "Print statistics after every sample")
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("interval") {
		cfg.PollInterval = pollInterval
	}
	if flags.Changed("record") {
		cfg.RecordPath = pollRecord
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = pollMetricsAddr
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	log := newLogger(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	var hooks []func(*messenger.Options)

	if cfg.MetricsAddr != "" {
		metrics := telemetry.New()
		metrics.SetBuildInfo(Version)
		hooks = append(hooks, func(o *messenger.Options) { o.Metrics = metrics })
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server stopped")
			}
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
	}

	var rec *archive.Writer
	if cfg.RecordPath != "" {
		rec, err = archive.Create(cfg.RecordPath, archive.Header{
			SensorID: cfg.SensorID,
			Endpoint: cfg.Endpoint("").Describe(cfg.Transport),
			Started:  time.Now(),
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Error().Err(err).Msg("closing archive")
			}
			fmt.Printf("Recorded %d frames to %s\n", rec.Count(), cfg.RecordPath)
		}()
		hooks = append(hooks, func(o *messenger.Options) { o.Observer = rec })
	}

	msgr, err := openMessenger(ctx, cfg, log, hooks...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		if rec != nil {
			rec.Close()
		}
		os.Exit(2)
	}
	defer msgr.Close()

	fmt.Printf("Radarstat - Poll\n")
	fmt.Printf("Connection: %s\n", msgr.Endpoint().Describe(msgr.Kind()))
	fmt.Printf("Sensor: %d, interval %s\n", msgr.SensorID(), cfg.PollInterval)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	fresh := 0
	for i := 0; pollCount == 0 || i < pollCount; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.PollInterval):
			}
		}
		if ctx.Err() != nil {
			break
		}

		s, ok := msgr.RequestData(ctx)
		switch {
		case ok:
			fresh++
			fmt.Print(x3.FormatSample(s))
		case s.Empty():
			fmt.Printf("[%s] no sample\n", time.Now().Format("15:04:05.000"))
		default:
			fmt.Printf("[%s] STALE ", time.Now().Format("15:04:05.000"))
			fmt.Print(x3.FormatSample(s))
		}
		if pollStats {
			stats := msgr.Statistics()
			fmt.Print(stats.String())
		}
		fmt.Println()
	}

	if fresh == 0 && ctx.Err() == nil {
		return fmt.Errorf("no fresh sample received")
	}
	return nil
}
