// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry exports messenger activity and lane readings to Prometheus.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/radarstat/pkg/x3"
)

const namespace = "radarstat"

// Metrics owns a private registry so several messengers (or tests) never collide
type Metrics struct {
	Registry *prometheus.Registry

	requests   *prometheus.CounterVec
	retries    *prometheus.CounterVec
	timeouts   *prometheus.CounterVec
	packets    *prometheus.CounterVec
	naks       prometheus.Counter
	reconnects prometheus.Counter
	samples    prometheus.Counter
	bytes      *prometheus.CounterVec
	roundTrip  prometheus.Histogram

	laneVolume    *prometheus.GaugeVec
	laneOccupancy *prometheus.GaugeVec
	laneSpeed     *prometheus.GaugeVec

	buildInfo *prometheus.GaugeVec
}

// New creates and registers every collector
func New() *Metrics {
	startTime := time.Now()
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Commands sent to the sensor, by qualifier.",
		}, []string{"qualifier"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Send attempts beyond the first, by qualifier.",
		}, []string{"qualifier"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeouts_total",
			Help:      "Attempts that saw no reply within the timeout, by qualifier.",
		}, []string{"qualifier"}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Frames reassembled from the sensor, by qualifier and status.",
		}, []string{"qualifier", "status"}),
		naks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "naks_total",
			Help:      "Not-ready replies from the sensor.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Transport reconnects.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Polling cycles reconstructed.",
		}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_bytes_total",
			Help:      "Bytes moved over the transport, by direction.",
		}, []string{"direction"}),
		roundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_trip_seconds",
			Help:      "Time from send to first reply byte.",
			// 5ms .. ~10s
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),

		laneVolume: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lane",
			Name:      "volume",
			Help:      "Vehicles counted in the latest sample.",
		}, []string{"lane"}),
		laneOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lane",
			Name:      "occupancy_percent",
			Help:      "Occupancy in the latest sample.",
		}, []string{"lane"}),
		laneSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lane",
			Name:      "speed_kph",
			Help:      "Average speed in the latest sample.",
		}, []string{"lane"}),

		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version).",
		}, []string{"version"}),
	}

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Process uptime in seconds.",
	}, func() float64 { return time.Since(startTime).Seconds() })

	m.Registry.MustRegister(
		m.requests, m.retries, m.timeouts, m.packets,
		m.naks, m.reconnects, m.samples, m.bytes, m.roundTrip,
		m.laneVolume, m.laneOccupancy, m.laneSpeed,
		m.buildInfo, uptime,
	)
	return m
}

func qualifierLabel(q byte) string {
	return x3.Name(q)
}

// SetBuildInfo should be called once at startup
func (m *Metrics) SetBuildInfo(version string) {
	m.buildInfo.WithLabelValues(version).Set(1)
}

// Request counts one command send
func (m *Metrics) Request(q byte) { m.requests.WithLabelValues(qualifierLabel(q)).Inc() }

// Retry counts an attempt beyond the first
func (m *Metrics) Retry(q byte) { m.retries.WithLabelValues(qualifierLabel(q)).Inc() }

// Timeout counts an attempt with no reply
func (m *Metrics) Timeout(q byte) { m.timeouts.WithLabelValues(qualifierLabel(q)).Inc() }

// Nak counts a not-ready reply
func (m *Metrics) Nak() { m.naks.Inc() }

// Reconnect counts a transport redial
func (m *Metrics) Reconnect() { m.reconnects.Inc() }

// RoundTrip observes the wait for a reply
func (m *Metrics) RoundTrip(d time.Duration) { m.roundTrip.Observe(d.Seconds()) }

// Bytes adds transport byte deltas
func (m *Metrics) Bytes(sent, received uint64) {
	m.bytes.WithLabelValues("sent").Add(float64(sent))
	m.bytes.WithLabelValues("received").Add(float64(received))
}

// Packet counts one reassembled frame
func (m *Metrics) Packet(p *x3.Packet) {
	status := "valid"
	switch {
	case p.Truncated():
		status = "truncated"
	case p.ChecksumMismatch():
		status = "checksum"
	}
	m.packets.WithLabelValues(qualifierLabel(p.Qualifier()), status).Inc()
}

// Sample counts a polling cycle and publishes its lane readings
func (m *Metrics) Sample(s x3.Sample) {
	m.samples.Inc()
	for _, r := range s.Lanes() {
		lane := strconv.Itoa(r.Lane)
		if r.Volume >= 0 {
			m.laneVolume.WithLabelValues(lane).Set(float64(r.Volume))
		}
		if r.Occupancy >= 0 {
			m.laneOccupancy.WithLabelValues(lane).Set(r.Occupancy)
		}
		if r.SpeedKPH >= 0 {
			m.laneSpeed.WithLabelValues(lane).Set(float64(r.SpeedKPH))
		}
	}
}

// Handler exposes /metrics for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics server on addr until ctx ends
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
