// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/radarstat/pkg/x3"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.SetBuildInfo("1.0.0")
	m.Request(x3.QualDataPoll)
	m.Retry(x3.QualDataPoll)
	m.Timeout(x3.QualDataPoll)
	m.Nak()
	m.Reconnect()
	m.RoundTrip(20 * time.Millisecond)
	m.Bytes(5, 40)
	m.Packet(x3.NewNak(1, 0))

	body := scrape(t, m)
	for _, want := range []string{
		`radarstat_requests_total{qualifier="DATA_POLL"} 1`,
		`radarstat_retries_total{qualifier="DATA_POLL"} 1`,
		`radarstat_timeouts_total{qualifier="DATA_POLL"} 1`,
		`radarstat_naks_total 1`,
		`radarstat_reconnects_total 1`,
		`radarstat_transport_bytes_total{direction="received"} 40`,
		`radarstat_packets_received_total{qualifier="NAK",status="valid"} 1`,
		`radarstat_build_info{version="1.0.0"} 1`,
		`radarstat_round_trip_seconds_count 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestMetrics_Sample(t *testing.T) {
	m := New()
	samples := x3.GroupSamples([]*x3.Packet{
		x3.NewVolumeReport(1, []int{4, 9}),
		x3.NewSpeedReport(1, []int{72, -1}),
	})
	m.Sample(samples[0])

	body := scrape(t, m)
	for _, want := range []string{
		`radarstat_samples_total 1`,
		`radarstat_lane_volume{lane="2"} 9`,
		`radarstat_lane_speed_kph{lane="1"} 72`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
	if strings.Contains(body, `radarstat_lane_speed_kph{lane="2"}`) {
		t.Error("no-reading lane should not publish a speed")
	}
}
