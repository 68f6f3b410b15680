// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messenger

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Thermoquad/radarstat/internal/archive"
	"github.com/Thermoquad/radarstat/internal/telemetry"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

func TestRequestData(t *testing.T) {
	h := newHarness(t)

	s, fresh := h.m.RequestData(context.Background())
	if !fresh {
		t.Fatal("expected a fresh sample")
	}
	if s.Len() != 3 || s.TotalVolume() != 8 {
		t.Errorf("sample len=%d volume=%d", s.Len(), s.TotalVolume())
	}
	lanes := s.Lanes()
	if len(lanes) != 2 || lanes[0].SpeedKPH != 88 || lanes[1].SpeedKPH != -1 || lanes[0].Occupancy != 12.5 {
		t.Errorf("lanes = %+v", lanes)
	}

	want := []byte{x3.QualDataPoll, x3.QualBufferFlush}
	if got := sentQualifiers(h.dialer.Last()); !bytes.Equal(got, want) {
		t.Errorf("sent % X, want % X", got, want)
	}
	if st := h.m.Statistics(); st.Samples != 1 {
		t.Errorf("Samples = %d", st.Samples)
	}
}

func TestRequestData_LogLimit(t *testing.T) {
	const limit = 30
	h := newHarness(t, func(o *Options) { o.LogLimit = limit })
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		s, fresh := h.m.RequestData(ctx)
		if !fresh || s.TotalVolume() != 8 {
			t.Fatalf("cycle %d: fresh=%v volume=%d", i, fresh, s.TotalVolume())
		}
	}

	// 180 frames received and 120 requests sent
	if n := len(h.m.ReceiveLog()); n < limit || n > limit+limit/4 {
		t.Errorf("receive log holds %d entries", n)
	}
	if n := len(h.m.RequestLog()); n < limit || n > limit+limit/4 {
		t.Errorf("request log holds %d entries", n)
	}
	if st := h.m.Statistics(); st.Samples != 60 {
		t.Errorf("Samples = %d", st.Samples)
	}
	if s, ok := h.m.LatestSample(); !ok || s.Len() != 3 {
		t.Errorf("latest sample lost after trimming: ok=%v len=%d", ok, s.Len())
	}
}

func TestRequestData_NakRetry(t *testing.T) {
	h := newHarness(t)
	h.sensor.nakNext(x3.QualDataPoll, 2)

	if _, fresh := h.m.RequestData(context.Background()); !fresh {
		t.Fatal("expected a fresh sample after NAKs")
	}
	if n := h.sensor.count(x3.QualDataPoll); n != 3 {
		t.Errorf("polled %d times, want 3", n)
	}
}

func TestRequestData_AlreadyBuffered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.m.SendMessage(ctx, x3.NewBufferFlush()); err != nil {
		t.Fatal(err)
	}
	tr := h.dialer.Last()

	// A full eight-lane cycle is well over the 100 byte threshold
	counts := []int{1, 2, 3, 4, 5, 6, 7, 8}
	var cycle []byte
	cycle = append(cycle, x3.NewVolumeReport(7, counts).MustEncode()...)
	cycle = append(cycle, x3.NewVolumeClassReport(x3.QualVolumeLong, 7, counts).MustEncode()...)
	cycle = append(cycle, x3.NewVolumeClassReport(x3.QualVolumeMid, 7, counts).MustEncode()...)
	cycle = append(cycle, x3.NewVolumeClassReport(x3.QualVolumeXL, 7, counts).MustEncode()...)
	cycle = append(cycle, x3.NewOccupancyReport(7, counts).MustEncode()...)
	cycle = append(cycle, x3.NewSpeedReport(7, counts).MustEncode()...)
	if len(cycle) < DefaultFullSampleBytes {
		t.Fatalf("test cycle only %d bytes", len(cycle))
	}
	tr.Inject(cycle)

	s, fresh := h.m.RequestData(ctx)
	if !fresh || s.TotalVolume() != 36 {
		t.Fatalf("fresh=%v volume=%d", fresh, s.TotalVolume())
	}
	if tr.SendCount() != 1 {
		t.Errorf("sent %d frames, want no poll", tr.SendCount()-1)
	}
}

func TestRequestData_FallsBackToLatest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, fresh := h.m.RequestData(ctx)
	if !fresh {
		t.Fatal("first request should succeed")
	}

	h.sensor.setSilent(true)
	s, fresh := h.m.RequestData(ctx)
	if fresh {
		t.Error("silent sensor produced a fresh sample")
	}
	if s.TotalVolume() != first.TotalVolume() || s.Len() != first.Len() {
		t.Errorf("fallback sample differs from latest")
	}
	if n := h.sensor.count(x3.QualDataPoll); n != 1+DefaultMaxAttempts {
		t.Errorf("polled %d times", n)
	}
}

func TestRequestData_NothingYet(t *testing.T) {
	h := newHarness(t)
	h.sensor.setSilent(true)

	s, fresh := h.m.RequestData(context.Background())
	if fresh || !s.Empty() {
		t.Errorf("fresh=%v len=%d", fresh, s.Len())
	}
}

func TestSamples_GroupReceiveLog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, fresh := h.m.RequestData(ctx); !fresh {
			t.Fatal("request failed")
		}
	}
	if n := len(h.m.Samples()); n != 3 {
		t.Errorf("Samples = %d", n)
	}
	if _, ok := h.m.LatestSample(); !ok {
		t.Error("no latest sample")
	}

	h.m.ClearLogs()
	if n := len(h.m.Samples()); n != 0 {
		t.Errorf("Samples after ClearLogs = %d", n)
	}
}

func TestRunSelfTest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, ok, err := h.m.RunSelfTest(ctx, true)
	if err != nil || !ok || !res.Passed || !res.Immediate {
		t.Errorf("immediate = %+v ok=%v err=%v", res, ok, err)
	}

	res, ok, err = h.m.RunSelfTest(ctx, false)
	if err != nil || !ok || res.Passed || res.Bits != 0x0004 {
		t.Errorf("polled = %+v ok=%v err=%v", res, ok, err)
	}
}

func TestHooks(t *testing.T) {
	metrics := telemetry.New()
	var buf bytes.Buffer
	rec, err := archive.NewWriter(&buf, archive.Header{SensorID: 7})
	if err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, func(o *Options) {
		o.Metrics = metrics
		o.Observer = rec
	})
	if _, fresh := h.m.RequestData(context.Background()); !fresh {
		t.Fatal("request failed")
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	// poll + flush sent, three telemetry frames received
	if rec.Count() != 5 {
		t.Errorf("archived %d frames, want 5", rec.Count())
	}
	r, err := archive.NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := r.All()
	if err != nil {
		t.Fatal(err)
	}
	if samples := x3.GroupSamples(archive.Received(entries)); len(samples) != 1 {
		t.Errorf("replayed %d samples", len(samples))
	}

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		`radarstat_requests_total{qualifier="DATA_POLL"} 1`,
		`radarstat_samples_total 1`,
		`radarstat_lane_volume{lane="2"} 5`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
