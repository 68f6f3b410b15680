// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messenger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/radarstat/internal/transport"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

func TestNew_InvalidSensorID(t *testing.T) {
	for _, id := range []int{-1, 0, 256} {
		opts := DefaultOptions()
		opts.SensorID = id
		if _, err := New(opts); !errors.Is(err, ErrInvalidSensorID) {
			t.Errorf("New(sensor %d) err = %v", id, err)
		}
	}
}

func TestSetSensorID(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		id      int
		wantErr bool
	}{
		{-5, true},
		{0, true},
		{1, false},
		{255, false},
		{256, true},
	}
	for _, tt := range tests {
		err := h.m.SetSensorID(tt.id)
		if tt.wantErr != (err != nil) {
			t.Errorf("SetSensorID(%d) = %v", tt.id, err)
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidSensorID) {
			t.Errorf("SetSensorID(%d) err = %v, want ErrInvalidSensorID", tt.id, err)
		}
	}
	if h.m.SensorID() != 255 {
		t.Errorf("SensorID = %d, want 255 (rejected values must not clamp)", h.m.SensorID())
	}
}

func TestSendMessage_RetryBound(t *testing.T) {
	h := newHarness(t)
	h.sensor.setSilent(true)

	resp, err := h.m.SendMessage(context.Background(), x3.NewDataPoll(7))
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(resp) != 0 {
		t.Errorf("got %d packets from a silent sensor", len(resp))
	}
	if n := h.dialer.Last().SendCount(); n != DefaultMaxAttempts {
		t.Errorf("sent %d times, want %d", n, DefaultMaxAttempts)
	}

	st := h.m.Statistics()
	if st.Timeouts != DefaultMaxAttempts || st.Retries != DefaultMaxAttempts-1 {
		t.Errorf("timeouts=%d retries=%d", st.Timeouts, st.Retries)
	}
	if len(h.m.RequestLog()) != DefaultMaxAttempts {
		t.Errorf("request log has %d entries", len(h.m.RequestLog()))
	}
}

func TestSendMessage_NoResponseExpected(t *testing.T) {
	h := newHarness(t)

	resp, err := h.m.SendMessage(context.Background(), x3.NewCommit(7))
	if err != nil || len(resp) != 0 {
		t.Fatalf("SendMessage = %v, %v", resp, err)
	}
	tr := h.dialer.Last()
	if tr.SendCount() != 1 {
		t.Fatalf("sent %d times", tr.SendCount())
	}
	want := x3.NewCommit(7).MustEncode()
	if got := tr.Sent()[0]; !bytes.Equal(got, want) {
		t.Errorf("wire = % X, want % X", got, want)
	}
	if !bytes.HasSuffix(tr.Sent()[0], []byte{0xFF, 0x02, 0x01, 0x55, 0x55}) {
		t.Error("SAVE_BLOCK should carry the flush trailer")
	}
}

func TestSendMessage_MultipleResponse(t *testing.T) {
	h := newHarness(t)

	resp, err := h.m.SendMessage(context.Background(), x3.NewDataPoll(7))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp) != 3 {
		t.Fatalf("got %d packets, want 3", len(resp))
	}
	wantQ := []byte{x3.QualVolume, x3.QualOccupancy, x3.QualSpeed}
	for i, p := range resp {
		if p.Qualifier() != wantQ[i] || !p.Valid() {
			t.Errorf("packet %d: %s valid=%v", i, x3.Name(p.Qualifier()), p.Valid())
		}
	}
	if len(h.m.ReceiveLog()) != 3 {
		t.Errorf("receive log has %d entries", len(h.m.ReceiveLog()))
	}
}

func TestSendMessage_SplitReply(t *testing.T) {
	h := newHarness(t)
	h.sensor.override(x3.QualSoftwareInfoRequest, func() [][]byte {
		frame := x3.NewSoftwareInfoReport(7, 1, 0, 5, 42).MustEncode()
		return [][]byte{frame[:4], frame[4:]}
	})

	resp, err := h.m.SendMessage(context.Background(), x3.NewSoftwareInfoRequest(7))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp) != 1 || !resp[0].Valid() || resp[0].Qualifier() != x3.QualSoftwareInfo {
		t.Fatalf("resp = %v", resp)
	}
}

func TestSendMessage_DrainsStaleInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Connect first so there is a transport to inject into
	if _, err := h.m.SendMessage(ctx, x3.NewBufferFlush()); err != nil {
		t.Fatal(err)
	}
	tr := h.dialer.Last()
	tr.Inject(x3.NewNak(7, 0x03).MustEncode())

	resp, err := h.m.SendMessage(ctx, x3.NewSoftwareInfoRequest(7))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp) != 1 || resp[0].Qualifier() != x3.QualSoftwareInfo {
		t.Fatalf("stale NAK attributed to request: %v", resp)
	}

	log := h.m.ReceiveLog()
	if len(log) != 2 || log[0].Packet.Qualifier() != x3.QualNak {
		t.Errorf("receive log = %d entries", len(log))
	}
}

func TestSendMessage_ReceiveError(t *testing.T) {
	var logs bytes.Buffer
	h := newHarness(t, func(o *Options) { o.Logger = zerolog.New(&logs) })
	ctx := context.Background()

	if _, err := h.m.SendMessage(ctx, x3.NewBufferFlush()); err != nil {
		t.Fatal(err)
	}
	tr := h.dialer.Last()
	tr.Inject(x3.NewNak(7, 0x03).MustEncode())
	tr.FailNextReceive(errors.New("uart overrun"))

	if _, err := h.m.SendMessage(ctx, x3.NewBufferFlush()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(logs.String(), "receive failed") || !strings.Contains(logs.String(), "uart overrun") {
		t.Errorf("receive error not logged: %s", logs.String())
	}

	// The failed read leaves the input pending for the next drain
	log := h.m.ReceiveLog()
	if len(log) != 1 || log[0].Packet.Qualifier() != x3.QualNak {
		t.Errorf("receive log = %d entries", len(log))
	}
}

func TestSendMessage_Reconnect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.m.SendMessage(ctx, x3.NewBufferFlush()); err != nil {
		t.Fatal(err)
	}
	first := h.dialer.Last()
	first.FailNextSend(errors.New("broken pipe"))

	resp, err := h.m.SendMessage(ctx, x3.NewSoftwareInfoRequest(7))
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if h.dialer.Dials() != 2 {
		t.Errorf("dials = %d, want 2", h.dialer.Dials())
	}
	if len(resp) != 1 || resp[0].Qualifier() != x3.QualSoftwareInfo {
		t.Errorf("resp after reconnect = %v", resp)
	}
	if first.Connected() {
		t.Error("failed transport was not closed")
	}
}

func TestSendMessage_ReconnectFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.m.SendMessage(ctx, x3.NewBufferFlush()); err != nil {
		t.Fatal(err)
	}
	dialErr := errors.New("connection refused")
	h.dialer.SetErr(dialErr)
	h.dialer.Last().Drop()

	_, err := h.m.SendMessage(ctx, x3.NewDataPoll(7))
	if !errors.Is(err, dialErr) {
		t.Fatalf("err = %v, want wrapped dial error", err)
	}
}

func TestSendMessage_ContextCanceled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.m.SendMessage(ctx, x3.NewDataPoll(7)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestOpen_FetchesDocuments(t *testing.T) {
	h := newHarness(t)
	if err := h.m.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	sw, ok := h.m.SoftwareInfo()
	if !ok || sw.Version() != "2.1.300" || sw.Serial() != 0x00C0FFEE {
		t.Errorf("software info = %v %v", sw.Version(), ok)
	}
	iv, ok := h.m.IntervalInfo()
	if !ok || iv.IntervalSeconds() != 60 || iv.Zones() != 4 || iv.Sensitivity() != 8 {
		t.Errorf("interval info = %d s, %d zones, sens %d", iv.IntervalSeconds(), iv.Zones(), iv.Sensitivity())
	}
	pv, ok := h.m.PowerVector()
	if !ok || len(pv.Levels()) != x3.MaxLanes || pv.Levels()[2] != 12 {
		t.Errorf("power vector = %v", pv.Levels())
	}
	sb, ok := h.m.SpeedBins()
	if !ok || len(sb.Bins()) != x3.SpeedBinCount || sb.Bins()[6] != 140 {
		t.Errorf("speed bins = %v", sb.Bins())
	}

	want := []byte{
		x3.QualSoftwareInfoRequest,
		x3.QualIntervalInfoRequest,
		x3.QualPowerVectorRequest,
		x3.QualSpeedBinRequest,
	}
	if got := sentQualifiers(h.dialer.Last()); !bytes.Equal(got, want) {
		t.Errorf("sent % X, want % X", got, want)
	}
}

func TestFetch_NakRetry(t *testing.T) {
	h := newHarness(t)
	h.sensor.nakNext(x3.QualIntervalInfoRequest, 2)

	if err := h.m.RefreshIntervalInfo(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.m.IntervalInfo(); !ok {
		t.Fatal("interval info not cached after NAKs")
	}
	if n := h.sensor.count(x3.QualIntervalInfoRequest); n != 3 {
		t.Errorf("sent %d requests, want 3", n)
	}
	if st := h.m.Statistics(); st.Naks != 2 {
		t.Errorf("Naks = %d", st.Naks)
	}
}

func TestFetch_NakSharesBudget(t *testing.T) {
	h := newHarness(t)
	h.sensor.nakNext(x3.QualSpeedBinRequest, 100)

	if err := h.m.RefreshSpeedBins(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.m.SpeedBins(); ok {
		t.Error("speed bins cached from a NAK")
	}
	if n := h.sensor.count(x3.QualSpeedBinRequest); n != DefaultMaxAttempts {
		t.Errorf("sent %d requests, want %d", n, DefaultMaxAttempts)
	}
}

func TestFetch_KeepsCachedCopy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.m.RefreshPowerVector(ctx); err != nil {
		t.Fatal(err)
	}

	h.sensor.setSilent(true)
	if err := h.m.RefreshPowerVector(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.m.PowerVector(); !ok {
		t.Error("cached power vector dropped after a silent refresh")
	}
}

func TestSetTransportKind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.m.Open(ctx); err != nil {
		t.Fatal(err)
	}
	first := h.dialer.Last()

	if err := h.m.SetTransportKind(ctx, transport.UDP); err != nil {
		t.Fatalf("SetTransportKind failed: %v", err)
	}
	second := h.dialer.Last()

	if first == second || h.dialer.Dials() != 2 {
		t.Fatalf("dials = %d", h.dialer.Dials())
	}
	if first.Connected() {
		t.Error("old transport still open")
	}
	if second.Kind() != transport.UDP || h.m.Kind() != transport.UDP {
		t.Errorf("kind = %s", second.Kind())
	}
	if got := sentQualifiers(second); len(got) != 4 {
		t.Errorf("re-initialize sent % X, want the four document requests", got)
	}

	c := h.m.Counters(transport.TCP)
	if c.Sent == 0 || c.Received == 0 {
		t.Errorf("TCP counters = %+v", c)
	}
	if h.m.Counters(transport.UDP).Sent == 0 {
		t.Error("UDP counters not tracked")
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.m.Open(ctx); err != nil {
		t.Fatal(err)
	}
	tr := h.dialer.Last()

	if err := h.m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := h.m.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if tr.Connected() {
		t.Error("transport still open after Close")
	}
	if len(h.m.RequestLog()) != 0 || len(h.m.ReceiveLog()) != 0 {
		t.Error("logs not cleared")
	}
	if _, err := h.m.SendMessage(ctx, x3.NewDataPoll(7)); !errors.Is(err, ErrNotOpen) {
		t.Errorf("SendMessage after Close = %v", err)
	}
}
