// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messenger

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/radarstat/internal/transport"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func withFixedClock(o *Options) {
	o.Now = func() time.Time { return fixedNow }
}

func TestUpdateSensitivity(t *testing.T) {
	h := newHarness(t, withFixedClock)
	if err := h.m.UpdateSensitivity(context.Background(), 1); err != nil {
		t.Fatalf("UpdateSensitivity failed: %v", err)
	}

	tr := h.dialer.Last()
	sent := tr.Sent()
	want := []byte{
		x3.QualSaveBlock, // sensitivity
		x3.QualSaveBlock, // commit
		x3.QualSaveBlock, // day
		x3.QualSaveBlock, // persist A
		x3.QualSaveBlock, // persist B
		x3.QualIntervalInfoRequest,
	}
	if got := sentQualifiers(tr); !bytes.Equal(got, want) {
		t.Fatalf("sent % X, want % X", got, want)
	}

	// Level 1 is stored as code 0x02
	if got := sent[0][3:6]; !bytes.Equal(got, []byte{7, x3.BlockSensitivity, 0x02}) {
		t.Errorf("sensitivity SAVE_BLOCK payload = % X", got)
	}
	if got := sent[1][3:6]; !bytes.Equal(got, []byte{7, x3.BlockCommit, x3.CommitValue}) {
		t.Errorf("commit payload = % X", got)
	}
	if got := sent[2][3:6]; !bytes.Equal(got, []byte{7, x3.BlockDay, 0x14}) {
		t.Errorf("day payload = % X", got)
	}
	if _, ok := h.m.IntervalInfo(); !ok {
		t.Error("interval info not re-read")
	}
}

func TestUpdateSensitivity_RejectedBeforeSend(t *testing.T) {
	for _, level := range []int{0, 16, -3} {
		h := newHarness(t)
		err := h.m.UpdateSensitivity(context.Background(), level)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("UpdateSensitivity(%d) err = %v", level, err)
		}
		if h.dialer.Dials() != 0 {
			t.Errorf("UpdateSensitivity(%d) touched the transport", level)
		}
	}
}

func TestUpdateParameters_Validation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(m *Messenger) error
	}{
		{"zones 0", func(m *Messenger) error { return m.UpdateZoneCount(ctx, 0) }},
		{"zones 9", func(m *Messenger) error { return m.UpdateZoneCount(ctx, 9) }},
		{"interval 9s", func(m *Messenger) error { return m.UpdateDataInterval(ctx, 9*time.Second) }},
		{"interval 901s", func(m *Messenger) error { return m.UpdateDataInterval(ctx, 901*time.Second) }},
		{"interval fraction", func(m *Messenger) error { return m.UpdateDataInterval(ctx, 30500*time.Millisecond) }},
		{"baud 4800", func(m *Messenger) error { return m.UpdateBaudRate(ctx, 4800) }},
		{"speed bin 240", func(m *Messenger) error { return m.UpdateSpeedBins(ctx, []int{10, 240}) }},
		{"speed bin negative", func(m *Messenger) error { return m.UpdateSpeedBins(ctx, []int{-1}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if err := tt.call(h.m); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("err = %v, want ErrOutOfRange", err)
			}
			if h.dialer.Dials() != 0 {
				t.Error("rejected update reached the transport")
			}
		})
	}
}

func TestUpdateDataInterval(t *testing.T) {
	h := newHarness(t)
	if err := h.m.UpdateDataInterval(context.Background(), 5*time.Minute); err != nil {
		t.Fatal(err)
	}
	first := h.dialer.Last().Sent()[0]
	// 300 s = 0x012C
	if got := first[3:7]; !bytes.Equal(got, []byte{7, x3.BlockInterval, 0x01, 0x2C}) {
		t.Errorf("interval payload = % X", got)
	}
}

func TestUpdateZoneCount(t *testing.T) {
	h := newHarness(t)
	if err := h.m.UpdateZoneCount(context.Background(), 8); err != nil {
		t.Fatal(err)
	}
	first := h.dialer.Last().Sent()[0]
	if got := first[3:6]; !bytes.Equal(got, []byte{7, x3.BlockZones, 8}) {
		t.Errorf("zones payload = % X", got)
	}
}

func TestUpdateSpeedBins(t *testing.T) {
	h := newHarness(t)
	if err := h.m.UpdateSpeedBins(context.Background(), []int{30, 50}); err != nil {
		t.Fatal(err)
	}

	tr := h.dialer.Last()
	want := []byte{
		x3.QualSpeedBinWrite,
		x3.QualSaveBlock, x3.QualSaveBlock, x3.QualSaveBlock,
		x3.QualSpeedBinRequest,
	}
	if got := sentQualifiers(tr); !bytes.Equal(got, want) {
		t.Fatalf("sent % X, want % X", got, want)
	}

	p, err := x3.ParsePacket(tr.Sent()[0])
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := x3.Decode(p)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := decoded.(x3.SpeedBinWrite)
	if !ok {
		t.Fatalf("decoded %T", decoded)
	}
	bins := v.Bins()
	if len(bins) != x3.SpeedBinCount || bins[0] != 30 || bins[1] != 50 || bins[6] != 0 {
		t.Errorf("written bins = %v", bins)
	}
	if len(v.Config()) == 0 {
		t.Error("configuration block missing")
	}
}

func TestUpdateBaudRate(t *testing.T) {
	flash := []byte{x3.QualSaveBlock, x3.QualSaveBlock, x3.QualSaveBlock}
	set := append([]byte{x3.QualBaudRateSet}, flash...)

	tests := []struct {
		name     string
		kind     transport.Kind
		dials    int
		baud     int
		sent     [][]byte // qualifiers per dialed transport
		redialed bool
	}{
		{
			name:  "tcp",
			kind:  transport.TCP,
			dials: 1,
			baud:  9600,
			sent:  [][]byte{append(append([]byte{}, set...), x3.QualIntervalInfoRequest)},
		},
		{
			name:     "serial",
			kind:     transport.Serial,
			dials:    2,
			baud:     19200,
			sent:     [][]byte{set, {x3.QualIntervalInfoRequest}},
			redialed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(o *Options) {
				o.Kind = tt.kind
				o.Endpoint.BaudRate = 9600
			})
			if err := h.m.UpdateBaudRate(context.Background(), 19200); err != nil {
				t.Fatal(err)
			}

			if n := h.dialer.Dials(); n != tt.dials {
				t.Fatalf("dials = %d, want %d", n, tt.dials)
			}
			if got := h.m.Endpoint().BaudRate; got != tt.baud {
				t.Errorf("endpoint baud = %d, want %d", got, tt.baud)
			}
			if tt.redialed {
				eps := h.dialer.Endpoints()
				if eps[0].BaudRate != 9600 || eps[1].BaudRate != 19200 {
					t.Errorf("dialed at %d then %d baud", eps[0].BaudRate, eps[1].BaudRate)
				}
			}

			trs := h.dialer.Transports()
			for i, want := range tt.sent {
				if got := sentQualifiers(trs[i]); !bytes.Equal(got, want) {
					t.Errorf("transport %d sent % X, want % X", i, got, want)
				}
			}

			first := trs[0].Sent()[0]
			if got := first[1:5]; !bytes.Equal(got, []byte{x3.QualBaudRateSet, 2, 7, 0x02}) {
				t.Errorf("baud frame = % X", got)
			}
			if _, ok := h.m.IntervalInfo(); !ok {
				t.Error("interval info not re-read")
			}
		})
	}
}

func TestSetSensorTime(t *testing.T) {
	h := newHarness(t)
	if err := h.m.SetSensorTime(context.Background(), fixedNow); err != nil {
		t.Fatal(err)
	}
	sent := h.dialer.Last().Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d frames", len(sent))
	}
	want := []byte{7, 0x53, 0x26, 0x09, 0x14, 0x03, 0x25}
	if got := sent[0][3:10]; !bytes.Equal(got, want) {
		t.Errorf("clock payload = % X, want % X", got, want)
	}
}

func TestModeHandshake(t *testing.T) {
	flash := []byte{x3.QualSaveBlock, x3.QualSaveBlock, x3.QualSaveBlock}
	handshake := []byte{x3.QualUnlock, x3.QualModeSelect, x3.QualModeConfirm}

	tests := []struct {
		name  string
		enter func(m *Messenger, ctx context.Context) error
		mode  x3.Mode
		want  []byte
	}{
		{"stat", (*Messenger).EnterStat, x3.ModeStat, append(append([]byte{}, flash...), handshake...)},
		{"polled", (*Messenger).EnterPolled, x3.ModePolled, append(append([]byte{}, flash...), handshake...)},
		{"normal", (*Messenger).EnterNormal, x3.ModeNormal, append(append([]byte{}, handshake...), flash...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if err := tt.enter(h.m, context.Background()); err != nil {
				t.Fatal(err)
			}
			tr := h.dialer.Last()
			if got := sentQualifiers(tr); !bytes.Equal(got, tt.want) {
				t.Fatalf("sent % X, want % X", got, tt.want)
			}

			for _, frame := range tr.Sent() {
				if frame[1] != x3.QualModeConfirm {
					continue
				}
				want := x3.NewModeConfirm(7, tt.mode).MustEncode()
				if !bytes.Equal(frame, want) {
					t.Errorf("confirm = % X, want % X", frame, want)
				}
			}
		})
	}
}

func TestEnterMode_Unknown(t *testing.T) {
	h := newHarness(t)
	if err := h.m.EnterMode(context.Background(), x3.Mode(9)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("err = %v", err)
	}
}
