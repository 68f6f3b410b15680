// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messenger

import (
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/radarstat/internal/transport"
	"github.com/Thermoquad/radarstat/internal/transport/stub"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

// fakeSensor answers host commands the way a sensor in polled mode does.
// Per-qualifier overrides replace the default reply; naks makes the next N
// replies to a qualifier a NAK instead.
type fakeSensor struct {
	mu        sync.Mutex
	id        byte
	silent    bool
	naks      map[byte]int
	overrides map[byte]func() [][]byte
	received  []byte // qualifiers in arrival order
}

func newFakeSensor(id byte) *fakeSensor {
	return &fakeSensor{
		id:        id,
		naks:      make(map[byte]int),
		overrides: make(map[byte]func() [][]byte),
	}
}

func (s *fakeSensor) nakNext(q byte, n int) {
	s.mu.Lock()
	s.naks[q] = n
	s.mu.Unlock()
}

func (s *fakeSensor) setSilent(silent bool) {
	s.mu.Lock()
	s.silent = silent
	s.mu.Unlock()
}

func (s *fakeSensor) override(q byte, reply func() [][]byte) {
	s.mu.Lock()
	s.overrides[q] = reply
	s.mu.Unlock()
}

func (s *fakeSensor) qualifiers() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.received...)
}

func (s *fakeSensor) count(q byte) int {
	n := 0
	for _, r := range s.qualifiers() {
		if r == q {
			n++
		}
	}
	return n
}

// respond implements stub.Responder
func (s *fakeSensor) respond(sent []byte) [][]byte {
	packets := x3.Reassemble(sent)
	if len(packets) == 0 {
		return nil
	}
	q := packets[0].Qualifier()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, q)
	if s.silent {
		return nil
	}
	if s.naks[q] > 0 {
		s.naks[q]--
		return [][]byte{x3.NewNak(s.id, 0x01).MustEncode()}
	}
	if reply, ok := s.overrides[q]; ok {
		return reply()
	}

	var out *x3.Packet
	switch q {
	case x3.QualSoftwareInfoRequest:
		out = x3.NewSoftwareInfoReport(s.id, 2, 1, 300, 0x00C0FFEE)
	case x3.QualIntervalInfoRequest:
		out = x3.NewIntervalInfoReport(s.id, x3.Settings{
			Interval:    60 * time.Second,
			Zones:       4,
			Sensitivity: 8,
			BaudRate:    9600,
			Mode:        x3.ModePolled,
		})
	case x3.QualPowerVectorRequest:
		out = x3.NewPowerVectorReport(s.id, []int{10, 10, 12, 12})
	case x3.QualSpeedBinRequest:
		out = x3.NewSpeedBinInfoReport(s.id, []int{20, 40, 60, 80, 100, 120, 140})
	case x3.QualSelfTestImmediate:
		out = x3.NewBitTestReport(s.id, true, 0)
	case x3.QualSelfTestPolled:
		out = x3.NewBitTestReport(s.id, false, 0x0004)
	case x3.QualDataPoll:
		return [][]byte{sampleFrames(s.id, []int{3, 5}, []int{88, 240})}
	default:
		return nil
	}
	return [][]byte{out.MustEncode()}
}

// sampleFrames encodes one polling cycle: volume, occupancy and speed
func sampleFrames(id byte, counts, kph []int) []byte {
	var b []byte
	b = append(b, x3.NewVolumeReport(id, counts).MustEncode()...)
	b = append(b, x3.NewOccupancyReport(id, []int{125, 40}).MustEncode()...)
	b = append(b, x3.NewSpeedReport(id, kph).MustEncode()...)
	return b
}

// harness wires a Messenger to a stub dialer and fake sensor
type harness struct {
	m      *Messenger
	sensor *fakeSensor
	dialer *stub.Dialer
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	sensor := newFakeSensor(7)
	dialer := &stub.Dialer{Responder: sensor.respond}

	opts := DefaultOptions()
	opts.Endpoint = transport.Endpoint{Address: "10.0.0.5:10001"}
	opts.SensorID = 7
	opts.Timeout = 20 * time.Millisecond
	opts.SettleTime = 5 * time.Millisecond
	opts.Dial = dialer.Dial
	for _, f := range mutate {
		f(&opts)
	}

	m, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return &harness{m: m, sensor: sensor, dialer: dialer}
}

// sentQualifiers lists the qualifier of every frame written to tr
func sentQualifiers(tr *stub.Transport) []byte {
	var out []byte
	for _, frame := range tr.Sent() {
		out = append(out, frame[1])
	}
	return out
}
