// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package stub provides an in-memory transport for host-side tests.
package stub

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/radarstat/internal/transport"
)

// Responder returns the chunks a scripted sensor emits after receiving sent.
// Each chunk becomes pending input in order; nil means silence.
type Responder func(sent []byte) [][]byte

// Transport implements transport.Transport in memory
type Transport struct {
	mu        sync.Mutex
	kind      transport.Kind
	pending   []byte
	sent      [][]byte
	responder Responder
	connected bool
	sendErr   error
	recvErr   error
	counters  transport.Counters
	notify    chan struct{}
}

// New creates a connected stub of the given kind
func New(kind transport.Kind, responder Responder) *Transport {
	return &Transport{
		kind:      kind,
		responder: responder,
		connected: true,
		notify:    make(chan struct{}, 1),
	}
}

func (t *Transport) signal() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Kind returns the kind the stub was created with
func (t *Transport) Kind() transport.Kind { return t.kind }

// Send records b and queues the responder's reply
func (t *Transport) Send(b []byte) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return transport.ErrDisconnected
	}
	if t.sendErr != nil {
		err := t.sendErr
		t.connected = false
		t.mu.Unlock()
		return err
	}
	frame := append([]byte(nil), b...)
	t.sent = append(t.sent, frame)
	t.counters.Sent += uint64(len(b))
	responder := t.responder
	t.mu.Unlock()

	if responder != nil {
		for _, chunk := range responder(frame) {
			t.Inject(chunk)
		}
	}
	return nil
}

// Available returns the pending byte count
func (t *Transport) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Receive drains pending bytes into p
func (t *Transport) Receive(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.recvErr; err != nil {
		t.recvErr = nil
		return 0, err
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// Wait blocks until input is pending, timeout elapses or ctx ends
func (t *Transport) Wait(ctx context.Context, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		t.mu.Lock()
		n, connected := len(t.pending), t.connected
		t.mu.Unlock()
		if n > 0 {
			return n, nil
		}
		if !connected {
			return 0, transport.ErrDisconnected
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
			return 0, nil
		case <-t.notify:
		}
	}
}

// Connected reports whether the stub is usable
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Close disconnects the stub
func (t *Transport) Close() error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	t.signal()
	return nil
}

// Counters returns byte counts
func (t *Transport) Counters() transport.Counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters
}

// Inject appends bytes as if the sensor had sent them
func (t *Transport) Inject(b []byte) {
	if len(b) == 0 {
		return
	}
	t.mu.Lock()
	t.pending = append(t.pending, b...)
	t.counters.Received += uint64(len(b))
	t.mu.Unlock()
	t.signal()
}

// Sent returns a copy of every Send payload in order
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	for i, b := range t.sent {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

// SendCount returns the number of Send calls that reached the stub
func (t *Transport) SendCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// SetResponder replaces the scripted sensor
func (t *Transport) SetResponder(r Responder) {
	t.mu.Lock()
	t.responder = r
	t.mu.Unlock()
}

// FailNextSend makes the next Send return err and drop the connection
func (t *Transport) FailNextSend(err error) {
	t.mu.Lock()
	t.sendErr = err
	t.mu.Unlock()
}

// FailNextReceive makes the next Receive return err and leave input pending
func (t *Transport) FailNextReceive(err error) {
	t.mu.Lock()
	t.recvErr = err
	t.mu.Unlock()
}

// Drop marks the stub disconnected without closing it
func (t *Transport) Drop() {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	t.signal()
}

// Dialer hands out stub transports sharing one responder
type Dialer struct {
	mu        sync.Mutex
	Responder Responder
	Err       error // returned by every Dial while set
	dials     []*Transport
	endpoints []transport.Endpoint
}

// Dial implements transport.DialFunc
func (d *Dialer) Dial(ctx context.Context, kind transport.Kind, ep transport.Endpoint) (transport.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	t := New(kind, d.Responder)
	d.dials = append(d.dials, t)
	d.endpoints = append(d.endpoints, ep)
	return t, nil
}

// SetErr changes the dial error
func (d *Dialer) SetErr(err error) {
	d.mu.Lock()
	d.Err = err
	d.mu.Unlock()
}

// Dials returns the number of successful dials
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

// Transports returns every dialed transport, oldest first
func (d *Dialer) Transports() []*Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Transport(nil), d.dials...)
}

// Endpoints returns the endpoint of every successful dial, oldest first
func (d *Dialer) Endpoints() []transport.Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]transport.Endpoint(nil), d.endpoints...)
}

// Last returns the most recently dialed transport
func (d *Dialer) Last() *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.dials) == 0 {
		return nil
	}
	return d.dials[len(d.dials)-1]
}
