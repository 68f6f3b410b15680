// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport carries raw X3 bytes to and from one sensor endpoint.
//
// Every kind (TCP, UDP, serial line, WebSocket bridge) is adapted onto the
// same buffered stream: a reader goroutine fills a pending buffer and wakes
// waiters, so callers can poll Available, block in Wait, and drain with
// Receive without caring how the bytes arrived.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrClosed          = errors.New("transport: closed")
	ErrDisconnected    = errors.New("transport: disconnected")
	ErrUnsupportedKind = errors.New("transport: unsupported kind")
	ErrNoAddress       = errors.New("transport: no address")
)

// Kind selects how bytes reach the sensor
type Kind int

// Kind values
const (
	TCP Kind = iota
	UDP
	Serial
	WebSocket
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	case Serial:
		return "serial"
	case WebSocket:
		return "websocket"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a kind name (case insensitive; "ws" is accepted for websocket)
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return TCP, nil
	case "udp":
		return UDP, nil
	case "serial":
		return Serial, nil
	case "websocket", "ws":
		return WebSocket, nil
	}
	return 0, fmt.Errorf("%w: %q (use tcp, udp, serial or websocket)", ErrUnsupportedKind, s)
}

// Endpoint identifies the sensor. Address is host:port for TCP and UDP, a
// device path for Serial and a ws:// or wss:// URL for WebSocket.
type Endpoint struct {
	Address    string
	BaudRate   int
	Username   string
	Password   string
	SkipVerify bool
}

// Describe returns a display form of the endpoint for kind
func (e Endpoint) Describe(kind Kind) string {
	switch kind {
	case Serial:
		return fmt.Sprintf("Serial: %s @ %d baud", e.Address, e.BaudRate)
	case WebSocket:
		return fmt.Sprintf("WebSocket: %s", e.Address)
	default:
		return fmt.Sprintf("%s: %s", strings.ToUpper(kind.String()), e.Address)
	}
}

// Counters holds cumulative byte counts for one transport
type Counters struct {
	Sent     uint64
	Received uint64
}

// Transport is a byte pipe to one sensor
type Transport interface {
	Kind() Kind

	// Send writes b in full
	Send(b []byte) error

	// Available returns the number of received bytes not yet consumed
	Available() int

	// Receive moves pending bytes into p
	Receive(p []byte) (int, error)

	// Wait blocks until bytes are pending, the timeout elapses or ctx ends.
	// It returns the pending byte count, which is 0 on timeout.
	Wait(ctx context.Context, timeout time.Duration) (int, error)

	Connected() bool
	Close() error
	Counters() Counters
}

// DialFunc opens a transport; the messenger uses it to connect and reconnect
type DialFunc func(ctx context.Context, kind Kind, ep Endpoint) (Transport, error)

// Options tunes Dial
type Options struct {
	DialTimeout   time.Duration
	ReceiveBuffer int // SO_RCVBUF for TCP and UDP sockets, 0 keeps the OS default
	Logger        zerolog.Logger
}

// DefaultOptions returns the dial settings used by the CLI
func DefaultOptions() Options {
	return Options{
		DialTimeout:   15 * time.Second,
		ReceiveBuffer: 64 * 1024,
		Logger:        zerolog.Nop(),
	}
}

// Dial opens a transport of the given kind
func Dial(ctx context.Context, kind Kind, ep Endpoint, opts Options) (Transport, error) {
	if ep.Address == "" {
		return nil, ErrNoAddress
	}
	if opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
	}

	var (
		t   Transport
		err error
	)
	switch kind {
	case TCP, UDP:
		t, err = dialNet(ctx, kind, ep, opts)
	case Serial:
		t, err = dialSerial(ep, opts)
	case WebSocket:
		t, err = dialWebSocket(ctx, ep, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	if err != nil {
		return nil, err
	}

	opts.Logger.Debug().Str("kind", kind.String()).Str("endpoint", ep.Address).Msg("transport connected")
	return t, nil
}

// Dialer returns a DialFunc bound to opts
func Dialer(opts Options) DialFunc {
	return func(ctx context.Context, kind Kind, ep Endpoint) (Transport, error) {
		return Dial(ctx, kind, ep, opts)
	}
}
