// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// readChunk is the size of one read from the underlying connection
const readChunk = 4096

// stream adapts any io.ReadWriteCloser to Transport.
//
// A single goroutine reads from the connection into pending. The first read
// or write error is kept and marks the stream disconnected; bytes already
// pending stay readable.
type stream struct {
	kind Kind
	rwc  io.ReadWriteCloser

	mu      sync.Mutex
	pending []byte
	err     error
	closed  bool

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	sent     atomic.Uint64
	received atomic.Uint64
}

func newStream(kind Kind, rwc io.ReadWriteCloser) *stream {
	s := &stream{
		kind:   kind,
		rwc:    rwc,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *stream) readLoop() {
	buf := make([]byte, readChunk)
	for {
		n, err := s.rwc.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.pending = append(s.pending, buf[:n]...)
			s.mu.Unlock()
			s.received.Add(uint64(n))
			s.signal()
		}
		if err != nil {
			s.fail(err)
			return
		}
	}
}

func (s *stream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *stream) fail(err error) {
	s.mu.Lock()
	if s.err == nil && !s.closed {
		s.err = fmt.Errorf("%w: %s: %v", ErrDisconnected, s.kind, err)
	}
	s.mu.Unlock()
	s.signal()
}

func (s *stream) Kind() Kind { return s.kind }

func (s *stream) Send(b []byte) error {
	s.mu.Lock()
	closed, err := s.closed, s.err
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err != nil {
		return err
	}

	n, werr := s.rwc.Write(b)
	s.sent.Add(uint64(n))
	if werr != nil {
		s.fail(werr)
		return fmt.Errorf("%w: %s write: %v", ErrDisconnected, s.kind, werr)
	}
	if n < len(b) {
		return fmt.Errorf("%s: short write (%d of %d bytes)", s.kind, n, len(b))
	}
	return nil
}

func (s *stream) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *stream) Receive(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	if len(s.pending) == 0 {
		s.pending = nil
	}
	if n == 0 {
		if s.closed {
			return 0, ErrClosed
		}
		if s.err != nil {
			return 0, s.err
		}
	}
	return n, nil
}

func (s *stream) Wait(ctx context.Context, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		n, err, closed := len(s.pending), s.err, s.closed
		s.mu.Unlock()

		switch {
		case n > 0:
			return n, nil
		case closed:
			return 0, ErrClosed
		case err != nil:
			return 0, err
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
			return 0, nil
		case <-s.notify:
		case <-s.done:
		}
	}
}

func (s *stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.err == nil
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.rwc.Close()
		close(s.done)
	})
	return err
}

func (s *stream) Counters() Counters {
	return Counters{Sent: s.sent.Load(), Received: s.received.Load()}
}
