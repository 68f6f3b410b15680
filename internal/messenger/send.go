// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messenger

import (
	"context"
	"errors"

	"github.com/Thermoquad/radarstat/pkg/x3"
)

// budget counts send attempts across timeouts and NAK retries of one operation
type budget struct {
	left int
	used int
}

func (m *Messenger) newBudget() *budget {
	return &budget{left: m.maxAttempts}
}

// take consumes one attempt
func (b *budget) take() bool {
	if b.left <= 0 {
		return false
	}
	b.left--
	b.used++
	return true
}

// SendMessage sends p and returns the frames reassembled from the reply.
//
// A packet that expects no reply returns an empty result once written. When
// the sensor stays silent for every attempt the result is empty and the
// error nil. Errors mean the transport could not be restored or ctx ended.
func (m *Messenger) SendMessage(ctx context.Context, p *x3.Packet) ([]*x3.Packet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exchange(ctx, p, m.newBudget())
}

// send is exchange with a fresh budget
func (m *Messenger) send(ctx context.Context, p *x3.Packet) ([]*x3.Packet, error) {
	return m.exchange(ctx, p, m.newBudget())
}

// sendAll sends packets in order, stopping at the first error
func (m *Messenger) sendAll(ctx context.Context, packets ...*x3.Packet) error {
	for _, p := range packets {
		if _, err := m.send(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// exchange runs the send/wait cycle until a reply arrives or b runs out
func (m *Messenger) exchange(ctx context.Context, p *x3.Packet, b *budget) ([]*x3.Packet, error) {
	frame, err := p.Encode()
	if err != nil {
		return nil, err
	}
	q := p.Qualifier()
	wait := m.timeout + p.AdditionalTimeout()

	for b.take() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := m.ensureConnected(ctx); err != nil {
			return nil, err
		}

		m.drain()
		m.logRequest(p, b.used)
		sentAt := m.now()
		if err := m.tr.Send(frame); err != nil {
			if rerr := m.recoverTransport(ctx, err); rerr != nil {
				return nil, rerr
			}
			continue
		}
		m.account()

		if !p.HasResponse() {
			m.drain()
			return nil, nil
		}

		n, err := m.tr.Wait(ctx, wait)
		if err != nil {
			if rerr := m.recoverTransport(ctx, err); rerr != nil {
				return nil, rerr
			}
			continue
		}
		if n == 0 {
			m.stats.Timeouts++
			if m.metrics != nil {
				m.metrics.Timeout(q)
			}
			m.log.Debug().Str("qualifier", x3.Name(q)).Int("attempt", b.used).Dur("waited", wait).Msg("no response")
			continue
		}
		if m.metrics != nil {
			m.metrics.RoundTrip(m.now().Sub(sentAt))
		}

		buf := m.collect(ctx, p.HasMultipleResponse())
		packets := x3.Reassemble(buf)
		m.logReceived(packets)
		return packets, nil
	}

	m.log.Warn().Str("qualifier", x3.Name(q)).Int("attempts", b.used).Msg("no response, attempts exhausted")
	return nil, nil
}

// recoverTransport turns a transport error into a reconnect.
// Context errors pass through unchanged.
func (m *Messenger) recoverTransport(ctx context.Context, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	return m.reconnect(ctx, cause)
}

// collect reads the reply. A single-frame reply ends as soon as one complete
// frame is buffered; a multi-frame reply ends after a quiet settle window.
func (m *Messenger) collect(ctx context.Context, multi bool) []byte {
	buf := m.readPending()
	for {
		if !multi && completeFrame(buf) {
			return buf
		}
		n, err := m.tr.Wait(ctx, m.settle)
		if err != nil || n == 0 {
			return buf
		}
		buf = append(buf, m.readPending()...)
	}
}

func completeFrame(buf []byte) bool {
	packets := x3.Reassemble(buf)
	return len(packets) > 0 && !packets[len(packets)-1].Truncated()
}

// readPending moves every pending byte out of the transport
func (m *Messenger) readPending() []byte {
	n := m.tr.Available()
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	k, err := m.tr.Receive(buf)
	m.account()
	if err != nil {
		m.log.Warn().Err(err).Int("pending", n).Msg("receive failed")
	}
	return buf[:k]
}

// drain logs whatever the sensor sent unprompted
func (m *Messenger) drain() {
	if m.tr == nil {
		return
	}
	buf := m.readPending()
	if len(buf) == 0 {
		return
	}
	packets := x3.Reassemble(buf)
	m.log.Debug().Int("bytes", len(buf)).Int("packets", len(packets)).Msg("drained unsolicited input")
	m.logReceived(packets)
}

func (m *Messenger) logRequest(p *x3.Packet, attempt int) {
	q := p.Qualifier()
	m.requests = trimLog(append(m.requests, LogEntry{Time: m.now(), Packet: p}), m.logLimit)
	m.stats.Requests++
	if attempt > 1 {
		m.stats.Retries++
	}
	if m.metrics != nil {
		m.metrics.Request(q)
		if attempt > 1 {
			m.metrics.Retry(q)
		}
	}
	if m.observer != nil {
		m.observer.PacketSent(p)
	}
	m.log.Debug().Str("qualifier", x3.Name(q)).Int("attempt", attempt).Msg("request")
}

func (m *Messenger) logReceived(packets []*x3.Packet) {
	for _, p := range packets {
		m.received = append(m.received, LogEntry{Time: p.Timestamp(), Packet: p})
		m.seen++
		m.stats.Update(p, x3.ValidatePacket(p))
		if m.metrics != nil {
			m.metrics.Packet(p)
			if p.Qualifier() == x3.QualNak && p.Valid() {
				m.metrics.Nak()
			}
		}
		if m.observer != nil {
			m.observer.PacketReceived(p)
		}
		m.log.Debug().
			Str("qualifier", x3.Name(p.Qualifier())).
			Int("len", p.PayloadSize()).
			Bool("valid", p.Valid()).
			Msg("received")
	}
	m.received = trimLog(m.received, m.logLimit)
}

// findValid returns the first valid packet with qualifier q
func findValid(packets []*x3.Packet, q byte) (*x3.Packet, bool) {
	for _, p := range packets {
		if p.Valid() && p.Qualifier() == q {
			return p, true
		}
	}
	return nil, false
}

// hasNak reports whether the sensor answered not-ready
func hasNak(packets []*x3.Packet) bool {
	_, ok := findValid(packets, x3.QualNak)
	return ok
}
