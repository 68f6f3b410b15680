// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messenger

import (
	"context"

	"github.com/Thermoquad/radarstat/pkg/x3"
)

// RequestData returns the newest sample and whether it was reconstructed by
// this call.
//
// When at least FullSampleBytes of unread input already hold a new sample,
// no poll is sent. Otherwise DATA_POLL is sent (NAK replies retried inside
// the attempt budget), followed by BUFFER_FLUSH once a new sample arrives.
// Any failure falls back to the most recent sample already reconstructed.
func (m *Messenger) RequestData(ctx context.Context) (x3.Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, fresh, err := m.requestData(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("data request failed, returning latest sample")
	}
	if !fresh {
		s, _ = latest(m.samples())
		return s, false
	}

	m.stats.Samples++
	if m.metrics != nil {
		m.metrics.Sample(s)
	}
	return s, true
}

func (m *Messenger) requestData(ctx context.Context) (x3.Sample, bool, error) {
	if err := m.ensureConnected(ctx); err != nil {
		return x3.Sample{}, false, err
	}

	mark := m.seen
	buffered := m.tr.Available()
	m.drain()
	if s := m.samplesSince(mark); buffered >= m.fullSampleBytes && len(s) > 0 {
		m.log.Debug().Int("buffered", buffered).Msg("sample already buffered, skipping poll")
		return s[len(s)-1], true, nil
	}

	b := m.newBudget()
	for b.left > 0 {
		resp, err := m.exchange(ctx, x3.NewDataPoll(m.sensorID), b)
		if err != nil {
			return x3.Sample{}, false, err
		}
		if hasNak(resp) && !hasTelemetry(resp) {
			m.log.Debug().Int("attempt", b.used).Msg("data poll not ready")
			continue
		}

		s := m.samplesSince(mark)
		if len(s) > 0 {
			if _, err := m.send(ctx, x3.NewBufferFlush()); err != nil {
				return x3.Sample{}, false, err
			}
			return s[len(s)-1], true, nil
		}
	}
	return x3.Sample{}, false, nil
}

func hasTelemetry(packets []*x3.Packet) bool {
	for _, p := range packets {
		if p.Valid() && x3.IsTelemetry(p.Qualifier()) {
			return true
		}
	}
	return false
}

// SelfTest is the outcome of a built-in test
type SelfTest struct {
	Immediate bool
	Bits      uint16
	Passed    bool
}

// RunSelfTest asks the sensor to test itself. The bool is false when no
// BIT_TEST reply arrived within the attempt budget.
func (m *Messenger) RunSelfTest(ctx context.Context, immediate bool) (SelfTest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req := x3.NewSelfTest(m.sensorID, immediate)
	want := byte(x3.QualBitTestPolled)
	if immediate {
		want = x3.QualBitTestImmediate
	}

	p, err := m.fetch(ctx, req, want)
	if err != nil || p == nil {
		return SelfTest{Immediate: immediate}, false, err
	}

	res := SelfTest{Immediate: immediate}
	if immediate {
		v, err := x3.NewBitTestImmediate(p)
		if err != nil {
			return res, false, err
		}
		res.Bits, res.Passed = v.Bits(), v.Passed()
	} else {
		v, err := x3.NewBitTestPolled(p)
		if err != nil {
			return res, false, err
		}
		res.Bits, res.Passed = v.Bits(), v.Passed()
	}
	return res, true, nil
}
