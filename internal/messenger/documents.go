// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messenger

import (
	"context"
	"errors"

	"github.com/Thermoquad/radarstat/pkg/x3"
)

// fetch sends req until a valid want frame comes back. NAK replies and
// replies without the wanted frame are retried inside the same attempt
// budget. It returns nil when the budget runs out.
func (m *Messenger) fetch(ctx context.Context, req *x3.Packet, want byte) (*x3.Packet, error) {
	b := m.newBudget()
	for b.left > 0 {
		resp, err := m.exchange(ctx, req, b)
		if err != nil {
			return nil, err
		}
		if p, ok := findValid(resp, want); ok {
			return p, nil
		}
		if hasNak(resp) {
			m.log.Debug().Str("document", x3.Name(want)).Int("attempt", b.used).Msg("sensor not ready")
		} else if len(resp) > 0 {
			m.log.Debug().Str("document", x3.Name(want)).Int("frames", len(resp)).Msg("reply without document")
		}
	}
	m.log.Warn().Str("document", x3.Name(want)).Msg("document not fetched, keeping cached copy")
	return nil, nil
}

// Initialize fetches all four configuration documents.
// Every fetch runs even when an earlier one fails.
func (m *Messenger) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialize(ctx)
}

func (m *Messenger) initialize(ctx context.Context) error {
	return errors.Join(
		m.refreshSoftwareInfo(ctx),
		m.refreshIntervalInfo(ctx),
		m.refreshPowerVector(ctx),
		m.refreshSpeedBins(ctx),
	)
}

// RefreshSoftwareInfo re-reads the firmware version document
func (m *Messenger) RefreshSoftwareInfo(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshSoftwareInfo(ctx)
}

func (m *Messenger) refreshSoftwareInfo(ctx context.Context) error {
	p, err := m.fetch(ctx, x3.NewSoftwareInfoRequest(m.sensorID), x3.QualSoftwareInfo)
	if err != nil || p == nil {
		return err
	}
	v, err := x3.NewSoftwareInfo(p)
	if err != nil {
		return err
	}
	m.software = &v
	return nil
}

// RefreshIntervalInfo re-reads the interval and zoning document
func (m *Messenger) RefreshIntervalInfo(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshIntervalInfo(ctx)
}

func (m *Messenger) refreshIntervalInfo(ctx context.Context) error {
	p, err := m.fetch(ctx, x3.NewIntervalInfoRequest(m.sensorID), x3.QualIntervalInfo)
	if err != nil || p == nil {
		return err
	}
	v, err := x3.NewIntervalInfo(p)
	if err != nil {
		return err
	}
	m.interval = &v
	return nil
}

// RefreshPowerVector re-reads the power management vector
func (m *Messenger) RefreshPowerVector(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshPowerVector(ctx)
}

func (m *Messenger) refreshPowerVector(ctx context.Context) error {
	p, err := m.fetch(ctx, x3.NewPowerVectorRequest(m.sensorID), x3.QualPowerVector)
	if err != nil || p == nil {
		return err
	}
	v, err := x3.NewPowerVector(p)
	if err != nil {
		return err
	}
	m.powerVector = &v
	return nil
}

// RefreshSpeedBins re-reads the speed bin table
func (m *Messenger) RefreshSpeedBins(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshSpeedBins(ctx)
}

func (m *Messenger) refreshSpeedBins(ctx context.Context) error {
	p, err := m.fetch(ctx, x3.NewSpeedBinRequest(m.sensorID), x3.QualSpeedBinInfo)
	if err != nil || p == nil {
		return err
	}
	v, err := x3.NewSpeedBinInfo(p)
	if err != nil {
		return err
	}
	m.speedBins = &v
	return nil
}

// SoftwareInfo returns the cached firmware document
func (m *Messenger) SoftwareInfo() (x3.SoftwareInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.software == nil {
		return x3.SoftwareInfo{}, false
	}
	return *m.software, true
}

// IntervalInfo returns the cached interval document
func (m *Messenger) IntervalInfo() (x3.IntervalInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interval == nil {
		return x3.IntervalInfo{}, false
	}
	return *m.interval, true
}

// PowerVector returns the cached power vector
func (m *Messenger) PowerVector() (x3.PowerVector, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.powerVector == nil {
		return x3.PowerVector{}, false
	}
	return *m.powerVector, true
}

// SpeedBins returns the cached speed bin table
func (m *Messenger) SpeedBins() (x3.SpeedBinInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.speedBins == nil {
		return x3.SpeedBinInfo{}, false
	}
	return *m.speedBins, true
}
