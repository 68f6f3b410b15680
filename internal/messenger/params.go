// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messenger

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/radarstat/internal/transport"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

// Parameter updates are not transactional. A failure partway leaves the
// sensor in whatever state the packets already sent produced; each update
// ends by re-reading the affected document so callers can verify.

// UpdateSensitivity stores a detection sensitivity level 1-15
func (m *Messenger) UpdateSensitivity(ctx context.Context, level int) error {
	code, err := x3.SensitivityCode(level)
	if err != nil {
		return err
	}
	return m.updateBlock(ctx, x3.BlockSensitivity, code)
}

// UpdateZoneCount stores the number of detection zones
func (m *Messenger) UpdateZoneCount(ctx context.Context, zones int) error {
	if zones < x3.MinZones || zones > x3.MaxZones {
		return fmt.Errorf("%w: zones %d (%d-%d)", ErrOutOfRange, zones, x3.MinZones, x3.MaxZones)
	}
	return m.updateBlock(ctx, x3.BlockZones, byte(zones))
}

// UpdateDataInterval stores the aggregation interval, 10s to 900s in whole seconds
func (m *Messenger) UpdateDataInterval(ctx context.Context, d time.Duration) error {
	secs := int(d / time.Second)
	if d%time.Second != 0 || secs < x3.MinInterval || secs > x3.MaxInterval {
		return fmt.Errorf("%w: interval %s (%ds-%ds)", ErrOutOfRange, d, x3.MinInterval, x3.MaxInterval)
	}
	return m.updateBlock(ctx, x3.BlockInterval, byte(secs>>8), byte(secs))
}

// updateBlock writes a setting block, commits it, persists and re-reads INTERVAL_INFO
func (m *Messenger) updateBlock(ctx context.Context, block byte, value ...byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.sensorID
	if err := m.sendAll(ctx, x3.NewSaveBlock(id, block, value...), x3.NewCommit(id)); err != nil {
		return err
	}
	if err := m.saveToFlash(ctx); err != nil {
		return err
	}
	return m.refreshIntervalInfo(ctx)
}

// UpdateBaudRate changes the sensor line rate. On a serial transport the
// port is reopened at the new rate before the settings are re-read.
func (m *Messenger) UpdateBaudRate(ctx context.Context, baud int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := x3.NewBaudRateSet(m.sensorID, baud)
	if err != nil {
		return err
	}
	if _, err := m.send(ctx, p); err != nil {
		return err
	}
	if err := m.saveToFlash(ctx); err != nil {
		return err
	}
	if m.kind == transport.Serial {
		m.endpoint.BaudRate = baud
		if err := m.connect(ctx); err != nil {
			return err
		}
	}
	return m.refreshIntervalInfo(ctx)
}

// SetSensorTime sets the sensor real-time clock
func (m *Messenger) SetSensorTime(ctx context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.send(ctx, x3.NewSetClock(m.sensorID, t))
	return err
}

// UpdateSpeedBins writes the speed bin thresholds (padded or truncated to
// seven), persists and re-reads SPEED_BIN_INFO
func (m *Messenger) UpdateSpeedBins(ctx context.Context, bins []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := x3.NewSpeedBinWrite(m.sensorID, bins)
	if err != nil {
		return err
	}
	if _, err := m.send(ctx, p); err != nil {
		return err
	}
	if err := m.saveToFlash(ctx); err != nil {
		return err
	}
	return m.refreshSpeedBins(ctx)
}
