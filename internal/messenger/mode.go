// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messenger

import (
	"context"
	"fmt"

	"github.com/Thermoquad/radarstat/pkg/x3"
)

// EnterStat persists the current settings, then switches to statistics mode
func (m *Messenger) EnterStat(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.saveToFlash(ctx); err != nil {
		return err
	}
	return m.handshake(ctx, x3.ModeStat)
}

// EnterPolled persists the current settings, then switches to polled mode
func (m *Messenger) EnterPolled(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.saveToFlash(ctx); err != nil {
		return err
	}
	return m.handshake(ctx, x3.ModePolled)
}

// EnterNormal switches to normal mode, then persists
func (m *Messenger) EnterNormal(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.handshake(ctx, x3.ModeNormal); err != nil {
		return err
	}
	return m.saveToFlash(ctx)
}

// EnterMode dispatches to the Enter method for mode
func (m *Messenger) EnterMode(ctx context.Context, mode x3.Mode) error {
	switch mode {
	case x3.ModeNormal:
		return m.EnterNormal(ctx)
	case x3.ModePolled:
		return m.EnterPolled(ctx)
	case x3.ModeStat:
		return m.EnterStat(ctx)
	}
	return fmt.Errorf("%w: mode 0x%02X", ErrOutOfRange, byte(mode))
}

// SaveToFlash stamps the day and writes the two persist blocks
func (m *Messenger) SaveToFlash(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveToFlash(ctx)
}

func (m *Messenger) saveToFlash(ctx context.Context) error {
	id := m.sensorID
	m.log.Debug().Msg("saving to flash")
	return m.sendAll(ctx,
		x3.NewDaySaveBlock(id, m.now()),
		x3.NewSaveBlock(id, x3.BlockPersistA, x3.PersistAValue),
		x3.NewSaveBlock(id, x3.BlockPersistB, x3.PersistBValue),
	)
}

// handshake sends unlock, mode select and the per-sensor confirm
func (m *Messenger) handshake(ctx context.Context, mode x3.Mode) error {
	m.log.Info().Str("mode", mode.String()).Msg("mode handshake")
	return m.sendAll(ctx,
		x3.NewUnlock(),
		x3.NewModeSelect(mode),
		x3.NewModeConfirm(m.sensorID, mode),
	)
}
