// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package x3

import (
	"fmt"
	"time"
)

// ============================================================
// Commands (Host → Sensor)
// ============================================================

// NewDataPoll creates a DATA_POLL packet; the sensor answers with one sample
func NewDataPoll(sensorID byte) *Packet {
	return NewPacket(QualDataPoll, []byte{sensorID})
}

// NewBufferFlush creates a BUFFER_FLUSH packet
func NewBufferFlush() *Packet {
	return NewPacket(QualBufferFlush, []byte{FlushCode})
}

// NewSelfTest creates a SELF_TEST_IMMEDIATE or SELF_TEST_POLLED packet
func NewSelfTest(sensorID byte, immediate bool) *Packet {
	q := byte(QualSelfTestPolled)
	if immediate {
		q = QualSelfTestImmediate
	}
	p := NewPacket(q, []byte{sensorID})
	p.SetAdditionalTimeout(2 * time.Second)
	return p
}

// NewPowerVectorRequest creates a POWER_VECTOR_REQUEST packet
func NewPowerVectorRequest(sensorID byte) *Packet {
	return NewPacket(QualPowerVectorRequest, []byte{sensorID})
}

// NewSpeedBinRequest creates a SPEED_BIN_REQUEST packet
func NewSpeedBinRequest(sensorID byte) *Packet {
	return NewPacket(QualSpeedBinRequest, []byte{sensorID})
}

// NewSoftwareInfoRequest creates a SOFTWARE_INFO_REQUEST packet
func NewSoftwareInfoRequest(sensorID byte) *Packet {
	return NewPacket(QualSoftwareInfoRequest, []byte{sensorID})
}

// NewIntervalInfoRequest creates an INTERVAL_INFO_REQUEST packet
func NewIntervalInfoRequest(sensorID byte) *Packet {
	return NewPacket(QualIntervalInfoRequest, []byte{sensorID})
}

// NewBaudRateSet creates a BAUD_RATE_SET packet for a supported line rate
func NewBaudRateSet(sensorID byte, baud int) (*Packet, error) {
	code, err := BaudCode(baud)
	if err != nil {
		return nil, err
	}
	return NewPacket(QualBaudRateSet, []byte{sensorID, code}), nil
}

// NewSaveBlock creates a SAVE_BLOCK packet writing value to block
func NewSaveBlock(sensorID, block byte, value ...byte) *Packet {
	payload := make([]byte, 0, 2+len(value))
	payload = append(payload, sensorID, block)
	payload = append(payload, value...)
	p := NewPacket(QualSaveBlock, payload)
	p.SetAdditionalTimeout(500 * time.Millisecond)
	return p
}

// NewDaySaveBlock creates the SAVE_BLOCK that stamps the current day of month
func NewDaySaveBlock(sensorID byte, now time.Time) *Packet {
	return NewSaveBlock(sensorID, BlockDay, ToBCD(now.Day()))
}

// NewCommit creates the fixed SAVE_BLOCK that confirms a parameter change
func NewCommit(sensorID byte) *Packet {
	return NewSaveBlock(sensorID, BlockCommit, CommitValue)
}

// NewUnlock creates the broadcast UNLOCK packet that opens a mode handshake
func NewUnlock() *Packet {
	return NewPacket(QualUnlock, unlockPayload)
}

// NewModeSelect creates the broadcast MODE_SELECT packet
func NewModeSelect(mode Mode) *Packet {
	return NewPacket(QualModeSelect, []byte{BroadcastID, byte(mode)})
}

// NewModeConfirm creates the per-sensor MODE_CONFIRM packet that closes a handshake
func NewModeConfirm(sensorID byte, mode Mode) *Packet {
	return NewPacket(QualModeConfirm, []byte{sensorID, byte(mode), confirmCode})
}

// NewSetClock creates a SET_CLOCK packet carrying t as BCD fields
func NewSetClock(sensorID byte, t time.Time) *Packet {
	return NewPacket(QualSetClock, []byte{
		sensorID,
		ToBCD(t.Second()),
		ToBCD(t.Minute()),
		ToBCD(t.Hour()),
		ToBCD(t.Day()),
		ToBCD(int(t.Month())),
		ToBCD(t.Year() % 100),
	})
}

// NewSpeedBinWrite creates a SPEED_BIN_WRITE packet.
// The thresholds are padded or truncated to SpeedBinCount entries.
func NewSpeedBinWrite(sensorID byte, bins []int) (*Packet, error) {
	norm := NormalizeSpeedBins(bins)
	payload := make([]byte, 0, 1+SpeedBinCount+len(speedBinConfig))
	payload = append(payload, sensorID)
	for i, kph := range norm {
		if kph < 0 || kph >= SpeedNoReading {
			return nil, fmt.Errorf("%w: speed bin %d is %d kph (0-%d)", ErrOutOfRange, i, kph, SpeedNoReading-1)
		}
		payload = append(payload, byte(kph))
	}
	payload = append(payload, speedBinConfig...)
	return NewPacket(QualSpeedBinWrite, payload), nil
}

// NormalizeSpeedBins pads with zeros or truncates to exactly SpeedBinCount thresholds
func NormalizeSpeedBins(bins []int) []int {
	out := make([]int, SpeedBinCount)
	copy(out, bins)
	return out
}

// ============================================================
// Lookup tables
// ============================================================

// SensitivityCode returns the device code for a sensitivity level 1..15
func SensitivityCode(level int) (byte, error) {
	if level < MinSensitivity || level > MaxSensitivity {
		return 0, fmt.Errorf("%w: sensitivity %d (%d-%d)", ErrOutOfRange, level, MinSensitivity, MaxSensitivity)
	}
	return sensitivityCodes[level-1], nil
}

// SensitivityForCode returns the level stored as code, or 0 when no level matches
func SensitivityForCode(code byte) int {
	for i, c := range sensitivityCodes {
		if c == code {
			return i + 1
		}
	}
	return 0
}

// BaudCode returns the device code for a line rate
func BaudCode(baud int) (byte, error) {
	code, ok := baudCodes[baud]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported baud rate %d", ErrOutOfRange, baud)
	}
	return code, nil
}

// BaudRateForCode returns the line rate for a device code, or 0 when unknown
func BaudRateForCode(code byte) int {
	for baud, c := range baudCodes {
		if c == code {
			return baud
		}
	}
	return 0
}

// SupportedBaudRates returns the line rates a sensor accepts, ascending
func SupportedBaudRates() []int {
	return []int{9600, 19200, 38400, 57600, 115200}
}
