// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package x3 implements the X3 radar sensor wire protocol.
//
// X3 frames are byte oriented: a marker, a qualifier naming the message type,
// a payload length, the payload and an 8-bit additive checksum. This package
// provides frame encoding/decoding, stream reassembly, the qualifier catalog,
// typed views over sensor telemetry and sample grouping.
package x3

// Framing
const (
	Marker      = 0xFF
	HeaderLen   = 3
	ChecksumLen = 1

	MaxPayloadSize = 255
	MaxLanes       = 8
)

// Flush trailer appended to commands that need an immediate buffer flush cue.
const (
	FlushCode       = 0x55
	FlushTrailerLen = 5
)

// Message types - Commands (Host → Sensor) 0x01-0x0F
const (
	QualDataPoll            = 0x01
	QualBufferFlush         = 0x02
	QualSelfTestImmediate   = 0x03
	QualSelfTestPolled      = 0x04
	QualPowerVectorRequest  = 0x05
	QualSpeedBinRequest     = 0x06
	QualBaudRateSet         = 0x07
	QualSaveBlock           = 0x08
	QualSoftwareInfoRequest = 0x09
	QualIntervalInfoRequest = 0x0A
	QualUnlock              = 0x0B
	QualModeSelect          = 0x0C
	QualModeConfirm         = 0x0D
	QualSetClock            = 0x0E
	QualSpeedBinWrite       = 0x0F
)

// Message types - Telemetry and replies (Sensor → Host) 0x10-0x1F
const (
	QualVolume           = 0x10
	QualOccupancy        = 0x11
	QualSpeed            = 0x12
	QualVolumeLong       = 0x13
	QualVolumeMid        = 0x14
	QualNak              = 0x15
	QualVolumeXL         = 0x16
	QualClock            = 0x17
	QualInfoBeacon       = 0x18
	QualSelfTestResult   = 0x19
	QualBitTestImmediate = 0x1A
	QualBitTestPolled    = 0x1B
	QualPowerVector      = 0x1C
	QualSpeedBinInfo     = 0x1D
	QualSoftwareInfo     = 0x1E
	QualIntervalInfo     = 0x1F
)

// QualSampleMarker is the primary volume message; it opens every polling cycle.
const QualSampleMarker = QualVolume

// BroadcastID addresses every sensor on the link.
const BroadcastID = 0x00

// Mode represents the sensor operating mode
type Mode uint8

// Operating mode values
const (
	ModeNormal Mode = 0x00
	ModePolled Mode = 0x01
	ModeStat   Mode = 0x02
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModePolled:
		return "POLLED"
	case ModeStat:
		return "STAT"
	default:
		return "UNKNOWN"
	}
}

// SaveBlock addresses
const (
	BlockDay         = 0x01
	BlockPersistA    = 0x02
	BlockPersistB    = 0x03
	BlockSensitivity = 0x10
	BlockZones       = 0x11
	BlockInterval    = 0x12
	BlockCommit      = 0x1F
)

// Fixed SaveBlock values
const (
	PersistAValue = 0x01
	PersistBValue = 0xA5
	CommitValue   = 0x01
)

// Handshake constants
var (
	unlockPayload = []byte{BroadcastID, 0x5A, 0xA5}
	confirmCode   = byte(0xC3)
)

// speedBinConfig trails the seven bin thresholds in SpeedBinWrite and SpeedBinInfo.
var speedBinConfig = []byte{0x00, 0x01, 0x0F}

// SpeedBinCount is the number of speed bin thresholds a sensor stores.
const SpeedBinCount = 7

// Speed decoding
const (
	SpeedNoReading = 240
	kphToMph       = 0.6214
)

// Interval and zone limits
const (
	MinSensitivity = 1
	MaxSensitivity = 15
	MinInterval    = 10
	MaxInterval    = 900
	MinZones       = 1
	MaxZones       = MaxLanes
	MinSensorID    = 1
	MaxSensorID    = 255
)

// sensitivityCodes maps sensitivity level 1..15 to the device byte code.
var sensitivityCodes = [MaxSensitivity]byte{
	0x02, 0x04, 0x07, 0x0A, 0x0D,
	0x11, 0x15, 0x1A, 0x20, 0x27,
	0x2F, 0x38, 0x42, 0x4D, 0x59,
}

// baudCodes maps line rates to the device byte code.
var baudCodes = map[int]byte{
	9600:   0x01,
	19200:  0x02,
	38400:  0x03,
	57600:  0x04,
	115200: 0x05,
}
