// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package x3

import "sort"

// Direction tells which side of the link sends a message
type Direction int

// Direction values
const (
	ToSensor Direction = iota
	FromSensor
)

// Group classifies catalog entries
type Group int

// Group values
const (
	GroupCommand Group = iota
	GroupTelemetry
	GroupConfig
	GroupDiagnostic
	GroupStatus
)

// ResponseKind describes how the sensor answers a command
type ResponseKind int

// ResponseKind values
const (
	ResponseNone ResponseKind = iota
	ResponseSingle
	ResponseMultiple
)

// Entry describes one qualifier in the catalog
type Entry struct {
	Qualifier    byte
	Name         string
	Direction    Direction
	Group        Group
	MinPayload   int
	FlushTrailer bool
	Response     ResponseKind
	Reply        byte // Reply qualifier for ResponseSingle commands
}

// volumePayload is the sensor id plus MaxLanes big-endian counts
const volumePayload = 1 + 2*MaxLanes

var catalog = map[byte]Entry{
	// Commands (Host → Sensor)
	QualDataPoll:            {QualDataPoll, "DATA_POLL", ToSensor, GroupCommand, 1, false, ResponseMultiple, 0},
	QualBufferFlush:         {QualBufferFlush, "BUFFER_FLUSH", ToSensor, GroupCommand, 1, false, ResponseNone, 0},
	QualSelfTestImmediate:   {QualSelfTestImmediate, "SELF_TEST_IMMEDIATE", ToSensor, GroupCommand, 1, false, ResponseSingle, QualBitTestImmediate},
	QualSelfTestPolled:      {QualSelfTestPolled, "SELF_TEST_POLLED", ToSensor, GroupCommand, 1, false, ResponseSingle, QualBitTestPolled},
	QualPowerVectorRequest:  {QualPowerVectorRequest, "POWER_VECTOR_REQUEST", ToSensor, GroupCommand, 1, false, ResponseSingle, QualPowerVector},
	QualSpeedBinRequest:     {QualSpeedBinRequest, "SPEED_BIN_REQUEST", ToSensor, GroupCommand, 1, false, ResponseSingle, QualSpeedBinInfo},
	QualBaudRateSet:         {QualBaudRateSet, "BAUD_RATE_SET", ToSensor, GroupCommand, 2, true, ResponseNone, 0},
	QualSaveBlock:           {QualSaveBlock, "SAVE_BLOCK", ToSensor, GroupCommand, 3, true, ResponseNone, 0},
	QualSoftwareInfoRequest: {QualSoftwareInfoRequest, "SOFTWARE_INFO_REQUEST", ToSensor, GroupCommand, 1, false, ResponseSingle, QualSoftwareInfo},
	QualIntervalInfoRequest: {QualIntervalInfoRequest, "INTERVAL_INFO_REQUEST", ToSensor, GroupCommand, 1, false, ResponseSingle, QualIntervalInfo},
	QualUnlock:              {QualUnlock, "UNLOCK", ToSensor, GroupCommand, 3, false, ResponseNone, 0},
	QualModeSelect:          {QualModeSelect, "MODE_SELECT", ToSensor, GroupCommand, 2, false, ResponseNone, 0},
	QualModeConfirm:         {QualModeConfirm, "MODE_CONFIRM", ToSensor, GroupCommand, 3, true, ResponseNone, 0},
	QualSetClock:            {QualSetClock, "SET_CLOCK", ToSensor, GroupCommand, 7, true, ResponseNone, 0},
	QualSpeedBinWrite:       {QualSpeedBinWrite, "SPEED_BIN_WRITE", ToSensor, GroupCommand, 1 + SpeedBinCount, true, ResponseNone, 0},

	// Telemetry (Sensor → Host)
	QualVolume:     {QualVolume, "VOLUME", FromSensor, GroupTelemetry, 3, false, ResponseNone, 0},
	QualOccupancy:  {QualOccupancy, "OCCUPANCY", FromSensor, GroupTelemetry, 3, false, ResponseNone, 0},
	QualSpeed:      {QualSpeed, "SPEED", FromSensor, GroupTelemetry, 2, false, ResponseNone, 0},
	QualVolumeLong: {QualVolumeLong, "VOLUME_LONG", FromSensor, GroupTelemetry, 3, false, ResponseNone, 0},
	QualVolumeMid:  {QualVolumeMid, "VOLUME_MID", FromSensor, GroupTelemetry, 3, false, ResponseNone, 0},
	QualVolumeXL:   {QualVolumeXL, "VOLUME_XL", FromSensor, GroupTelemetry, 3, false, ResponseNone, 0},
	QualClock:      {QualClock, "CLOCK", FromSensor, GroupTelemetry, 7, false, ResponseNone, 0},

	// Status and diagnostics (Sensor → Host)
	QualNak:              {QualNak, "NAK", FromSensor, GroupStatus, 0, false, ResponseNone, 0},
	QualInfoBeacon:       {QualInfoBeacon, "INFO_BEACON", FromSensor, GroupStatus, 5, false, ResponseNone, 0},
	QualSelfTestResult:   {QualSelfTestResult, "SELF_TEST_RESULT", FromSensor, GroupDiagnostic, 4, false, ResponseNone, 0},
	QualBitTestImmediate: {QualBitTestImmediate, "BIT_TEST_IMMEDIATE", FromSensor, GroupDiagnostic, 3, false, ResponseNone, 0},
	QualBitTestPolled:    {QualBitTestPolled, "BIT_TEST_POLLED", FromSensor, GroupDiagnostic, 3, false, ResponseNone, 0},

	// Configuration documents (Sensor → Host)
	QualPowerVector:  {QualPowerVector, "POWER_VECTOR", FromSensor, GroupConfig, 1 + MaxLanes, false, ResponseNone, 0},
	QualSpeedBinInfo: {QualSpeedBinInfo, "SPEED_BIN_INFO", FromSensor, GroupConfig, 1 + SpeedBinCount, false, ResponseNone, 0},
	QualSoftwareInfo: {QualSoftwareInfo, "SOFTWARE_INFO", FromSensor, GroupConfig, 9, false, ResponseNone, 0},
	QualIntervalInfo: {QualIntervalInfo, "INTERVAL_INFO", FromSensor, GroupConfig, 7, false, ResponseNone, 0},
}

// Lookup returns the catalog entry for a qualifier
func Lookup(q byte) (Entry, bool) {
	e, ok := catalog[q]
	return e, ok
}

// Name returns the human-readable name for a qualifier
func Name(q byte) string {
	if e, ok := catalog[q]; ok {
		return e.Name
	}
	return "UNKNOWN"
}

// Entries returns every catalog entry ordered by qualifier
func Entries() []Entry {
	out := make([]Entry, 0, len(catalog))
	for _, e := range catalog {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Qualifier < out[j].Qualifier })
	return out
}

// IsTelemetry reports whether q carries per-lane or clock data for a sample
func IsTelemetry(q byte) bool {
	e, ok := catalog[q]
	return ok && e.Group == GroupTelemetry
}

// IsVolume reports whether q is one of the volume classes
func IsVolume(q byte) bool {
	switch q {
	case QualVolume, QualVolumeLong, QualVolumeMid, QualVolumeXL:
		return true
	}
	return false
}
