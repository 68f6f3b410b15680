// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package x3

import "time"

// ============================================================
// Sensor replies (Sensor → Host)
//
// These build the frames a sensor emits. The gateway never sends them; they
// exist for simulators, replay fixtures and tests.
// ============================================================

func laneWords(q, sensorID byte, values []int) *Packet {
	n := min(len(values), MaxLanes)
	payload := make([]byte, 0, volumePayload)
	payload = append(payload, sensorID)
	for _, v := range values[:n] {
		w := uint16(max(v, 0))
		payload = append(payload, byte(w>>8), byte(w))
	}
	return NewPacket(q, payload)
}

// NewVolumeReport creates a VOLUME packet with one count per lane
func NewVolumeReport(sensorID byte, counts []int) *Packet {
	return laneWords(QualVolume, sensorID, counts)
}

// NewVolumeClassReport creates a VOLUME_LONG, VOLUME_MID or VOLUME_XL packet
func NewVolumeClassReport(q, sensorID byte, counts []int) *Packet {
	return laneWords(q, sensorID, counts)
}

// NewOccupancyReport creates an OCCUPANCY packet in tenths of a percent
func NewOccupancyReport(sensorID byte, tenths []int) *Packet {
	return laneWords(QualOccupancy, sensorID, tenths)
}

// NewSpeedReport creates a SPEED packet; negative speeds encode as no reading
func NewSpeedReport(sensorID byte, kph []int) *Packet {
	n := min(len(kph), MaxLanes)
	payload := make([]byte, 0, 1+n)
	payload = append(payload, sensorID)
	for _, v := range kph[:n] {
		if v < 0 || v >= SpeedNoReading {
			v = SpeedNoReading
		}
		payload = append(payload, byte(v))
	}
	return NewPacket(QualSpeed, payload)
}

// NewClockReport creates a CLOCK packet
func NewClockReport(sensorID byte, t time.Time) *Packet {
	p := NewSetClock(sensorID, t)
	return NewPacket(QualClock, p.Payload())
}

// NewNak creates a NAK packet
func NewNak(sensorID, reason byte) *Packet {
	return NewPacket(QualNak, []byte{sensorID, reason})
}

// Beacon holds INFO_BEACON fields
type Beacon struct {
	Mode         Mode
	HealthFlags  byte
	SupplyVolts  float64
	TemperatureC int
}

// NewInfoBeaconReport creates an INFO_BEACON packet
func NewInfoBeaconReport(sensorID byte, b Beacon) *Packet {
	return NewPacket(QualInfoBeacon, []byte{
		sensorID,
		byte(b.Mode),
		b.HealthFlags,
		byte(b.SupplyVolts*10 + 0.5),
		byte(int8(b.TemperatureC)),
	})
}

// NewSelfTestResultReport creates a SELF_TEST_RESULT packet
func NewSelfTestResultReport(sensorID, result byte, faults uint16) *Packet {
	return NewPacket(QualSelfTestResult, []byte{sensorID, result, byte(faults >> 8), byte(faults)})
}

// NewBitTestReport creates the BIT_TEST reply for an immediate or polled self test
func NewBitTestReport(sensorID byte, immediate bool, bits uint16) *Packet {
	q := byte(QualBitTestPolled)
	if immediate {
		q = QualBitTestImmediate
	}
	return NewPacket(q, []byte{sensorID, byte(bits >> 8), byte(bits)})
}

// NewPowerVectorReport creates a POWER_VECTOR packet
func NewPowerVectorReport(sensorID byte, levels []int) *Packet {
	payload := make([]byte, 1+MaxLanes)
	payload[0] = sensorID
	for i := 0; i < len(levels) && i < MaxLanes; i++ {
		payload[1+i] = byte(levels[i])
	}
	return NewPacket(QualPowerVector, payload)
}

// NewSpeedBinInfoReport creates a SPEED_BIN_INFO packet
func NewSpeedBinInfoReport(sensorID byte, bins []int) *Packet {
	payload := make([]byte, 0, 1+SpeedBinCount+len(speedBinConfig))
	payload = append(payload, sensorID)
	for _, b := range NormalizeSpeedBins(bins) {
		payload = append(payload, byte(b))
	}
	payload = append(payload, speedBinConfig...)
	return NewPacket(QualSpeedBinInfo, payload)
}

// NewSoftwareInfoReport creates a SOFTWARE_INFO packet
func NewSoftwareInfoReport(sensorID byte, major, minor byte, build uint16, serial uint32) *Packet {
	return NewPacket(QualSoftwareInfo, []byte{
		sensorID, major, minor,
		byte(build >> 8), byte(build),
		byte(serial >> 24), byte(serial >> 16), byte(serial >> 8), byte(serial),
	})
}

// Settings holds INTERVAL_INFO fields in host units
type Settings struct {
	Interval    time.Duration
	Zones       int
	Sensitivity int
	BaudRate    int
	Mode        Mode
}

// NewIntervalInfoReport creates an INTERVAL_INFO packet.
// Unknown sensitivity levels or baud rates encode as 0.
func NewIntervalInfoReport(sensorID byte, s Settings) *Packet {
	secs := uint16(s.Interval / time.Second)
	sens, _ := SensitivityCode(s.Sensitivity)
	baud, _ := BaudCode(s.BaudRate)
	return NewPacket(QualIntervalInfo, []byte{
		sensorID,
		byte(secs >> 8), byte(secs),
		byte(s.Zones),
		sens,
		baud,
		byte(s.Mode),
	})
}
