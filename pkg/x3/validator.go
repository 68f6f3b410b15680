// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package x3

import "fmt"

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyChecksum AnomalyType = iota
	AnomalyTruncated
	AnomalyUnknownQualifier
	AnomalyLengthMismatch
	AnomalyLaneCount
	AnomalySpeedRange
	AnomalyOccupancyRange
	AnomalyClockBCD
	AnomalyInvalidValue
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyChecksum:
		return "checksum"
	case AnomalyTruncated:
		return "truncated"
	case AnomalyUnknownQualifier:
		return "unknown_qualifier"
	case AnomalyLengthMismatch:
		return "length_mismatch"
	case AnomalyLaneCount:
		return "lane_count"
	case AnomalySpeedRange:
		return "speed_range"
	case AnomalyOccupancyRange:
		return "occupancy_range"
	case AnomalyClockBCD:
		return "clock_bcd"
	case AnomalyInvalidValue:
		return "invalid_value"
	default:
		return "unknown"
	}
}

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// maxPlausibleKPH is the fastest lane speed the sensor can report
const maxPlausibleKPH = 200

// ValidatePacket checks framing and payload plausibility.
// Returns a slice of validation errors (empty if packet is valid)
func ValidatePacket(p *Packet) []ValidationError {
	errors := []ValidationError{}

	if p.Truncated() {
		return append(errors, ValidationError{
			Type:    AnomalyTruncated,
			Message: fmt.Sprintf("%s truncated (%d of %d payload bytes)", Name(p.Qualifier()), p.PayloadSize(), p.DeclaredSize()),
			Details: map[string]interface{}{"length": p.PayloadSize(), "declared": p.DeclaredSize()},
		})
	}
	if p.ChecksumMismatch() {
		errors = append(errors, ValidationError{
			Type:    AnomalyChecksum,
			Message: fmt.Sprintf("%s checksum mismatch (got 0x%02X, want 0x%02X)", Name(p.Qualifier()), p.Checksum(), Checksum(p.Payload())),
			Details: map[string]interface{}{"received": p.Checksum(), "computed": Checksum(p.Payload())},
		})
	}

	entry, ok := Lookup(p.Qualifier())
	if !ok {
		return append(errors, ValidationError{
			Type:    AnomalyUnknownQualifier,
			Message: fmt.Sprintf("unknown qualifier 0x%02X", p.Qualifier()),
			Details: map[string]interface{}{"qualifier": p.Qualifier()},
		})
	}
	if p.PayloadSize() < entry.MinPayload {
		return append(errors, ValidationError{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s payload too short (%d < %d bytes)", entry.Name, p.PayloadSize(), entry.MinPayload),
			Details: map[string]interface{}{"length": p.PayloadSize(), "minimum": entry.MinPayload},
		})
	}

	if IsVolume(p.Qualifier()) || p.Qualifier() == QualOccupancy {
		errors = append(errors, validateLaneWords(p)...)
	}

	switch p.Qualifier() {
	case QualOccupancy:
		errors = append(errors, validateOccupancy(p)...)
	case QualSpeed:
		errors = append(errors, validateSpeed(p)...)
	case QualClock, QualSetClock:
		errors = append(errors, validateClock(p)...)
	case QualIntervalInfo:
		errors = append(errors, validateIntervalInfo(p)...)
	}

	return errors
}

// validateLaneWords checks the 16-bit per-lane layout
func validateLaneWords(p *Packet) []ValidationError {
	n := p.PayloadSize() - 1
	if n%2 != 0 {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s lane data is %d bytes (expected an even count)", Name(p.Qualifier()), n),
			Details: map[string]interface{}{"length": p.PayloadSize()},
		}}
	}
	if n/2 > MaxLanes {
		return []ValidationError{{
			Type:    AnomalyLaneCount,
			Message: fmt.Sprintf("%s reports %d lanes (max %d)", Name(p.Qualifier()), n/2, MaxLanes),
			Details: map[string]interface{}{"lanes": n / 2, "max": MaxLanes},
		}}
	}
	return nil
}

// validateOccupancy validates OCCUPANCY packet
func validateOccupancy(p *Packet) []ValidationError {
	errors := []ValidationError{}
	occ := Occupancy{view{p}}
	for i := 0; i < occ.Lanes(); i++ {
		if pct := occ.Percent(i); pct > 100 {
			errors = append(errors, ValidationError{
				Type:    AnomalyOccupancyRange,
				Message: fmt.Sprintf("Lane %d occupancy %.1f%% > 100%%", i+1, pct),
				Details: map[string]interface{}{"lane": i + 1, "percent": pct},
			})
		}
	}
	return errors
}

// validateSpeed validates SPEED packet
func validateSpeed(p *Packet) []ValidationError {
	errors := []ValidationError{}
	spd := Speed{view{p}}
	if len(p.Payload())-1 > MaxLanes {
		errors = append(errors, ValidationError{
			Type:    AnomalyLaneCount,
			Message: fmt.Sprintf("SPEED reports %d lanes (max %d)", len(p.Payload())-1, MaxLanes),
			Details: map[string]interface{}{"lanes": len(p.Payload()) - 1, "max": MaxLanes},
		})
	}
	for i := 0; i < spd.Lanes(); i++ {
		if kph := spd.KPH(i); kph > maxPlausibleKPH {
			errors = append(errors, ValidationError{
				Type:    AnomalySpeedRange,
				Message: fmt.Sprintf("Lane %d speed %d kph (max %d)", i+1, kph, maxPlausibleKPH),
				Details: map[string]interface{}{"lane": i + 1, "kph": kph, "max": maxPlausibleKPH},
			})
		}
	}
	return errors
}

// validateClock validates CLOCK and SET_CLOCK packets
func validateClock(p *Packet) []ValidationError {
	c := clockFields{view{p}}
	if !c.ValidBCD() {
		return []ValidationError{{
			Type:    AnomalyClockBCD,
			Message: fmt.Sprintf("%s has non-decimal BCD digits", Name(p.Qualifier())),
			Details: map[string]interface{}{"payload": fmt.Sprintf("% X", p.Payload())},
		}}
	}
	if c.Month() < 1 || c.Month() > 12 || c.Day() < 1 || c.Day() > 31 || c.Hour() > 23 || c.Minute() > 59 || c.Second() > 59 {
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("%s fields out of range", Name(p.Qualifier())),
			Details: map[string]interface{}{"month": c.Month(), "day": c.Day(), "hour": c.Hour()},
		}}
	}
	return nil
}

// validateIntervalInfo validates INTERVAL_INFO packet
func validateIntervalInfo(p *Packet) []ValidationError {
	errors := []ValidationError{}
	info := IntervalInfo{view{p}}
	if s := info.IntervalSeconds(); s < MinInterval || s > MaxInterval {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Interval %ds outside %d-%d", s, MinInterval, MaxInterval),
			Details: map[string]interface{}{"interval": s},
		})
	}
	if z := info.Zones(); z < MinZones || z > MaxZones {
		errors = append(errors, ValidationError{
			Type:    AnomalyLaneCount,
			Message: fmt.Sprintf("Zone count %d outside %d-%d", z, MinZones, MaxZones),
			Details: map[string]interface{}{"zones": z},
		})
	}
	return errors
}
