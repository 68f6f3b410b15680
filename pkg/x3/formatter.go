// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package x3

import (
	"fmt"
	"strings"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.Timestamp().Format("15:04:05.000")

	status := "valid"
	switch {
	case p.Truncated():
		status = "truncated"
	case p.ChecksumMismatch():
		status = fmt.Sprintf("checksum mismatch (got 0x%02X, want 0x%02X)", p.Checksum(), Checksum(p.Payload()))
	}

	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d %s\n", timestamp, Name(p.Qualifier()), p.Qualifier(), p.PayloadSize(), status)

	v, err := Decode(p)
	if err != nil || !p.Valid() {
		return result + FormatHex(p.Payload())
	}
	return result + FormatVariant(v)
}

// FormatVariant formats the decoded fields of a typed packet
func FormatVariant(v Variant) string {
	switch t := v.(type) {
	case Command:
		return fmt.Sprintf("  Sensor: %d\n", t.SensorID())

	case BaudRateSet:
		return fmt.Sprintf("  Sensor: %d, Baud: %d (code 0x%02X)\n", t.SensorID(), t.BaudRate(), t.Code())

	case SaveBlock:
		return fmt.Sprintf("  Sensor: %d, Block: %s (0x%02X), Value: % X\n", t.SensorID(), formatBlock(t.Block()), t.Block(), t.Value())

	case ModeSelect:
		return fmt.Sprintf("  Mode: %s\n", t.Mode())

	case ModeConfirm:
		return fmt.Sprintf("  Sensor: %d, Mode: %s\n", t.SensorID(), t.Mode())

	case SetClock:
		return fmt.Sprintf("  Sensor: %d, Time: %s\n", t.SensorID(), formatClock(t.clockFields))

	case Clock:
		return fmt.Sprintf("  Sensor: %d, Time: %s\n", t.SensorID(), formatClock(t.clockFields))

	case SpeedBinWrite:
		return fmt.Sprintf("  Sensor: %d, Bins: %v kph\n", t.SensorID(), t.Bins())

	case SpeedBinInfo:
		return fmt.Sprintf("  Sensor: %d, Bins: %v kph, Config: % X\n", t.SensorID(), t.Bins(), t.Config())

	case Volume:
		return formatCounts("Volume", t.laneCounts)
	case VolumeLong:
		return formatCounts("Long", t.laneCounts)
	case VolumeMid:
		return formatCounts("Mid", t.laneCounts)
	case VolumeXL:
		return formatCounts("XL", t.laneCounts)

	case Occupancy:
		parts := make([]string, t.Lanes())
		for i := range parts {
			parts[i] = fmt.Sprintf("L%d=%.1f%%", i+1, t.Percent(i))
		}
		return fmt.Sprintf("  Sensor: %d, Occupancy: %s\n", t.SensorID(), strings.Join(parts, " "))

	case Speed:
		parts := make([]string, t.Lanes())
		for i := range parts {
			if t.KPH(i) < 0 {
				parts[i] = fmt.Sprintf("L%d=--", i+1)
				continue
			}
			parts[i] = fmt.Sprintf("L%d=%dkph/%dmph", i+1, t.KPH(i), t.MPH(i))
		}
		return fmt.Sprintf("  Sensor: %d, Speed: %s\n", t.SensorID(), strings.Join(parts, " "))

	case Nak:
		return fmt.Sprintf("  Sensor: %d, Reason: 0x%02X\n", t.SensorID(), t.Reason())

	case InfoBeacon:
		health := "OK"
		if !t.Healthy() {
			health = fmt.Sprintf("FAULT 0x%02X", t.HealthFlags())
		}
		return fmt.Sprintf("  Sensor: %d, Mode: %s, Health: %s, Supply: %.1fV, Temp: %d°C\n",
			t.SensorID(), t.Mode(), health, t.SupplyVolts(), t.TemperatureC())

	case SelfTestResult:
		return fmt.Sprintf("  Sensor: %d, Result: %s (%d), Faults: 0x%04X\n", t.SensorID(), passFail(t.Passed()), t.Result(), t.Faults())

	case BitTestImmediate:
		return fmt.Sprintf("  Sensor: %d, BIT: %s, Bits: 0x%04X\n", t.SensorID(), passFail(t.Passed()), t.Bits())
	case BitTestPolled:
		return fmt.Sprintf("  Sensor: %d, BIT: %s, Bits: 0x%04X\n", t.SensorID(), passFail(t.Passed()), t.Bits())

	case PowerVector:
		return fmt.Sprintf("  Sensor: %d, Levels: %v\n", t.SensorID(), t.Levels())

	case SoftwareInfo:
		return fmt.Sprintf("  Sensor: %d, Firmware: %s, Serial: %d\n", t.SensorID(), t.Version(), t.Serial())

	case IntervalInfo:
		return fmt.Sprintf("  Sensor: %d, Interval: %s, Zones: %d, Sensitivity: %d, Baud: %d, Mode: %s\n",
			t.SensorID(), t.Interval(), t.Zones(), t.Sensitivity(), t.BaudRate(), t.Mode())
	}
	return ""
}

// FormatSample formats one polling cycle as a lane table
func FormatSample(s Sample) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sample @ %s (%d packets)\n", s.Timestamp().Format("15:04:05.000"), s.Len())
	if c, ok := s.Clock(); ok {
		fmt.Fprintf(&b, "  Sensor clock: %s\n", formatClock(c.clockFields))
	}
	fmt.Fprintf(&b, "  %-4s %7s %6s %6s %6s %7s %9s\n", "Lane", "Volume", "Long", "Mid", "XL", "Occ%", "Speed")
	for _, r := range s.Lanes() {
		fmt.Fprintf(&b, "  %-4d %7s %6s %6s %6s %7s %9s\n",
			r.Lane, formatInt(r.Volume), formatInt(r.Long), formatInt(r.Mid), formatInt(r.XL),
			formatPercent(r.Occupancy), formatSpeed(r.SpeedKPH, r.SpeedMPH))
	}
	return b.String()
}

// FormatHex formats raw bytes as an indented hex dump, 16 bytes per line
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return "  (no payload)\n"
	}
	var b strings.Builder
	for i := 0; i < len(data); i += 16 {
		end := min(i+16, len(data))
		fmt.Fprintf(&b, "  %04X: % X\n", i, data[i:end])
	}
	return b.String()
}

func formatCounts(label string, l laneCounts) string {
	parts := make([]string, l.Lanes())
	for i := range parts {
		parts[i] = fmt.Sprintf("L%d=%d", i+1, l.Count(i))
	}
	return fmt.Sprintf("  Sensor: %d, %s: %s\n", l.SensorID(), label, strings.Join(parts, " "))
}

func formatClock(c clockFields) string {
	if !c.ValidBCD() {
		return fmt.Sprintf("invalid BCD % X", c.p.payload[min(1, len(c.p.payload)):])
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", c.Year(), c.Month(), c.Day(), c.Hour(), c.Minute(), c.Second())
}

func formatBlock(block byte) string {
	switch block {
	case BlockDay:
		return "DAY"
	case BlockPersistA:
		return "PERSIST_A"
	case BlockPersistB:
		return "PERSIST_B"
	case BlockSensitivity:
		return "SENSITIVITY"
	case BlockZones:
		return "ZONES"
	case BlockInterval:
		return "INTERVAL"
	case BlockCommit:
		return "COMMIT"
	default:
		return "UNKNOWN"
	}
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

func formatInt(v int) string {
	if v < 0 {
		return "-"
	}
	return fmt.Sprintf("%d", v)
}

func formatPercent(v float64) string {
	if v < 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", v)
}

func formatSpeed(kph, mph int) string {
	if kph < 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", kph, mph)
}
