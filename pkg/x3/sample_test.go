// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package x3

import (
	"strings"
	"testing"
)

func TestGroupSamples(t *testing.T) {
	log := []*Packet{
		NewVolumeReport(1, []int{3, 4}),
		NewVolumeClassReport(QualVolumeLong, 1, []int{1, 0}),
		NewOccupancyReport(1, []int{55, 120}),
		NewSpeedReport(1, []int{88, -1}),
		NewVolumeReport(1, []int{2, 2}),
		NewVolumeClassReport(QualVolumeLong, 1, []int{0, 1}),
	}

	samples := GroupSamples(log)
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0].Len() != 4 || samples[1].Len() != 2 {
		t.Errorf("sample sizes = %d, %d, want 4, 2", samples[0].Len(), samples[1].Len())
	}
	if _, ok := samples[1].Speed(); ok {
		t.Error("second sample has no speed packet")
	}
	if samples[0].TotalVolume() != 7 {
		t.Errorf("TotalVolume = %d, want 7", samples[0].TotalVolume())
	}
}

func TestGroupSamples_Filtering(t *testing.T) {
	bad := NewSpeedReport(1, []int{10})
	frame := bad.MustEncode()
	frame[len(frame)-1]++
	corrupt, _ := ParsePacket(frame)

	log := []*Packet{
		NewSpeedReport(1, []int{10}), // before the first marker
		NewVolumeReport(1, []int{1}),
		NewNak(1, 0),                         // status, not telemetry
		NewSoftwareInfoReport(1, 1, 0, 0, 0), // config document
		corrupt,                              // checksum mismatch
		NewClockReport(1, bad.Timestamp()),   // telemetry
		nil,
	}

	samples := GroupSamples(log)
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if samples[0].Len() != 2 {
		t.Errorf("sample size = %d, want 2 (volume and clock)", samples[0].Len())
	}
	if _, ok := samples[0].Clock(); !ok {
		t.Error("clock packet missing from sample")
	}

	if got := GroupSamples(nil); len(got) != 0 {
		t.Errorf("empty log gave %d samples", len(got))
	}
}

func TestSample_Lanes(t *testing.T) {
	samples := GroupSamples([]*Packet{
		NewVolumeReport(1, []int{3, 4}),
		NewOccupancyReport(1, []int{55, 120, 10}),
		NewSpeedReport(1, []int{100, -1}),
	})
	rows := samples[0].Lanes()
	if len(rows) != 3 {
		t.Fatalf("got %d lanes, want 3", len(rows))
	}

	first := rows[0]
	if first.Lane != 1 || first.Volume != 3 || first.Occupancy != 5.5 || first.SpeedKPH != 100 || first.SpeedMPH != 62 {
		t.Errorf("lane 1 = %+v", first)
	}
	if first.Long != -1 {
		t.Errorf("missing class volume should read -1, got %d", first.Long)
	}
	if rows[1].SpeedKPH != -1 || rows[1].SpeedMPH != -1 {
		t.Errorf("lane 2 speed = %d/%d, want -1/-1", rows[1].SpeedKPH, rows[1].SpeedMPH)
	}
	if rows[2].Volume != -1 || rows[2].Occupancy != 1.0 {
		t.Errorf("lane 3 = %+v", rows[2])
	}

	out := FormatSample(samples[0])
	if !strings.Contains(out, "100/62") {
		t.Errorf("FormatSample missing speed column:\n%s", out)
	}
}
