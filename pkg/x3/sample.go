// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package x3

import "time"

// Sample is one polling cycle of lane telemetry. It always opens with a
// Volume packet and holds every telemetry packet that followed it.
type Sample struct {
	Variants []Variant
}

// GroupSamples splits a packet log into samples.
//
// Invalid packets and packets outside the telemetry group are ignored. A
// Volume packet opens a new sample; telemetry seen before the first one is
// dropped because its cycle cannot be identified.
func GroupSamples(packets []*Packet) []Sample {
	var samples []Sample
	for _, p := range packets {
		if p == nil || !p.Valid() || !IsTelemetry(p.Qualifier()) {
			continue
		}
		v, err := Decode(p)
		if err != nil {
			continue
		}
		if p.Qualifier() == QualSampleMarker {
			samples = append(samples, Sample{})
		}
		if len(samples) == 0 {
			continue
		}
		last := &samples[len(samples)-1]
		last.Variants = append(last.Variants, v)
	}
	return samples
}

// Len returns the number of packets in the sample
func (s Sample) Len() int { return len(s.Variants) }

// Empty reports whether the sample holds no packets
func (s Sample) Empty() bool { return len(s.Variants) == 0 }

// Timestamp returns the receive time of the opening packet
func (s Sample) Timestamp() time.Time {
	if s.Empty() {
		return time.Time{}
	}
	return s.Variants[0].Packet().Timestamp()
}

// Packets returns the underlying packets in order
func (s Sample) Packets() []*Packet {
	out := make([]*Packet, len(s.Variants))
	for i, v := range s.Variants {
		out[i] = v.Packet()
	}
	return out
}

func sampleFind[T Variant](s Sample) (T, bool) {
	for _, v := range s.Variants {
		if t, ok := v.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// Volume returns the primary volume packet
func (s Sample) Volume() (Volume, bool) { return sampleFind[Volume](s) }

// VolumeLong returns the long vehicle volume packet, if present
func (s Sample) VolumeLong() (VolumeLong, bool) { return sampleFind[VolumeLong](s) }

// VolumeMid returns the mid-size vehicle volume packet, if present
func (s Sample) VolumeMid() (VolumeMid, bool) { return sampleFind[VolumeMid](s) }

// VolumeXL returns the extra-long vehicle volume packet, if present
func (s Sample) VolumeXL() (VolumeXL, bool) { return sampleFind[VolumeXL](s) }

// Occupancy returns the occupancy packet, if present
func (s Sample) Occupancy() (Occupancy, bool) { return sampleFind[Occupancy](s) }

// Speed returns the speed packet, if present
func (s Sample) Speed() (Speed, bool) { return sampleFind[Speed](s) }

// Clock returns the clock packet, if present
func (s Sample) Clock() (Clock, bool) { return sampleFind[Clock](s) }

// LaneReading is one lane's row of a sample. Absent values are -1.
type LaneReading struct {
	Lane      int
	Volume    int
	Long      int
	Mid       int
	XL        int
	Occupancy float64
	SpeedKPH  int
	SpeedMPH  int
}

// Lanes summarizes the sample per lane, using the widest lane count present
func (s Sample) Lanes() []LaneReading {
	vol, hasVol := s.Volume()
	long, hasLong := s.VolumeLong()
	mid, hasMid := s.VolumeMid()
	xl, hasXL := s.VolumeXL()
	occ, hasOcc := s.Occupancy()
	spd, hasSpd := s.Speed()

	n := 0
	if hasVol {
		n = max(n, vol.Lanes())
	}
	if hasLong {
		n = max(n, long.Lanes())
	}
	if hasMid {
		n = max(n, mid.Lanes())
	}
	if hasXL {
		n = max(n, xl.Lanes())
	}
	if hasOcc {
		n = max(n, occ.Lanes())
	}
	if hasSpd {
		n = max(n, spd.Lanes())
	}

	rows := make([]LaneReading, n)
	for i := range rows {
		r := LaneReading{Lane: i + 1, Volume: -1, Long: -1, Mid: -1, XL: -1, Occupancy: -1, SpeedKPH: -1, SpeedMPH: -1}
		if hasVol {
			r.Volume = vol.Count(i)
		}
		if hasLong {
			r.Long = long.Count(i)
		}
		if hasMid {
			r.Mid = mid.Count(i)
		}
		if hasXL {
			r.XL = xl.Count(i)
		}
		if hasOcc {
			r.Occupancy = occ.Percent(i)
		}
		if hasSpd {
			r.SpeedKPH = spd.KPH(i)
			r.SpeedMPH = spd.MPH(i)
		}
		rows[i] = r
	}
	return rows
}

// TotalVolume sums the primary volume over every lane
func (s Sample) TotalVolume() int {
	vol, ok := s.Volume()
	if !ok {
		return 0
	}
	total := 0
	for _, c := range vol.Counts() {
		total += c
	}
	return total
}
