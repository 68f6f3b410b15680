// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package x3

import (
	"fmt"
	"time"
)

// Variant is a typed, read-only view over a packet of one fixed qualifier.
// The concrete types below form a closed set keyed by the catalog; use a type
// switch on the result of Decode to dispatch.
type Variant interface {
	Qualifier() byte
	Packet() *Packet
}

// view is embedded by every variant
type view struct {
	p *Packet
}

func newView(p *Packet, want byte) (view, error) {
	if p == nil {
		return view{}, &MismatchError{Want: want}
	}
	if p.Qualifier() != want {
		return view{}, &MismatchError{Want: want, Got: p.Qualifier()}
	}
	return view{p: p}, nil
}

// Packet returns the underlying packet
func (v view) Packet() *Packet { return v.p }

// Qualifier returns the message type
func (v view) Qualifier() byte { return v.p.Qualifier() }

// SensorID returns the sensor id carried in the first payload byte
func (v view) SensorID() byte { return v.p.payload.Byte(0) }

// Decode returns the typed view matching the packet's qualifier
func Decode(p *Packet) (Variant, error) {
	if p == nil {
		return nil, ErrUnknownQualifier
	}
	switch p.Qualifier() {
	case QualDataPoll, QualBufferFlush, QualSelfTestImmediate, QualSelfTestPolled,
		QualPowerVectorRequest, QualSpeedBinRequest, QualSoftwareInfoRequest,
		QualIntervalInfoRequest, QualUnlock:
		return Command{view{p}}, nil
	case QualBaudRateSet:
		return BaudRateSet{view{p}}, nil
	case QualSaveBlock:
		return SaveBlock{view{p}}, nil
	case QualModeSelect:
		return ModeSelect{view{p}}, nil
	case QualModeConfirm:
		return ModeConfirm{view{p}}, nil
	case QualSetClock:
		return SetClock{clockFields{view{p}}}, nil
	case QualSpeedBinWrite:
		return SpeedBinWrite{speedBins{view{p}}}, nil
	case QualVolume:
		return Volume{laneCounts{view{p}}}, nil
	case QualVolumeLong:
		return VolumeLong{laneCounts{view{p}}}, nil
	case QualVolumeMid:
		return VolumeMid{laneCounts{view{p}}}, nil
	case QualVolumeXL:
		return VolumeXL{laneCounts{view{p}}}, nil
	case QualOccupancy:
		return Occupancy{view{p}}, nil
	case QualSpeed:
		return Speed{view{p}}, nil
	case QualClock:
		return Clock{clockFields{view{p}}}, nil
	case QualNak:
		return Nak{view{p}}, nil
	case QualInfoBeacon:
		return InfoBeacon{view{p}}, nil
	case QualSelfTestResult:
		return SelfTestResult{view{p}}, nil
	case QualBitTestImmediate:
		return BitTestImmediate{bitTest{view{p}}}, nil
	case QualBitTestPolled:
		return BitTestPolled{bitTest{view{p}}}, nil
	case QualPowerVector:
		return PowerVector{view{p}}, nil
	case QualSpeedBinInfo:
		return SpeedBinInfo{speedBins{view{p}}}, nil
	case QualSoftwareInfo:
		return SoftwareInfo{view{p}}, nil
	case QualIntervalInfo:
		return IntervalInfo{view{p}}, nil
	}
	return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownQualifier, p.Qualifier())
}

// ============================================================
// Commands (Host → Sensor)
// ============================================================

// Command is a request whose payload is only the addressed sensor id
type Command struct{ view }

// BaudRateSet changes the sensor line rate
type BaudRateSet struct{ view }

// NewBaudRateSetView asserts p is a BAUD_RATE_SET packet
func NewBaudRateSetView(p *Packet) (BaudRateSet, error) {
	v, err := newView(p, QualBaudRateSet)
	return BaudRateSet{v}, err
}

// Code returns the device baud code
func (b BaudRateSet) Code() byte { return b.p.payload.Byte(1) }

// BaudRate returns the line rate for the code, or 0 when unknown
func (b BaudRateSet) BaudRate() int { return BaudRateForCode(b.Code()) }

// SaveBlock writes a configuration block
type SaveBlock struct{ view }

// NewSaveBlockView asserts p is a SAVE_BLOCK packet
func NewSaveBlockView(p *Packet) (SaveBlock, error) {
	v, err := newView(p, QualSaveBlock)
	return SaveBlock{v}, err
}

// Block returns the block address
func (s SaveBlock) Block() byte { return s.p.payload.Byte(1) }

// Value returns the block value bytes
func (s SaveBlock) Value() []byte {
	if len(s.p.payload) <= 2 {
		return nil
	}
	return append([]byte(nil), s.p.payload[2:]...)
}

// ModeSelect is the broadcast mode-select step of a mode handshake
type ModeSelect struct{ view }

// Mode returns the requested mode
func (m ModeSelect) Mode() Mode { return Mode(m.p.payload.Byte(1)) }

// ModeConfirm is the per-sensor confirmation step of a mode handshake
type ModeConfirm struct{ view }

// Mode returns the confirmed mode
func (m ModeConfirm) Mode() Mode { return Mode(m.p.payload.Byte(1)) }

// SetClock sets the sensor real-time clock
type SetClock struct{ clockFields }

// SpeedBinWrite writes the speed bin thresholds
type SpeedBinWrite struct{ speedBins }

// ============================================================
// Telemetry (Sensor → Host)
// ============================================================

// laneCounts is the shared layout of every volume class
type laneCounts struct{ view }

// Lanes returns the number of lanes present in the payload
func (l laneCounts) Lanes() int {
	return min((len(l.p.payload)-1)/2, MaxLanes)
}

// Count returns the vehicle count for a zero-based lane, or -1 when absent
func (l laneCounts) Count(lane int) int {
	if lane < 0 || lane >= l.Lanes() {
		return -1
	}
	return int(l.p.payload.Uint16(1 + 2*lane))
}

// Counts returns every lane count
func (l laneCounts) Counts() []int {
	out := make([]int, l.Lanes())
	for i := range out {
		out[i] = l.Count(i)
	}
	return out
}

// Volume is the primary per-lane vehicle count; it opens each sample
type Volume struct{ laneCounts }

// NewVolume asserts p is a VOLUME packet
func NewVolume(p *Packet) (Volume, error) {
	v, err := newView(p, QualVolume)
	return Volume{laneCounts{v}}, err
}

// VolumeLong counts long vehicles per lane
type VolumeLong struct{ laneCounts }

// NewVolumeLong asserts p is a VOLUME_LONG packet
func NewVolumeLong(p *Packet) (VolumeLong, error) {
	v, err := newView(p, QualVolumeLong)
	return VolumeLong{laneCounts{v}}, err
}

// VolumeMid counts mid-size vehicles per lane
type VolumeMid struct{ laneCounts }

// NewVolumeMid asserts p is a VOLUME_MID packet
func NewVolumeMid(p *Packet) (VolumeMid, error) {
	v, err := newView(p, QualVolumeMid)
	return VolumeMid{laneCounts{v}}, err
}

// VolumeXL counts extra-long vehicles per lane
type VolumeXL struct{ laneCounts }

// NewVolumeXL asserts p is a VOLUME_XL packet
func NewVolumeXL(p *Packet) (VolumeXL, error) {
	v, err := newView(p, QualVolumeXL)
	return VolumeXL{laneCounts{v}}, err
}

// Occupancy reports per-lane occupancy in tenths of a percent
type Occupancy struct{ view }

// NewOccupancy asserts p is an OCCUPANCY packet
func NewOccupancy(p *Packet) (Occupancy, error) {
	v, err := newView(p, QualOccupancy)
	return Occupancy{v}, err
}

// Lanes returns the number of lanes present in the payload
func (o Occupancy) Lanes() int {
	return min((len(o.p.payload)-1)/2, MaxLanes)
}

// Tenths returns the raw occupancy for a lane in tenths of a percent, or -1 when absent
func (o Occupancy) Tenths(lane int) int {
	if lane < 0 || lane >= o.Lanes() {
		return -1
	}
	return int(o.p.payload.Uint16(1 + 2*lane))
}

// Percent returns occupancy for a lane as a percentage, or -1 when absent
func (o Occupancy) Percent(lane int) float64 {
	t := o.Tenths(lane)
	if t < 0 {
		return -1
	}
	return float64(t) / 10
}

// Speed reports per-lane average speed in KPH
type Speed struct{ view }

// NewSpeed asserts p is a SPEED packet
func NewSpeed(p *Packet) (Speed, error) {
	v, err := newView(p, QualSpeed)
	return Speed{v}, err
}

// Lanes returns the number of lanes present in the payload
func (s Speed) Lanes() int {
	return max(min(len(s.p.payload)-1, MaxLanes), 0)
}

// KPH returns the lane speed, or -1 for the no-reading sentinel or a missing lane
func (s Speed) KPH(lane int) int {
	if lane < 0 || lane >= s.Lanes() {
		return -1
	}
	b := s.p.payload.Byte(1 + lane)
	if b == SpeedNoReading {
		return -1
	}
	return int(b)
}

// MPH returns the lane speed converted from KPH, truncated toward zero
func (s Speed) MPH(lane int) int {
	return KPHToMPH(s.KPH(lane))
}

// KPHToMPH converts with the sensor's 0.6214 factor, truncating; negative input stays -1
func KPHToMPH(kph int) int {
	if kph < 0 {
		return -1
	}
	return int(float64(kph) * kphToMph)
}

// clockFields is the BCD layout shared by CLOCK and SET_CLOCK
type clockFields struct{ view }

func (c clockFields) field(off int) int { return FromBCD(c.p.payload.Byte(off)) }

// Second returns the seconds field
func (c clockFields) Second() int { return c.field(1) }

// Minute returns the minutes field
func (c clockFields) Minute() int { return c.field(2) }

// Hour returns the hours field
func (c clockFields) Hour() int { return c.field(3) }

// Day returns the day of month
func (c clockFields) Day() int { return c.field(4) }

// Month returns the month
func (c clockFields) Month() int { return c.field(5) }

// Year returns the four-digit year (the wire carries two digits past 2000)
func (c clockFields) Year() int { return 2000 + c.field(6) }

// ValidBCD reports whether every clock byte holds two decimal nibbles
func (c clockFields) ValidBCD() bool {
	for off := 1; off <= 6; off++ {
		b := c.p.payload.Byte(off)
		if b>>4 > 9 || b&0x0F > 9 {
			return false
		}
	}
	return c.p.payload.Has(1, 6)
}

// Time returns the clock as a time in loc
func (c clockFields) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(c.Year(), time.Month(c.Month()), c.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc)
}

// Clock is the sensor real-time clock report
type Clock struct{ clockFields }

// NewClock asserts p is a CLOCK packet
func NewClock(p *Packet) (Clock, error) {
	v, err := newView(p, QualClock)
	return Clock{clockFields{v}}, err
}

// FromBCD reads a byte whose nibbles are decimal digits: 0x45 is 45
func FromBCD(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}

// ToBCD packs 0..99 into two decimal nibbles
func ToBCD(v int) byte {
	if v < 0 {
		v = 0
	}
	v %= 100
	return byte(v/10)<<4 | byte(v%10)
}

// ============================================================
// Status and diagnostics (Sensor → Host)
// ============================================================

// Nak is the sensor's generic not-ready reply
type Nak struct{ view }

// Reason returns the device reason code (0 when absent)
func (n Nak) Reason() byte { return n.p.payload.Byte(1) }

// InfoBeacon is the periodic health report
type InfoBeacon struct{ view }

// NewInfoBeacon asserts p is an INFO_BEACON packet
func NewInfoBeacon(p *Packet) (InfoBeacon, error) {
	v, err := newView(p, QualInfoBeacon)
	return InfoBeacon{v}, err
}

// Mode returns the operating mode the sensor reports
func (b InfoBeacon) Mode() Mode { return Mode(b.p.payload.Byte(1)) }

// HealthFlags returns the fault bit field (0 when healthy)
func (b InfoBeacon) HealthFlags() byte { return b.p.payload.Byte(2) }

// Healthy reports whether no fault bits are set
func (b InfoBeacon) Healthy() bool { return b.HealthFlags() == 0 }

// SupplyVolts returns the supply voltage
func (b InfoBeacon) SupplyVolts() float64 { return float64(b.p.payload.Byte(3)) / 10 }

// TemperatureC returns the enclosure temperature in °C
func (b InfoBeacon) TemperatureC() int { return int(int8(b.p.payload.Byte(4))) }

// SelfTestResult is the outcome of a power-up or requested self test
type SelfTestResult struct{ view }

// NewSelfTestResult asserts p is a SELF_TEST_RESULT packet
func NewSelfTestResult(p *Packet) (SelfTestResult, error) {
	v, err := newView(p, QualSelfTestResult)
	return SelfTestResult{v}, err
}

// Result returns the result code (0 = pass)
func (s SelfTestResult) Result() byte { return s.p.payload.Byte(1) }

// Passed reports a zero result code
func (s SelfTestResult) Passed() bool { return s.Result() == 0 }

// Faults returns the fault bit field
func (s SelfTestResult) Faults() uint16 { return s.p.payload.Uint16(2) }

// bitTest is the layout shared by both built-in test results
type bitTest struct{ view }

// Bits returns the failed-test bit field
func (b bitTest) Bits() uint16 { return b.p.payload.Uint16(1) }

// Passed reports that no test bit is set
func (b bitTest) Passed() bool { return b.p.payload.Has(1, 2) && b.Bits() == 0 }

// BitTestImmediate answers SELF_TEST_IMMEDIATE
type BitTestImmediate struct{ bitTest }

// NewBitTestImmediate asserts p is a BIT_TEST_IMMEDIATE packet
func NewBitTestImmediate(p *Packet) (BitTestImmediate, error) {
	v, err := newView(p, QualBitTestImmediate)
	return BitTestImmediate{bitTest{v}}, err
}

// BitTestPolled answers SELF_TEST_POLLED
type BitTestPolled struct{ bitTest }

// NewBitTestPolled asserts p is a BIT_TEST_POLLED packet
func NewBitTestPolled(p *Packet) (BitTestPolled, error) {
	v, err := newView(p, QualBitTestPolled)
	return BitTestPolled{bitTest{v}}, err
}

// ============================================================
// Configuration documents (Sensor → Host)
// ============================================================

// PowerVector holds the per-zone RF power levels
type PowerVector struct{ view }

// NewPowerVector asserts p is a POWER_VECTOR packet
func NewPowerVector(p *Packet) (PowerVector, error) {
	v, err := newView(p, QualPowerVector)
	return PowerVector{v}, err
}

// Levels returns the power level of every zone present
func (v PowerVector) Levels() []int {
	n := min(len(v.p.payload)-1, MaxLanes)
	if n <= 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = int(v.p.payload[1+i])
	}
	return out
}

// speedBins is the layout shared by SPEED_BIN_INFO and SPEED_BIN_WRITE
type speedBins struct{ view }

// Bins returns the bin thresholds in KPH
func (s speedBins) Bins() []int {
	out := make([]int, 0, SpeedBinCount)
	for i := 0; i < SpeedBinCount && s.p.payload.Has(1+i, 1); i++ {
		out = append(out, int(s.p.payload[1+i]))
	}
	return out
}

// Config returns the configuration block trailing the thresholds
func (s speedBins) Config() []byte {
	off := 1 + SpeedBinCount
	if len(s.p.payload) <= off {
		return nil
	}
	return append([]byte(nil), s.p.payload[off:]...)
}

// SpeedBinInfo reports the stored speed bins
type SpeedBinInfo struct{ speedBins }

// NewSpeedBinInfo asserts p is a SPEED_BIN_INFO packet
func NewSpeedBinInfo(p *Packet) (SpeedBinInfo, error) {
	v, err := newView(p, QualSpeedBinInfo)
	return SpeedBinInfo{speedBins{v}}, err
}

// SoftwareInfo reports firmware version and serial number
type SoftwareInfo struct{ view }

// NewSoftwareInfo asserts p is a SOFTWARE_INFO packet
func NewSoftwareInfo(p *Packet) (SoftwareInfo, error) {
	v, err := newView(p, QualSoftwareInfo)
	return SoftwareInfo{v}, err
}

// Major returns the firmware major version
func (s SoftwareInfo) Major() int { return int(s.p.payload.Byte(1)) }

// Minor returns the firmware minor version
func (s SoftwareInfo) Minor() int { return int(s.p.payload.Byte(2)) }

// Build returns the firmware build number
func (s SoftwareInfo) Build() int { return int(s.p.payload.Uint16(3)) }

// Serial returns the sensor serial number
func (s SoftwareInfo) Serial() uint32 { return s.p.payload.Uint32(5) }

// Version returns "major.minor.build"
func (s SoftwareInfo) Version() string {
	return fmt.Sprintf("%d.%d.%d", s.Major(), s.Minor(), s.Build())
}

// IntervalInfo reports the data interval and detection setup
type IntervalInfo struct{ view }

// NewIntervalInfo asserts p is an INTERVAL_INFO packet
func NewIntervalInfo(p *Packet) (IntervalInfo, error) {
	v, err := newView(p, QualIntervalInfo)
	return IntervalInfo{v}, err
}

// IntervalSeconds returns the data interval in seconds
func (i IntervalInfo) IntervalSeconds() int { return int(i.p.payload.Uint16(1)) }

// Interval returns the data interval
func (i IntervalInfo) Interval() time.Duration {
	return time.Duration(i.IntervalSeconds()) * time.Second
}

// Zones returns the configured zone count
func (i IntervalInfo) Zones() int { return int(i.p.payload.Byte(3)) }

// SensitivityCode returns the raw sensitivity code
func (i IntervalInfo) SensitivityCode() byte { return i.p.payload.Byte(4) }

// Sensitivity returns the level for the stored code, or 0 when the code is unknown
func (i IntervalInfo) Sensitivity() int { return SensitivityForCode(i.SensitivityCode()) }

// BaudCode returns the raw baud code
func (i IntervalInfo) BaudCode() byte { return i.p.payload.Byte(5) }

// BaudRate returns the line rate for the stored code, or 0 when unknown
func (i IntervalInfo) BaudRate() int { return BaudRateForCode(i.BaudCode()) }

// Mode returns the operating mode
func (i IntervalInfo) Mode() Mode { return Mode(i.p.payload.Byte(6)) }
