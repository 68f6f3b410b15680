// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package x3

import (
	"fmt"
	"time"
)

// Statistics tracks packet statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalPackets    uint64
	ValidPackets    uint64
	ChecksumErrors  uint64
	TruncatedFrames uint64
	UnknownPackets  uint64
	Anomalies       uint64
	Naks            uint64
	Samples         uint64

	// Conversation counters
	Requests  uint64
	Retries   uint64
	Timeouts  uint64
	BytesSent uint64
	BytesRecv uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records a received packet and its validation result
func (s *Statistics) Update(p *Packet, validationErrors []ValidationError) {
	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	switch {
	case p.Truncated():
		s.TruncatedFrames++
		return
	case p.ChecksumMismatch():
		s.ChecksumErrors++
		return
	}

	if p.Qualifier() == QualNak {
		s.Naks++
	}
	if _, ok := Lookup(p.Qualifier()); !ok {
		s.UnknownPackets++
	}
	if len(validationErrors) > 0 {
		s.Anomalies++
		return
	}
	s.ValidPackets++
}

// CalculateRates calculates packet and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// Errors returns the number of packets that failed framing or validation
func (s *Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.TruncatedFrames + s.Anomalies
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalPackets == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalPackets)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Packets:   %8d\n", s.TotalPackets)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, percent(s.ValidPackets))

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, percent(s.ChecksumErrors))
	}
	if s.TruncatedFrames > 0 {
		result += fmt.Sprintf("Truncated:       %8d (%.1f%%)\n", s.TruncatedFrames, percent(s.TruncatedFrames))
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalous:       %8d (%.1f%%)\n", s.Anomalies, percent(s.Anomalies))
	}
	if s.UnknownPackets > 0 {
		result += fmt.Sprintf("Unknown Types:   %8d\n", s.UnknownPackets)
	}
	if s.Naks > 0 {
		result += fmt.Sprintf("NAKs:            %8d\n", s.Naks)
	}
	if s.Requests > 0 {
		result += fmt.Sprintf("Requests:        %8d (retries %d, timeouts %d)\n", s.Requests, s.Retries, s.Timeouts)
	}
	if s.Samples > 0 {
		result += fmt.Sprintf("Samples:         %8d\n", s.Samples)
	}
	if s.BytesSent > 0 || s.BytesRecv > 0 {
		result += fmt.Sprintf("Bytes:           %8d sent, %d received\n", s.BytesSent, s.BytesRecv)
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
