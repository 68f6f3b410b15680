// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package x3

import (
	"fmt"
	"time"
)

// Header is the fixed 3-byte frame header
type Header struct {
	Marker      byte
	Qualifier   byte
	PayloadSize uint8
}

// Bytes returns the wire form of the header
func (h Header) Bytes() []byte {
	return []byte{h.Marker, h.Qualifier, h.PayloadSize}
}

// DecodeHeader decodes the first HeaderLen bytes of b.
// The marker is checked before the qualifier or size are trusted.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) == 0 || b[0] != Marker {
		return Header{}, ErrBadMarker
	}
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: %d header bytes", ErrShortFrame, len(b))
	}
	return Header{Marker: b[0], Qualifier: b[1], PayloadSize: b[2]}, nil
}

// Payload is the variable-length body of a frame.
// Reads past the end return zero values rather than panicking.
type Payload []byte

// Has reports whether n bytes starting at off are present
func (p Payload) Has(off, n int) bool {
	return off >= 0 && n >= 0 && off+n <= len(p)
}

// Byte returns the byte at off, or 0 when absent
func (p Payload) Byte(off int) byte {
	if !p.Has(off, 1) {
		return 0
	}
	return p[off]
}

// Uint16 returns the big-endian value at off, or 0 when absent
func (p Payload) Uint16(off int) uint16 {
	if !p.Has(off, 2) {
		return 0
	}
	return uint16(p[off])<<8 | uint16(p[off+1])
}

// Uint32 returns the big-endian value at off, or 0 when absent
func (p Payload) Uint32(off int) uint32 {
	if !p.Has(off, 4) {
		return 0
	}
	return uint32(p[off])<<24 | uint32(p[off+1])<<16 | uint32(p[off+2])<<8 | uint32(p[off+3])
}

// Packet represents one X3 frame.
//
// The header payload size is always len(payload); there is no second copy of
// it to keep in sync. Decoded packets also remember whether the checksum
// matched and how many wire bytes they occupied.
type Packet struct {
	qualifier byte
	payload   Payload
	checksum  byte

	// Response contract
	hasResponse         bool
	hasMultipleResponse bool
	additionalTimeout   time.Duration

	// Decode results
	decoded      bool
	valid        bool
	truncated    bool
	declaredSize int
	wireLen      int
	timestamp    time.Time
}

// NewPacket creates a packet with a copy of payload.
// The response contract starts out as the catalog default for the qualifier.
func NewPacket(qualifier byte, payload []byte) *Packet {
	p := &Packet{
		qualifier: qualifier,
		payload:   append(Payload{}, payload...),
		valid:     true,
		timestamp: time.Now(),
	}
	if e, ok := Lookup(qualifier); ok {
		switch e.Response {
		case ResponseSingle:
			p.ExpectResponse()
		case ResponseMultiple:
			p.ExpectMultipleResponse()
		}
	}
	return p
}

// ParsePacket decodes a frame starting at buf[0].
//
// Only a missing marker or a buffer shorter than marker+qualifier is an error.
// A short buffer yields a packet whose payload holds the bytes that were there,
// flagged invalid and truncated. A full frame is valid iff its checksum matches.
func ParsePacket(buf []byte) (*Packet, error) {
	if len(buf) == 0 || buf[0] != Marker {
		return nil, ErrBadMarker
	}
	if len(buf) < 2 {
		return nil, ErrShortFrame
	}

	p := &Packet{
		qualifier: buf[1],
		payload:   Payload{},
		decoded:   true,
		timestamp: time.Now(),
	}

	if len(buf) < HeaderLen {
		p.truncated = true
		p.wireLen = len(buf)
		return p, nil
	}

	p.declaredSize = int(buf[2])
	body := buf[HeaderLen:]
	n := min(p.declaredSize, len(body))
	p.payload = make(Payload, n)
	copy(p.payload, body[:n])

	if len(body) <= p.declaredSize {
		// Payload or checksum byte missing
		p.truncated = true
		p.wireLen = HeaderLen + n
		return p, nil
	}

	p.checksum = body[p.declaredSize]
	p.valid = p.checksum == Checksum(p.payload)
	p.wireLen = HeaderLen + p.declaredSize + ChecksumLen
	return p, nil
}

// Qualifier returns the message type
func (p *Packet) Qualifier() byte {
	return p.qualifier
}

// Header returns the frame header derived from the current payload
func (p *Packet) Header() Header {
	return Header{Marker: Marker, Qualifier: p.qualifier, PayloadSize: uint8(len(p.payload))}
}

// Payload returns the payload bytes
func (p *Packet) Payload() Payload {
	return p.payload
}

// PayloadSize returns the payload length, which is also the header size field
func (p *Packet) PayloadSize() int {
	return len(p.payload)
}

// DeclaredSize returns the size field seen on the wire (decoded packets only)
func (p *Packet) DeclaredSize() int {
	if !p.decoded {
		return len(p.payload)
	}
	return p.declaredSize
}

// SetPayload replaces the payload with a copy of b
func (p *Packet) SetPayload(b []byte) {
	p.payload = append(Payload{}, b...)
}

// Resize grows (zero filled) or shrinks the payload to n bytes
func (p *Packet) Resize(n int) {
	if n < 0 {
		n = 0
	}
	if n <= len(p.payload) {
		p.payload = p.payload[:n]
		return
	}
	p.payload = append(p.payload, make([]byte, n-len(p.payload))...)
}

// Checksum returns the received checksum for decoded packets, the computed one otherwise
func (p *Packet) Checksum() byte {
	if p.decoded {
		return p.checksum
	}
	return Checksum(p.payload)
}

// Valid reports whether the checksum matched (always true for built packets)
func (p *Packet) Valid() bool {
	return p.valid
}

// Truncated reports whether the frame ran out of bytes before its checksum
func (p *Packet) Truncated() bool {
	return p.truncated
}

// ChecksumMismatch reports a complete frame whose checksum did not match
func (p *Packet) ChecksumMismatch() bool {
	return p.decoded && !p.truncated && !p.valid
}

// WireLen returns the number of bytes the frame occupies on the wire.
// For a truncated frame the missing checksum byte is not counted.
func (p *Packet) WireLen() int {
	if p.decoded {
		return p.wireLen
	}
	return HeaderLen + len(p.payload) + ChecksumLen
}

// Timestamp returns the creation or decode time
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// SetTimestamp overrides the packet timestamp (used when replaying archives)
func (p *Packet) SetTimestamp(t time.Time) {
	p.timestamp = t
}

// HasResponse reports whether the sensor answers this packet
func (p *Packet) HasResponse() bool {
	return p.hasResponse
}

// HasMultipleResponse reports whether the answer spans several frames
func (p *Packet) HasMultipleResponse() bool {
	return p.hasMultipleResponse
}

// ExpectResponse marks the packet as answered by a single frame
func (p *Packet) ExpectResponse() {
	p.hasResponse = true
	p.hasMultipleResponse = false
}

// ExpectMultipleResponse marks the packet as answered by several frames
func (p *Packet) ExpectMultipleResponse() {
	p.hasResponse = true
	p.hasMultipleResponse = true
}

// ExpectNoResponse clears both response flags
func (p *Packet) ExpectNoResponse() {
	p.hasResponse = false
	p.hasMultipleResponse = false
}

// AdditionalTimeout returns extra wait time on top of the messenger timeout
func (p *Packet) AdditionalTimeout() time.Duration {
	return p.additionalTimeout
}

// SetAdditionalTimeout sets extra wait time for slow replies (flash writes, self tests)
func (p *Packet) SetAdditionalTimeout(d time.Duration) {
	p.additionalTimeout = d
}

// FlushTrailer reports whether encoding appends the buffer flush trailer
func (p *Packet) FlushTrailer() bool {
	e, ok := Lookup(p.qualifier)
	return ok && e.FlushTrailer
}

// Encode returns the wire form of the packet, including the flush trailer when
// the catalog requires one.
func (p *Packet) Encode() ([]byte, error) {
	if len(p.payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(p.payload), MaxPayloadSize)
	}

	size := HeaderLen + len(p.payload) + ChecksumLen
	if p.FlushTrailer() {
		size += FlushTrailerLen
	}

	out := make([]byte, 0, size)
	out = append(out, p.Header().Bytes()...)
	out = append(out, p.payload...)
	out = append(out, Checksum(p.payload))
	if p.FlushTrailer() {
		out = append(out, flushTrailer()...)
	}
	return out, nil
}

// MustEncode encodes the packet and panics on error.
// Packets built by the command constructors never fail to encode.
func (p *Packet) MustEncode() []byte {
	data, err := p.Encode()
	if err != nil {
		panic(fmt.Sprintf("x3: encode error: %v", err))
	}
	return data
}

// flushTrailer returns the fixed BufferFlush frame appended to some commands
func flushTrailer() []byte {
	return []byte{Marker, QualBufferFlush, 1, FlushCode, Checksum([]byte{FlushCode})}
}
