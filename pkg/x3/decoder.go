// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package x3

import "bytes"

// Reassemble splits a raw receive chunk into packets.
//
// The chunk may start mid-frame and may hold several frames back to back.
// Bytes before a marker are skipped; each packet is parsed at the cursor and
// the cursor advances by that packet's own WireLen. Scanning stops when fewer
// than two bytes remain. A trailing partial frame becomes a truncated packet.
func Reassemble(buf []byte) []*Packet {
	var packets []*Packet
	pos := 0
	for len(buf)-pos >= 2 {
		idx := bytes.IndexByte(buf[pos:], Marker)
		if idx < 0 {
			break
		}
		pos += idx
		if len(buf)-pos < 2 {
			break
		}

		p, err := ParsePacket(buf[pos:])
		if err != nil {
			// Unreachable with a marker and two bytes; skip the byte to stay live
			pos++
			continue
		}
		packets = append(packets, p)
		pos += p.WireLen()
	}
	return packets
}

// Decoder reassembles packets from a byte stream that arrives in arbitrary chunks.
//
// Unlike Reassemble, an incomplete trailing frame is held back until more bytes
// arrive. A complete frame with a bad checksum is returned (flagged invalid) and
// scanning resumes one byte after its marker, so a false marker inside noise
// does not swallow the frames behind it.
type Decoder struct {
	buffer  []byte
	skipped int
}

// NewDecoder creates a new stream decoder
func NewDecoder() *Decoder {
	return &Decoder{
		buffer: make([]byte, 0, HeaderLen+MaxPayloadSize+ChecksumLen),
	}
}

// Reset drops any buffered bytes
func (d *Decoder) Reset() {
	d.buffer = d.buffer[:0]
	d.skipped = 0
}

// Skipped returns the number of non-frame bytes discarded since the last Reset
func (d *Decoder) Skipped() int {
	return d.skipped
}

// Pending returns the number of buffered bytes waiting for the rest of a frame
func (d *Decoder) Pending() int {
	return len(d.buffer)
}

// Feed appends chunk and returns every frame completed by it
func (d *Decoder) Feed(chunk []byte) []*Packet {
	d.buffer = append(d.buffer, chunk...)

	var packets []*Packet
	pos := 0
	for pos < len(d.buffer) {
		idx := bytes.IndexByte(d.buffer[pos:], Marker)
		if idx < 0 {
			d.skipped += len(d.buffer) - pos
			pos = len(d.buffer)
			break
		}
		d.skipped += idx
		pos += idx

		remaining := d.buffer[pos:]
		if len(remaining) < HeaderLen || len(remaining) < HeaderLen+int(remaining[2])+ChecksumLen {
			// Wait for the rest of the frame
			break
		}

		p, err := ParsePacket(remaining)
		if err != nil {
			pos++
			d.skipped++
			continue
		}
		packets = append(packets, p)
		if p.Valid() {
			pos += p.WireLen()
		} else {
			pos++
		}
	}

	d.buffer = append(d.buffer[:0], d.buffer[pos:]...)
	return packets
}

// Flush returns the buffered partial frame, if any, as a truncated packet
func (d *Decoder) Flush() []*Packet {
	packets := Reassemble(d.buffer)
	d.buffer = d.buffer[:0]
	return packets
}
