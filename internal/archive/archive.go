// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package archive records X3 traffic to a CBOR stream and replays it.
//
// An archive is a CBOR sequence: one Header item followed by one Record per
// frame. Records keep the frame exactly as seen (including truncated and
// bad-checksum frames) so replay reproduces validity flags.
package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/radarstat/pkg/x3"
)

// Magic identifies radarstat archives
const Magic = "radarstat-x3"

// Version is the archive format revision
const Version = 1

var (
	ErrBadMagic   = errors.New("archive: not a radarstat archive")
	ErrBadVersion = errors.New("archive: unsupported version")
)

// Header opens every archive
type Header struct {
	Magic    string    `cbor:"1,keyasint"`
	Version  int       `cbor:"2,keyasint"`
	SensorID int       `cbor:"3,keyasint"`
	Endpoint string    `cbor:"4,keyasint,omitempty"`
	Started  time.Time `cbor:"5,keyasint"`
}

// Record is one archived frame
type Record struct {
	Time      int64        `cbor:"1,keyasint"` // unix nanoseconds
	Direction x3.Direction `cbor:"2,keyasint"`
	Frame     []byte       `cbor:"3,keyasint"`
}

// Entry is a replayed record
type Entry struct {
	Direction x3.Direction
	Packet    *x3.Packet
}

// Frame returns the bytes p occupied on the wire, without any flush trailer
func Frame(p *x3.Packet) []byte {
	b := []byte{x3.Marker, p.Qualifier()}
	if p.Truncated() && p.WireLen() < x3.HeaderLen {
		return b
	}
	b = append(b, byte(p.DeclaredSize()))
	b = append(b, p.Payload()...)
	if !p.Truncated() {
		b = append(b, p.Checksum())
	}
	return b
}

// Writer appends records to an archive.
// It is safe for concurrent use; the first write error sticks.
type Writer struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	enc    *cbor.Encoder
	closer io.Closer
	err    error
	count  int
}

// NewWriter writes h and returns a writer positioned after it
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	h.Magic = Magic
	h.Version = Version
	if h.Started.IsZero() {
		h.Started = time.Now()
	}

	buf := bufio.NewWriter(w)
	enc := cbor.NewEncoder(buf)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("archive: write header: %w", err)
	}
	aw := &Writer{buf: buf, enc: enc}
	if c, ok := w.(io.Closer); ok {
		aw.closer = c
	}
	return aw, nil
}

// Create opens path for writing, truncating any existing file
func Create(path string, h Header) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	w, err := NewWriter(f, h)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends one frame
func (w *Writer) Write(dir x3.Direction, p *x3.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	rec := Record{
		Time:      p.Timestamp().UnixNano(),
		Direction: dir,
		Frame:     Frame(p),
	}
	if err := w.enc.Encode(rec); err != nil {
		w.err = fmt.Errorf("archive: write record: %w", err)
		return w.err
	}
	w.count++
	return nil
}

// PacketSent records a host command
func (w *Writer) PacketSent(p *x3.Packet) { _ = w.Write(x3.ToSensor, p) }

// PacketReceived records a sensor frame
func (w *Writer) PacketReceived(p *x3.Packet) { _ = w.Write(x3.FromSensor, p) }

// Count returns the number of records written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Flush pushes buffered records to the underlying writer
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil && w.err == nil {
		w.err = fmt.Errorf("archive: flush: %w", err)
	}
	return w.err
}

// Close flushes and closes the underlying file, if any
func (w *Writer) Close() error {
	err := w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
		w.closer = nil
	}
	return err
}

// Reader replays an archive
type Reader struct {
	dec    *cbor.Decoder
	closer io.Closer
	header Header
}

// NewReader reads and checks the archive header
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(bufio.NewReader(r))
	var h Header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if h.Magic != Magic {
		return nil, ErrBadMagic
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	ar := &Reader{dec: dec, header: h}
	if c, ok := r.(io.Closer); ok {
		ar.closer = c
	}
	return ar, nil
}

// Open opens an archive file for replay
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Header returns the archive header
func (r *Reader) Header() Header { return r.header }

// Next returns the next entry, or io.EOF at the end of the archive
func (r *Reader) Next() (Entry, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("archive: read record: %w", err)
	}
	p, err := x3.ParsePacket(rec.Frame)
	if err != nil {
		return Entry{}, fmt.Errorf("archive: record frame: %w", err)
	}
	p.SetTimestamp(time.Unix(0, rec.Time))
	return Entry{Direction: rec.Direction, Packet: p}, nil
}

// All reads every remaining entry
func (r *Reader) All() ([]Entry, error) {
	var out []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

// Received returns the sensor frames of entries in order
func Received(entries []Entry) []*x3.Packet {
	var out []*x3.Packet
	for _, e := range entries {
		if e.Direction == x3.FromSensor {
			out = append(out, e.Packet)
		}
	}
	return out
}

// Close closes the underlying file, if any
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
