// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package messenger runs the host side of a conversation with one X3 sensor.
//
// A Messenger owns its transport exclusively. Every exchange is a blocking
// call: send a command, wait for the reply within the timeout, retry up to
// the attempt budget, then reassemble whatever arrived. Received frames are
// kept in an append-only log from which samples are regrouped on demand.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/radarstat/internal/transport"
	"github.com/Thermoquad/radarstat/pkg/x3"
)

var (
	ErrInvalidSensorID = errors.New("messenger: sensor id must be 1-255")
	ErrNotOpen         = errors.New("messenger: not open")

	// ErrOutOfRange is returned by parameter updates before anything is sent
	ErrOutOfRange = x3.ErrOutOfRange
)

// Defaults
const (
	DefaultTimeout         = 2 * time.Second
	DefaultMaxAttempts     = 5
	DefaultSettleTime      = 150 * time.Millisecond
	DefaultFullSampleBytes = 100
	DefaultLogLimit        = 4096
)

// Metrics receives conversation events. telemetry.Metrics implements it.
type Metrics interface {
	Request(q byte)
	Retry(q byte)
	Timeout(q byte)
	Nak()
	Reconnect()
	RoundTrip(d time.Duration)
	Bytes(sent, received uint64)
	Packet(p *x3.Packet)
	Sample(s x3.Sample)
}

// Observer sees every frame as it is sent or logged. archive.Writer implements it.
type Observer interface {
	PacketSent(p *x3.Packet)
	PacketReceived(p *x3.Packet)
}

// Options configures a Messenger
type Options struct {
	Endpoint transport.Endpoint
	Kind     transport.Kind
	SensorID int

	Timeout     time.Duration // per attempt, before any packet-specific extra
	MaxAttempts int           // shared by timeouts and NAK retries
	SettleTime  time.Duration // quiet window that ends a multi-frame reply

	// FullSampleBytes is how much unread input RequestData treats as a
	// complete sample already waiting. Sensor-specific tuning.
	FullSampleBytes int

	// LogLimit caps each log at this many entries, oldest dropped first.
	// Zero keeps everything until ClearLogs.
	LogLimit int

	Dial     transport.DialFunc
	Logger   zerolog.Logger
	Metrics  Metrics
	Observer Observer
	Now      func() time.Time
}

// DefaultOptions returns options for sensor 1 over TCP
func DefaultOptions() Options {
	return Options{
		Kind:            transport.TCP,
		SensorID:        1,
		Timeout:         DefaultTimeout,
		MaxAttempts:     DefaultMaxAttempts,
		SettleTime:      DefaultSettleTime,
		FullSampleBytes: DefaultFullSampleBytes,
		Dial:            transport.Dialer(transport.DefaultOptions()),
		Logger:          zerolog.Nop(),
		Now:             time.Now,
	}
}

// LogEntry is one request or receive log line
type LogEntry struct {
	Time   time.Time
	Packet *x3.Packet
}

// Messenger talks to one sensor
type Messenger struct {
	mu sync.Mutex

	endpoint transport.Endpoint
	kind     transport.Kind
	sensorID byte

	timeout         time.Duration
	maxAttempts     int
	settle          time.Duration
	fullSampleBytes int
	logLimit        int

	dial     transport.DialFunc
	log      zerolog.Logger
	metrics  Metrics
	observer Observer
	now      func() time.Time

	tr     transport.Transport
	last   transport.Counters // counters of tr already accounted for
	bytes  map[transport.Kind]transport.Counters
	closed bool

	requests []LogEntry
	received []LogEntry
	seen     uint64 // packets ever appended to received

	software    *x3.SoftwareInfo
	interval    *x3.IntervalInfo
	powerVector *x3.PowerVector
	speedBins   *x3.SpeedBinInfo

	stats *x3.Statistics
}

// New validates opts and creates a Messenger. It does not connect.
func New(opts Options) (*Messenger, error) {
	def := DefaultOptions()
	if opts.SensorID <= 0 || opts.SensorID > 255 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSensorID, opts.SensorID)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.SettleTime <= 0 {
		opts.SettleTime = def.SettleTime
	}
	if opts.FullSampleBytes <= 0 {
		opts.FullSampleBytes = def.FullSampleBytes
	}
	if opts.Dial == nil {
		opts.Dial = def.Dial
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}

	return &Messenger{
		endpoint:        opts.Endpoint,
		kind:            opts.Kind,
		sensorID:        byte(opts.SensorID),
		timeout:         opts.Timeout,
		maxAttempts:     opts.MaxAttempts,
		settle:          opts.SettleTime,
		fullSampleBytes: opts.FullSampleBytes,
		logLimit:        opts.LogLimit,
		dial:            opts.Dial,
		log:             opts.Logger.With().Str("component", "messenger").Logger(),
		metrics:         opts.Metrics,
		observer:        opts.Observer,
		now:             opts.Now,
		bytes:           make(map[transport.Kind]transport.Counters),
		stats:           x3.NewStatistics(),
	}, nil
}

// Open connects and fetches the four configuration documents
func (m *Messenger) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotOpen
	}
	if err := m.connect(ctx); err != nil {
		return err
	}
	return m.initialize(ctx)
}

// Close releases the transport and clears both logs. Repeated calls return nil.
func (m *Messenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.requests = nil
	m.received = nil
	return m.dropTransport()
}

// connect replaces the transport with a fresh dial
func (m *Messenger) connect(ctx context.Context) error {
	_ = m.dropTransport()

	tr, err := m.dial(ctx, m.kind, m.endpoint)
	if err != nil {
		return fmt.Errorf("messenger: connect %s: %w", m.endpoint.Describe(m.kind), err)
	}
	m.tr = tr
	m.last = transport.Counters{}
	m.log.Debug().Str("endpoint", m.endpoint.Describe(m.kind)).Msg("connected")
	return nil
}

// reconnect redials after a transport failure
func (m *Messenger) reconnect(ctx context.Context, cause error) error {
	m.log.Warn().Err(cause).Str("endpoint", m.endpoint.Describe(m.kind)).Msg("transport failure, reconnecting")
	if m.metrics != nil {
		m.metrics.Reconnect()
	}
	if err := m.connect(ctx); err != nil {
		return fmt.Errorf("%w (after %v)", err, cause)
	}
	return nil
}

// ensureConnected dials when there is no usable transport
func (m *Messenger) ensureConnected(ctx context.Context) error {
	if m.closed {
		return ErrNotOpen
	}
	if m.tr == nil {
		return m.connect(ctx)
	}
	if !m.tr.Connected() {
		return m.reconnect(ctx, transport.ErrDisconnected)
	}
	return nil
}

func (m *Messenger) dropTransport() error {
	if m.tr == nil {
		return nil
	}
	m.account()
	err := m.tr.Close()
	m.tr = nil
	return err
}

// account folds new transport byte counts into the per-kind totals
func (m *Messenger) account() {
	if m.tr == nil {
		return
	}
	cur := m.tr.Counters()
	sent := cur.Sent - m.last.Sent
	recv := cur.Received - m.last.Received
	m.last = cur
	if sent == 0 && recv == 0 {
		return
	}

	total := m.bytes[m.kind]
	total.Sent += sent
	total.Received += recv
	m.bytes[m.kind] = total

	m.stats.BytesSent += sent
	m.stats.BytesRecv += recv
	if m.metrics != nil {
		m.metrics.Bytes(sent, recv)
	}
}

// SensorID returns the addressed sensor
func (m *Messenger) SensorID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(m.sensorID)
}

// SetSensorID changes the addressed sensor. Values outside 1-255 are rejected.
func (m *Messenger) SetSensorID(id int) error {
	if id <= 0 || id > 255 {
		return fmt.Errorf("%w: %d", ErrInvalidSensorID, id)
	}
	m.mu.Lock()
	m.sensorID = byte(id)
	m.mu.Unlock()
	return nil
}

// Kind returns the current transport kind
func (m *Messenger) Kind() transport.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kind
}

// Endpoint returns the sensor endpoint
func (m *Messenger) Endpoint() transport.Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

// SetTransportKind closes the current transport, dials kind against the same
// endpoint and re-runs the full configuration fetch before returning.
func (m *Messenger) SetTransportKind(ctx context.Context, kind transport.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotOpen
	}

	m.log.Info().Str("from", m.kind.String()).Str("to", kind.String()).Msg("switching transport")
	_ = m.dropTransport()
	m.kind = kind
	if err := m.connect(ctx); err != nil {
		return err
	}
	return m.initialize(ctx)
}

// Counters returns the cumulative byte counts of every transport of kind
func (m *Messenger) Counters(kind transport.Kind) transport.Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account()
	return m.bytes[kind]
}

// Statistics returns a snapshot with rates calculated
func (m *Messenger) Statistics() x3.Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account()
	s := *m.stats
	s.CalculateRates()
	return s
}

// ResetStatistics zeroes the counters
func (m *Messenger) ResetStatistics() {
	m.mu.Lock()
	m.stats.Reset()
	m.mu.Unlock()
}

// RequestLog returns a copy of the request log
func (m *Messenger) RequestLog() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry(nil), m.requests...)
}

// ReceiveLog returns a copy of the receive log
func (m *Messenger) ReceiveLog() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry(nil), m.received...)
}

// ClearLogs empties both logs, and with them the reconstructed samples
func (m *Messenger) ClearLogs() {
	m.mu.Lock()
	m.requests = nil
	m.received = nil
	m.mu.Unlock()
}

// Samples regroups the receive log into polling cycles
func (m *Messenger) Samples() []x3.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samples()
}

// LatestSample returns the most recent sample, if any
func (m *Messenger) LatestSample() (x3.Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return latest(m.samples())
}

func (m *Messenger) samples() []x3.Sample {
	return x3.GroupSamples(packetsOf(m.received))
}

// samplesSince groups only the packets logged after mark, a value of seen
func (m *Messenger) samplesSince(mark uint64) []x3.Sample {
	start := len(m.received) - int(m.seen-mark)
	if start < 0 {
		start = 0
	}
	return x3.GroupSamples(packetsOf(m.received[start:]))
}

func packetsOf(entries []LogEntry) []*x3.Packet {
	packets := make([]*x3.Packet, len(entries))
	for i, e := range entries {
		packets[i] = e.Packet
	}
	return packets
}

// trimLog drops the oldest entries once log is a quarter past limit
func trimLog(log []LogEntry, limit int) []LogEntry {
	if limit <= 0 || len(log) <= limit+limit/4 {
		return log
	}
	return append([]LogEntry(nil), log[len(log)-limit:]...)
}

func latest(samples []x3.Sample) (x3.Sample, bool) {
	if len(samples) == 0 {
		return x3.Sample{}, false
	}
	return samples[len(samples)-1], true
}
