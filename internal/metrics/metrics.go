// Package metrics counts what happens to TLS sessions over the life of
// a tlsnc process: how many ran, which stage failed when one could not
// be established, how long handshakes took and which protocol versions
// were negotiated, and how much data crossed the stream adapter.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector accumulates session metrics.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	bytesIn        atomic.Int64
	bytesOut       atomic.Int64
	chunksIn       atomic.Int64
	chunksOut      atomic.Int64
	dialRetries    atomic.Int64

	mu            sync.Mutex
	start         time.Time
	handshakes    int64
	handshakeTime time.Duration
	slowest       time.Duration
	versions      map[string]int64
	failures      map[string]int64
	lastErrAt     time.Time
	lastErr       string
}

// New creates a collector whose uptime starts now.
func New() *Collector {
	return &Collector{
		start:    time.Now(),
		versions: make(map[string]int64),
		failures: make(map[string]int64),
	}
}

// ── Sessions ─────────────────────────────────────────────────────────

// SessionOpened records a scoped session whose action is about to run.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed records the end of a scoped session's teardown.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ── Establishment ────────────────────────────────────────────────────

// DialRetried records one extra dial attempt.
func (c *Collector) DialRetried() {
	if c == nil {
		return
	}
	c.dialRetries.Add(1)
}

func (c *Collector) DialRetries() int64 {
	if c == nil {
		return 0
	}
	return c.dialRetries.Load()
}

// HandshakeCompleted records a successful handshake, the protocol
// version it negotiated (empty if unknown) and how long it took.
func (c *Collector) HandshakeCompleted(version string, took time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handshakes++
	c.handshakeTime += took
	if took > c.slowest {
		c.slowest = took
	}
	if version != "" {
		c.versions[version]++
	}
}

func (c *Collector) Handshakes() int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handshakes
}

// Failed records that establishing a session failed at stage
// ("resolve", "dial", "handshake").
func (c *Collector) Failed(stage string, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[stage]++
	if err != nil {
		c.lastErrAt = time.Now()
		c.lastErr = err.Error()
	}
}

// Failures returns how many establishments failed at stage.
func (c *Collector) Failures(stage string) int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures[stage]
}

// HandshakeFailures is Failures("handshake").
func (c *Collector) HandshakeFailures() int64 { return c.Failures("handshake") }

// ── Traffic ──────────────────────────────────────────────────────────

// BytesReceived records one chunk of n bytes read from a session.
func (c *Collector) BytesReceived(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesIn.Add(n)
	c.chunksIn.Add(1)
}

// BytesSent records one write of n bytes to a session.
func (c *Collector) BytesSent(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesOut.Add(n)
	c.chunksOut.Add(1)
}

func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime      string           `json:"uptime"`
	Sessions    SessionStats     `json:"sessions"`
	Handshakes  HandshakeStats   `json:"handshakes"`
	Traffic     TrafficStats     `json:"traffic"`
	DialRetries int64            `json:"dial_retries"`
	Failures    map[string]int64 `json:"failures,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	LastErrorAt string           `json:"last_error_at,omitempty"`
}

type SessionStats struct {
	Active int64 `json:"active"`
	Total  int64 `json:"total"`
}

type HandshakeStats struct {
	Completed int64            `json:"completed"`
	MeanMs    float64          `json:"mean_ms"`
	SlowestMs float64          `json:"slowest_ms"`
	Versions  map[string]int64 `json:"versions,omitempty"`
}

type TrafficStats struct {
	BytesIn   int64 `json:"bytes_in"`
	BytesOut  int64 `json:"bytes_out"`
	ChunksIn  int64 `json:"chunks_in"`
	ChunksOut int64 `json:"chunks_out"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Uptime: time.Since(c.start).Truncate(time.Millisecond).String(),
		Sessions: SessionStats{
			Active: c.sessionsActive.Load(),
			Total:  c.sessionsTotal.Load(),
		},
		Handshakes: HandshakeStats{
			Completed: c.handshakes,
			SlowestMs: millis(c.slowest),
			Versions:  copyCounts(c.versions),
		},
		Traffic: TrafficStats{
			BytesIn:   c.bytesIn.Load(),
			BytesOut:  c.bytesOut.Load(),
			ChunksIn:  c.chunksIn.Load(),
			ChunksOut: c.chunksOut.Load(),
		},
		DialRetries: c.dialRetries.Load(),
		Failures:    copyCounts(c.failures),
	}
	if c.handshakes > 0 {
		s.Handshakes.MeanMs = millis(c.handshakeTime / time.Duration(c.handshakes))
	}
	if !c.lastErrAt.IsZero() {
		s.LastError = c.lastErr
		s.LastErrorAt = c.lastErrAt.Format(time.RFC3339)
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	data, _ := json.MarshalIndent(c.Snapshot(), "", "  ")
	return string(data)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func copyCounts(m map[string]int64) map[string]int64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
