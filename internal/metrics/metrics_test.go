package metrics

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestCollector_Sessions(t *testing.T) {
	c := New()

	c.SessionOpened()
	c.SessionOpened()
	if c.ActiveSessions() != 2 || c.TotalSessions() != 2 {
		t.Fatalf("active=%d total=%d, want 2/2", c.ActiveSessions(), c.TotalSessions())
	}

	c.SessionClosed()
	if c.ActiveSessions() != 1 {
		t.Errorf("active = %d, want 1", c.ActiveSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalSessions())
	}
}

func TestCollector_Traffic(t *testing.T) {
	c := New()

	c.BytesReceived(1024)
	c.BytesSent(512)
	c.BytesReceived(100)
	c.BytesReceived(0) // end-of-stream pull carries no chunk

	want := TrafficStats{BytesIn: 1124, BytesOut: 512, ChunksIn: 2, ChunksOut: 1}
	if diff := cmp.Diff(want, c.Snapshot().Traffic); diff != "" {
		t.Errorf("traffic mismatch (-want +got):\n%s", diff)
	}
}

func TestCollector_Handshakes(t *testing.T) {
	c := New()

	c.HandshakeCompleted("TLS 1.3", 10*time.Millisecond)
	c.HandshakeCompleted("TLS 1.3", 30*time.Millisecond)
	c.HandshakeCompleted("TLS 1.2", 20*time.Millisecond)
	c.HandshakeCompleted("", 0)

	want := HandshakeStats{
		Completed: 4,
		MeanMs:    15,
		SlowestMs: 30,
		Versions:  map[string]int64{"TLS 1.3": 2, "TLS 1.2": 1},
	}
	if diff := cmp.Diff(want, c.Snapshot().Handshakes); diff != "" {
		t.Errorf("handshakes mismatch (-want +got):\n%s", diff)
	}
	if c.Handshakes() != 4 {
		t.Errorf("Handshakes() = %d, want 4", c.Handshakes())
	}
}

func TestCollector_Failures(t *testing.T) {
	c := New()

	c.Failed("dial", errors.New("connection refused"))
	c.Failed("handshake", errors.New("bad certificate"))
	c.Failed("handshake", nil)
	c.DialRetried()
	c.DialRetried()

	if c.HandshakeFailures() != 2 {
		t.Errorf("handshake failures = %d, want 2", c.HandshakeFailures())
	}
	if c.Failures("resolve") != 0 {
		t.Errorf("resolve failures = %d, want 0", c.Failures("resolve"))
	}
	if c.DialRetries() != 2 {
		t.Errorf("dial retries = %d, want 2", c.DialRetries())
	}

	snap := c.Snapshot()
	if diff := cmp.Diff(map[string]int64{"dial": 1, "handshake": 2}, snap.Failures); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}
	if snap.LastError != "bad certificate" {
		t.Errorf("last error = %q, want the last non-nil error", snap.LastError)
	}
	if snap.LastErrorAt == "" {
		t.Error("last error time not set")
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.SessionOpened()
			c.BytesSent(10)
			c.HandshakeCompleted("TLS 1.3", time.Millisecond)
			c.SessionClosed()
		}()
	}
	wg.Wait()

	if c.TotalSessions() != 50 || c.ActiveSessions() != 0 {
		t.Errorf("total=%d active=%d", c.TotalSessions(), c.ActiveSessions())
	}
	if c.TotalBytesOut() != 500 {
		t.Errorf("bytes out = %d, want 500", c.TotalBytesOut())
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.BytesSent(42)
	c.Failed("resolve", errors.New("no such host"))

	var got Snapshot
	if err := json.Unmarshal([]byte(c.JSON()), &got); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}

	want := Snapshot{
		Sessions:  SessionStats{Active: 1, Total: 1},
		Traffic:   TrafficStats{BytesOut: 42, ChunksOut: 1},
		Failures:  map[string]int64{"resolve": 1},
		LastError: "no such host",
	}
	opts := cmpopts.IgnoreFields(Snapshot{}, "Uptime", "LastErrorAt")
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	c.SessionOpened()
	c.SessionClosed()
	c.BytesReceived(100)
	c.BytesSent(100)
	c.DialRetried()
	c.HandshakeCompleted("TLS 1.3", time.Millisecond)
	c.Failed("dial", errors.New("x"))

	if c.ActiveSessions() != 0 || c.TotalBytesIn() != 0 || c.HandshakeFailures() != 0 || c.Handshakes() != 0 {
		t.Error("nil collector should report zeros")
	}
	if diff := cmp.Diff(Snapshot{}, c.Snapshot()); diff != "" {
		t.Errorf("nil snapshot should be zero:\n%s", diff)
	}
	if c.JSON() == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
