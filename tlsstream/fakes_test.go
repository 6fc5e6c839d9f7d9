package tlsstream

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// eventLog records teardown and lifecycle events across fakes.
type eventLog struct {
	mu   sync.Mutex
	list []string
}

func (l *eventLog) add(ev string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.list = append(l.list, ev)
	l.mu.Unlock()
}

func (l *eventLog) events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.list...)
}

// fakeSession replays scripted reads and records everything else.
type fakeSession struct {
	mu        sync.Mutex
	reads     [][]byte
	readErr   error // after scripted reads; nil means io.EOF
	lastErr   error // returned once, together with the last scripted read
	readSizes []int
	written   [][]byte

	handshakeErr  error
	writeErr      error
	shutdownErr   error
	shutdownPanic bool
	onShutdown    func()

	shutdowns int
	closes    int
	events    *eventLog
}

func (s *fakeSession) Handshake(context.Context) error { return s.handshakeErr }

func (s *fakeSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readSizes = append(s.readSizes, len(p))
	if len(s.reads) > 0 {
		n := copy(p, s.reads[0])
		if n < len(s.reads[0]) {
			s.reads[0] = s.reads[0][n:]
		} else {
			s.reads = s.reads[1:]
		}
		if len(s.reads) == 0 && s.lastErr != nil {
			err := s.lastErr
			s.lastErr = nil
			return n, err
		}
		return n, nil
	}
	if s.readErr != nil {
		return 0, s.readErr
	}
	return 0, io.EOF
}

func (s *fakeSession) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, append([]byte(nil), p...))
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return len(p), nil
}

func (s *fakeSession) Shutdown() error {
	s.mu.Lock()
	s.shutdowns++
	s.mu.Unlock()

	s.events.add("shutdown")
	if s.onShutdown != nil {
		s.onShutdown()
	}
	if s.shutdownPanic {
		panic("shutdown exploded")
	}
	return s.shutdownErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.events.add("session.close")
	return nil
}

// fakeConn is a raw connection that only counts closes.
type fakeConn struct {
	net.Conn
	closes   atomic.Int32
	closeErr error
	deadline time.Time
	events   *eventLog
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.events.add("raw.close")
	return c.closeErr
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 443}
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error {
	c.deadline = t
	return nil
}

// fakeContext binds every raw connection to the same fake session.
type fakeContext struct {
	sess       *fakeSession
	bindErr    error
	binds      int
	serverName string
}

func (c *fakeContext) Bind(_ net.Conn, serverName string) (Session, error) {
	c.binds++
	c.serverName = serverName
	if c.bindErr != nil {
		return nil, c.bindErr
	}
	return c.sess, nil
}

// fakeDialer hands out conn, failing with errs[i] on attempt i first.
type fakeDialer struct {
	conn    *fakeConn
	errs    []error
	dials   int
	targets []string
}

func (d *fakeDialer) Dial(_ context.Context, network, address string) (net.Conn, error) {
	d.dials++
	d.targets = append(d.targets, network+"/"+address)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return d.conn, nil
}

func (d *fakeDialer) Close() error { return nil }

type fakeResolver struct {
	addrs []Addr
	err   error
	calls int
}

func (r *fakeResolver) Resolve(context.Context, string, uint16) ([]Addr, error) {
	r.calls++
	return r.addrs, r.err
}

// fixture wires the fakes into a Connector.
type fixture struct {
	events   *eventLog
	sess     *fakeSession
	raw      *fakeConn
	ctx      *fakeContext
	dialer   *fakeDialer
	resolver *fakeResolver
	conn     *Connector
}

func newFixture() *fixture {
	events := &eventLog{}
	sess := &fakeSession{events: events}
	raw := &fakeConn{events: events}
	f := &fixture{
		events:   events,
		sess:     sess,
		raw:      raw,
		ctx:      &fakeContext{sess: sess},
		dialer:   &fakeDialer{conn: raw},
		resolver: &fakeResolver{addrs: []Addr{{Network: "tcp4", Address: "192.0.2.1:443"}}},
	}
	f.conn = &Connector{Resolver: f.resolver, Dialer: f.dialer}
	return f
}
