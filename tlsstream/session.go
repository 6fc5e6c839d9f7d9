package tlsstream

import (
	"context"
	"crypto/tls"
	"net"
)

// Session is a secure session bound to one raw connection.
type Session interface {
	// Handshake completes the secure handshake.  The session is not
	// usable for Read/Write until it returns nil.
	Handshake(ctx context.Context) error

	Read(p []byte) (int, error)
	Write(p []byte) (int, error)

	// Shutdown sends the unidirectional close signal; the raw
	// connection stays open and readable.
	Shutdown() error

	// Close tears the session down together with its raw connection.
	Close() error
}

// Context binds new sessions to raw connections.  It is read-only from
// this package's point of view and may be shared by many connections.
type Context interface {
	Bind(conn net.Conn, serverName string) (Session, error)
}

// TLSContext is a Context backed by crypto/tls.
type TLSContext struct {
	config *tls.Config
	server bool
}

var _ Context = (*TLSContext)(nil)

// NewClientContext returns a Context that performs client handshakes.
// A nil config means system roots and TLS 1.2 or newer.
func NewClientContext(cfg *tls.Config) *TLSContext {
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &TLSContext{config: cfg}
}

// NewServerContext returns a Context that performs server handshakes.
// cfg must carry at least one certificate.
func NewServerContext(cfg *tls.Config) *TLSContext {
	return &TLSContext{config: cfg, server: true}
}

// Bind wraps conn in a TLS session.  For client contexts serverName
// is used for SNI and verification unless the config already pins a
// ServerName.
func (c *TLSContext) Bind(conn net.Conn, serverName string) (Session, error) {
	if c.server {
		return &TLSSession{conn: tls.Server(conn, c.config)}, nil
	}

	cfg := c.config
	if cfg.ServerName == "" && serverName != "" {
		cfg = cfg.Clone()
		cfg.ServerName = serverName
	}
	return &TLSSession{conn: tls.Client(conn, cfg)}, nil
}

// TLSSession adapts *tls.Conn to Session.
type TLSSession struct {
	conn *tls.Conn
}

var _ Session = (*TLSSession)(nil)

func (s *TLSSession) Handshake(ctx context.Context) error { return s.conn.HandshakeContext(ctx) }
func (s *TLSSession) Read(p []byte) (int, error)          { return s.conn.Read(p) }
func (s *TLSSession) Write(p []byte) (int, error)         { return s.conn.Write(p) }

// Shutdown sends close_notify without closing the TCP connection.
func (s *TLSSession) Shutdown() error { return s.conn.CloseWrite() }

func (s *TLSSession) Close() error { return s.conn.Close() }

// ConnectionState returns the negotiated TLS parameters.
func (s *TLSSession) ConnectionState() tls.ConnectionState { return s.conn.ConnectionState() }

// RemoteAddr returns the peer address of the raw connection.
func (s *TLSSession) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }
