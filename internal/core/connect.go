package core

import (
	"context"
	"fmt"
	"io"
	"os"

	"tlsnc/internal/capability"
	"tlsnc/internal/session"
	"tlsnc/stream"
	"tlsnc/tlsstream"
	"tlsnc/util"
)

// ConnectMode opens a TLS connection and runs a capability on it: the
// default client mode.
type ConnectMode struct {
	Connector  *tlsstream.Connector
	Context    tlsstream.Context
	Host       string
	Port       uint16
	Capability capability.Capability
	Logger     *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run establishes the connection, creates a session, and hands it to
// the capability.  The connection is torn down when the capability
// returns; the dialer is closed when Run returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	if d := m.Connector.Dialer; d != nil {
		defer d.Close()
	}

	address := util.FormatAddr(m.Host, int(m.Port))
	m.Logger.Verbose("connecting to %s", address)

	_, err := tlsstream.WithConnection(ctx, m.Connector, m.Context, m.Host, m.Port,
		func(ctx context.Context, in *stream.InputStream, out *stream.OutputStream, tls tlsstream.Session) (struct{}, error) {
			logHandshake(m.Logger, tls)
			sess := session.New(in, out, tls, m.stdin(), m.stdout(), m.Logger)
			return struct{}{}, m.Capability.Handle(ctx, sess)
		})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", address, err)
	}
	return nil
}

// logHandshake reports the negotiated parameters at verbose level.
func logHandshake(logger *util.Logger, sess tlsstream.Session) {
	ts, ok := sess.(*tlsstream.TLSSession)
	if !ok {
		return
	}
	logger.Verbose("%s: %s", ts.RemoteAddr(), capability.Describe(ts.ConnectionState()))
}
