package core

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"tlsnc/internal/capability"
	"tlsnc/internal/session"
	"tlsnc/internal/transport"
	"tlsnc/stream"
	"tlsnc/tlsstream"
	"tlsnc/util"
)

// ListenMode accepts inbound connections, completes a TLS server
// handshake, and runs a capability on each one.  With KeepOpen=true it
// spawns a goroutine per connection; otherwise it handles one
// connection and returns.
type ListenMode struct {
	Address    string // "[host]:port"
	Listener   transport.Listener // nil = local TCP
	KeepOpen   bool
	Timeout    time.Duration // per-connection handshake budget
	Connector  *tlsstream.Connector
	Context    tlsstream.Context
	Capability capability.Capability
	Logger     *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ListenMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ListenMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

func (m *ListenMode) listener() transport.Listener {
	if m.Listener != nil {
		return m.Listener
	}
	return &transport.TCPListener{}
}

// Run starts listening and dispatches accepted connections to the
// capability.
func (m *ListenMode) Run(ctx context.Context) error {
	lf := m.listener()
	defer lf.Close()

	ln, err := lf.Listen(ctx, m.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.Address, err)
	}
	defer ln.Close()

	m.Logger.Verbose("listening on %s (tls)", ln.Addr())

	// Accepted connections are tagged with a sortable id so that
	// interleaved keep-open logs can be told apart.
	ids, err := snowflake.NewNode(1)
	if err != nil {
		return fmt.Errorf("connection ids: %w", err)
	}

	// Shut the listener down when the context expires.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		log := m.Logger.With("conn", ids.Generate().String())
		log.Verbose("connection from %s", raw.RemoteAddr())

		if !m.KeepOpen {
			return m.serveConn(ctx, raw, log)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.serveConn(ctx, raw, log); err != nil {
				log.Warn("%s: %v", raw.RemoteAddr(), err)
			}
		}()
	}
}

// serveConn runs one scoped server connection.
func (m *ListenMode) serveConn(ctx context.Context, raw net.Conn, log *util.Logger) error {
	hctx := ctx
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	_, err := tlsstream.WithAccepted(hctx, m.Connector, m.Context, raw,
		func(_ context.Context, in *stream.InputStream, out *stream.OutputStream, tls tlsstream.Session) (struct{}, error) {
			logHandshake(log, tls)
			sess := session.New(in, out, tls, m.stdin(), m.stdout(), log)
			return struct{}{}, m.Capability.Handle(ctx, sess)
		})
	return err
}
