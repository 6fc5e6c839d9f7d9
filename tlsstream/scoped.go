package tlsstream

import (
	"context"
	"net"
	"time"

	"tlsnc/stream"
)

// Action is the caller's work inside a scoped connection.
type Action[T any] func(ctx context.Context, in *stream.InputStream, out *stream.OutputStream, sess Session) (T, error)

// WithConnection establishes a connection like Connect, runs action,
// and then always tears the connection down, in order:
//
//  1. end-of-data on the writable stream
//  2. session Shutdown (close_notify)
//  3. close of the raw connection
//
// Each step is attempted even if an earlier one failed, and every
// teardown error is discarded: the result is exactly what action
// returned.  A panic in action still runs teardown before it
// propagates.  A nil c uses a zero Connector.
func WithConnection[T any](ctx context.Context, c *Connector, sc Context, host string, port uint16, action Action[T]) (T, error) {
	if c == nil {
		c = &Connector{}
	}
	cn, err := c.establish(ctx, sc, host, port)
	if err != nil {
		var zero T
		return zero, err
	}
	return run(ctx, c, cn, action)
}

// WithAccepted is the server-side WithConnection: it handshakes on an
// accepted raw connection, runs action, and tears down the same way.
func WithAccepted[T any](ctx context.Context, c *Connector, sc Context, raw net.Conn, action Action[T]) (T, error) {
	if c == nil {
		c = &Connector{}
	}
	cn, err := c.secure(ctx, sc, raw, "")
	if err != nil {
		var zero T
		return zero, err
	}
	return run(ctx, c, cn, action)
}

func run[T any](ctx context.Context, c *Connector, cn *conn, action Action[T]) (T, error) {
	c.Metrics.SessionOpened()
	defer c.Metrics.SessionClosed()
	defer c.teardown(cn)

	return action(ctx, cn.in, cn.out, cn.sess)
}

// teardown takes no context: cancellation of the action's context must
// not cut it short.
func (c *Connector) teardown(cn *conn) {
	bestEffort(cn.out.Close)
	bestEffort(func() error {
		if c.ShutdownTimeout > 0 {
			cn.raw.SetWriteDeadline(time.Now().Add(c.ShutdownTimeout)) //nolint:errcheck
		}
		return cn.sess.Shutdown()
	})
	bestEffort(cn.raw.Close)
}

// bestEffort runs step and drops its error or panic.
func bestEffort(step func() error) {
	defer func() { _ = recover() }()
	_ = step()
}
