package tlsstream

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	ncerr "tlsnc/internal/errors"
	"tlsnc/internal/metrics"
	"tlsnc/internal/retry"
	"tlsnc/internal/transport"
	"tlsnc/stream"
	"tlsnc/util"
)

// Connector establishes TLS connections.  The zero value resolves with
// the system resolver, dials plain TCP, and logs nothing.
type Connector struct {
	Resolver Resolver
	Dialer   transport.Dialer

	// Retry, when set, re-dials the first resolved candidate on
	// retryable dial errors.  Resolution and handshake are never
	// retried.
	Retry *retry.Backoff

	// ShutdownTimeout bounds the close_notify write during scoped
	// teardown (0 = no deadline).
	ShutdownTimeout time.Duration

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// conn is an established connection together with its raw socket.
type conn struct {
	in   *stream.InputStream
	out  *stream.OutputStream
	sess Session
	raw  net.Conn
}

// Connect resolves host, dials the first candidate, and completes a
// client handshake using sc.  On success the caller owns the session
// and must eventually Close it; on failure nothing is left open.
func Connect(ctx context.Context, sc Context, host string, port uint16) (*stream.InputStream, *stream.OutputStream, Session, error) {
	return (&Connector{}).Connect(ctx, sc, host, port)
}

// Connect is the package-level Connect using c's collaborators.
func (c *Connector) Connect(ctx context.Context, sc Context, host string, port uint16) (*stream.InputStream, *stream.OutputStream, Session, error) {
	cn, err := c.establish(ctx, sc, host, port)
	if err != nil {
		return nil, nil, nil, err
	}
	return cn.in, cn.out, cn.sess, nil
}

// Accept completes a server handshake on an already accepted raw
// connection.  raw is closed if the handshake fails.
func (c *Connector) Accept(ctx context.Context, sc Context, raw net.Conn) (*stream.InputStream, *stream.OutputStream, Session, error) {
	cn, err := c.secure(ctx, sc, raw, "")
	if err != nil {
		return nil, nil, nil, err
	}
	return cn.in, cn.out, cn.sess, nil
}

func (c *Connector) establish(ctx context.Context, sc Context, host string, port uint16) (*conn, error) {
	peer := util.FormatAddr(host, int(port))
	log := c.logger().With("peer", peer)

	addrs, err := c.resolver().Resolve(ctx, host, port)
	if err == nil && len(addrs) == 0 {
		err = ncerr.ErrNoAddress
	}
	if err != nil {
		c.Metrics.Failed(ncerr.OpResolve, err)
		return nil, ncerr.Wrap(ncerr.OpResolve, peer, err)
	}
	// Only the first candidate is dialed; there is no fallback.
	target := addrs[0]
	log.Debug("resolved to %s (%d candidates)", target, len(addrs))

	raw, err := c.dial(ctx, target)
	if err != nil {
		c.Metrics.Failed(ncerr.OpDial, err)
		return nil, ncerr.Wrap(ncerr.OpDial, target.Address, err)
	}
	log.Verbose("connected to %s", raw.RemoteAddr())

	cn, err := c.secure(ctx, sc, raw, host)
	if err != nil {
		return nil, err
	}
	log.Verbose("handshake complete")
	return cn, nil
}

func (c *Connector) dial(ctx context.Context, target Addr) (net.Conn, error) {
	d := c.dialer()
	if c.Retry == nil {
		return d.Dial(ctx, target.Network, target.Address)
	}

	policy := *c.Retry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.logger().Verbose("dial %s attempt %d: %v (retrying in %s)", target.Address, attempt, err, wait.Round(time.Millisecond))
		c.Metrics.DialRetried()
	}

	var raw net.Conn
	err := policy.Do(ctx, func(_ int) error {
		var err error
		raw, err = d.Dial(ctx, target.Network, target.Address)
		if err != nil && !ncerr.IsRetryable(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// secure binds a session to raw and runs the handshake.  raw is closed
// exactly once if either step fails.
func (c *Connector) secure(ctx context.Context, sc Context, raw net.Conn, serverName string) (*conn, error) {
	peer := remoteString(raw)

	sess, err := sc.Bind(raw, serverName)
	if err != nil {
		raw.Close()
		c.Metrics.Failed(ncerr.OpHandshake, err)
		return nil, ncerr.Wrap(ncerr.OpHandshake, peer, err)
	}
	start := time.Now()
	if err := sess.Handshake(ctx); err != nil {
		raw.Close()
		c.Metrics.Failed(ncerr.OpHandshake, err)
		return nil, ncerr.Wrap(ncerr.OpHandshake, peer, err)
	}
	c.Metrics.HandshakeCompleted(negotiatedVersion(sess), time.Since(start))

	in, out := makeStreams(sess, c.Metrics)
	return &conn{in: in, out: out, sess: sess, raw: raw}, nil
}

func (c *Connector) resolver() Resolver {
	if c.Resolver != nil {
		return c.Resolver
	}
	return SystemResolver{}
}

func (c *Connector) dialer() transport.Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return &transport.TCPDialer{}
}

func (c *Connector) logger() *util.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return util.Discard()
}

// negotiatedVersion names the protocol version of sess, or "" when the
// session does not expose its connection state.
func negotiatedVersion(sess Session) string {
	cs, ok := sess.(interface{ ConnectionState() tls.ConnectionState })
	if !ok {
		return ""
	}
	return tls.VersionName(cs.ConnectionState().Version)
}

func remoteString(raw net.Conn) string {
	if a := raw.RemoteAddr(); a != nil {
		return a.String()
	}
	return "unknown"
}
