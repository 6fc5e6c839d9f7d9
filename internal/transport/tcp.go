package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// TCPDialer establishes plain TCP connections, optionally binding to a
// specific source port.
type TCPDialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration // 0 = Go default, negative disables
	LocalPort int           // optional source-port binding (0 = ephemeral)
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}

	if d.LocalPort > 0 {
		local := net.JoinHostPort("", strconv.Itoa(d.LocalPort))
		a, err := net.ResolveTCPAddr(network, local)
		if err != nil {
			return nil, fmt.Errorf("resolve local addr: %w", err)
		}
		dialer.LocalAddr = a
	}

	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }

// TCPListener binds plain TCP listeners on this host.
type TCPListener struct {
	KeepAlive time.Duration
}

// Listen binds address over TCP.
func (l *TCPListener) Listen(ctx context.Context, address string) (net.Listener, error) {
	lc := net.ListenConfig{KeepAlive: l.KeepAlive}
	return lc.Listen(ctx, "tcp", address)
}

// Close is a no-op for local listeners.
func (l *TCPListener) Close() error { return nil }
