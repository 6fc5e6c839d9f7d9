// Package tunnel provides an SSH jump-host tunnel backed by
// golang.org/x/crypto/ssh.  tlsnc uses it to open the raw TCP
// connection from the far side of a bastion, or to listen on the
// bastion and receive connections back through it.  Either way the
// TLS session runs end to end between tlsnc and its peer.
package tunnel

import (
	"context"
	"net"
)

// Tunnel abstracts an encrypted channel through which TCP connections
// can be forwarded.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address through the tunnel.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Listen binds address on the gateway; accepted connections are
	// forwarded back through the tunnel.
	Listen(address string) (net.Listener, error)

	// Close tears down the tunnel and frees resources.
	Close() error

	// IsAlive reports whether the underlying connection is still up.
	IsAlive() bool
}
