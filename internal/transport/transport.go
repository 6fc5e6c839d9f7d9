// Package transport provides abstractions for raw connection
// establishment.  Transports handle how bytes reach the peer (direct
// TCP or forwarded through an SSH jump host) independent of the TLS
// session layered on top by tlsstream.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound raw connections.  Implementations include a
// plain TCP dialer and an SSH-tunnelled dialer that routes traffic
// through an encrypted gateway.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	// On error no connection is left open.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}

// Listener opens inbound listeners: locally, or on an SSH jump host
// that forwards accepted connections back through its tunnel.
type Listener interface {
	// Listen binds address and returns a listener for raw connections.
	Listen(ctx context.Context, address string) (net.Listener, error)

	// Close releases any long-lived resources held by the listener
	// factory.  Listeners already returned are closed separately.
	Close() error
}
