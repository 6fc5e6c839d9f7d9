// Package capability defines what happens over an established TLS
// connection.  Each Capability encapsulates a single behaviour (relay
// I/O, execute a program, probe the handshake) and operates on a
// Session rather than the TLS session directly, which keeps
// capabilities testable and decoupled from transport details.
package capability

import (
	"context"

	"tlsnc/internal/session"
)

// Capability handles a single connection according to a specific
// behaviour.
type Capability interface {
	// Handle runs the capability against the given session.
	// It blocks until the connection is done or the context is
	// cancelled.  It must not tear the connection down.
	Handle(ctx context.Context, sess *session.Session) error
}
