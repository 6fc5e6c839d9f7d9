package capability

import (
	"context"

	"tlsnc/internal/session"
	"tlsnc/util"
)

// Relay copies data bidirectionally between the connection and the
// session's stdin/stdout: the default interactive / pipe mode.
type Relay struct{}

// Handle shuttles plaintext between the TLS streams and the local I/O
// endpoints until the peer finishes sending or the context is
// cancelled.  Local EOF ends the writable stream and sends
// close_notify, but the peer's remaining data is still relayed.
func (r *Relay) Handle(ctx context.Context, sess *session.Session) error {
	return util.BidirectionalCopy(ctx, util.Duplex{
		In:        sess.In,
		Out:       sess.Out,
		HalfClose: sess.TLS.Shutdown,
		Abort:     sess.TLS.Close,
	}, sess.Stdin, sess.Stdout)
}
