package util

import (
	"context"
	"errors"
	"io"
	"net"
)

// Duplex is the network side of a relay: a readable half, a writable
// half whose Close signals end-of-data, and optional hooks.
type Duplex struct {
	In  io.Reader
	Out io.WriteCloser

	// HalfClose runs after Out is closed once the local reader hits
	// EOF.  It tells the remote that nothing more will be sent.
	HalfClose func() error

	// Abort unblocks a pending read on In when the context is
	// cancelled before the remote finished sending.
	Abort func() error
}

// BidirectionalCopy shuffles data between a network duplex and an
// arbitrary reader/writer pair (typically stdin/stdout) until the
// remote side reaches EOF, a copy fails, or the context is cancelled.
//
// Local EOF does not end the relay: the write side is closed and
// half-closed, and the remaining remote data is still drained.
//
// When the remote side finishes first, or ctx is cancelled, the call
// returns without waiting for the goroutine copying r to d.Out.  That
// goroutine stays blocked in r.Read until r yields data, EOF or an
// error; callers that outlive the relay should close r to release it.
func BidirectionalCopy(ctx context.Context, d Duplex, r io.Reader, w io.Writer) error {
	recvCh := make(chan error, 1)
	sendCh := make(chan error, 1)

	// network → writer
	go func() {
		_, err := io.Copy(w, d.In)
		recvCh <- err
	}()

	// reader → network
	go func() {
		_, err := io.Copy(d.Out, r)
		if cerr := d.Out.Close(); err == nil {
			err = cerr
		}
		if err == nil && d.HalfClose != nil {
			err = d.HalfClose()
		}
		sendCh <- err
	}()

	for {
		select {
		case err := <-recvCh:
			if isHarmless(err) {
				return nil
			}
			return err

		case err := <-sendCh:
			sendCh = nil
			if err != nil && !isHarmless(err) {
				abort(d)
				<-recvCh
				return err
			}

		case <-ctx.Done():
			abort(d)
			<-recvCh
			return nil
		}
	}
}

func abort(d Duplex) {
	if d.Abort != nil {
		d.Abort() //nolint:errcheck
	}
}

// isHarmless returns true for errors that are expected during shutdown.
func isHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
