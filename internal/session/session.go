// Package session represents a single TLS connection lifecycle, binding
// the decrypted streams with local I/O endpoints and shared context.
//
// Sessions decouple capabilities from concrete I/O sources: a
// capability doesn't need to know whether it's reading from os.Stdin
// or a test buffer, it just uses the session's Reader/Writer.
package session

import (
	"io"

	"tlsnc/stream"
	"tlsnc/tlsstream"
	"tlsnc/util"
)

// Session encapsulates the runtime context for a single connection.
// In and Out carry plaintext; TLS is the secure session they wrap.
// Teardown of TLS belongs to whoever opened it, not to capabilities.
type Session struct {
	In     *stream.InputStream
	Out    *stream.OutputStream
	TLS    tlsstream.Session
	Stdin  io.Reader
	Stdout io.Writer
	Logger *util.Logger
}

// New creates a Session over an established connection and I/O pair.
func New(in *stream.InputStream, out *stream.OutputStream, tls tlsstream.Session, stdin io.Reader, stdout io.Writer, logger *util.Logger) *Session {
	return &Session{
		In:     in,
		Out:    out,
		TLS:    tls,
		Stdin:  stdin,
		Stdout: stdout,
		Logger: logger,
	}
}
