// Package tlsstream exposes an established TLS session as a pair of
// chunked byte streams and brackets connection setup and teardown.
//
// The three layers, bottom-up:
//
//	MakeStreams     session  →  (InputStream, OutputStream)
//	Connector       resolve  →  dial  →  handshake  →  streams
//	WithConnection  Connector + action + ordered best-effort teardown
//
// Connect hands ownership of the session to the caller.  WithConnection
// keeps it and always runs the teardown sequence (end-of-data on the
// writable stream, TLS close_notify, raw close) after the action,
// discarding any teardown error.
//
// Streams and sessions are single-owner: use one goroutine per
// direction at most, and never share a stream between consumers.
package tlsstream
