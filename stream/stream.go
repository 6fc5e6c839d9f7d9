// Package stream provides minimal chunked byte streams built from a
// pull function (input) or a push function (output).
//
// A nil chunk is the end-of-data marker at the function boundary.  An
// InputStream reports it as io.EOF and keeps reporting it without
// calling the pull function again.  An OutputStream forwards it once,
// when Close is called.
//
// Streams are single-consumer and not safe for concurrent use, except
// that OutputStream.Close may be called while a Write is in flight.
package stream

import (
	"errors"
	"io"
	"sync/atomic"
)

// ErrClosed is returned by OutputStream.Write after Close.
var ErrClosed = errors.New("stream: write after end of data")

// PullFunc produces the next chunk.  A nil or empty chunk with a nil
// error means the source is exhausted.
type PullFunc func() ([]byte, error)

// PushFunc consumes one chunk.  A nil chunk signals end of data.
type PushFunc func(chunk []byte) error

// InputStream is a readable stream of chunks.
type InputStream struct {
	pull    PullFunc
	eof     bool
	pending []byte
}

// MakeInputStream wraps pull as an InputStream.
func MakeInputStream(pull PullFunc) *InputStream {
	return &InputStream{pull: pull}
}

// Next returns the next chunk exactly as produced by the pull function.
// It returns io.EOF once the source is exhausted, and on every call
// after that.
func (s *InputStream) Next() ([]byte, error) {
	if len(s.pending) > 0 {
		chunk := s.pending
		s.pending = nil
		return chunk, nil
	}
	if s.eof {
		return nil, io.EOF
	}
	chunk, err := s.pull()
	if err != nil {
		return nil, err
	}
	if len(chunk) == 0 {
		s.eof = true
		return nil, io.EOF
	}
	return chunk, nil
}

// Read implements io.Reader.  Bytes of a chunk that do not fit in p are
// kept for the next call.
func (s *InputStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	chunk, err := s.Next()
	if err != nil {
		return 0, err
	}
	n := copy(p, chunk)
	if n < len(chunk) {
		s.pending = chunk[n:]
	}
	return n, nil
}

// WriteTo implements io.WriterTo, writing each chunk with one call.
func (s *InputStream) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
		if n < len(chunk) {
			return total, io.ErrShortWrite
		}
	}
}

// AtEOF reports whether the end-of-data marker has been observed.
func (s *InputStream) AtEOF() bool { return s.eof && len(s.pending) == 0 }

// OutputStream is a writable stream of chunks.  Close may race with a
// Write in progress; Write is otherwise single-owner.
type OutputStream struct {
	push   PushFunc
	closed atomic.Bool
}

// MakeOutputStream wraps push as an OutputStream.
func MakeOutputStream(push PushFunc) *OutputStream {
	return &OutputStream{push: push}
}

// Write pushes p as a single chunk.  Empty writes are dropped so that
// they are never mistaken for end of data.
func (s *OutputStream) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := s.push(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close pushes the end-of-data marker.  Only the first call reaches the
// push function.
func (s *OutputStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.push(nil)
}
