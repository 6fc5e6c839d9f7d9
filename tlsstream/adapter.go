package tlsstream

import (
	"errors"
	"io"

	"tlsnc/internal/metrics"
	"tlsnc/stream"
	"tlsnc/util"
)

// MaxChunkSize bounds every read issued against a session.
const MaxChunkSize = 32752

var readBufs = util.NewBufPool(MaxChunkSize)

// MakeStreams returns a readable and a writable stream over sess.
//
// Each pull on the readable stream performs one Read of at most
// MaxChunkSize bytes and yields exactly the bytes read; a read of zero
// bytes (or io.EOF) ends the stream for good.  An error returned
// together with data is reported on the pull after that data.  Each chunk written to
// the writable stream is passed to one Write call.  Closing the
// writable stream does not shut the session down.
func MakeStreams(sess Session) (*stream.InputStream, *stream.OutputStream) {
	return makeStreams(sess, nil)
}

func makeStreams(sess Session, m *metrics.Collector) (*stream.InputStream, *stream.OutputStream) {
	// held is an error that arrived together with data; it is reported
	// on the following pull.
	var held error
	in := stream.MakeInputStream(func() ([]byte, error) {
		if held != nil {
			err := held
			held = nil
			return endOrError(err)
		}
		chunk, err := readChunk(sess)
		m.BytesReceived(int64(len(chunk)))
		if len(chunk) > 0 {
			held = err
			return chunk, nil
		}
		return endOrError(err)
	})

	out := stream.MakeOutputStream(func(chunk []byte) error {
		if chunk == nil {
			return nil
		}
		n, err := sess.Write(chunk)
		m.BytesSent(int64(n))
		return err
	})

	return in, out
}

// readChunk performs a single bounded read and returns a copy of the
// bytes read along with the session's error, if any.
func readChunk(sess Session) ([]byte, error) {
	buf := readBufs.Get()
	defer readBufs.Put(buf)

	n, err := sess.Read(*buf)
	if n <= 0 {
		return nil, err
	}
	chunk := make([]byte, n)
	copy(chunk, (*buf)[:n])
	return chunk, err
}

// endOrError maps a read error with no data to the pull result: io.EOF
// (or none) ends the stream, anything else is a stream error.
func endOrError(err error) ([]byte, error) {
	if err == nil || errors.Is(err, io.EOF) {
		return nil, nil
	}
	return nil, err
}
