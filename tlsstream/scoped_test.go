package tlsstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"tlsnc/internal/metrics"
	"tlsnc/stream"
)

func TestWithConnection_TeardownOrder(t *testing.T) {
	f := newFixture()

	var out *stream.OutputStream
	var outClosedAtShutdown bool
	f.sess.onShutdown = func() {
		_, err := out.Write([]byte("late"))
		outClosedAtShutdown = errors.Is(err, stream.ErrClosed)
	}

	got, err := WithConnection(context.Background(), f.conn, f.ctx, "example.com", 443,
		func(_ context.Context, _ *stream.InputStream, o *stream.OutputStream, _ Session) (string, error) {
			out = o
			f.events.add("action")
			return "done", nil
		})
	require.NoError(t, err)
	require.Equal(t, "done", got)
	require.True(t, outClosedAtShutdown, "writable stream must end before shutdown")

	if diff := cmp.Diff([]string{"action", "shutdown", "raw.close"}, f.events.events()); diff != "" {
		t.Errorf("teardown order (-want +got):\n%s", diff)
	}
	require.Equal(t, 1, f.sess.shutdowns)
	require.Equal(t, int32(1), f.raw.closes.Load())
}

func TestWithConnection_ActionErrorWins(t *testing.T) {
	f := newFixture()
	f.sess.shutdownErr = errors.New("shutdown failed")
	f.raw.closeErr = errors.New("close failed")
	actionErr := errors.New("action failed")

	got, err := WithConnection(context.Background(), f.conn, f.ctx, "example.com", 443,
		func(context.Context, *stream.InputStream, *stream.OutputStream, Session) (int, error) {
			return 7, actionErr
		})
	require.Same(t, actionErr, err)
	require.Equal(t, 7, got)
	require.Equal(t, 1, f.sess.shutdowns)
	require.Equal(t, int32(1), f.raw.closes.Load())
}

func TestWithConnection_TeardownErrorsSuppressed(t *testing.T) {
	f := newFixture()
	f.sess.shutdownErr = errors.New("shutdown failed")

	got, err := WithConnection(context.Background(), f.conn, f.ctx, "example.com", 443,
		func(context.Context, *stream.InputStream, *stream.OutputStream, Session) (int, error) {
			return 42, nil
		})
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, int32(1), f.raw.closes.Load())
}

func TestWithConnection_ShutdownPanicStillClosesRaw(t *testing.T) {
	f := newFixture()
	f.sess.shutdownPanic = true

	_, err := WithConnection(context.Background(), f.conn, f.ctx, "example.com", 443,
		func(context.Context, *stream.InputStream, *stream.OutputStream, Session) (struct{}, error) {
			return struct{}{}, nil
		})
	require.NoError(t, err)
	require.Equal(t, int32(1), f.raw.closes.Load())
}

func TestWithConnection_ActionPanicRunsTeardown(t *testing.T) {
	f := newFixture()

	require.PanicsWithValue(t, "action exploded", func() {
		_, _ = WithConnection(context.Background(), f.conn, f.ctx, "example.com", 443,
			func(context.Context, *stream.InputStream, *stream.OutputStream, Session) (int, error) {
				panic("action exploded")
			})
	})
	require.Equal(t, 1, f.sess.shutdowns)
	require.Equal(t, int32(1), f.raw.closes.Load())
}

func TestWithConnection_CancelledActionStillTearsDown(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := WithConnection(ctx, f.conn, f.ctx, "example.com", 443,
		func(ctx context.Context, _ *stream.InputStream, _ *stream.OutputStream, _ Session) (int, error) {
			cancel()
			<-ctx.Done()
			return 0, ctx.Err()
		})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, f.sess.shutdowns)
	require.Equal(t, int32(1), f.raw.closes.Load())
}

func TestWithConnection_EstablishFailureSkipsAction(t *testing.T) {
	f := newFixture()
	f.sess.handshakeErr = errors.New("handshake failure")
	ran := false

	_, err := WithConnection(context.Background(), f.conn, f.ctx, "example.com", 443,
		func(context.Context, *stream.InputStream, *stream.OutputStream, Session) (int, error) {
			ran = true
			return 0, nil
		})
	require.Error(t, err)
	require.False(t, ran)
	require.Zero(t, f.sess.shutdowns)
	require.Equal(t, int32(1), f.raw.closes.Load())
}

func TestWithConnection_ShutdownDeadline(t *testing.T) {
	f := newFixture()
	f.conn.ShutdownTimeout = time.Second

	before := time.Now()
	_, err := WithConnection(context.Background(), f.conn, f.ctx, "example.com", 443,
		func(context.Context, *stream.InputStream, *stream.OutputStream, Session) (int, error) {
			return 0, nil
		})
	require.NoError(t, err)
	require.True(t, f.raw.deadline.After(before))
}

func TestWithConnection_Metrics(t *testing.T) {
	f := newFixture()
	m := metrics.New()
	f.conn.Metrics = m

	_, err := WithConnection(context.Background(), f.conn, f.ctx, "example.com", 443,
		func(context.Context, *stream.InputStream, *stream.OutputStream, Session) (int, error) {
			require.Equal(t, int64(1), m.ActiveSessions())
			return 0, nil
		})
	require.NoError(t, err)
	require.Zero(t, m.ActiveSessions())
	require.Equal(t, int64(1), m.TotalSessions())
}

func TestWithAccepted_TearsDown(t *testing.T) {
	f := newFixture()

	_, err := WithAccepted(context.Background(), f.conn, f.ctx, f.raw,
		func(_ context.Context, _ *stream.InputStream, out *stream.OutputStream, _ Session) (int, error) {
			return out.Write([]byte("welcome"))
		})
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("welcome")}, f.sess.written)
	require.Equal(t, 1, f.sess.shutdowns)
	require.Equal(t, int32(1), f.raw.closes.Load())
}
