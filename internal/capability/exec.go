package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"time"

	"tlsnc/internal/session"
)

// stdinGrace is how long Exec waits for the peer-to-child copy after
// the child has exited, and for the child's output pipes to drain.
const stdinGrace = 500 * time.Millisecond

// Exec wires a TLS connection to a child process's stdio.
// Either Program (-e) or Command (-c) must be set.
type Exec struct {
	Program string // -e: execute a program directly
	Command string // -c: execute via the system shell
}

// Handle starts the child process with its stdin fed from the readable
// stream and its stdout/stderr written to the writable stream.  If the
// peer is still idle shortly after the child exits, the TLS session is
// closed so Handle can return.
func (e *Exec) Handle(ctx context.Context, sess *session.Session) error {
	var cmd *exec.Cmd

	switch {
	case e.Command != "":
		if runtime.GOOS == "windows" {
			cmd = exec.CommandContext(ctx, "cmd.exe", "/C", e.Command)
		} else {
			cmd = exec.CommandContext(ctx, "/bin/sh", "-c", e.Command)
		}
	case e.Program != "":
		cmd = exec.CommandContext(ctx, e.Program)
	default:
		return fmt.Errorf("no command specified for exec mode")
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("exec %q: %w", cmd.Path, err)
	}
	cmd.Stdout = sess.Out
	cmd.Stderr = sess.Out
	cmd.WaitDelay = stdinGrace

	sess.Logger.Debug("exec: %s", cmd.String())

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec %q: %w", cmd.Path, err)
	}

	fed := make(chan struct{})
	go func() {
		defer close(fed)
		io.Copy(stdin, sess.In) //nolint:errcheck
		stdin.Close()
	}()

	err = cmd.Wait()

	select {
	case <-fed:
	case <-time.After(stdinGrace):
		// The peer is idle and the child is gone; closing the session
		// fails the pending read so the copy goroutine can exit.
		sess.Logger.Debug("exec: child exited, closing idle session")
		sess.TLS.Close() //nolint:errcheck
	}

	if errors.Is(err, exec.ErrWaitDelay) {
		// The child exited but something still held its output open.
		err = nil
	}
	if err != nil {
		return fmt.Errorf("exec %q: %w", cmd.Path, err)
	}
	return nil
}
