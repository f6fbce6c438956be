// Package runner executes external commands with captured output,
// per-command timeouts, and output size limits.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults applied when the corresponding Runner field is zero.
const (
	DefaultMaxOutput = 1 << 20 // 1 MB per stream
	DefaultWaitDelay = 2 * time.Second
)

// ErrEmptyCommand is reported in Result.StartErr for a Spec without a name.
var ErrEmptyCommand = errors.New("empty command name")

// Runner executes commands and reports every outcome as a Result.
// The zero value is ready to use.
type Runner struct {
	MaxOutput int // bytes per stream

	// WaitDelay bounds how long Run keeps draining output after the
	// process is killed. Pipes held open by orphaned children are
	// abandoned once it elapses.
	WaitDelay time.Duration
}

// Run starts spec.Name and blocks until it exits, spec.Timeout elapses
// or ctx is done. Stdout and stderr are drained while the process runs,
// so a chatty process never blocks on a full pipe.
func (r *Runner) Run(ctx context.Context, spec Spec) *Result {
	res := &Result{ID: uuid.New().String(), ExitCode: -1}
	if spec.Name == "" {
		res.StartErr = ErrEmptyCommand
		return res
	}

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	stdout := &limitWriter{limit: r.maxOutput()}
	stderr := &limitWriter{limit: r.maxOutput()}

	cmd := exec.CommandContext(runCtx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = r.waitDelay()

	started := time.Now()
	if err := cmd.Start(); err != nil {
		res.StartErr = err
		return res
	}
	res.Pid = cmd.Process.Pid

	waitErr := cmd.Wait()
	res.Duration = time.Since(started)
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	res.Truncated = stdout.Truncated() || stderr.Truncated()

	if waitErr == nil {
		res.ExitCode = 0
		return res
	}

	switch {
	case ctx.Err() != nil:
		res.Canceled = true
		return res
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		return res
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case errors.Is(waitErr, exec.ErrWaitDelay):
		// Exited on its own, but a child kept the output pipes open.
		res.ExitCode = cmd.ProcessState.ExitCode()
	default:
		res.WaitErr = waitErr
	}
	return res
}

func (r *Runner) maxOutput() int {
	if r.MaxOutput > 0 {
		return r.MaxOutput
	}
	return DefaultMaxOutput
}

func (r *Runner) waitDelay() time.Duration {
	if r.WaitDelay > 0 {
		return r.WaitDelay
	}
	return DefaultWaitDelay
}

// limitWriter keeps up to limit bytes and silently discards the rest.
// It is written by the exec copy goroutine and read after Wait returns.
type limitWriter struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	remaining := w.limit - w.buf.Len()
	if len(p) > remaining {
		w.truncated = true
		if remaining > 0 {
			w.buf.Write(p[:remaining])
		}
		// Report all bytes as consumed so the copy loop keeps draining.
		return len(p), nil
	}
	return w.buf.Write(p)
}

func (w *limitWriter) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return bytes.Clone(w.buf.Bytes())
}

func (w *limitWriter) Truncated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncated
}
