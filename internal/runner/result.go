package runner

import (
	"time"

	"github.com/kballard/go-shellquote"
)

// Spec describes a single command invocation. A Spec is built fresh for
// every step and not modified after it is handed to Run.
type Spec struct {
	Name    string        // executable, resolved via PATH
	Args    []string      // arguments, passed without shell interpretation
	Dir     string        // working directory; empty inherits the process cwd
	Timeout time.Duration // zero means no deadline beyond the caller's context
}

// String renders the command line with shell quoting, for logs and records.
func (s Spec) String() string {
	return shellquote.Join(append([]string{s.Name}, s.Args...)...)
}

// Result holds the outcome of a command execution. Every call to Run
// produces exactly one Result, including when the process never started.
type Result struct {
	ID        string        // unique identifier for this invocation
	Pid       int           // process id; zero if the process never started
	ExitCode  int           // process exit code; -1 if not started, killed or timed out
	Stdout    []byte        // captured stdout (may be truncated)
	Stderr    []byte        // captured stderr (may be truncated)
	Truncated bool          // true if either stream exceeded the size cap
	TimedOut  bool          // the Spec.Timeout elapsed and the process was killed
	Canceled  bool          // the caller's context ended before the process exited
	StartErr  error         // non-nil when the process could not be started
	WaitErr   error         // unexpected error while waiting for the process
	Duration  time.Duration // wall time from start to exit
}

// Started reports whether the process was launched at all.
func (r *Result) Started() bool {
	return r.StartErr == nil
}

// Succeeded reports whether the process ran to completion with exit code 0.
func (r *Result) Succeeded() bool {
	return r.Started() && !r.TimedOut && !r.Canceled && r.WaitErr == nil && r.ExitCode == 0
}
