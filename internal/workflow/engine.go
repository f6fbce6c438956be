// Package workflow runs the driver scaffolding pipelines: each operation
// is a fixed sequence of external commands where a step only starts after
// its predecessor succeeded. It is consumed by both the MCP server and
// the CLI commands.
package workflow

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/deixis/driverkit/internal/config"
	"github.com/deixis/driverkit/internal/runner"
	"github.com/deixis/driverkit/internal/tracing"
	"github.com/google/uuid"
)

// CommandRunner executes one external command.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, spec runner.Spec) *runner.Result
}

// Engine holds shared dependencies for all workflow operations.
//
// Operations change the process working directory while a template is
// being instantiated, so an Engine runs one operation at a time and no
// other code in the process should depend on the working directory
// while one is in flight.
type Engine struct {
	Config  *config.Config
	Runner  CommandRunner
	BaseDir string      // solution root; empty means the process cwd at call time
	Log     *log.Logger // nil logs to the standard logger

	// Getenv reads the base-path environment value. Nil uses os.Getenv.
	Getenv func(string) string
	// LocateScript finds the repository script. Nil derives it from Config.
	LocateScript ScriptLocator

	mu sync.Mutex
}

// SetBaseDir points the engine at another directory and configuration.
// It waits for any running operation to finish.
func (e *Engine) SetBaseDir(dir string, cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.BaseDir = dir
	if cfg != nil {
		e.Config = cfg
	}
}

func (e *Engine) cfg() *config.Config {
	if e.Config == nil {
		return &config.Config{}
	}
	return e.Config
}

func (e *Engine) logf(format string, args ...any) {
	l := e.Log
	if l == nil {
		l = log.Default()
	}
	l.Printf(format, args...)
}

func (e *Engine) getenv(key string) string {
	if e.Getenv != nil {
		return e.Getenv(key)
	}
	return os.Getenv(key)
}

func (e *Engine) baseDir() (string, error) {
	if e.BaseDir != "" {
		return e.BaseDir, nil
	}
	return os.Getwd()
}

func newRunID() string {
	return uuid.New().String()
}

// step is one external command together with the rule that decides
// whether it succeeded.
type step struct {
	name string
	spec runner.Spec
	// doing describes the step for diagnostics, e.g. "creating solution 'X'".
	doing string
	// check replaces the default exit-code rule once the process has run
	// to completion. Nil means exit code 0 passes.
	check func(res *runner.Result) *Error
}

// execute runs st exactly once and evaluates its result.
func (e *Engine) execute(ctx context.Context, st step) StepResult {
	cmdline := st.spec.String()
	ctx, span := tracing.Start(ctx, "step "+st.name, map[string]string{"command": cmdline})

	e.logf("[LOG] Running: %s", cmdline)
	res := e.Runner.Run(ctx, st.spec)
	sr := evaluate(st, res)
	e.logResult(st, res, sr)

	span.SetInt("exit_code", res.ExitCode)
	if sr.Failure != nil {
		span.End(sr.Failure)
	} else {
		span.End(nil)
	}
	return sr
}

// evaluate turns a runner result into a StepResult. It has no side
// effects, so equal inputs always give equal outcomes.
func evaluate(st step, res *runner.Result) StepResult {
	sr := StepResult{
		Name:      st.name,
		Status:    StatusPass,
		Command:   st.spec.String(),
		CommandID: res.ID,
		ExitCode:  res.ExitCode,
		TimedOut:  res.TimedOut,
		Duration:  res.Duration,
		Stdout:    string(res.Stdout),
		Stderr:    string(res.Stderr),
	}
	if f := classify(st, res); f != nil {
		f.Step = st.name
		sr.Status = StatusFail
		sr.Failure = f
	}
	return sr
}

func classify(st step, res *runner.Result) *Error {
	tool := st.spec.Name
	switch {
	case !res.Started():
		return &Error{
			Reason:  ProcessStartFailed,
			Message: fmt.Sprintf("Failed to start %s while %s. Ensure %s is installed and accessible.", tool, st.doing, tool),
			Detail:  res.StartErr.Error(),
		}
	case res.TimedOut:
		return &Error{
			Reason:  Timeout,
			Message: fmt.Sprintf("Timed out after %s while %s. The process was terminated.", st.spec.Timeout, st.doing),
			Detail:  string(res.Stderr),
		}
	case res.Canceled:
		return &Error{
			Reason:  Canceled,
			Message: fmt.Sprintf("Canceled while %s. The process was terminated.", st.doing),
		}
	case res.WaitErr != nil:
		return &Error{
			Reason:  CommandFailed,
			Message: fmt.Sprintf("Lost track of %s while %s.", tool, st.doing),
			Detail:  res.WaitErr.Error(),
		}
	}
	if st.check != nil {
		return st.check(res)
	}
	if res.ExitCode != 0 {
		return &Error{
			Reason:  CommandFailed,
			Message: fmt.Sprintf("Error %s. %s returned exit code %d.", st.doing, tool, res.ExitCode),
			Detail:  string(res.Stderr),
		}
	}
	return nil
}

func (e *Engine) logResult(st step, res *runner.Result, sr StepResult) {
	cmdline := st.spec.String()
	switch {
	case !res.Started():
		e.logf("[ERROR] %s could not be started: %v", cmdline, res.StartErr)
	case res.TimedOut:
		e.logf("[ERROR] %s timed out after %s.", cmdline, st.spec.Timeout)
	default:
		e.logf("[LOG] %s exited with code %d after %s.", cmdline, res.ExitCode, res.Duration.Round(time.Millisecond))
	}
	if len(res.Stdout) > 0 {
		e.logf("[LOG] %s output:\n%s", cmdline, res.Stdout)
	}
	if strings.TrimSpace(string(res.Stderr)) != "" {
		e.logf("[LOG] %s error:\n%s", cmdline, res.Stderr)
	}
	if res.Truncated {
		e.logf("[LOG] %s output was truncated.", cmdline)
	}
	if sr.Failure != nil {
		e.logf("[ERROR] %s", sr.Failure.Message)
	}
}

// finish seals the outcome and logs the final line.
func (e *Engine) finish(o *Outcome) *Outcome {
	o.seal()
	if o.OK() {
		e.logf("[LOG] SUCCESS: run %s", o.RunResult.ID)
	} else {
		e.logf("[ERROR] run %s failed: %v", o.RunResult.ID, o.Failure)
	}
	return o
}
