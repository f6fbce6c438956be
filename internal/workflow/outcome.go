package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/deixis/driverkit/internal/report"
)

// Status is the state of a single step.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"
)

// State is a position in the scaffold pipeline. Done and Failed are
// terminal; Failed is reachable from every other state.
type State int

const (
	CheckingPrerequisite State = iota
	CreatingSolution
	InstantiatingTemplate
	RegisteringProject
	Done
	Failed
)

var stateNames = [...]string{
	CheckingPrerequisite:  "CheckingPrerequisite",
	CreatingSolution:      "CreatingSolution",
	InstantiatingTemplate: "InstantiatingTemplate",
	RegisteringProject:    "RegisteringProject",
	Done:                  "Done",
	Failed:                "Failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further steps run from s.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// StepResult is the outcome of one step, built from exactly one
// runner.Result.
type StepResult struct {
	Name      string
	Status    Status
	Failure   *Error // set when Status is fail
	Command   string // command line as run
	CommandID string
	ExitCode  int
	TimedOut  bool
	Duration  time.Duration
	Stdout    string
	Stderr    string
}

// Outcome is the result of a whole operation.
type Outcome struct {
	RunResult *report.RunResult
	State     State
	Steps     []StepResult
	FailedIdx int    // index of the failed step; -1 if none ran or none failed
	Failure   *Error // nil on success
	Message   string // success text, without the SUCCESS: prefix
}

// OK reports whether every step passed.
func (o *Outcome) OK() bool {
	return o.Failure == nil
}

// Err returns the failure as an error, or nil on success.
func (o *Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}

// String renders the outcome for an agent. The text always starts with
// "SUCCESS:" or "FAILURE:".
func (o *Outcome) String() string {
	if o.Failure == nil {
		return "SUCCESS: " + o.Message
	}
	var b strings.Builder
	fmt.Fprintf(&b, "FAILURE: %s: %s", o.Failure.Reason, o.Failure.Message)
	if d := strings.TrimSpace(o.Failure.Detail); d != "" {
		fmt.Fprintf(&b, " Error: %s", d)
	}
	return b.String()
}

func newOutcome(kind report.Kind, steps []string, inputs map[string]string) *Outcome {
	o := &Outcome{
		RunResult: &report.RunResult{
			ID:      newRunID(),
			Kind:    kind,
			Inputs:  inputs,
			Started: time.Now(),
		},
		Steps:     make([]StepResult, len(steps)),
		FailedIdx: -1,
	}
	for i, name := range steps {
		o.Steps[i] = StepResult{Name: name, Status: StatusSkipped}
	}
	return o
}

// record stores the result of step i and reports whether the pipeline
// may continue.
func (o *Outcome) record(i int, sr StepResult) bool {
	o.Steps[i] = sr
	if sr.Status != StatusFail {
		return true
	}
	o.FailedIdx = i
	o.Failure = sr.Failure
	o.State = Failed
	return false
}

// abort fails the operation before (or between) steps.
func (o *Outcome) abort(err *Error) *Outcome {
	o.Failure = err
	o.State = Failed
	return o
}

// seal copies the final state into the persisted RunResult.
func (o *Outcome) seal() {
	rr := o.RunResult
	rr.Finished = time.Now()
	rr.Success = o.OK()
	rr.Message = o.String()
	if o.Failure != nil {
		rr.Reason = string(o.Failure.Reason)
	}
	rr.Steps = make([]report.StepRecord, len(o.Steps))
	for i, s := range o.Steps {
		rec := report.StepRecord{
			Name:      s.Name,
			Status:    string(s.Status),
			Command:   s.Command,
			CommandID: s.CommandID,
			ExitCode:  s.ExitCode,
			TimedOut:  s.TimedOut,
			Duration:  s.Duration,
			Stdout:    s.Stdout,
			Stderr:    s.Stderr,
		}
		if s.Failure != nil {
			rec.Reason = string(s.Failure.Reason)
			rec.Detail = s.Failure.Message
		}
		rr.Steps[i] = rec
	}
}
