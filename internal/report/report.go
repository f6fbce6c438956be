// Package report persists the record of each pipeline run so an agent can
// inspect what was executed after the fact.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the operation a run performed.
type Kind string

const (
	// Scaffold is a CreateBaseDriver run.
	Scaffold Kind = "scaffold"
	// Repo is a CreateNewDriverRepo run.
	Repo Kind = "repo"
)

// ErrNotFound is returned by Load when no run has the given ID.
var ErrNotFound = errors.New("run not found")

// Store persists and retrieves run results.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
}

// RunResult is the persisted record of one pipeline run.
type RunResult struct {
	ID       string            `json:"id"`
	Kind     Kind              `json:"kind"`
	Inputs   map[string]string `json:"inputs,omitempty"`
	BaseDir  string            `json:"base_dir,omitempty"`
	Started  time.Time         `json:"started"`
	Finished time.Time         `json:"finished"`
	Success  bool              `json:"success"`
	Reason   string            `json:"reason,omitempty"` // failure classification
	Message  string            `json:"message"`          // final SUCCESS:/FAILURE: text
	Steps    []StepRecord      `json:"steps"`
}

// StepRecord is one step of a run as it was attempted (or skipped).
type StepRecord struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"` // pass, fail, skipped
	Reason    string        `json:"reason,omitempty"`
	Command   string        `json:"command,omitempty"`
	CommandID string        `json:"command_id,omitempty"`
	ExitCode  int           `json:"exit_code"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Stdout    string        `json:"stdout,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	Detail    string        `json:"detail,omitempty"`
}

// Expect returns an error if the run's Kind does not match want.
func (r *RunResult) Expect(want Kind) error {
	if r.Kind != want {
		return fmt.Errorf("run %s is a %s run, not a %s run", r.ID, r.Kind, want)
	}
	return nil
}

// Format renders a run for display, one block per step.
func Format(r *RunResult) string {
	var b strings.Builder

	status := "SUCCESS"
	if !r.Success {
		status = "FAILURE"
	}
	fmt.Fprintf(&b, "Run: %s (%s)\n", r.ID, r.Kind)
	fmt.Fprintf(&b, "Status: %s", status)
	if r.Reason != "" {
		fmt.Fprintf(&b, " (%s)", r.Reason)
	}
	fmt.Fprintln(&b)
	if r.BaseDir != "" {
		fmt.Fprintf(&b, "Directory: %s\n", r.BaseDir)
	}
	if !r.Started.IsZero() && !r.Finished.IsZero() {
		fmt.Fprintf(&b, "Duration: %s\n", r.Finished.Sub(r.Started).Round(time.Millisecond))
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "Steps:")
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "  %s: %s", s.Name, s.Status)
		if s.Reason != "" {
			fmt.Fprintf(&b, " (%s)", s.Reason)
		}
		fmt.Fprintln(&b)
		if s.Command != "" {
			fmt.Fprintf(&b, "    $ %s\n", s.Command)
		}
		if s.Status == "skipped" {
			continue
		}
		if s.Command != "" {
			fmt.Fprintf(&b, "    exit code %d", s.ExitCode)
			if s.TimedOut {
				fmt.Fprint(&b, ", timed out")
			}
			if s.Duration > 0 {
				fmt.Fprintf(&b, ", %s", s.Duration.Round(time.Millisecond))
			}
			fmt.Fprintln(&b)
		}
		writeIndented(&b, "stdout", s.Stdout)
		writeIndented(&b, "stderr", s.Stderr)
		if s.Detail != "" && s.Status == "fail" {
			writeIndented(&b, "detail", s.Detail)
		}
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, r.Message)

	return b.String()
}

func writeIndented(b *strings.Builder, label, text string) {
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return
	}
	fmt.Fprintf(b, "    %s:\n", label)
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(b, "      %s\n", line)
	}
}
