package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Reason is the coarse classification attached to a failed step.
type Reason string

const (
	// ProcessStartFailed: the executable could not be launched.
	ProcessStartFailed Reason = "ProcessStartFailed"
	// Timeout: the step exceeded its allotted time and was killed.
	Timeout Reason = "Timeout"
	// PrerequisiteMissing: the required template is not installed.
	PrerequisiteMissing Reason = "PrerequisiteMissing"
	// CommandFailed: the process exited with a nonzero code.
	CommandFailed Reason = "CommandFailed"
	// ConfigurationError: required input or configuration is absent.
	ConfigurationError Reason = "ConfigurationError"
	// ResolutionError: a required file or directory could not be located or prepared.
	ResolutionError Reason = "ResolutionError"
	// Canceled: the caller's context ended while a step was running.
	Canceled Reason = "Canceled"
)

// Error describes why a pipeline stopped.
type Error struct {
	Step    string // step name; empty for failures before the first step
	Reason  Reason
	Message string // human-readable diagnosis
	Detail  string // captured stderr or the underlying error text
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Step != "" {
		fmt.Fprintf(&b, "%s: ", e.Step)
	}
	fmt.Fprintf(&b, "%s: %s", e.Reason, e.Message)
	if d := strings.TrimSpace(e.Detail); d != "" {
		fmt.Fprintf(&b, " Error: %s", d)
	}
	return b.String()
}

// IsReason reports whether err is, or wraps, an *Error with reason r.
func IsReason(err error, r Reason) bool {
	var e *Error
	return errors.As(err, &e) && e.Reason == r
}
