package provision

import (
	"fmt"
	"time"
)

// Outcome is the terminal state of one executed action.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeDeleted
	OutcomeAlreadyExists
	OutcomeSkipped
	OutcomeCompleted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeAlreadyExists:
		return "already-exists"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Success reports whether the outcome is a terminal success state.
func (o Outcome) Success() bool {
	return o != OutcomeFailed
}

// StepResult records the terminal state of one action. Produced by the
// executor, consumed by the orchestrator; never persisted.
type StepResult struct {
	Action  string
	Outcome Outcome
	// Attempts counts the mutating calls made for the action: zero when it
	// was skipped without touching the platform, one for wait and check
	// actions, more when transient failures were retried.
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (r StepResult) String() string {
	s := fmt.Sprintf("%s: %s", r.Action, r.Outcome)
	if r.Attempts > 1 {
		s += fmt.Sprintf(" (retried %d)", r.Attempts-1)
	}
	if r.Err != nil {
		s += fmt.Sprintf(": %v", r.Err)
	}
	return s
}

// RunReport is the ordered sequence of step results plus overall status.
// Produced once per invocation and surfaced to the operator. A failed run is
// resumable by simple re-invocation; idempotence is the recovery mechanism.
type RunReport struct {
	Mode    Mode
	Started time.Time
	Elapsed time.Duration
	Steps   []StepResult
}

// NewRunReport starts an empty report for the given mode.
func NewRunReport(mode Mode) *RunReport {
	return &RunReport{Mode: mode, Started: time.Now().UTC()}
}

// Append records a step result.
func (r *RunReport) Append(step StepResult) {
	r.Steps = append(r.Steps, step)
	r.Elapsed = time.Since(r.Started)
}

// Succeeded reports whether every recorded step reached a success state.
func (r *RunReport) Succeeded() bool {
	for _, step := range r.Steps {
		if !step.Outcome.Success() {
			return false
		}
	}
	return true
}

// FirstFailure returns the first failed step, if any.
func (r *RunReport) FirstFailure() (StepResult, bool) {
	for _, step := range r.Steps {
		if step.Outcome == OutcomeFailed {
			return step, true
		}
	}
	return StepResult{}, false
}
