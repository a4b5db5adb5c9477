package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrRunFailed is wrapped by every fatal run failure so callers can map any
// failed run to a non-zero exit while still printing the partial report.
var ErrRunFailed = errors.New("run failed")

// Orchestrator drives the planner and executor to completion or first fatal
// failure. It never unwinds completed actions: partial infrastructure is
// intentionally recoverable by re-running the same workflow, because every
// action is idempotent.
type Orchestrator struct {
	planner  *Planner
	executor *Executor
	platform Platform
	logger   *slog.Logger
}

// NewOrchestrator wires a planner and executor over the platform.
func NewOrchestrator(planner *Planner, executor *Executor, platform Platform, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{planner: planner, executor: executor, platform: platform, logger: logger}
}

// Run probes the mode's resource set, plans the remaining actions, and
// executes them strictly in order. The returned report is complete on
// success and partial on failure; the error is non-nil exactly when the run
// did not fully succeed.
func (o *Orchestrator) Run(ctx context.Context, mode Mode) (*RunReport, error) {
	report := NewRunReport(mode)

	observed, probeFailure := o.probeAll(ctx, mode)
	if probeFailure != nil {
		report.Append(*probeFailure)
		return report, fmt.Errorf("%w: %s", ErrRunFailed, probeFailure.Action)
	}

	actions, err := o.planner.Plan(mode, observed)
	if err != nil {
		report.Append(StepResult{Action: "plan", Outcome: OutcomeFailed, Err: err})
		return report, fmt.Errorf("%w: planning: %v", ErrRunFailed, err)
	}

	o.logger.Info("run planned", "mode", mode.String(), "actions", len(actions))

	for i, action := range actions {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Interrupted: return the accumulated report as-is. Cleanup is
			// teardown's job, run explicitly.
			report.Append(StepResult{Action: action.Name(), Outcome: OutcomeFailed, Err: ctxErr})
			return report, fmt.Errorf("%w: interrupted before %s", ErrRunFailed, action.Name())
		}

		o.logger.Info("executing action",
			"step", i+1,
			"total", len(actions),
			"action", action.Name(),
		)

		result := o.executor.Execute(ctx, action)
		report.Append(result)

		if result.Outcome == OutcomeFailed {
			return report, fmt.Errorf("%w: %s: %v", ErrRunFailed, result.Action, result.Err)
		}
	}

	return report, nil
}

// probeAll queries the live state of every resource the mode manages, in
// dependency order. Probes never mutate. A probe error is fatal: the
// workflow refuses to act on a resource whose state it cannot determine.
func (o *Orchestrator) probeAll(ctx context.Context, mode Mode) (map[Resource]State, *StepResult) {
	resources := o.planner.Resources(mode)
	observed := make(map[Resource]State, len(resources))

	for _, res := range resources {
		state, err := o.platform.Probe(ctx, res)
		if err != nil {
			return nil, &StepResult{
				Action:  "probe " + res.String(),
				Outcome: OutcomeFailed,
				Err:     err,
			}
		}
		o.logger.Debug("probed resource", "resource", res.String(), "state", state.String())
		observed[res] = state
	}

	return observed, nil
}
