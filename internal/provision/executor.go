package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/enclaveops/enclavectl/internal/constants"
)

// Platform is the external platform capability set consumed by the workflow.
// Probes are read-only; Create and Delete each wrap one mutating call.
// Implementations classify their errors into Faults at the boundary.
type Platform interface {
	Probe(ctx context.Context, res Resource) (State, error)
	Create(ctx context.Context, res Resource) error
	Delete(ctx context.Context, res Resource) error

	// RolloutComplete reports whether the deployed workload has reached its
	// desired replica count on the current generation.
	RolloutComplete(ctx context.Context) (bool, error)
	// Endpoint returns the externally assigned address of the workload
	// service, reporting false until the platform has assigned one.
	Endpoint(ctx context.Context) (string, bool, error)
	// CheckHealth performs one liveness probe against the endpoint.
	CheckHealth(ctx context.Context, endpoint string) error
}

// ExecutorOptions tune retry and wait behavior. Zero values fall back to the
// package defaults.
type ExecutorOptions struct {
	RetryBaseDelay   time.Duration
	RetryMaxAttempts int
	RolloutInterval  time.Duration
	RolloutTimeout   time.Duration
	EndpointInterval time.Duration
	EndpointTimeout  time.Duration
}

func (o ExecutorOptions) withDefaults() ExecutorOptions {
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = constants.RetryBaseDelay
	}
	if o.RetryMaxAttempts <= 0 {
		o.RetryMaxAttempts = constants.RetryMaxAttempts
	}
	if o.RolloutInterval <= 0 {
		o.RolloutInterval = constants.RolloutPollInterval
	}
	if o.RolloutTimeout <= 0 {
		o.RolloutTimeout = constants.RolloutTimeout
	}
	if o.EndpointInterval <= 0 {
		o.EndpointInterval = constants.EndpointPollInterval
	}
	if o.EndpointTimeout <= 0 {
		o.EndpointTimeout = constants.EndpointTimeout
	}
	return o
}

// Executor performs one action at a time with bounded retry and classifies
// the outcome. Per-action state machine:
//
//	Pending -> Probing -> { Skip | Creating -> { Created | Retrying -> Creating | FatalFailure } }
//
// Terminal states map to Outcome values; AlreadyExists and (during teardown)
// NotFound are success, never failure.
type Executor struct {
	platform Platform
	opts     ExecutorOptions
	logger   *slog.Logger

	// endpoint carries the address found by await-endpoint into the
	// subsequent health check of the same run.
	endpoint string
}

// NewExecutor creates an executor over the given platform.
func NewExecutor(platform Platform, opts ExecutorOptions, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{platform: platform, opts: opts.withDefaults(), logger: logger}
}

// Endpoint returns the workload address found by the await-endpoint action
// of this run, or empty when none was found.
func (e *Executor) Endpoint() string {
	return e.endpoint
}

// Execute runs one action to a terminal state and reports the result. It
// never returns a partial state: every result is Skip, Created, Deleted,
// AlreadyExists, Completed, or Failed.
func (e *Executor) Execute(ctx context.Context, action Action) StepResult {
	start := time.Now()

	var result StepResult
	switch action.Verb {
	case VerbCreate:
		result = e.executeCreate(ctx, action)
	case VerbDelete:
		result = e.executeDelete(ctx, action)
	case VerbAwaitRollout:
		result = e.executeAwait(ctx, action, e.opts.RolloutInterval, e.opts.RolloutTimeout, e.rolloutProbe)
	case VerbAwaitEndpoint:
		result = e.executeAwait(ctx, action, e.opts.EndpointInterval, e.opts.EndpointTimeout, e.endpointProbe)
	case VerbHealthCheck:
		result = e.executeHealthCheck(ctx, action)
	default:
		result = StepResult{
			Action:  action.Name(),
			Outcome: OutcomeFailed,
			Err:     fmt.Errorf("unsupported verb %d", action.Verb),
		}
	}

	result.Elapsed = time.Since(start)
	e.logger.Debug("action finished",
		"action", result.Action,
		"outcome", result.Outcome.String(),
		"attempts", result.Attempts,
		"elapsed", result.Elapsed,
	)
	return result
}

func (e *Executor) executeCreate(ctx context.Context, action Action) StepResult {
	result := StepResult{Action: action.Name()}

	if action.Observed == StatePresent && !action.Always {
		result.Outcome = OutcomeSkipped
		return result
	}

	err := e.withRetry(ctx, &result, func() error {
		return e.platform.Create(ctx, action.Resource)
	})

	switch {
	case err == nil && action.Observed == StatePresent:
		// Re-applied an idempotent action over an existing target.
		result.Outcome = OutcomeAlreadyExists
	case err == nil:
		result.Outcome = OutcomeCreated
	case ClassOf(err) == FailureAlreadyExists:
		result.Outcome = OutcomeAlreadyExists
	default:
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("%s: %w", action.Name(), err)
	}
	return result
}

func (e *Executor) executeDelete(ctx context.Context, action Action) StepResult {
	result := StepResult{Action: action.Name()}

	// Absent during teardown is success: nothing to do.
	if action.Observed == StateAbsent {
		result.Outcome = OutcomeSkipped
		return result
	}

	err := e.withRetry(ctx, &result, func() error {
		return e.platform.Delete(ctx, action.Resource)
	})

	switch {
	case err == nil:
		result.Outcome = OutcomeDeleted
	case ClassOf(err) == FailureNotFound:
		result.Outcome = OutcomeSkipped
	default:
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("%s: %w", action.Name(), err)
	}
	return result
}

func (e *Executor) executeAwait(
	ctx context.Context,
	action Action,
	interval, timeout time.Duration,
	probe func(context.Context) (bool, error),
) StepResult {
	result := StepResult{Action: action.Name(), Attempts: 1}

	if err := Poll(ctx, interval, timeout, probe); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("%s: %w", action.Name(), err)
		return result
	}

	result.Outcome = OutcomeCompleted
	return result
}

func (e *Executor) executeHealthCheck(ctx context.Context, action Action) StepResult {
	result := StepResult{Action: action.Name(), Attempts: 1}

	if e.endpoint == "" {
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("%s: no endpoint assigned", action.Name())
		return result
	}

	if err := e.platform.CheckHealth(ctx, e.endpoint); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("%s: %w", action.Name(), err)
		return result
	}

	result.Outcome = OutcomeCompleted
	return result
}

func (e *Executor) rolloutProbe(ctx context.Context) (bool, error) {
	return e.platform.RolloutComplete(ctx)
}

func (e *Executor) endpointProbe(ctx context.Context) (bool, error) {
	endpoint, assigned, err := e.platform.Endpoint(ctx)
	if err != nil {
		return false, err
	}
	if !assigned {
		return false, nil
	}
	e.endpoint = endpoint
	return true, nil
}

// withRetry runs fn, retrying transient failures with exponential backoff up
// to the attempt cap. Fatal classifications are returned on first sight.
func (e *Executor) withRetry(ctx context.Context, result *StepResult, fn func() error) error {
	var err error
	for attempt := 1; attempt <= e.opts.RetryMaxAttempts; attempt++ {
		result.Attempts = attempt

		err = fn()
		if err == nil || !ClassOf(err).Retryable() {
			return err
		}
		if attempt == e.opts.RetryMaxAttempts {
			break
		}

		delay := e.opts.RetryBaseDelay << (attempt - 1)
		e.logger.Warn("transient failure, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
			return fmt.Errorf("retry aborted: %w", sleepErr)
		}
	}
	return err
}
