package provision

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollTimeout is returned when a polled condition does not hold before
// the timeout elapses. Classified transient-adjacent but surfaced as a fatal
// outcome for the waiting action: an unreachable external dependency fails
// the run instead of hanging it.
var ErrPollTimeout = errors.New("timed out waiting for condition")

// Poll invokes fn at the given interval until it reports done, the timeout
// elapses, or the context is canceled. It is the single wait-for-eventual-
// consistency primitive: cluster readiness, IAM propagation, load balancer
// IP assignment, and registry indexing all go through it.
func Poll(ctx context.Context, interval, timeout time.Duration, fn func(context.Context) (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("poll aborted: %w", ctx.Err())
		case <-deadline:
			return ErrPollTimeout
		case <-ticker.C:
			done, err := fn(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// sleepCtx blocks for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
