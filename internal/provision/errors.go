package provision

import (
	"errors"
	"fmt"
)

// FailureClass is the error taxonomy of the workflow. Transient failures are
// retried with backoff; everything else aborts the action, and the fatal
// classes abort the whole run with the failed action named.
type FailureClass int

const (
	// FailureUnknown is an unclassified platform error. It is not retried:
	// retrying an unrecognized failure can mask real breakage, and the run
	// is recoverable by re-invocation anyway.
	FailureUnknown FailureClass = iota
	// FailureTransient covers network timeouts, rate limiting, and
	// eventual-consistency lag. Retried with exponential backoff.
	FailureTransient
	// FailureAlreadyExists means the create hit the platform's "already
	// exists" signature. Treated as success.
	FailureAlreadyExists
	// FailureNotFound means the target was absent. Success during teardown.
	FailureNotFound
	// FailurePermissionDenied is fatal; retrying cannot fix it.
	FailurePermissionDenied
	// FailureQuotaExceeded is fatal; retrying cannot fix it.
	FailureQuotaExceeded
	// FailureInvalidIdentifier is fatal; the identifier must be regenerated.
	FailureInvalidIdentifier
	// FailureInaccessible means the resource exists under a different owner
	// or permission set. Fatal.
	FailureInaccessible
)

func (c FailureClass) String() string {
	switch c {
	case FailureTransient:
		return "transient"
	case FailureAlreadyExists:
		return "already-exists"
	case FailureNotFound:
		return "not-found"
	case FailurePermissionDenied:
		return "permission-denied"
	case FailureQuotaExceeded:
		return "quota-exceeded"
	case FailureInvalidIdentifier:
		return "invalid-identifier"
	case FailureInaccessible:
		return "inaccessible"
	default:
		return "unknown"
	}
}

// Retryable reports whether an error of this class may be retried.
func (c FailureClass) Retryable() bool {
	return c == FailureTransient
}

// Fault wraps a platform error with its classification. Platform adapters
// classify errors at the boundary; the executor only inspects the class.
type Fault struct {
	Class FailureClass
	Err   error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %v", f.Class, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault wraps err with the given classification.
func NewFault(class FailureClass, err error) *Fault {
	return &Fault{Class: class, Err: err}
}

// ClassOf extracts the failure class from an error chain. Unwrapped errors
// are FailureUnknown.
func ClassOf(err error) FailureClass {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault.Class
	}
	return FailureUnknown
}
