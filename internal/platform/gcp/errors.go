package gcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/enclaveops/enclavectl/internal/provision"
)

// classify maps a Google Cloud API error onto the workflow taxonomy. REST
// clients surface *googleapi.Error; the resource manager gRPC client
// surfaces status codes.
func classify(err error) provision.FailureClass {
	if err == nil {
		return provision.FailureUnknown
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return provision.FailureNotFound
		case http.StatusConflict:
			return provision.FailureAlreadyExists
		case http.StatusForbidden:
			if isQuotaError(apiErr) {
				return provision.FailureQuotaExceeded
			}
			if isRateLimitError(apiErr) {
				return provision.FailureTransient
			}
			if isServiceDisabled(apiErr) {
				// The owning API is not enabled yet, so the resource cannot
				// exist. Probes on a half-provisioned project hit this.
				return provision.FailureNotFound
			}
			return provision.FailurePermissionDenied
		case http.StatusBadRequest:
			return provision.FailureInvalidIdentifier
		case http.StatusTooManyRequests:
			return provision.FailureTransient
		}
		if apiErr.Code >= http.StatusInternalServerError {
			return provision.FailureTransient
		}
		return provision.FailureUnknown
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.NotFound:
			return provision.FailureNotFound
		case codes.AlreadyExists:
			return provision.FailureAlreadyExists
		case codes.PermissionDenied:
			return provision.FailurePermissionDenied
		case codes.ResourceExhausted:
			return provision.FailureQuotaExceeded
		case codes.InvalidArgument:
			return provision.FailureInvalidIdentifier
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return provision.FailureTransient
		default:
			return provision.FailureUnknown
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return provision.FailureTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return provision.FailureTransient
	}

	return provision.FailureUnknown
}

// isQuotaError distinguishes a quota rejection from a plain permission
// denial; both arrive as HTTP 403.
func isQuotaError(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if strings.Contains(strings.ToLower(item.Reason), "quota") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "quota")
}

// isRateLimitError reports a 403 that is throttling rather than a
// permission problem; throttling is retried.
func isRateLimitError(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if strings.Contains(strings.ToLower(item.Reason), "ratelimit") {
			return true
		}
	}
	return false
}

// isServiceDisabled reports a 403 caused by the owning API being disabled on
// the project rather than by a permission problem.
func isServiceDisabled(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if item.Reason == "accessNotConfigured" {
			return true
		}
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "has not been used") || strings.Contains(msg, "is disabled")
}

// wrap classifies err and wraps it as a Fault with the action named so fatal
// failures surface verbatim with actionable context.
func wrap(action string, err error) error {
	if err == nil {
		return nil
	}
	return provision.NewFault(classify(err), fmt.Errorf("%s: %w", action, err))
}

// isNotFound reports whether err is a platform not-found response.
func isNotFound(err error) bool {
	return classify(err) == provision.FailureNotFound
}
