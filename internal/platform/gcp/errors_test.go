package gcp

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/enclaveops/enclavectl/internal/provision"
)

func TestClassifyRESTErrors(t *testing.T) {
	tests := []struct {
		name string
		err  *googleapi.Error
		want provision.FailureClass
	}{
		{
			name: "404 is not-found",
			err:  &googleapi.Error{Code: http.StatusNotFound},
			want: provision.FailureNotFound,
		},
		{
			name: "409 is already-exists",
			err:  &googleapi.Error{Code: http.StatusConflict},
			want: provision.FailureAlreadyExists,
		},
		{
			name: "plain 403 is permission denial",
			err:  &googleapi.Error{Code: http.StatusForbidden, Message: "caller lacks permission"},
			want: provision.FailurePermissionDenied,
		},
		{
			name: "403 with quota reason is quota exhaustion",
			err: &googleapi.Error{
				Code:   http.StatusForbidden,
				Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
			},
			want: provision.FailureQuotaExceeded,
		},
		{
			name: "403 with quota message is quota exhaustion",
			err:  &googleapi.Error{Code: http.StatusForbidden, Message: "Quota 'SSD_TOTAL_GB' exceeded"},
			want: provision.FailureQuotaExceeded,
		},
		{
			name: "403 rate limiting is transient",
			err: &googleapi.Error{
				Code:   http.StatusForbidden,
				Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}},
			},
			want: provision.FailureTransient,
		},
		{
			name: "403 for a disabled api is not-found",
			err: &googleapi.Error{
				Code:   http.StatusForbidden,
				Errors: []googleapi.ErrorItem{{Reason: "accessNotConfigured"}},
			},
			want: provision.FailureNotFound,
		},
		{
			name: "400 is invalid identifier",
			err:  &googleapi.Error{Code: http.StatusBadRequest},
			want: provision.FailureInvalidIdentifier,
		},
		{
			name: "429 is transient",
			err:  &googleapi.Error{Code: http.StatusTooManyRequests},
			want: provision.FailureTransient,
		},
		{
			name: "503 is transient",
			err:  &googleapi.Error{Code: http.StatusServiceUnavailable},
			want: provision.FailureTransient,
		},
		{
			name: "418 is unknown",
			err:  &googleapi.Error{Code: http.StatusTeapot},
			want: provision.FailureUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestClassifyGRPCErrors(t *testing.T) {
	tests := []struct {
		name string
		code codes.Code
		want provision.FailureClass
	}{
		{name: "not found", code: codes.NotFound, want: provision.FailureNotFound},
		{name: "already exists", code: codes.AlreadyExists, want: provision.FailureAlreadyExists},
		{name: "permission denied", code: codes.PermissionDenied, want: provision.FailurePermissionDenied},
		{name: "resource exhausted", code: codes.ResourceExhausted, want: provision.FailureQuotaExceeded},
		{name: "invalid argument", code: codes.InvalidArgument, want: provision.FailureInvalidIdentifier},
		{name: "unavailable", code: codes.Unavailable, want: provision.FailureTransient},
		{name: "deadline exceeded", code: codes.DeadlineExceeded, want: provision.FailureTransient},
		{name: "aborted", code: codes.Aborted, want: provision.FailureTransient},
		{name: "internal", code: codes.Internal, want: provision.FailureTransient},
		{name: "failed precondition", code: codes.FailedPrecondition, want: provision.FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := status.Error(tt.code, tt.name)
			assert.Equal(t, tt.want, classify(err))
		})
	}
}

func TestClassifyFallbacks(t *testing.T) {
	assert.Equal(t, provision.FailureTransient, classify(context.DeadlineExceeded))
	assert.Equal(t, provision.FailureUnknown, classify(errors.New("something else entirely")))
}

func TestWrapProducesClassifiedFault(t *testing.T) {
	err := wrap("create cluster", &googleapi.Error{Code: http.StatusConflict})

	assert.Equal(t, provision.FailureAlreadyExists, provision.ClassOf(err))
	assert.Contains(t, err.Error(), "create cluster")

	assert.NoError(t, wrap("noop", nil))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&googleapi.Error{Code: http.StatusNotFound}))
	assert.True(t, isNotFound(status.Error(codes.NotFound, "gone")))
	assert.False(t, isNotFound(&googleapi.Error{Code: http.StatusForbidden, Message: "nope"}))
	assert.False(t, isNotFound(nil))
}
