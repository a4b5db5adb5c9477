// Package registry adapts the container registry to the provisioning
// workflow: probing for a published image and pushing one from the local
// docker daemon to Artifact Registry.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/daemon"
	"github.com/google/go-containerregistry/pkg/v1/google"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	"github.com/enclaveops/enclavectl/internal/provision"
)

// Client probes and publishes the demo image.
type Client struct {
	logger *slog.Logger
}

// NewClient creates a registry client authenticating with the ambient
// Google credentials.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{logger: logger}
}

// ProbeImage reports whether the image reference is already indexed by the
// registry. Read-only.
func (c *Client) ProbeImage(ctx context.Context, imageRef string) (provision.State, error) {
	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return provision.StateUnknown, provision.NewFault(provision.FailureInvalidIdentifier,
			fmt.Errorf("parse image reference: %w", err))
	}

	_, err = remote.Head(ref, remote.WithContext(ctx), remote.WithAuthFromKeychain(google.Keychain))
	if err != nil {
		return probeState(err)
	}
	return provision.StatePresent, nil
}

// PushImage reads the locally built image from the docker daemon and pushes
// it to the registry. The image must have been built beforehand under the
// same reference; the build itself stays with the container tooling.
func (c *Client) PushImage(ctx context.Context, imageRef string) error {
	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return provision.NewFault(provision.FailureInvalidIdentifier,
			fmt.Errorf("parse image reference: %w", err))
	}

	img, err := daemon.Image(ref, daemon.WithContext(ctx))
	if err != nil {
		return provision.NewFault(provision.FailureUnknown,
			fmt.Errorf("read image %s from local daemon (build it first): %w", imageRef, err))
	}

	c.logger.Info("pushing image", "ref", imageRef)
	if err := remote.Write(ref, img, remote.WithContext(ctx), remote.WithAuthFromKeychain(google.Keychain)); err != nil {
		return wrap("push image", err)
	}
	return nil
}

func wrap(action string, err error) error {
	if err == nil {
		return nil
	}
	return provision.NewFault(classify(err), fmt.Errorf("%s: %w", action, err))
}

func classify(err error) provision.FailureClass {
	var terr *transport.Error
	if errors.As(err, &terr) {
		switch terr.StatusCode {
		case http.StatusNotFound:
			return provision.FailureNotFound
		case http.StatusForbidden, http.StatusUnauthorized:
			return provision.FailurePermissionDenied
		case http.StatusTooManyRequests:
			return provision.FailureTransient
		}
		if terr.StatusCode >= http.StatusInternalServerError {
			return provision.FailureTransient
		}
	}
	return provision.FailureUnknown
}

func probeState(err error) (provision.State, error) {
	switch classify(err) {
	case provision.FailureNotFound:
		return provision.StateAbsent, nil
	case provision.FailurePermissionDenied:
		return provision.StateInaccessible, nil
	default:
		return provision.StateUnknown, wrap("head image", err)
	}
}
