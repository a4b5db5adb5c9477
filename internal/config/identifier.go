package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	projectIDMinLength = 6
	projectIDMaxLength = 30

	randomSuffixBytes = 2
)

// projectIDPattern enforces the platform grammar: lowercase letter start,
// then lowercase letters, digits, and hyphens.
var projectIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// InvalidFormatError reports a project identifier that does not satisfy the
// platform grammar. Callers holding stale persisted state must regenerate
// rather than trust it.
type InvalidFormatError struct {
	ID     string
	Reason string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid project identifier %q: %s", e.ID, e.Reason)
}

// ValidateProjectID checks an identifier against the platform grammar:
// 6-30 characters, lowercase letter start, lowercase letters, digits and
// hyphens only, no trailing or doubled hyphen.
func ValidateProjectID(id string) error {
	if len(id) < projectIDMinLength || len(id) > projectIDMaxLength {
		return &InvalidFormatError{
			ID:     id,
			Reason: fmt.Sprintf("length must be between %d and %d characters", projectIDMinLength, projectIDMaxLength),
		}
	}
	if !projectIDPattern.MatchString(id) {
		return &InvalidFormatError{
			ID:     id,
			Reason: "must start with a lowercase letter and contain only lowercase letters, digits, and hyphens",
		}
	}
	if strings.HasSuffix(id, "-") {
		return &InvalidFormatError{ID: id, Reason: "must not end with a hyphen"}
	}
	if strings.Contains(id, "--") {
		return &InvalidFormatError{ID: id, Reason: "must not contain consecutive hyphens"}
	}
	return nil
}

// GenerateProjectID produces a fresh identifier from the current date plus a
// random suffix, e.g. "enclave-260823-9f3c". Generated once, persisted, and
// reused until explicitly cleared.
func GenerateProjectID() (string, error) {
	suffix := make([]byte, randomSuffixBytes)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate random suffix: %w", err)
	}

	id := fmt.Sprintf("enclave-%s-%s", time.Now().UTC().Format("060102"), hex.EncodeToString(suffix))
	if err := ValidateProjectID(id); err != nil {
		return "", err
	}
	return id, nil
}
