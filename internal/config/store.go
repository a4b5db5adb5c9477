package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/enclaveops/enclavectl/internal/constants"
)

// ErrNotConfigured is returned by Store.Load when no project identifier has
// been persisted yet.
var ErrNotConfigured = errors.New("no project identifier configured")

// Store owns the persisted project identifier file. It is the only component
// that reads or writes it. Concurrent invocations against the same store are
// unsupported: the workflow assumes one operator, one invocation at a time.
type Store struct {
	path string
}

// NewStore creates a Store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultStore creates a Store backed by the per-user configuration
// directory (~/.enclavectl/project-id).
func DefaultStore() (*Store, error) {
	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("error getting current user: %w", err)
	}

	dir := filepath.Join(currentUser.HomeDir, constants.ConfigDirName)
	return NewStore(filepath.Join(dir, constants.ProjectIDFileName)), nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted project identifier. It returns ErrNotConfigured
// when the file is absent and *InvalidFormatError when the stored value does
// not satisfy the identifier grammar.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotConfigured
		}
		return "", fmt.Errorf("error reading project identifier file: %w", err)
	}

	id := strings.TrimSpace(string(data))
	if err := ValidateProjectID(id); err != nil {
		return "", err
	}
	return id, nil
}

// Save validates and persists the project identifier, creating the
// configuration directory if needed.
func (s *Store) Save(id string) error {
	if err := ValidateProjectID(id); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), constants.ConfigDirPermissions); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	if err := os.WriteFile(s.path, []byte(id+"\n"), constants.ConfigFilePermissions); err != nil {
		return fmt.Errorf("error writing project identifier file: %w", err)
	}
	return nil
}

// Clear removes the persisted identifier. Clearing an absent file is not an
// error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing project identifier file: %w", err)
	}
	return nil
}
