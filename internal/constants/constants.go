// Package constants defines shared names, defaults, and context keys for enclavectl.
package constants

const (
	// ProjectName is the CLI binary and product name.
	ProjectName = "enclavectl"

	// ConfigDirName is the per-user configuration directory under $HOME.
	ConfigDirName = ".enclavectl"

	// ConfigFileName is the YAML configuration file inside ConfigDirName.
	ConfigFileName = "config.yaml"

	// ProjectIDFileName holds the persisted project identifier, one line, no
	// other content. Absence means "not yet configured".
	ProjectIDFileName = "project-id"

	// ConfigDirPermissions is the mode for the configuration directory.
	ConfigDirPermissions = 0o700

	// ConfigFilePermissions is the mode for files written into the directory.
	ConfigFilePermissions = 0o600

	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "ENCLAVECTL"

	// HeaderSeparatorLength is the width of section separator lines.
	HeaderSeparatorLength = 40
)

// Environment represents the execution environment for logger configuration.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
	CLI         Environment = "cli"
)

// ConfigCtxKeyType is the type for the config context key.
type ConfigCtxKeyType string

// ConfigCtxKey is the key used to store config in the command context.
const ConfigCtxKey ConfigCtxKeyType = "config"

// StartTimeCtxKeyType is the type for the start time context key.
type StartTimeCtxKeyType string

// StartTimeCtxKey is the key used to store the invocation start time.
const StartTimeCtxKey StartTimeCtxKeyType = "startTime"
