// Package config manages configuration for the enclavectl CLI.
// It uses Viper for unified configuration management from the per-user YAML
// file and environment variables, and owns the persisted project identifier.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/enclaveops/enclavectl/internal/constants"
)

// Config is the explicit, immutable run configuration. It is sourced once at
// startup and passed into the orchestrator at construction; nothing
// reassigns it mid-run.
type Config struct {
	// BillingAccount is the billing account linked to the managed project,
	// e.g. "0X0X0X-0X0X0X-0X0X0X". Required for setup.
	BillingAccount string `mapstructure:"billing_account" yaml:"billing_account"`

	// Region is the GCP region for the cluster, registry, and workload.
	Region string `mapstructure:"region" yaml:"region" validate:"required"`

	// FallbackRegion, when set, is tried once for cluster creation if the
	// primary region fails with a quota error. Empty disables the fallback;
	// the divergent shell script variants disagreed on this behavior, so it
	// is an explicit option rather than a silent default.
	FallbackRegion string `mapstructure:"fallback_region" yaml:"fallback_region,omitempty"`

	// MachineType is the confidential node machine type (N2D family).
	MachineType string `mapstructure:"machine_type" yaml:"machine_type" validate:"required"`

	// NodeCount is the initial cluster node count.
	NodeCount int `mapstructure:"node_count" yaml:"node_count" validate:"gte=1"`

	// ImageTag is the tag pushed to the registry and deployed.
	ImageTag string `mapstructure:"image_tag" yaml:"image_tag" validate:"required"`

	// HealthPath is the demo service path probed after deploy.
	HealthPath string `mapstructure:"health_path" yaml:"health_path" validate:"required,startswith=/"`

	// DeleteProject makes teardown delete the managed project itself and
	// clear the persisted identifier. Also settable via the teardown flag.
	DeleteProject bool `mapstructure:"delete_project" yaml:"delete_project,omitempty"`

	// EndpointTimeout bounds the wait for an external load balancer IP.
	EndpointTimeout time.Duration `mapstructure:"endpoint_timeout" yaml:"endpoint_timeout,omitempty"`

	// RolloutTimeout bounds the wait for workload rollout completion.
	RolloutTimeout time.Duration `mapstructure:"rollout_timeout" yaml:"rollout_timeout,omitempty"`
}

var validate = validator.New()

// Load loads configuration from ~/.enclavectl/config.yaml and ENCLAVECTL_*
// environment variables. Environment variables take precedence. A missing
// config file is acceptable; defaults still apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := loadConfigFile(v); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to the per-user config file, overwriting any
// existing one.
func Save(cfg *Config) error {
	dir, err := configDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, constants.ConfigDirPermissions); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	v := viper.New()
	v.Set("billing_account", cfg.BillingAccount)
	v.Set("region", cfg.Region)
	v.Set("fallback_region", cfg.FallbackRegion)
	v.Set("machine_type", cfg.MachineType)
	v.Set("node_count", cfg.NodeCount)
	v.Set("image_tag", cfg.ImageTag)
	v.Set("health_path", cfg.HealthPath)

	path := filepath.Join(dir, constants.ConfigFileName)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the path of the per-user config file.
func GetConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.ConfigFileName), nil
}

func configDir() (string, error) {
	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("error getting current user: %w", err)
	}
	return filepath.Join(currentUser.HomeDir, constants.ConfigDirName), nil
}

func loadConfigFile(v *viper.Viper) error {
	dir, err := configDir()
	if err != nil {
		return err
	}

	v.SetConfigName(strings.TrimSuffix(constants.ConfigFileName, filepath.Ext(constants.ConfigFileName)))
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	return v.ReadInConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("region", constants.DefaultRegion)
	v.SetDefault("machine_type", constants.DefaultMachineType)
	v.SetDefault("node_count", constants.DefaultNodeCount)
	v.SetDefault("image_tag", constants.DefaultImageTag)
	v.SetDefault("health_path", constants.DefaultHealthPath)
	v.SetDefault("endpoint_timeout", constants.EndpointTimeout)
	v.SetDefault("rollout_timeout", constants.RolloutTimeout)
}
