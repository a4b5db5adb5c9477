package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/enclaveops/enclavectl/internal/config"
	"github.com/enclaveops/enclavectl/internal/output"
	"github.com/enclaveops/enclavectl/internal/provision"
)

var showConfigOutput string

var showConfigCmd = &cobra.Command{
	Use:   "show-config",
	Short: "Show the effective configuration and derived resource names",
	RunE:  runShowConfig,
}

func init() {
	showConfigCmd.Flags().StringVarP(&showConfigOutput, "output", "o", "text", "Output format (text or yaml)")
	rootCmd.AddCommand(showConfigCmd)
}

// configView is the operator-facing snapshot of the effective configuration
// plus everything derived from the persisted project identifier.
type configView struct {
	ProjectID string         `yaml:"project_id"`
	Config    *config.Config `yaml:"config"`
	Derived   derivedView    `yaml:"derived"`
}

type derivedView struct {
	Cluster        string `yaml:"cluster"`
	Repository     string `yaml:"repository"`
	ServiceAccount string `yaml:"service_account"`
	Namespace      string `yaml:"namespace"`
	Image          string `yaml:"image"`
}

func runShowConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := getConfigFromContext(cmd)
	if err != nil {
		return err
	}

	store, err := config.DefaultStore()
	if err != nil {
		return err
	}

	projectID, err := store.Load()
	if err != nil && !errors.Is(err, config.ErrNotConfigured) {
		return err
	}

	view := configView{ProjectID: projectID, Config: cfg}
	if projectID != "" {
		names := provision.NewNames(projectID, cfg.Region, cfg.BillingAccount, cfg.ImageTag)
		view.Derived = derivedView{
			Cluster:        names.Cluster,
			Repository:     names.RegistryHost() + "/" + projectID + "/" + names.Repository,
			ServiceAccount: names.ServiceAccountEmail(),
			Namespace:      names.Namespace,
			Image:          names.ImageRef(),
		}
	}

	switch showConfigOutput {
	case "yaml":
		data, err := yaml.Marshal(view)
		if err != nil {
			return fmt.Errorf("error marshaling configuration: %w", err)
		}
		output.Println(string(data))
		return nil
	case "text":
		printConfigView(view)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (use text or yaml)", showConfigOutput)
	}
}

func printConfigView(view configView) {
	if view.ProjectID == "" {
		output.Warningf("No project identifier configured; run %q to generate one", "enclavectl setup")
	} else {
		output.KeyValue("project", view.ProjectID)
	}

	output.KeyValue("region", view.Config.Region)
	if view.Config.FallbackRegion != "" {
		output.KeyValue("fallback region", view.Config.FallbackRegion)
	}
	if view.Config.BillingAccount != "" {
		output.KeyValue("billing account", view.Config.BillingAccount)
	}
	output.KeyValue("machine type", view.Config.MachineType)
	output.KeyValue("node count", fmt.Sprintf("%d", view.Config.NodeCount))
	output.KeyValue("image tag", view.Config.ImageTag)
	output.KeyValue("health path", view.Config.HealthPath)

	if view.ProjectID == "" {
		return
	}
	output.Blank()
	output.KeyValue("cluster", view.Derived.Cluster)
	output.KeyValue("repository", view.Derived.Repository)
	output.KeyValue("service account", view.Derived.ServiceAccount)
	output.KeyValue("namespace", view.Derived.Namespace)
	output.KeyValue("image", view.Derived.Image)
}
