package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/enclaveops/enclavectl/internal/config"
	"github.com/enclaveops/enclavectl/internal/output"
	"github.com/enclaveops/enclavectl/internal/provision"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision the project, registry, service account, and confidential cluster",
	Long: `Provision the demo environment: the managed project, its billing link,
the required platform APIs, the container registry, the workload service
account with its role grants, the confidential-node cluster, and the workload
namespace.

Setup is idempotent. Re-running it skips everything that already exists and
creates only what is missing, so a failed run is resumed by running it again.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg, err := getConfigFromContext(cmd)
	if err != nil {
		return err
	}
	if cfg.BillingAccount == "" {
		return fmt.Errorf("billing account is not configured; set billing_account in the config file or %s_BILLING_ACCOUNT", "ENCLAVECTL")
	}

	store, err := config.DefaultStore()
	if err != nil {
		return err
	}

	projectID, err := store.Load()
	switch {
	case err == nil:
		output.Infof("Using existing project %s", output.Bold(projectID))
	case errors.Is(err, config.ErrNotConfigured):
		projectID, err = config.GenerateProjectID()
		if err != nil {
			return err
		}
		// Persist before the first platform call so an interrupted run still
		// knows which project it owns.
		if err := store.Save(projectID); err != nil {
			return err
		}
		output.Infof("Generated project identifier %s", output.Bold(projectID))
	default:
		return fmt.Errorf("persisted project identifier is unusable: %w", err)
	}

	w, err := newWorkflow(cmd.Context(), cfg, projectID, false)
	if err != nil {
		return err
	}
	defer w.close()

	report, runErr := w.orchestrator.Run(cmd.Context(), provision.ModeSetup)
	printReport(report)
	if runErr != nil {
		output.Infof("Re-run %q after fixing the cause; completed steps are skipped", "enclavectl setup")
		return runErr
	}

	output.Blank()
	output.KeyValue("project", projectID)
	output.KeyValue("cluster", w.names.Cluster)
	output.KeyValue("registry", w.names.RegistryHost()+"/"+projectID+"/"+w.names.Repository)
	output.Infof("Next: build and push the demo image, then run %q", "enclavectl deploy")
	return nil
}
