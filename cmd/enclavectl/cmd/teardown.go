package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/enclaveops/enclavectl/internal/config"
	"github.com/enclaveops/enclavectl/internal/output"
	"github.com/enclaveops/enclavectl/internal/provision"
)

var (
	teardownForce         bool
	teardownDeleteProject bool
)

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Delete the provisioned environment",
	Long: `Delete the provisioned environment in reverse dependency order: workload,
namespace, cluster, service account, role grants, and registry repository.
With --delete-project the managed project itself is deleted last and the
persisted project identifier is cleared.

Teardown is idempotent. Resources that are already gone are reported as
skipped, never as failures.`,
	RunE: runTeardown,
}

func init() {
	teardownCmd.Flags().BoolVar(&teardownForce, "force", false, "Skip the confirmation prompt")
	teardownCmd.Flags().BoolVar(&teardownDeleteProject, "delete-project", false,
		"Also delete the managed project and clear the persisted identifier")
	rootCmd.AddCommand(teardownCmd)
}

func runTeardown(cmd *cobra.Command, _ []string) error {
	cfg, err := getConfigFromContext(cmd)
	if err != nil {
		return err
	}

	store, err := config.DefaultStore()
	if err != nil {
		return err
	}
	projectID, err := loadProjectID(store)
	if err != nil {
		return err
	}

	deleteProject := teardownDeleteProject || cfg.DeleteProject

	if !teardownForce {
		question := fmt.Sprintf("Tear down the environment in project %s", output.Bold(projectID))
		if deleteProject {
			question = fmt.Sprintf("Delete project %s and everything in it", output.Bold(projectID))
		}
		if !output.Confirm(question) {
			output.Warningf("Teardown aborted")
			return nil
		}
	}

	w, err := newWorkflow(cmd.Context(), cfg, projectID, deleteProject)
	if err != nil {
		return err
	}
	defer w.close()

	report, runErr := w.orchestrator.Run(cmd.Context(), provision.ModeTeardown)
	printReport(report)
	if runErr != nil {
		output.Infof("Re-run %q after fixing the cause; deleted resources are skipped", "enclavectl teardown")
		return runErr
	}

	if deleteProject {
		if err := store.Clear(); err != nil {
			return fmt.Errorf("environment deleted but clearing the identifier failed: %w", err)
		}
		output.Successf("Cleared persisted project identifier")
	}
	return nil
}
