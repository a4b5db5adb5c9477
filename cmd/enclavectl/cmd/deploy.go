package cmd

import (
	"github.com/spf13/cobra"

	"github.com/enclaveops/enclavectl/internal/config"
	"github.com/enclaveops/enclavectl/internal/output"
	"github.com/enclaveops/enclavectl/internal/provision"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Push the demo image and roll out the workload",
	Long: `Push the locally built demo image to the registry, apply the workload and
its load-balancer service, wait for the rollout and the external address, and
run the acceptance health check.

Deploy requires a provisioned environment; run setup first.`,
	RunE: runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, _ []string) error {
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

	w, err := newWorkflow(cmd.Context(), cfg, projectID, false)
	if err != nil {
		return err
	}
	defer w.close()

	output.Infof("Deploying %s", output.Bold(w.names.ImageRef()))

	report, runErr := w.orchestrator.Run(cmd.Context(), provision.ModeDeploy)
	printReport(report)
	if runErr != nil {
		return runErr
	}

	output.Blank()
	if endpoint := w.executor.Endpoint(); endpoint != "" {
		output.KeyValue("service", "http://"+endpoint)
		output.KeyValue("health", "http://"+endpoint+cfg.HealthPath)
	}
	return nil
}
