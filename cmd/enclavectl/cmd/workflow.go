package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/enclaveops/enclavectl/internal/config"
	"github.com/enclaveops/enclavectl/internal/output"
	"github.com/enclaveops/enclavectl/internal/platform"
	"github.com/enclaveops/enclavectl/internal/platform/gcp"
	"github.com/enclaveops/enclavectl/internal/platform/registry"
	"github.com/enclaveops/enclavectl/internal/provision"
)

const elapsedPrecision = 100 * time.Millisecond

// workflow bundles the wired orchestrator with the clients it owns so
// commands can run one mode and release the connections afterwards.
type workflow struct {
	names        provision.Names
	orchestrator *provision.Orchestrator
	executor     *provision.Executor
	gcp          *gcp.Client
}

// newWorkflow wires the platform clients, planner, executor, and orchestrator
// for one invocation.
func newWorkflow(ctx context.Context, cfg *config.Config, projectID string, deleteProject bool) (*workflow, error) {
	logger := slog.Default()

	gcpClient, err := gcp.NewClient(ctx, cfg.Region, gcp.ClusterConfig{
		MachineType:    cfg.MachineType,
		NodeCount:      cfg.NodeCount,
		FallbackRegion: cfg.FallbackRegion,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("error creating platform client: %w", err)
	}

	names := provision.NewNames(projectID, cfg.Region, cfg.BillingAccount, cfg.ImageTag)
	provider := platform.New(gcpClient, registry.NewClient(logger), names, cfg.HealthPath, logger)

	executor := provision.NewExecutor(provider, provision.ExecutorOptions{
		RolloutTimeout:  cfg.RolloutTimeout,
		EndpointTimeout: cfg.EndpointTimeout,
	}, logger)

	planner := provision.NewPlanner(names, deleteProject)

	return &workflow{
		names:        names,
		orchestrator: provision.NewOrchestrator(planner, executor, provider, logger),
		executor:     executor,
		gcp:          gcpClient,
	}, nil
}

func (w *workflow) close() {
	if err := w.gcp.Close(); err != nil {
		slog.Default().Warn("failed to close platform client", "error", err)
	}
}

// printReport renders the run report, one line per step, then the summary.
func printReport(report *provision.RunReport) {
	output.Header("Run report")

	for i, step := range report.Steps {
		output.ReportStep(i+1, len(report.Steps), step.String())
	}

	output.Blank()
	output.KeyValue("mode", report.Mode.String())
	output.KeyValue("steps", fmt.Sprintf("%d", len(report.Steps)))
	output.KeyValue("elapsed", report.Elapsed.Round(elapsedPrecision).String())

	if failure, failed := report.FirstFailure(); failed {
		output.Errorf("%s run failed at %s", report.Mode, output.Bold(failure.Action))
	} else {
		output.Successf("%s run succeeded", report.Mode)
	}
}

// loadProjectID returns the persisted project identifier, translating the
// not-configured case into an actionable message.
func loadProjectID(store *config.Store) (string, error) {
	projectID, err := store.Load()
	if err != nil {
		if errors.Is(err, config.ErrNotConfigured) {
			return "", fmt.Errorf("no project identifier configured; run %q first", "enclavectl setup")
		}
		return "", err
	}
	return projectID, nil
}
