package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statefulPlatform simulates a live environment: probes answer from a state
// map and successful creates and deletes update it.
type statefulPlatform struct {
	fakePlatform
	states map[Resource]State
}

func newStatefulPlatform(initial State, resources []Resource) *statefulPlatform {
	p := &statefulPlatform{states: make(map[Resource]State, len(resources))}
	for _, res := range resources {
		p.states[res] = initial
	}
	p.probeFunc = func(_ context.Context, res Resource) (State, error) {
		return p.states[res], nil
	}
	return p
}

func (p *statefulPlatform) Create(ctx context.Context, res Resource) error {
	if err := p.fakePlatform.Create(ctx, res); err != nil {
		return err
	}
	p.states[res] = StatePresent
	return nil
}

func (p *statefulPlatform) Delete(ctx context.Context, res Resource) error {
	if err := p.fakePlatform.Delete(ctx, res); err != nil {
		return err
	}
	p.states[res] = StateAbsent
	return nil
}

func newTestOrchestrator(platform Platform, deleteProject bool) *Orchestrator {
	planner := NewPlanner(testNames(), deleteProject)
	executor := NewExecutor(platform, fastOptions(), nil)
	return NewOrchestrator(planner, executor, platform, nil)
}

func TestOrchestratorFreshSetupCreatesEverything(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeSetup)
	platform := newStatefulPlatform(StateAbsent, resources)

	report, err := newTestOrchestrator(platform, false).Run(context.Background(), ModeSetup)

	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Len(t, report.Steps, len(resources))
	assert.Len(t, platform.creates, len(resources))
	for _, step := range report.Steps {
		assert.Equal(t, OutcomeCreated, step.Outcome, step.String())
	}
}

func TestOrchestratorSecondSetupIsIdempotent(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeSetup)
	platform := newStatefulPlatform(StatePresent, resources)

	report, err := newTestOrchestrator(platform, false).Run(context.Background(), ModeSetup)

	require.NoError(t, err)
	assert.True(t, report.Succeeded())

	// Only the IAM grants are re-applied; everything else is skipped without
	// a platform call.
	for _, res := range platform.creates {
		assert.Equal(t, KindIAMBinding, res.Kind, "unexpected mutation of %s", res)
	}
	for _, step := range report.Steps {
		assert.NotEqual(t, OutcomeCreated, step.Outcome, step.String())
		assert.NotEqual(t, OutcomeFailed, step.Outcome, step.String())
	}
}

func TestOrchestratorResumesPartialSetup(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeSetup)
	platform := newStatefulPlatform(StateAbsent, resources)

	// Project and billing survived an earlier interrupted run.
	platform.states[resources[0]] = StatePresent
	platform.states[resources[1]] = StatePresent

	report, err := newTestOrchestrator(platform, false).Run(context.Background(), ModeSetup)

	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Equal(t, OutcomeSkipped, report.Steps[0].Outcome)
	assert.Equal(t, OutcomeSkipped, report.Steps[1].Outcome)
	assert.Equal(t, OutcomeCreated, report.Steps[2].Outcome)
}

func TestOrchestratorHaltsOnFatalFailure(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeSetup)
	platform := newStatefulPlatform(StateAbsent, resources)

	platform.createFunc = func(_ context.Context, res Resource) error {
		if res.Kind == KindCluster {
			return NewFault(FailureQuotaExceeded, errors.New("SSD_TOTAL_GB quota exceeded"))
		}
		return nil
	}

	report, err := newTestOrchestrator(platform, false).Run(context.Background(), ModeSetup)

	require.ErrorIs(t, err, ErrRunFailed)
	assert.False(t, report.Succeeded())

	failure, failed := report.FirstFailure()
	require.True(t, failed)
	assert.Equal(t, "create-cluster", failure.Action)

	// Everything before the failure stays: partial infrastructure is
	// recovered by re-running, not unwound.
	last := report.Steps[len(report.Steps)-1]
	assert.Equal(t, last, failure, "no steps execute after the fatal failure")
	for _, step := range report.Steps[:len(report.Steps)-1] {
		assert.Equal(t, OutcomeCreated, step.Outcome, step.String())
	}
}

func TestOrchestratorProbeErrorIsFatalBeforeAnyMutation(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeSetup)
	platform := newStatefulPlatform(StateAbsent, resources)

	platform.probeFunc = func(_ context.Context, res Resource) (State, error) {
		if res.Kind == KindRegistry {
			return StateUnknown, NewFault(FailureUnknown, errors.New("registry api unreachable"))
		}
		return platform.states[res], nil
	}

	report, err := newTestOrchestrator(platform, false).Run(context.Background(), ModeSetup)

	require.ErrorIs(t, err, ErrRunFailed)
	assert.Empty(t, platform.creates, "a probe failure must not mutate anything")
	require.Len(t, report.Steps, 1)
	assert.Contains(t, report.Steps[0].Action, "probe")
}

func TestOrchestratorInaccessibleResourceAbortsPlanning(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeSetup)
	platform := newStatefulPlatform(StateAbsent, resources)
	platform.states[resources[0]] = StateInaccessible

	report, err := newTestOrchestrator(platform, false).Run(context.Background(), ModeSetup)

	require.ErrorIs(t, err, ErrRunFailed)
	assert.Empty(t, platform.creates)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, "plan", report.Steps[0].Action)
}

func TestOrchestratorTeardownOfAbsentEnvironment(t *testing.T) {
	planner := NewPlanner(testNames(), true)
	resources := planner.Resources(ModeTeardown)
	platform := newStatefulPlatform(StateAbsent, resources)

	report, err := newTestOrchestrator(platform, true).Run(context.Background(), ModeTeardown)

	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Empty(t, platform.deletes, "teardown of an absent environment must not call the platform")
	for _, step := range report.Steps {
		assert.Equal(t, OutcomeSkipped, step.Outcome, step.String())
	}
}

func TestOrchestratorTeardownDeletesInReverseOrder(t *testing.T) {
	planner := NewPlanner(testNames(), true)
	resources := planner.Resources(ModeTeardown)
	platform := newStatefulPlatform(StatePresent, resources)

	report, err := newTestOrchestrator(platform, true).Run(context.Background(), ModeTeardown)

	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	require.Len(t, platform.deletes, len(resources))
	assert.Equal(t, KindWorkload, platform.deletes[0].Kind)
	assert.Equal(t, KindProject, platform.deletes[len(platform.deletes)-1].Kind)
}

func TestOrchestratorDeployEndpointTimeoutKeepsEarlierSteps(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeDeploy)
	platform := newStatefulPlatform(StateAbsent, resources)

	// Rollout finishes but the load balancer never gets an address.
	platform.endpointFunc = func(_ context.Context) (string, bool, error) {
		return "", false, nil
	}

	report, err := newTestOrchestrator(platform, false).Run(context.Background(), ModeDeploy)

	require.ErrorIs(t, err, ErrRunFailed)

	failure, failed := report.FirstFailure()
	require.True(t, failed)
	assert.Equal(t, "await-endpoint", failure.Action)
	assert.ErrorIs(t, failure.Err, ErrPollTimeout)

	// push-image, apply-workload, and await-rollout stay in the report as
	// successes; nothing is unwound.
	require.Len(t, report.Steps, 4)
	assert.Equal(t, OutcomeCreated, report.Steps[0].Outcome)
	assert.Equal(t, OutcomeCreated, report.Steps[1].Outcome)
	assert.Equal(t, OutcomeCompleted, report.Steps[2].Outcome)
}

func TestOrchestratorInterruptReturnsPartialReport(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeSetup)
	platform := newStatefulPlatform(StateAbsent, resources)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestOrchestrator(platform, false).Run(ctx, ModeSetup)

	require.ErrorIs(t, err, ErrRunFailed)
	assert.Empty(t, platform.creates)
	require.NotEmpty(t, report.Steps)
	assert.Equal(t, OutcomeFailed, report.Steps[len(report.Steps)-1].Outcome)
}
