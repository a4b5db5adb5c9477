package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNames() Names {
	return NewNames("enclave-260823-9f3c", "us-central1", "0X0X0X-0X0X0X-0X0X0X", "latest")
}

func allStates(resources []Resource, state State) map[Resource]State {
	observed := make(map[Resource]State, len(resources))
	for _, res := range resources {
		observed[res] = state
	}
	return observed
}

func TestPlannerResourcesSetupOrder(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeSetup)

	kinds := make([]Kind, 0, len(resources))
	for _, res := range resources {
		kinds = append(kinds, res.Kind)
	}

	assert.Equal(t, []Kind{
		KindProject,
		KindBilling,
		KindAPI, KindAPI, KindAPI, KindAPI, KindAPI,
		KindRegistry,
		KindServiceAccount,
		KindIAMBinding, KindIAMBinding,
		KindCluster,
		KindNamespace,
	}, kinds)
}

func TestPlannerResourcesTeardownReversesSetup(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeTeardown)

	require.NotEmpty(t, resources)
	assert.Equal(t, KindWorkload, resources[0].Kind)
	assert.Equal(t, KindRegistry, resources[len(resources)-1].Kind)

	for _, res := range resources {
		assert.NotEqual(t, KindProject, res.Kind, "project deletion must be opt-in")
	}
}

func TestPlannerResourcesTeardownWithProjectDeletion(t *testing.T) {
	planner := NewPlanner(testNames(), true)
	resources := planner.Resources(ModeTeardown)

	require.NotEmpty(t, resources)
	assert.Equal(t, KindProject, resources[len(resources)-1].Kind,
		"project deletion must come after every resource inside it")
}

func TestPlannerPlanOrderIndependentOfObservedState(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeSetup)

	// A dependency that is already present keeps its position ahead of an
	// absent dependent; present resources are skipped at execution, not
	// reordered at planning.
	observed := allStates(resources, StateAbsent)
	observed[Resource{Kind: KindProject, Name: testNames().ProjectID}] = StatePresent

	actions, err := planner.Plan(ModeSetup, observed)
	require.NoError(t, err)
	require.Len(t, actions, len(resources))

	for i, action := range actions {
		assert.Equal(t, resources[i], action.Resource)
	}
	assert.Equal(t, StatePresent, actions[0].Observed)
	assert.Equal(t, StateAbsent, actions[1].Observed)
}

func TestPlannerPlanInaccessibleResourceAborts(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeSetup)

	observed := allStates(resources, StateAbsent)
	observed[Resource{Kind: KindProject, Name: testNames().ProjectID}] = StateInaccessible

	actions, err := planner.Plan(ModeSetup, observed)
	require.Error(t, err)
	assert.Nil(t, actions)
	assert.Equal(t, FailureInaccessible, ClassOf(err))
}

func TestPlannerPlanAlwaysActions(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeSetup)

	actions, err := planner.Plan(ModeSetup, allStates(resources, StatePresent))
	require.NoError(t, err)

	for _, action := range actions {
		switch action.Resource.Kind {
		case KindIAMBinding:
			assert.True(t, action.Always, "IAM grants are re-applied on every run")
		default:
			assert.False(t, action.Always, "%s must be skippable", action.Resource)
		}
	}
}

func TestPlannerPlanTeardownNeverAlways(t *testing.T) {
	planner := NewPlanner(testNames(), true)
	resources := planner.Resources(ModeTeardown)

	actions, err := planner.Plan(ModeTeardown, allStates(resources, StateAbsent))
	require.NoError(t, err)

	for _, action := range actions {
		assert.Equal(t, VerbDelete, action.Verb)
		assert.False(t, action.Always)
	}
}

func TestPlannerPlanDeployAppendsWaits(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeDeploy)

	actions, err := planner.Plan(ModeDeploy, allStates(resources, StateAbsent))
	require.NoError(t, err)
	require.Len(t, actions, len(resources)+3)

	tail := actions[len(actions)-3:]
	assert.Equal(t, VerbAwaitRollout, tail[0].Verb)
	assert.Equal(t, VerbAwaitEndpoint, tail[1].Verb)
	assert.Equal(t, VerbHealthCheck, tail[2].Verb)
}

func TestPlannerPlanDeployWorkloadAlways(t *testing.T) {
	planner := NewPlanner(testNames(), false)
	resources := planner.Resources(ModeDeploy)

	actions, err := planner.Plan(ModeDeploy, allStates(resources, StatePresent))
	require.NoError(t, err)

	for _, action := range actions {
		if action.Verb == VerbCreate && action.Resource.Kind == KindWorkload {
			assert.True(t, action.Always, "redeploys must re-apply the workload to carry image updates")
		}
	}
}

func TestActionNames(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		want   string
	}{
		{
			name:   "create project",
			action: Action{Verb: VerbCreate, Resource: Resource{Kind: KindProject, Name: "p"}},
			want:   "create-project",
		},
		{
			name:   "enable api carries the service",
			action: Action{Verb: VerbCreate, Resource: Resource{Kind: KindAPI, Name: "container.googleapis.com"}},
			want:   "enable-api container.googleapis.com",
		},
		{
			name:   "bind iam carries the role",
			action: Action{Verb: VerbCreate, Resource: Resource{Kind: KindIAMBinding, Name: "roles/logging.logWriter"}},
			want:   "bind-iam roles/logging.logWriter",
		},
		{
			name:   "delete cluster",
			action: Action{Verb: VerbDelete, Resource: Resource{Kind: KindCluster, Name: "c"}},
			want:   "delete-cluster",
		},
		{
			name:   "await endpoint",
			action: Action{Verb: VerbAwaitEndpoint, Resource: Resource{Kind: KindWorkload, Name: "w"}},
			want:   "await-endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.action.Name())
		})
	}
}
