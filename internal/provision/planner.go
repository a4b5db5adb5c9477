package provision

import (
	"fmt"
)

// Verb is what an action does to its resource.
type Verb int

const (
	VerbCreate Verb = iota
	VerbDelete
	VerbAwaitRollout
	VerbAwaitEndpoint
	VerbHealthCheck
)

// Action is one planned step. Each mutating action wraps exactly one
// external call; the await verbs only poll and the health check only reads.
type Action struct {
	Verb     Verb
	Resource Resource
	// Observed is the probed state feeding the skip decision.
	Observed State
	// Always forces execution even when the target is present. IAM-binding
	// grants are idempotent at the platform level and re-applying guards
	// against policy drift.
	Always bool
}

// Name returns the operator-facing action name used in run reports.
func (a Action) Name() string {
	switch a.Verb {
	case VerbAwaitRollout:
		return "await-rollout"
	case VerbAwaitEndpoint:
		return "await-endpoint"
	case VerbHealthCheck:
		return "health-check"
	case VerbDelete:
		return deleteActionName(a.Resource)
	default:
		return createActionName(a.Resource)
	}
}

func createActionName(r Resource) string {
	switch r.Kind {
	case KindProject:
		return "create-project"
	case KindBilling:
		return "link-billing"
	case KindAPI:
		return "enable-api " + r.Name
	case KindRegistry:
		return "create-registry"
	case KindServiceAccount:
		return "create-service-account"
	case KindIAMBinding:
		return "bind-iam " + r.Name
	case KindCluster:
		return "create-cluster"
	case KindNamespace:
		return "create-namespace"
	case KindImage:
		return "push-image"
	case KindWorkload:
		return "apply-workload"
	default:
		return "create-" + r.Kind.String()
	}
}

func deleteActionName(r Resource) string {
	switch r.Kind {
	case KindIAMBinding:
		return "unbind-iam " + r.Name
	case KindWorkload:
		return "delete-workload"
	default:
		return "delete-" + r.Kind.String()
	}
}

// Planner turns probed state into the ordered list of remaining actions.
// Ordering is the fixed dependency order of the resource set; a dependency
// that is already present still holds its position (the constraint is about
// scheduling order, not about re-creating satisfied dependencies), and its
// action is skipped at execution time.
type Planner struct {
	names         Names
	deleteProject bool
}

// NewPlanner creates a planner over the derived resource names. When
// deleteProject is set, teardown plans project deletion as its final step.
func NewPlanner(names Names, deleteProject bool) *Planner {
	return &Planner{names: names, deleteProject: deleteProject}
}

// Resources returns the managed resources of a mode in dependency order.
// This is also the probe sweep order.
func (p *Planner) Resources(mode Mode) []Resource {
	n := p.names

	switch mode {
	case ModeSetup:
		resources := []Resource{
			{Kind: KindProject, Name: n.ProjectID},
			{Kind: KindBilling, Name: n.BillingAccount},
		}
		for _, svc := range n.Services {
			resources = append(resources, Resource{Kind: KindAPI, Name: svc})
		}
		resources = append(resources,
			Resource{Kind: KindRegistry, Name: n.Repository},
			Resource{Kind: KindServiceAccount, Name: n.ServiceAccountEmail()},
		)
		for _, role := range n.Roles {
			resources = append(resources, Resource{Kind: KindIAMBinding, Name: role})
		}
		return append(resources,
			Resource{Kind: KindCluster, Name: n.Cluster},
			Resource{Kind: KindNamespace, Name: n.Namespace},
		)

	case ModeDeploy:
		return []Resource{
			{Kind: KindImage, Name: n.ImageRef()},
			{Kind: KindWorkload, Name: n.Workload},
		}

	case ModeTeardown:
		resources := []Resource{
			{Kind: KindWorkload, Name: n.Workload},
			{Kind: KindNamespace, Name: n.Namespace},
			{Kind: KindCluster, Name: n.Cluster},
			{Kind: KindServiceAccount, Name: n.ServiceAccountEmail()},
		}
		for _, role := range n.Roles {
			resources = append(resources, Resource{Kind: KindIAMBinding, Name: role})
		}
		resources = append(resources, Resource{Kind: KindRegistry, Name: n.Repository})
		if p.deleteProject {
			resources = append(resources, Resource{Kind: KindProject, Name: n.ProjectID})
		}
		return resources

	default:
		return nil
	}
}

// Plan builds the ordered action list for a mode from observed state. An
// inaccessible resource aborts planning: creation would either fail or
// silently target a resource owned by someone else.
func (p *Planner) Plan(mode Mode, observed map[Resource]State) ([]Action, error) {
	resources := p.Resources(mode)

	for _, res := range resources {
		if observed[res] == StateInaccessible {
			return nil, NewFault(FailureInaccessible, fmt.Errorf(
				"%s exists but is not accessible with the current credentials; it may belong to another owner", res))
		}
	}

	verb := VerbCreate
	if mode == ModeTeardown {
		verb = VerbDelete
	}

	actions := make([]Action, 0, len(resources)+3)
	for _, res := range resources {
		// IAM grants and workload applies are idempotent and re-applied even
		// when present: grants guard against policy drift, applies carry
		// image updates.
		always := verb == VerbCreate && (res.Kind == KindIAMBinding || res.Kind == KindWorkload)
		actions = append(actions, Action{
			Verb:     verb,
			Resource: res,
			Observed: observed[res],
			Always:   always,
		})
	}

	if mode == ModeDeploy {
		workload := Resource{Kind: KindWorkload, Name: p.names.Workload}
		actions = append(actions,
			Action{Verb: VerbAwaitRollout, Resource: workload},
			Action{Verb: VerbAwaitEndpoint, Resource: workload},
			Action{Verb: VerbHealthCheck, Resource: workload},
		)
	}

	return actions, nil
}
