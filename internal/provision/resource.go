// Package provision implements the idempotent provisioning workflow: probing
// managed resources, planning the remaining actions in dependency order,
// executing them with bounded retry, and aggregating a run report. The
// external platform is the source of truth; every run reconstructs state
// from live probes and only the project identifier is persisted locally.
package provision

import (
	"fmt"

	"github.com/enclaveops/enclavectl/internal/constants"
)

// Mode selects which workflow the orchestrator runs.
type Mode int

const (
	ModeSetup Mode = iota
	ModeDeploy
	ModeTeardown
)

func (m Mode) String() string {
	switch m {
	case ModeSetup:
		return "setup"
	case ModeDeploy:
		return "deploy"
	case ModeTeardown:
		return "teardown"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Kind enumerates the managed resource kinds.
type Kind int

const (
	KindProject Kind = iota
	KindBilling
	KindAPI
	KindRegistry
	KindServiceAccount
	KindIAMBinding
	KindCluster
	KindNamespace
	KindImage
	KindWorkload
)

func (k Kind) String() string {
	switch k {
	case KindProject:
		return "project"
	case KindBilling:
		return "billing"
	case KindAPI:
		return "api"
	case KindRegistry:
		return "registry"
	case KindServiceAccount:
		return "service-account"
	case KindIAMBinding:
		return "iam-binding"
	case KindCluster:
		return "cluster"
	case KindNamespace:
		return "namespace"
	case KindImage:
		return "image"
	case KindWorkload:
		return "workload"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is the observed state of a managed resource.
type State int

const (
	StateUnknown State = iota
	StateAbsent
	StatePresent
	// StateInaccessible means the resource exists under a different owner or
	// permission set. Creation would either fail or silently target the
	// wrong resource, so this state aborts the workflow.
	StateInaccessible
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	case StateInaccessible:
		return "inaccessible"
	default:
		return "unknown"
	}
}

// Resource identifies one managed resource: a kind plus the identifier
// within that kind (service name for APIs, role for IAM bindings, and so
// on). Resources are comparable and used as probe map keys.
type Resource struct {
	Kind Kind
	Name string
}

func (r Resource) String() string {
	return r.Kind.String() + "/" + r.Name
}

// Names derives every managed resource name deterministically from the root
// project identifier and fixed suffixes, so re-running the workflow always
// targets the same resource set.
type Names struct {
	ProjectID      string
	Region         string
	BillingAccount string
	Cluster        string
	Repository     string
	ServiceAccount string
	Namespace      string
	Workload       string
	ImageTag       string
	Services       []string
	Roles          []string
}

// NewNames builds the derived name set for a project identifier.
func NewNames(projectID, region, billingAccount, imageTag string) Names {
	return Names{
		ProjectID:      projectID,
		Region:         region,
		BillingAccount: billingAccount,
		Cluster:        constants.ClusterName,
		Repository:     constants.RegistryRepository,
		ServiceAccount: constants.ServiceAccountID,
		Namespace:      constants.Namespace,
		Workload:       constants.AppName,
		ImageTag:       imageTag,
		Services:       constants.RequiredServices,
		Roles:          constants.ServiceAccountRoles,
	}
}

// ServiceAccountEmail returns the full service account email.
func (n Names) ServiceAccountEmail() string {
	return fmt.Sprintf("%s@%s.iam.gserviceaccount.com", n.ServiceAccount, n.ProjectID)
}

// RegistryHost returns the regional Artifact Registry docker host.
func (n Names) RegistryHost() string {
	return n.Region + "-docker.pkg.dev"
}

// ImageRef returns the fully qualified image reference for the demo app.
func (n Names) ImageRef() string {
	return fmt.Sprintf("%s/%s/%s/%s:%s", n.RegistryHost(), n.ProjectID, n.Repository, n.Workload, n.ImageTag)
}
