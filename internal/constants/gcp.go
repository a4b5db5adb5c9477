package constants

import "time"

const (
	// DefaultRegion is the GCP region used when no region is configured.
	DefaultRegion = "us-central1"

	// DefaultMachineType is the confidential-computing node machine type.
	// Confidential GKE nodes require the N2D (AMD SEV) family.
	DefaultMachineType = "n2d-standard-2"

	// DefaultNodeCount is the initial node count for the demo cluster.
	DefaultNodeCount = 2

	// AppName is the base name every derived resource name is built from.
	AppName = "confidential-app"

	// ClusterName is the GKE cluster that hosts the demo workload.
	ClusterName = "confidential-cluster"

	// ServiceAccountID is the workload service account short name.
	ServiceAccountID = "confidential-app-sa"

	// RegistryRepository is the Artifact Registry docker repository.
	RegistryRepository = "confidential-app"

	// Namespace is the Kubernetes namespace for the demo workload.
	Namespace = "confidential-app"

	// DefaultImageTag is the image tag pushed and deployed by default.
	DefaultImageTag = "latest"

	// DefaultHealthPath is the demo service liveness endpoint probed after
	// deploy as the final acceptance check.
	DefaultHealthPath = "/api/v1/health"

	// ContainerPort is the port the demo service listens on.
	ContainerPort = 8080

	// ServicePort is the external load balancer port.
	ServicePort = 80
)

// RequiredServices are the platform APIs enabled on a freshly created
// project, each as its own plan step.
var RequiredServices = []string{
	"compute.googleapis.com",
	"container.googleapis.com",
	"artifactregistry.googleapis.com",
	"iam.googleapis.com",
	"cloudresourcemanager.googleapis.com",
}

// ServiceAccountRoles are the project-level roles granted to the workload
// service account. Grants are idempotent and re-applied on every setup run.
var ServiceAccountRoles = []string{
	"roles/artifactregistry.reader",
	"roles/logging.logWriter",
}

const (
	// ProjectPollInterval is the interval at which to poll for project
	// lifecycle changes.
	ProjectPollInterval = 5 * time.Second

	// ProjectOperationTimeout bounds project create/delete waits.
	ProjectOperationTimeout = 5 * time.Minute

	// ClusterPollInterval is the interval at which to poll cluster state.
	ClusterPollInterval = 15 * time.Second

	// ClusterOperationTimeout bounds cluster create/delete waits.
	ClusterOperationTimeout = 20 * time.Minute

	// EndpointPollInterval is the interval at which to poll for an external
	// load balancer IP. The shell scripts this replaces looped 30 times with
	// a 10 second sleep; the same budget expressed as interval and timeout.
	EndpointPollInterval = 10 * time.Second

	// EndpointTimeout bounds the external IP wait.
	EndpointTimeout = 5 * time.Minute

	// RolloutPollInterval is the interval at which to poll rollout status.
	RolloutPollInterval = 5 * time.Second

	// RolloutTimeout bounds the workload rollout wait.
	RolloutTimeout = 10 * time.Minute

	// RetryBaseDelay is the initial backoff for transient failures.
	RetryBaseDelay = 2 * time.Second

	// RetryMaxAttempts caps retries of a single action on transient failures.
	RetryMaxAttempts = 4

	// HealthCheckTimeout bounds the single acceptance HTTP probe.
	HealthCheckTimeout = 30 * time.Second
)
