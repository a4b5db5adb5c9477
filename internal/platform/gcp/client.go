// Package gcp adapts the Google Cloud APIs to the provisioning workflow's
// probe/create/delete capability set, classifying platform errors at the
// boundary.
package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	resourcemanager "cloud.google.com/go/resourcemanager/apiv3"
	"cloud.google.com/go/resourcemanager/apiv3/resourcemanagerpb"
	"google.golang.org/api/artifactregistry/v1"
	"google.golang.org/api/cloudbilling/v1"
	"google.golang.org/api/cloudresourcemanager/v3"
	"google.golang.org/api/container/v1"
	"google.golang.org/api/iam/v1"
	"google.golang.org/api/serviceusage/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/enclaveops/enclavectl/internal/constants"
	"github.com/enclaveops/enclavectl/internal/provision"
)

const (
	clusterStatusRunning      = "RUNNING"
	clusterStatusProvisioning = "PROVISIONING"
	serviceStateEnabled       = "ENABLED"
)

// ClusterConfig carries the cluster creation parameters sourced once from
// configuration.
type ClusterConfig struct {
	MachineType string
	NodeCount   int
	// FallbackRegion, when non-empty, is tried once if cluster creation in
	// the primary region fails with a quota error. Explicitly configured;
	// never a silent default.
	FallbackRegion string
}

// Client implements the Google Cloud side of the workflow: project, billing
// link, API enablement, registry repository, service account, IAM bindings,
// and the GKE cluster with confidential nodes.
type Client struct {
	projects *resourcemanager.ProjectsClient
	billing  *cloudbilling.APIService
	services *serviceusage.Service
	gke      *container.Service
	registry *artifactregistry.Service
	iam      *iam.Service
	crm      *cloudresourcemanager.Service

	region  string
	cluster ClusterConfig
	logger  *slog.Logger
}

// NewClient builds a Client with default application credentials.
func NewClient(ctx context.Context, region string, cluster ClusterConfig, logger *slog.Logger) (*Client, error) {
	projects, err := resourcemanager.NewProjectsClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create projects client: %w", err)
	}

	billingSvc, err := cloudbilling.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create billing service: %w", err)
	}

	serviceUsageSvc, err := serviceusage.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create service usage service: %w", err)
	}

	gkeSvc, err := container.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create container service: %w", err)
	}

	registrySvc, err := artifactregistry.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create artifact registry service: %w", err)
	}

	iamSvc, err := iam.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create iam service: %w", err)
	}

	crmSvc, err := cloudresourcemanager.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create resource manager service: %w", err)
	}

	if region == "" {
		region = constants.DefaultRegion
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		projects: projects,
		billing:  billingSvc,
		services: serviceUsageSvc,
		gke:      gkeSvc,
		registry: registrySvc,
		iam:      iamSvc,
		crm:      crmSvc,
		region:   region,
		cluster:  cluster,
		logger:   logger,
	}, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.projects.Close()
}

// ---- project ----

// ProbeProject checks project existence without mutating anything. A
// permission denial that does not carry the platform's "may not exist" hint
// means the identifier is taken by someone else.
func (c *Client) ProbeProject(ctx context.Context, projectID string) (provision.State, error) {
	_, err := c.projects.GetProject(ctx, &resourcemanagerpb.GetProjectRequest{
		Name: "projects/" + projectID,
	})
	if err == nil {
		return provision.StatePresent, nil
	}

	switch status.Code(err) {
	case codes.NotFound:
		return provision.StateAbsent, nil
	case codes.PermissionDenied:
		if strings.Contains(err.Error(), "or it may not exist") {
			return provision.StateAbsent, nil
		}
		return provision.StateInaccessible, nil
	default:
		return provision.StateUnknown, wrap("get project", err)
	}
}

// CreateProject creates the project and waits until it is visible to reads,
// since dependent steps hit eventual-consistency lag otherwise.
func (c *Client) CreateProject(ctx context.Context, projectID string) error {
	op, err := c.projects.CreateProject(ctx, &resourcemanagerpb.CreateProjectRequest{
		Project: &resourcemanagerpb.Project{ProjectId: projectID},
	})
	if err != nil {
		return wrap("create project", err)
	}

	if _, err := op.Wait(ctx); err != nil {
		return wrap("wait for project creation", err)
	}

	return provision.Poll(ctx, constants.ProjectPollInterval, constants.ProjectOperationTimeout,
		func(ctx context.Context) (bool, error) {
			state, probeErr := c.ProbeProject(ctx, projectID)
			if probeErr != nil {
				return false, probeErr
			}
			return state == provision.StatePresent, nil
		})
}

// DeleteProject requests project deletion. The platform holds deleted
// projects in a recoverable state for a grace period; the request returning
// is enough for teardown.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	_, err := c.projects.DeleteProject(ctx, &resourcemanagerpb.DeleteProjectRequest{
		Name: "projects/" + projectID,
	})
	return wrap("delete project", err)
}

// ---- billing ----

// ProbeBillingLink reports whether the project is linked to a billing
// account.
func (c *Client) ProbeBillingLink(ctx context.Context, projectID string) (provision.State, error) {
	info, err := c.billing.Projects.GetBillingInfo("projects/" + projectID).Context(ctx).Do()
	if err != nil {
		return c.probeState(err, "get billing info")
	}
	if info.BillingEnabled {
		return provision.StatePresent, nil
	}
	return provision.StateAbsent, nil
}

// LinkBilling links the project to the configured billing account.
func (c *Client) LinkBilling(ctx context.Context, projectID, billingAccount string) error {
	_, err := c.billing.Projects.UpdateBillingInfo("projects/"+projectID, &cloudbilling.ProjectBillingInfo{
		BillingAccountName: "billingAccounts/" + billingAccount,
	}).Context(ctx).Do()
	return wrap("link billing account", err)
}

// ---- platform APIs ----

// ProbeService reports whether a platform API is enabled on the project.
func (c *Client) ProbeService(ctx context.Context, projectID, service string) (provision.State, error) {
	name := fmt.Sprintf("projects/%s/services/%s", projectID, service)
	svc, err := c.services.Services.Get(name).Context(ctx).Do()
	if err != nil {
		return c.probeState(err, "get service state")
	}
	if svc.State == serviceStateEnabled {
		return provision.StatePresent, nil
	}
	return provision.StateAbsent, nil
}

// EnableService enables one platform API and waits for the enablement to be
// visible.
func (c *Client) EnableService(ctx context.Context, projectID, service string) error {
	name := fmt.Sprintf("projects/%s/services/%s", projectID, service)
	if _, err := c.services.Services.Enable(name, &serviceusage.EnableServiceRequest{}).Context(ctx).Do(); err != nil {
		return wrap("enable service "+service, err)
	}

	return provision.Poll(ctx, constants.ProjectPollInterval, constants.ProjectOperationTimeout,
		func(ctx context.Context) (bool, error) {
			state, probeErr := c.ProbeService(ctx, projectID, service)
			if probeErr != nil {
				return false, probeErr
			}
			return state == provision.StatePresent, nil
		})
}

// ---- artifact registry ----

func (c *Client) repositoryName(projectID, repo string) string {
	return fmt.Sprintf("projects/%s/locations/%s/repositories/%s", projectID, c.region, repo)
}

// ProbeRepository reports whether the docker repository exists.
func (c *Client) ProbeRepository(ctx context.Context, projectID, repo string) (provision.State, error) {
	_, err := c.registry.Projects.Locations.Repositories.Get(c.repositoryName(projectID, repo)).
		Context(ctx).
		Do()
	if err != nil {
		return c.probeState(err, "get repository")
	}
	return provision.StatePresent, nil
}

// CreateRepository creates the docker repository for the demo image.
func (c *Client) CreateRepository(ctx context.Context, projectID, repo string) error {
	parent := fmt.Sprintf("projects/%s/locations/%s", projectID, c.region)
	_, err := c.registry.Projects.Locations.Repositories.Create(parent, &artifactregistry.Repository{
		Format: "DOCKER",
	}).RepositoryId(repo).Context(ctx).Do()
	return wrap("create repository", err)
}

// DeleteRepository deletes the docker repository and every image in it.
func (c *Client) DeleteRepository(ctx context.Context, projectID, repo string) error {
	_, err := c.registry.Projects.Locations.Repositories.Delete(c.repositoryName(projectID, repo)).
		Context(ctx).
		Do()
	return wrap("delete repository", err)
}

// ---- service account ----

func serviceAccountName(projectID, email string) string {
	return fmt.Sprintf("projects/%s/serviceAccounts/%s", projectID, email)
}

// ProbeServiceAccount reports whether the workload service account exists.
func (c *Client) ProbeServiceAccount(ctx context.Context, projectID, email string) (provision.State, error) {
	_, err := c.iam.Projects.ServiceAccounts.Get(serviceAccountName(projectID, email)).
		Context(ctx).
		Do()
	if err != nil {
		return c.probeState(err, "get service account")
	}
	return provision.StatePresent, nil
}

// CreateServiceAccount creates the workload service account and waits for it
// to become visible; a just-created account is not immediately readable by
// dependent calls.
func (c *Client) CreateServiceAccount(ctx context.Context, projectID, accountID, email string) error {
	_, err := c.iam.Projects.ServiceAccounts.Create("projects/"+projectID, &iam.CreateServiceAccountRequest{
		AccountId: accountID,
		ServiceAccount: &iam.ServiceAccount{
			DisplayName: "Confidential demo workload",
		},
	}).Context(ctx).Do()
	if err != nil {
		return wrap("create service account", err)
	}

	return provision.Poll(ctx, constants.ProjectPollInterval, constants.ProjectOperationTimeout,
		func(ctx context.Context) (bool, error) {
			state, probeErr := c.ProbeServiceAccount(ctx, projectID, email)
			if probeErr != nil {
				return false, probeErr
			}
			return state == provision.StatePresent, nil
		})
}

// DeleteServiceAccount deletes the workload service account.
func (c *Client) DeleteServiceAccount(ctx context.Context, projectID, email string) error {
	_, err := c.iam.Projects.ServiceAccounts.Delete(serviceAccountName(projectID, email)).
		Context(ctx).
		Do()
	return wrap("delete service account", err)
}

// ---- IAM bindings ----

// ProbeBinding reports whether the member already holds the role on the
// project. Bindings always re-apply, so this only feeds reporting.
func (c *Client) ProbeBinding(ctx context.Context, projectID, member, role string) (provision.State, error) {
	policy, err := c.crm.Projects.GetIamPolicy("projects/"+projectID, &cloudresourcemanager.GetIamPolicyRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return c.probeState(err, "get iam policy")
	}

	for _, binding := range policy.Bindings {
		if binding.Role != role {
			continue
		}
		for _, m := range binding.Members {
			if m == member {
				return provision.StatePresent, nil
			}
		}
	}
	return provision.StateAbsent, nil
}

// AddBinding grants the role to the member. Granting an existing binding is
// a no-op at the platform level.
func (c *Client) AddBinding(ctx context.Context, projectID, member, role string) error {
	resource := "projects/" + projectID
	policy, err := c.crm.Projects.GetIamPolicy(resource, &cloudresourcemanager.GetIamPolicyRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return wrap("get iam policy", err)
	}

	if !bindingExists(policy.Bindings, role, member) {
		policy.Bindings = append(policy.Bindings, &cloudresourcemanager.Binding{
			Role:    role,
			Members: []string{member},
		})
	}

	_, err = c.crm.Projects.SetIamPolicy(resource, &cloudresourcemanager.SetIamPolicyRequest{Policy: policy}).
		Context(ctx).
		Do()
	return wrap("set iam policy", err)
}

// RemoveBinding revokes the role from the member.
func (c *Client) RemoveBinding(ctx context.Context, projectID, member, role string) error {
	resource := "projects/" + projectID
	policy, err := c.crm.Projects.GetIamPolicy(resource, &cloudresourcemanager.GetIamPolicyRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return wrap("get iam policy", err)
	}

	policy.Bindings = removeBinding(policy.Bindings, role, member)

	_, err = c.crm.Projects.SetIamPolicy(resource, &cloudresourcemanager.SetIamPolicyRequest{Policy: policy}).
		Context(ctx).
		Do()
	return wrap("set iam policy", err)
}

func bindingExists(bindings []*cloudresourcemanager.Binding, role, member string) bool {
	for _, b := range bindings {
		if b.Role != role {
			continue
		}
		for _, m := range b.Members {
			if m == member {
				return true
			}
		}
	}
	return false
}

func removeBinding(bindings []*cloudresourcemanager.Binding, role, member string) []*cloudresourcemanager.Binding {
	result := make([]*cloudresourcemanager.Binding, 0, len(bindings))
	for _, b := range bindings {
		if b.Role == role {
			members := make([]string, 0, len(b.Members))
			for _, m := range b.Members {
				if m != member {
					members = append(members, m)
				}
			}
			if len(members) == 0 {
				continue
			}
			b.Members = members
		}
		result = append(result, b)
	}
	return result
}

// ---- cluster ----

func (c *Client) clusterName(projectID, region, cluster string) string {
	return fmt.Sprintf("projects/%s/locations/%s/clusters/%s", projectID, region, cluster)
}

// regions returns the candidate cluster regions: the primary region, then
// the fallback when one is configured. Every cluster lookup and the delete
// must scan the same set, or a cluster created in the fallback region after
// a quota rejection would be missed.
func (c *Client) regions() []string {
	regions := []string{c.region}
	if c.cluster.FallbackRegion != "" {
		regions = append(regions, c.cluster.FallbackRegion)
	}
	return regions
}

// scanRegions returns the first region where get succeeds. Not-found moves
// on to the next candidate; any other error aborts the scan. When the target
// is absent everywhere the last not-found error is returned.
func scanRegions(regions []string, get func(region string) error) (string, error) {
	var lastErr error
	for _, region := range regions {
		err := get(region)
		if err == nil {
			return region, nil
		}
		if !isNotFound(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// ProbeCluster reports whether the GKE cluster exists in the primary region,
// or in the fallback region when one is configured.
func (c *Client) ProbeCluster(ctx context.Context, projectID, cluster string) (provision.State, error) {
	for _, region := range c.regions() {
		_, err := c.gke.Projects.Locations.Clusters.Get(c.clusterName(projectID, region, cluster)).
			Context(ctx).
			Do()
		if err == nil {
			return provision.StatePresent, nil
		}
		state, probeErr := c.probeState(err, "get cluster")
		if probeErr != nil || state != provision.StateAbsent {
			return state, probeErr
		}
	}
	return provision.StateAbsent, nil
}

// ClusterInfo carries what a Kubernetes client needs to reach the cluster
// control plane directly.
type ClusterInfo struct {
	Endpoint string
	// CACert is the cluster CA certificate, base64 encoded as returned by
	// the platform API.
	CACert string
	Region string
}

// GetClusterInfo returns the control plane endpoint and CA certificate of the
// cluster, checking the fallback region when one is configured.
func (c *Client) GetClusterInfo(ctx context.Context, projectID, cluster string) (*ClusterInfo, error) {
	var info *ClusterInfo
	region, err := scanRegions(c.regions(), func(region string) error {
		got, err := c.gke.Projects.Locations.Clusters.Get(c.clusterName(projectID, region, cluster)).
			Context(ctx).
			Do()
		if err != nil {
			return wrap("get cluster", err)
		}
		info = &ClusterInfo{
			Endpoint: got.Endpoint,
			CACert:   got.MasterAuth.ClusterCaCertificate,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	info.Region = region
	return info, nil
}

// CreateCluster creates the confidential-node cluster and waits for it to
// reach RUNNING. When a fallback region is configured and the primary region
// rejects the request on quota, the creation is retried once against the
// fallback region; without the option, quota failures stay fatal.
func (c *Client) CreateCluster(ctx context.Context, projectID, cluster, serviceAccountEmail string) error {
	err := c.createClusterIn(ctx, projectID, c.region, cluster, serviceAccountEmail)
	if err == nil {
		return nil
	}

	if provision.ClassOf(err) == provision.FailureQuotaExceeded && c.cluster.FallbackRegion != "" {
		c.logger.Warn("cluster creation hit quota, retrying in fallback region",
			"region", c.region,
			"fallback_region", c.cluster.FallbackRegion,
		)
		return c.createClusterIn(ctx, projectID, c.cluster.FallbackRegion, cluster, serviceAccountEmail)
	}

	return err
}

func (c *Client) createClusterIn(ctx context.Context, projectID, region, cluster, serviceAccountEmail string) error {
	parent := fmt.Sprintf("projects/%s/locations/%s", projectID, region)
	req := &container.CreateClusterRequest{
		Cluster: &container.Cluster{
			Name:             cluster,
			InitialNodeCount: int64(c.cluster.NodeCount),
			ConfidentialNodes: &container.ConfidentialNodes{
				Enabled: true,
			},
			NodeConfig: &container.NodeConfig{
				MachineType:    c.cluster.MachineType,
				ServiceAccount: serviceAccountEmail,
				OauthScopes: []string{
					"https://www.googleapis.com/auth/cloud-platform",
				},
			},
		},
	}

	if _, err := c.gke.Projects.Locations.Clusters.Create(parent, req).Context(ctx).Do(); err != nil {
		return wrap("create cluster", err)
	}

	return provision.Poll(ctx, constants.ClusterPollInterval, constants.ClusterOperationTimeout,
		func(ctx context.Context) (bool, error) {
			got, err := c.gke.Projects.Locations.Clusters.Get(c.clusterName(projectID, region, cluster)).
				Context(ctx).
				Do()
			if err != nil {
				return false, wrap("get cluster", err)
			}
			switch got.Status {
			case clusterStatusRunning:
				return true, nil
			case clusterStatusProvisioning:
				return false, nil
			default:
				return false, provision.NewFault(provision.FailureUnknown,
					fmt.Errorf("cluster entered unexpected status %s: %s", got.Status, got.StatusMessage))
			}
		})
}

// DeleteCluster deletes the cluster and waits until it is gone so teardown
// can proceed to the resources it depends on. The cluster's actual region is
// resolved first: a cluster that was created in the fallback region must be
// deleted there, not reported absent in the primary region.
func (c *Client) DeleteCluster(ctx context.Context, projectID, cluster string) error {
	region, err := scanRegions(c.regions(), func(region string) error {
		_, err := c.gke.Projects.Locations.Clusters.Get(c.clusterName(projectID, region, cluster)).
			Context(ctx).
			Do()
		return wrap("get cluster", err)
	})
	if err != nil {
		// Absent everywhere surfaces as not-found, which teardown treats as
		// already done.
		return err
	}

	name := c.clusterName(projectID, region, cluster)
	if _, err := c.gke.Projects.Locations.Clusters.Delete(name).Context(ctx).Do(); err != nil {
		return wrap("delete cluster", err)
	}

	return provision.Poll(ctx, constants.ClusterPollInterval, constants.ClusterOperationTimeout,
		func(ctx context.Context) (bool, error) {
			_, err := c.gke.Projects.Locations.Clusters.Get(name).Context(ctx).Do()
			if isNotFound(err) {
				return true, nil
			}
			if err != nil {
				return false, wrap("get cluster", err)
			}
			return false, nil
		})
}

// probeState maps a probe error onto a state: not-found means absent,
// permission denial means the resource exists under someone else's
// ownership, anything else is a hard probe failure.
func (c *Client) probeState(err error, action string) (provision.State, error) {
	switch classify(err) {
	case provision.FailureNotFound:
		return provision.StateAbsent, nil
	case provision.FailurePermissionDenied:
		return provision.StateInaccessible, nil
	default:
		return provision.StateUnknown, wrap(action, err)
	}
}
