// Package platform composes the Google Cloud, Kubernetes, and container
// registry adapters into the single capability set the provisioning workflow
// consumes, routing each resource kind to the client that owns it.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/enclaveops/enclavectl/internal/constants"
	"github.com/enclaveops/enclavectl/internal/platform/gcp"
	"github.com/enclaveops/enclavectl/internal/platform/kube"
	"github.com/enclaveops/enclavectl/internal/platform/registry"
	"github.com/enclaveops/enclavectl/internal/provision"
)

// Provider implements provision.Platform over the per-service clients.
// Project, billing, API, registry repository, service account, IAM binding,
// and cluster operations go to Google Cloud; namespace and workload
// operations go to Kubernetes; image operations go to the registry.
type Provider struct {
	gcp      *gcp.Client
	registry *registry.Client
	names    provision.Names

	healthPath   string
	healthClient *http.Client
	logger       *slog.Logger

	// kube is built lazily from the live cluster endpoint, since during
	// setup the cluster does not exist until mid-run.
	kube *kube.Client

	// projectState caches the project probe within one run. Child resources
	// of an absent project are reported absent without touching their APIs,
	// because the platform answers permission-denied for children of a
	// project that does not exist.
	projectState provision.State
	clusterState provision.State
}

// New composes a Provider over the given clients.
func New(gcpClient *gcp.Client, registryClient *registry.Client, names provision.Names, healthPath string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		gcp:          gcpClient,
		registry:     registryClient,
		names:        names,
		healthPath:   healthPath,
		healthClient: &http.Client{Timeout: constants.HealthCheckTimeout},
		logger:       logger,
	}
}

// Probe reports the live state of one managed resource without mutating
// anything.
func (p *Provider) Probe(ctx context.Context, res provision.Resource) (provision.State, error) {
	if res.Kind == provision.KindProject {
		state, err := p.gcp.ProbeProject(ctx, p.names.ProjectID)
		if err == nil {
			p.projectState = state
		}
		return state, err
	}

	projectState, err := p.project(ctx)
	if err != nil {
		return provision.StateUnknown, err
	}
	if projectState != provision.StatePresent {
		return provision.StateAbsent, nil
	}

	switch res.Kind {
	case provision.KindBilling:
		return p.gcp.ProbeBillingLink(ctx, p.names.ProjectID)
	case provision.KindAPI:
		return p.gcp.ProbeService(ctx, p.names.ProjectID, res.Name)
	case provision.KindRegistry:
		return p.gcp.ProbeRepository(ctx, p.names.ProjectID, res.Name)
	case provision.KindServiceAccount:
		return p.gcp.ProbeServiceAccount(ctx, p.names.ProjectID, res.Name)
	case provision.KindIAMBinding:
		return p.gcp.ProbeBinding(ctx, p.names.ProjectID, p.member(), res.Name)
	case provision.KindCluster:
		state, err := p.gcp.ProbeCluster(ctx, p.names.ProjectID, res.Name)
		if err == nil {
			p.clusterState = state
		}
		return state, err
	case provision.KindImage:
		return p.registry.ProbeImage(ctx, res.Name)
	case provision.KindNamespace, provision.KindWorkload:
		return p.probeInCluster(ctx, res)
	default:
		return provision.StateUnknown, fmt.Errorf("probe: unsupported resource kind %s", res.Kind)
	}
}

// Create brings one managed resource into existence. Each call wraps exactly
// one mutating platform operation, so a retry never compounds effects.
func (p *Provider) Create(ctx context.Context, res provision.Resource) error {
	switch res.Kind {
	case provision.KindProject:
		return p.gcp.CreateProject(ctx, p.names.ProjectID)
	case provision.KindBilling:
		return p.gcp.LinkBilling(ctx, p.names.ProjectID, p.names.BillingAccount)
	case provision.KindAPI:
		return p.gcp.EnableService(ctx, p.names.ProjectID, res.Name)
	case provision.KindRegistry:
		return p.gcp.CreateRepository(ctx, p.names.ProjectID, res.Name)
	case provision.KindServiceAccount:
		return p.gcp.CreateServiceAccount(ctx, p.names.ProjectID, p.names.ServiceAccount, res.Name)
	case provision.KindIAMBinding:
		return p.gcp.AddBinding(ctx, p.names.ProjectID, p.member(), res.Name)
	case provision.KindCluster:
		return p.gcp.CreateCluster(ctx, p.names.ProjectID, res.Name, p.names.ServiceAccountEmail())
	case provision.KindImage:
		return p.registry.PushImage(ctx, res.Name)
	case provision.KindNamespace:
		kc, err := p.kubeClient(ctx)
		if err != nil {
			return err
		}
		return kc.CreateNamespace(ctx)
	case provision.KindWorkload:
		kc, err := p.kubeClient(ctx)
		if err != nil {
			return err
		}
		return kc.ApplyWorkload(ctx, kube.WorkloadSpec{
			Name:  res.Name,
			Image: p.names.ImageRef(),
		})
	default:
		return fmt.Errorf("create: unsupported resource kind %s", res.Kind)
	}
}

// Delete removes one managed resource. Callers treat not-found as success.
func (p *Provider) Delete(ctx context.Context, res provision.Resource) error {
	switch res.Kind {
	case provision.KindProject:
		return p.gcp.DeleteProject(ctx, p.names.ProjectID)
	case provision.KindRegistry:
		return p.gcp.DeleteRepository(ctx, p.names.ProjectID, res.Name)
	case provision.KindServiceAccount:
		return p.gcp.DeleteServiceAccount(ctx, p.names.ProjectID, res.Name)
	case provision.KindIAMBinding:
		return p.gcp.RemoveBinding(ctx, p.names.ProjectID, p.member(), res.Name)
	case provision.KindCluster:
		return p.gcp.DeleteCluster(ctx, p.names.ProjectID, res.Name)
	case provision.KindNamespace:
		kc, err := p.kubeClient(ctx)
		if err != nil {
			return err
		}
		return kc.DeleteNamespace(ctx)
	case provision.KindWorkload:
		kc, err := p.kubeClient(ctx)
		if err != nil {
			return err
		}
		return kc.DeleteWorkload(ctx, res.Name)
	default:
		return fmt.Errorf("delete: unsupported resource kind %s", res.Kind)
	}
}

// RolloutComplete reports whether the workload rollout has finished.
func (p *Provider) RolloutComplete(ctx context.Context) (bool, error) {
	kc, err := p.kubeClient(ctx)
	if err != nil {
		return false, err
	}
	return kc.RolloutComplete(ctx, p.names.Workload)
}

// Endpoint returns the workload's externally assigned address, reporting
// false until the platform assigns one.
func (p *Provider) Endpoint(ctx context.Context) (string, bool, error) {
	kc, err := p.kubeClient(ctx)
	if err != nil {
		return "", false, err
	}
	return kc.Endpoint(ctx, p.names.Workload)
}

// CheckHealth performs one liveness probe against the deployed service.
func (p *Provider) CheckHealth(ctx context.Context, endpoint string) error {
	url := "http://" + endpoint + p.healthPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	p.logger.Debug("checking service health", "url", url)
	resp, err := p.healthClient.Do(req)
	if err != nil {
		return provision.NewFault(provision.FailureTransient,
			fmt.Errorf("health check %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return provision.NewFault(provision.FailureUnknown,
			fmt.Errorf("health check %s returned status %d", url, resp.StatusCode))
	}
	return nil
}

// probeInCluster probes a Kubernetes-backed resource. When the cluster
// itself is absent its contents are absent too; connecting would only fail.
func (p *Provider) probeInCluster(ctx context.Context, res provision.Resource) (provision.State, error) {
	clusterState, err := p.cluster(ctx)
	if err != nil {
		return provision.StateUnknown, err
	}
	if clusterState != provision.StatePresent {
		if clusterState == provision.StateInaccessible {
			return provision.StateInaccessible, nil
		}
		return provision.StateAbsent, nil
	}

	kc, err := p.kubeClient(ctx)
	if err != nil {
		return provision.StateUnknown, err
	}
	if res.Kind == provision.KindNamespace {
		return kc.ProbeNamespace(ctx)
	}
	return kc.ProbeWorkload(ctx, res.Name)
}

func (p *Provider) project(ctx context.Context) (provision.State, error) {
	if p.projectState != provision.StateUnknown {
		return p.projectState, nil
	}
	state, err := p.gcp.ProbeProject(ctx, p.names.ProjectID)
	if err != nil {
		return provision.StateUnknown, err
	}
	p.projectState = state
	return state, nil
}

func (p *Provider) cluster(ctx context.Context) (provision.State, error) {
	if p.clusterState != provision.StateUnknown {
		return p.clusterState, nil
	}
	state, err := p.gcp.ProbeCluster(ctx, p.names.ProjectID, p.names.Cluster)
	if err != nil {
		return provision.StateUnknown, err
	}
	p.clusterState = state
	return state, nil
}

// kubeClient builds the Kubernetes client from the live cluster endpoint on
// first use, so a cluster created earlier in the same run is reachable
// without a credentials round trip.
func (p *Provider) kubeClient(ctx context.Context) (*kube.Client, error) {
	if p.kube != nil {
		return p.kube, nil
	}

	info, err := p.gcp.GetClusterInfo(ctx, p.names.ProjectID, p.names.Cluster)
	if err != nil {
		return nil, fmt.Errorf("resolve cluster endpoint: %w", err)
	}

	kc, err := kube.NewClient(ctx, info.Endpoint, info.CACert, p.names.Namespace, p.logger)
	if err != nil {
		return nil, err
	}
	p.kube = kc
	return kc, nil
}

func (p *Provider) member() string {
	return "serviceAccount:" + p.names.ServiceAccountEmail()
}
