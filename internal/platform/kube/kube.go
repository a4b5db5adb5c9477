// Package kube adapts the Kubernetes API to the provisioning workflow:
// namespace and workload lifecycle, rollout status, and the externally
// assigned service endpoint.
package kube

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/enclaveops/enclavectl/internal/constants"
	"github.com/enclaveops/enclavectl/internal/provision"
)

const defaultReplicas int32 = 2

// WorkloadSpec carries the parameters of the demo deployment and its
// load-balancer service.
type WorkloadSpec struct {
	Name          string
	Image         string
	Replicas      int32
	ContainerPort int32
	ServicePort   int32
}

func (s WorkloadSpec) withDefaults() WorkloadSpec {
	if s.Replicas <= 0 {
		s.Replicas = defaultReplicas
	}
	if s.ContainerPort == 0 {
		s.ContainerPort = constants.ContainerPort
	}
	if s.ServicePort == 0 {
		s.ServicePort = constants.ServicePort
	}
	return s
}

// Client wraps a Kubernetes clientset for one namespace. Method-chain
// invocations of the raw clientset stay behind this boundary.
type Client struct {
	clientset kubernetes.Interface
	namespace string
	logger    *slog.Logger
}

// NewClient builds a Client talking directly to a GKE control plane using
// the cluster endpoint, its CA certificate (base64, as the platform API
// returns it), and the ambient Google credentials. No kubeconfig round trip
// is needed between cluster creation and the first namespace call.
func NewClient(ctx context.Context, endpoint, caCertBase64, namespace string, logger *slog.Logger) (*Client, error) {
	caData, err := base64.StdEncoding.DecodeString(caCertBase64)
	if err != nil {
		return nil, fmt.Errorf("decode cluster ca certificate: %w", err)
	}

	tokenSource, err := googleauth.DefaultTokenSource(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("load google credentials: %w", err)
	}

	restConfig := &rest.Config{
		Host:            "https://" + endpoint,
		TLSClientConfig: rest.TLSClientConfig{CAData: caData},
		WrapTransport: func(rt http.RoundTripper) http.RoundTripper {
			return &oauth2.Transport{Source: tokenSource, Base: rt}
		},
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}

	return Wrap(clientset, namespace, logger), nil
}

// Wrap builds a Client over an existing clientset. Used with the fake
// clientset in tests.
func Wrap(clientset kubernetes.Interface, namespace string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{clientset: clientset, namespace: namespace, logger: logger}
}

// ProbeNamespace reports whether the workload namespace exists.
func (c *Client) ProbeNamespace(ctx context.Context) (provision.State, error) {
	_, err := c.clientset.CoreV1().Namespaces().Get(ctx, c.namespace, metav1.GetOptions{})
	if err != nil {
		return probeState(err, "get namespace")
	}
	return provision.StatePresent, nil
}

// CreateNamespace creates the workload namespace.
func (c *Client) CreateNamespace(ctx context.Context) error {
	_, err := c.clientset.CoreV1().Namespaces().Create(ctx, &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: c.namespace},
	}, metav1.CreateOptions{})
	return wrap("create namespace", err)
}

// DeleteNamespace deletes the workload namespace and everything in it.
func (c *Client) DeleteNamespace(ctx context.Context) error {
	err := c.clientset.CoreV1().Namespaces().Delete(ctx, c.namespace, metav1.DeleteOptions{})
	return wrap("delete namespace", err)
}

// ProbeWorkload reports whether the demo deployment exists.
func (c *Client) ProbeWorkload(ctx context.Context, name string) (provision.State, error) {
	_, err := c.clientset.AppsV1().Deployments(c.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return probeState(err, "get deployment")
	}
	return provision.StatePresent, nil
}

// ApplyWorkload creates the deployment and its load-balancer service, or
// updates the deployment in place when it already exists so redeploys carry
// image changes. The one logical apply mirrors the manifest the shell
// workflow applied with a single kubectl call.
func (c *Client) ApplyWorkload(ctx context.Context, spec WorkloadSpec) error {
	spec = spec.withDefaults()

	deployment := c.deploymentFor(spec)
	deployments := c.clientset.AppsV1().Deployments(c.namespace)

	existing, err := deployments.Get(ctx, spec.Name, metav1.GetOptions{})
	switch {
	case err == nil:
		existing.Spec = deployment.Spec
		if _, err := deployments.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
			return wrap("update deployment", err)
		}
	case kubeerr.IsNotFound(err):
		if _, err := deployments.Create(ctx, deployment, metav1.CreateOptions{}); err != nil {
			return wrap("create deployment", err)
		}
	default:
		return wrap("get deployment", err)
	}

	_, err = c.clientset.CoreV1().Services(c.namespace).Create(ctx, c.serviceFor(spec), metav1.CreateOptions{})
	if kubeerr.IsAlreadyExists(err) {
		return nil
	}
	return wrap("create service", err)
}

// DeleteWorkload deletes the deployment and service. Either being absent is
// fine; the caller treats not-found as success during teardown.
func (c *Client) DeleteWorkload(ctx context.Context, name string) error {
	err := c.clientset.AppsV1().Deployments(c.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !kubeerr.IsNotFound(err) {
		return wrap("delete deployment", err)
	}
	deploymentMissing := kubeerr.IsNotFound(err)

	err = c.clientset.CoreV1().Services(c.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !kubeerr.IsNotFound(err) {
		return wrap("delete service", err)
	}

	if deploymentMissing && kubeerr.IsNotFound(err) {
		return wrap("delete workload", err)
	}
	return nil
}

// RolloutComplete reports whether the deployment has reached its desired
// ready replica count on the current generation.
func (c *Client) RolloutComplete(ctx context.Context, name string) (bool, error) {
	deployment, err := c.clientset.AppsV1().Deployments(c.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return false, wrap("get deployment", err)
	}

	if deployment.Generation > deployment.Status.ObservedGeneration {
		return false, nil
	}

	desired := defaultReplicas
	if deployment.Spec.Replicas != nil {
		desired = *deployment.Spec.Replicas
	}
	return deployment.Status.UpdatedReplicas >= desired &&
		deployment.Status.ReadyReplicas >= desired, nil
}

// Endpoint returns the externally assigned load balancer address of the
// workload service, reporting false until the platform assigns one.
func (c *Client) Endpoint(ctx context.Context, name string) (string, bool, error) {
	svc, err := c.clientset.CoreV1().Services(c.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", false, wrap("get service", err)
	}

	for _, ingress := range svc.Status.LoadBalancer.Ingress {
		if ingress.IP != "" {
			return ingress.IP, true, nil
		}
		if ingress.Hostname != "" {
			return ingress.Hostname, true, nil
		}
	}
	return "", false, nil
}

func (c *Client) deploymentFor(spec WorkloadSpec) *appsv1.Deployment {
	labels := map[string]string{"app": spec.Name}
	replicas := spec.Replicas

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: c.namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  spec.Name,
							Image: spec.Image,
							Ports: []corev1.ContainerPort{
								{ContainerPort: spec.ContainerPort},
							},
						},
					},
				},
			},
		},
	}
}

func (c *Client) serviceFor(spec WorkloadSpec) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: c.namespace,
			Labels:    map[string]string{"app": spec.Name},
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeLoadBalancer,
			Selector: map[string]string{"app": spec.Name},
			Ports: []corev1.ServicePort{
				{
					Port:       spec.ServicePort,
					TargetPort: intstr.FromInt32(spec.ContainerPort),
				},
			},
		},
	}
}

func wrap(action string, err error) error {
	if err == nil {
		return nil
	}
	return provision.NewFault(classify(err), fmt.Errorf("%s: %w", action, err))
}

func classify(err error) provision.FailureClass {
	switch {
	case kubeerr.IsNotFound(err):
		return provision.FailureNotFound
	case kubeerr.IsAlreadyExists(err):
		return provision.FailureAlreadyExists
	case kubeerr.IsForbidden(err), kubeerr.IsUnauthorized(err):
		return provision.FailurePermissionDenied
	case kubeerr.IsTimeout(err), kubeerr.IsServerTimeout(err),
		kubeerr.IsTooManyRequests(err), kubeerr.IsServiceUnavailable(err):
		return provision.FailureTransient
	default:
		return provision.FailureUnknown
	}
}

func probeState(err error, action string) (provision.State, error) {
	switch classify(err) {
	case provision.FailureNotFound:
		return provision.StateAbsent, nil
	case provision.FailurePermissionDenied:
		return provision.StateInaccessible, nil
	default:
		return provision.StateUnknown, wrap(action, err)
	}
}
