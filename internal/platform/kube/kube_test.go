package kube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/enclaveops/enclavectl/internal/provision"
)

const testNamespace = "confidential-app"

func newTestClient() *Client {
	return Wrap(fake.NewSimpleClientset(), testNamespace, nil)
}

func testSpec() WorkloadSpec {
	return WorkloadSpec{
		Name:  "confidential-app",
		Image: "us-central1-docker.pkg.dev/p/confidential-app/confidential-app:latest",
	}
}

func TestNamespaceLifecycle(t *testing.T) {
	ctx := context.Background()
	client := newTestClient()

	state, err := client.ProbeNamespace(ctx)
	require.NoError(t, err)
	assert.Equal(t, provision.StateAbsent, state)

	require.NoError(t, client.CreateNamespace(ctx))

	state, err = client.ProbeNamespace(ctx)
	require.NoError(t, err)
	assert.Equal(t, provision.StatePresent, state)

	require.NoError(t, client.DeleteNamespace(ctx))

	state, err = client.ProbeNamespace(ctx)
	require.NoError(t, err)
	assert.Equal(t, provision.StateAbsent, state)
}

func TestCreateNamespaceTwiceIsAlreadyExists(t *testing.T) {
	ctx := context.Background()
	client := newTestClient()

	require.NoError(t, client.CreateNamespace(ctx))

	err := client.CreateNamespace(ctx)
	assert.Equal(t, provision.FailureAlreadyExists, provision.ClassOf(err))
}

func TestApplyWorkloadCreatesDeploymentAndService(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewSimpleClientset()
	client := Wrap(clientset, testNamespace, nil)

	require.NoError(t, client.ApplyWorkload(ctx, testSpec()))

	deployment, err := clientset.AppsV1().Deployments(testNamespace).Get(ctx, "confidential-app", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, testSpec().Image, deployment.Spec.Template.Spec.Containers[0].Image)
	require.NotNil(t, deployment.Spec.Replicas)
	assert.Equal(t, defaultReplicas, *deployment.Spec.Replicas)

	svc, err := clientset.CoreV1().Services(testNamespace).Get(ctx, "confidential-app", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.ServiceTypeLoadBalancer, svc.Spec.Type)
}

func TestApplyWorkloadUpdatesExistingDeployment(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewSimpleClientset()
	client := Wrap(clientset, testNamespace, nil)

	require.NoError(t, client.ApplyWorkload(ctx, testSpec()))

	updated := testSpec()
	updated.Image = "us-central1-docker.pkg.dev/p/confidential-app/confidential-app:v2"
	require.NoError(t, client.ApplyWorkload(ctx, updated))

	deployment, err := clientset.AppsV1().Deployments(testNamespace).Get(ctx, "confidential-app", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, updated.Image, deployment.Spec.Template.Spec.Containers[0].Image)
}

func TestProbeWorkload(t *testing.T) {
	ctx := context.Background()
	client := newTestClient()

	state, err := client.ProbeWorkload(ctx, "confidential-app")
	require.NoError(t, err)
	assert.Equal(t, provision.StateAbsent, state)

	require.NoError(t, client.ApplyWorkload(ctx, testSpec()))

	state, err = client.ProbeWorkload(ctx, "confidential-app")
	require.NoError(t, err)
	assert.Equal(t, provision.StatePresent, state)
}

func TestDeleteWorkloadWhenAbsentIsNotFound(t *testing.T) {
	client := newTestClient()

	err := client.DeleteWorkload(context.Background(), "confidential-app")
	assert.Equal(t, provision.FailureNotFound, provision.ClassOf(err))
}

func TestDeleteWorkloadRemovesBoth(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewSimpleClientset()
	client := Wrap(clientset, testNamespace, nil)

	require.NoError(t, client.ApplyWorkload(ctx, testSpec()))
	require.NoError(t, client.DeleteWorkload(ctx, "confidential-app"))

	_, err := clientset.AppsV1().Deployments(testNamespace).Get(ctx, "confidential-app", metav1.GetOptions{})
	assert.Error(t, err)
	_, err = clientset.CoreV1().Services(testNamespace).Get(ctx, "confidential-app", metav1.GetOptions{})
	assert.Error(t, err)
}

func TestRolloutComplete(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewSimpleClientset()
	client := Wrap(clientset, testNamespace, nil)

	require.NoError(t, client.ApplyWorkload(ctx, testSpec()))

	done, err := client.RolloutComplete(ctx, "confidential-app")
	require.NoError(t, err)
	assert.False(t, done, "fresh deployment has no ready replicas yet")

	deployment, err := clientset.AppsV1().Deployments(testNamespace).Get(ctx, "confidential-app", metav1.GetOptions{})
	require.NoError(t, err)
	deployment.Status = appsv1.DeploymentStatus{
		ObservedGeneration: deployment.Generation,
		UpdatedReplicas:    defaultReplicas,
		ReadyReplicas:      defaultReplicas,
	}
	_, err = clientset.AppsV1().Deployments(testNamespace).UpdateStatus(ctx, deployment, metav1.UpdateOptions{})
	require.NoError(t, err)

	done, err = client.RolloutComplete(ctx, "confidential-app")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestEndpoint(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewSimpleClientset()
	client := Wrap(clientset, testNamespace, nil)

	require.NoError(t, client.ApplyWorkload(ctx, testSpec()))

	_, assigned, err := client.Endpoint(ctx, "confidential-app")
	require.NoError(t, err)
	assert.False(t, assigned, "no address before the platform assigns one")

	svc, err := clientset.CoreV1().Services(testNamespace).Get(ctx, "confidential-app", metav1.GetOptions{})
	require.NoError(t, err)
	svc.Status.LoadBalancer.Ingress = []corev1.LoadBalancerIngress{{IP: "203.0.113.10"}}
	_, err = clientset.CoreV1().Services(testNamespace).UpdateStatus(ctx, svc, metav1.UpdateOptions{})
	require.NoError(t, err)

	endpoint, assigned, err := client.Endpoint(ctx, "confidential-app")
	require.NoError(t, err)
	assert.True(t, assigned)
	assert.Equal(t, "203.0.113.10", endpoint)
}
