package k8sprovider_test

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"

	"github.com/ai-autopilot/incident-core/pkg/executor/providers/k8sprovider"
)

func TestPodRestart(t *testing.T) {
	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "checkout-1", Namespace: "prod"}}
	client := fake.NewSimpleClientset(pod)
	p := k8sprovider.New(client, logr.Discard())

	result, err := p.Execute(context.Background(), "pod_restart", map[string]interface{}{
		"namespace": "prod",
		"name":      "checkout-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	_, getErr := client.CoreV1().Pods("prod").Get(context.Background(), "checkout-1", metav1.GetOptions{})
	assert.Error(t, getErr)
}

func TestDeploymentScale(t *testing.T) {
	replicas := int32(2)
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "checkout", Namespace: "prod"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
	}
	client := fake.NewSimpleClientset(dep)
	p := k8sprovider.New(client, logr.Discard())

	result, err := p.Execute(context.Background(), "deployment_scale", map[string]interface{}{
		"namespace": "prod",
		"name":      "checkout",
		"replicas":  5,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	got, err := client.AppsV1().Deployments("prod").Get(context.Background(), "checkout", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(5), *got.Spec.Replicas)
}

func TestDryRunDoesNotMutate(t *testing.T) {
	replicas := int32(2)
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "checkout", Namespace: "prod"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
	}
	client := fake.NewSimpleClientset(dep)
	p := k8sprovider.New(client, logr.Discard())

	result, err := p.Execute(context.Background(), "deployment_scale", map[string]interface{}{
		"namespace":  "prod",
		"name":       "checkout",
		"replicas":   9,
		"__dry_run":  true,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.DryRun)

	got, err := client.AppsV1().Deployments("prod").Get(context.Background(), "checkout", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), *got.Spec.Replicas)
}

func TestUnsupportedActionType(t *testing.T) {
	client := fake.NewSimpleClientset()
	p := k8sprovider.New(client, logr.Discard())

	_, err := p.Execute(context.Background(), "unknown_action", nil)
	assert.Error(t, err)
}

func TestUpdateResourcesWithExplicitLimits(t *testing.T) {
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "checkout", Namespace: "prod"},
		Spec: appsv1.DeploymentSpec{
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "app"}}},
			},
		},
	}
	client := fake.NewSimpleClientset(dep)
	p := k8sprovider.New(client, logr.Discard())

	result, err := p.Execute(context.Background(), "update_resources", map[string]interface{}{
		"namespace":   "prod",
		"name":        "checkout",
		"memoryLimit": "512Mi",
		"cpuLimit":    "500m",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	got, err := client.AppsV1().Deployments("prod").Get(context.Background(), "checkout", metav1.GetOptions{})
	require.NoError(t, err)
	limits := got.Spec.Template.Spec.Containers[0].Resources.Limits
	assert.Equal(t, resource.MustParse("512Mi"), limits[corev1.ResourceMemory])
	assert.Equal(t, resource.MustParse("500m"), limits[corev1.ResourceCPU])
}

func TestUpdateResourcesDerivesMemoryFromMetrics(t *testing.T) {
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "checkout", Namespace: "prod"},
		Spec: appsv1.DeploymentSpec{
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "app"}}},
			},
		},
	}
	client := fake.NewSimpleClientset(dep)
	podMetrics := &metricsv1beta1.PodMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: "checkout-1", Namespace: "prod", Labels: map[string]string{"app": "checkout"}},
		Containers: []metricsv1beta1.ContainerMetrics{
			{Name: "app", Usage: corev1.ResourceList{corev1.ResourceMemory: resource.MustParse("256Mi")}},
		},
	}
	metrics := metricsfake.NewSimpleClientset(podMetrics)
	p := k8sprovider.NewWithMetrics(client, metrics, logr.Discard())

	result, err := p.Execute(context.Background(), "update_resources", map[string]interface{}{
		"namespace": "prod",
		"name":      "checkout",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	got, err := client.AppsV1().Deployments("prod").Get(context.Background(), "checkout", metav1.GetOptions{})
	require.NoError(t, err)
	mem := got.Spec.Template.Spec.Containers[0].Resources.Limits[corev1.ResourceMemory]
	// Derived limit is double the observed peak usage.
	assert.Equal(t, int64(0), mem.Cmp(resource.MustParse("512Mi")))
}

func TestResourceQuotaAdjust(t *testing.T) {
	quota := &corev1.ResourceQuota{ObjectMeta: metav1.ObjectMeta{Name: "team-quota", Namespace: "prod"}}
	client := fake.NewSimpleClientset(quota)
	p := k8sprovider.New(client, logr.Discard())

	result, err := p.Execute(context.Background(), "resource_quota_adjust", map[string]interface{}{
		"namespace": "prod",
		"name":      "team-quota",
		"hard":      map[string]interface{}{"pods": 20},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	got, err := client.CoreV1().ResourceQuotas("prod").Get(context.Background(), "team-quota", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, resource.MustParse("20"), got.Spec.Hard[corev1.ResourcePods])
}
