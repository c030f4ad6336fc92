/*
Copyright 2026 The Incident Core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package k8sprovider implements the ActionExecutor's k8s action family
// against a kubernetes.Interface, so it's exercised in
// tests against k8s.io/client-go/kubernetes/fake and in production against
// a real cluster client built from in-cluster or kubeconfig config.
package k8sprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/ai-autopilot/incident-core/pkg/types"
)

// Provider dispatches k8s-family action types against a cluster client.
// metrics is optional; when present, update_resources can size limits from
// live usage instead of requiring explicit params.
type Provider struct {
	client  kubernetes.Interface
	metrics metricsclient.Interface
	log     logr.Logger
}

// New wraps client with the uniform provider contract. log should be bridged
// from zap via go-logr/zapr in production wiring.
func New(client kubernetes.Interface, log logr.Logger) *Provider {
	return &Provider{client: client, log: log}
}

// NewWithMetrics additionally attaches a metrics-server client so
// update_resources can derive limits from observed usage.
func NewWithMetrics(client kubernetes.Interface, metrics metricsclient.Interface, log logr.Logger) *Provider {
	return &Provider{client: client, metrics: metrics, log: log}
}

// Execute implements executor.Provider.
func (p *Provider) Execute(ctx context.Context, actionType string, params map[string]interface{}) (types.ActionResult, error) {
	start := time.Now()
	dryRun := isDryRun(params)

	var (
		msg string
		err error
	)
	switch actionType {
	case "pod_restart", "restart_service":
		msg, err = p.podRestart(ctx, params, dryRun)
	case "deployment_scale", "scale_up", "scale_down":
		msg, err = p.deploymentScale(ctx, params, dryRun)
	case "rollout_restart":
		msg, err = p.rolloutRestart(ctx, params, dryRun)
	case "pod_eviction":
		msg, err = p.podEviction(ctx, params, dryRun)
	case "hpa_configure":
		msg, err = p.hpaConfigure(ctx, params, dryRun)
	case "node_drain":
		msg, err = p.nodeCordon(ctx, params, true, dryRun)
	case "node_cordon":
		msg, err = p.nodeCordon(ctx, params, true, dryRun)
	case "node_uncordon":
		msg, err = p.nodeCordon(ctx, params, false, dryRun)
	case "namespace_cleanup":
		msg, err = p.namespaceCleanup(ctx, params, dryRun)
	case "config_reload":
		msg, err = p.configReload(ctx, params, dryRun)
	case "secret_rotate":
		msg, err = p.secretRotate(ctx, params, dryRun)
	case "update_resources":
		msg, err = p.updateResources(ctx, params, dryRun)
	case "resource_quota_adjust":
		msg, err = p.resourceQuotaAdjust(ctx, params, dryRun)
	default:
		return types.ActionResult{}, fmt.Errorf("k8sprovider: unsupported action type %q", actionType)
	}

	result := types.ActionResult{
		Success:         err == nil,
		Message:         msg,
		DurationSeconds: time.Since(start).Seconds(),
		DryRun:          dryRun,
	}
	if err != nil {
		result.Message = err.Error()
		p.log.Error(err, "k8s action failed", "actionType", actionType)
	}
	return result, nil
}

func namespaceAndName(params map[string]interface{}) (string, string) {
	ns, _ := params["namespace"].(string)
	if ns == "" {
		ns = "default"
	}
	name, _ := params["name"].(string)
	return ns, name
}

func (p *Provider) podRestart(ctx context.Context, params map[string]interface{}, dryRun bool) (string, error) {
	ns, name := namespaceAndName(params)
	if name == "" {
		return "", fmt.Errorf("pod_restart requires params.name")
	}
	if dryRun {
		return fmt.Sprintf("dry-run: would delete pod %s/%s for restart", ns, name), nil
	}
	opts := metav1.DeleteOptions{}
	if err := p.client.CoreV1().Pods(ns).Delete(ctx, name, opts); err != nil && !apierrors.IsNotFound(err) {
		return "", err
	}
	return fmt.Sprintf("deleted pod %s/%s, controller will recreate it", ns, name), nil
}

func (p *Provider) deploymentScale(ctx context.Context, params map[string]interface{}, dryRun bool) (string, error) {
	ns, name := namespaceAndName(params)
	replicas, ok := intParam(params, "replicas")
	if name == "" || !ok {
		return "", fmt.Errorf("deployment_scale requires params.name and params.replicas")
	}
	if dryRun {
		return fmt.Sprintf("dry-run: would scale deployment %s/%s to %d replicas", ns, name, replicas), nil
	}
	dep, err := p.client.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	r := int32(replicas)
	dep.Spec.Replicas = &r
	if _, err := p.client.AppsV1().Deployments(ns).Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return "", err
	}
	return fmt.Sprintf("scaled deployment %s/%s to %d replicas", ns, name, replicas), nil
}

func (p *Provider) rolloutRestart(ctx context.Context, params map[string]interface{}, dryRun bool) (string, error) {
	ns, name := namespaceAndName(params)
	if name == "" {
		return "", fmt.Errorf("rollout_restart requires params.name")
	}
	if dryRun {
		return fmt.Sprintf("dry-run: would roll out restart of deployment %s/%s", ns, name), nil
	}
	dep, err := p.client.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	if dep.Spec.Template.ObjectMeta.Annotations == nil {
		dep.Spec.Template.ObjectMeta.Annotations = map[string]string{}
	}
	dep.Spec.Template.ObjectMeta.Annotations["autopilot.ai/restartedAt"] = time.Now().Format(time.RFC3339)
	if _, err := p.client.AppsV1().Deployments(ns).Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return "", err
	}
	return fmt.Sprintf("triggered rollout restart of deployment %s/%s", ns, name), nil
}

func (p *Provider) podEviction(ctx context.Context, params map[string]interface{}, dryRun bool) (string, error) {
	ns, name := namespaceAndName(params)
	if name == "" {
		return "", fmt.Errorf("pod_eviction requires params.name")
	}
	if dryRun {
		return fmt.Sprintf("dry-run: would evict pod %s/%s", ns, name), nil
	}
	eviction := &policyv1.Eviction{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns}}
	if err := p.client.CoreV1().Pods(ns).EvictV1(ctx, eviction); err != nil {
		return "", err
	}
	return fmt.Sprintf("evicted pod %s/%s", ns, name), nil
}

func (p *Provider) hpaConfigure(ctx context.Context, params map[string]interface{}, dryRun bool) (string, error) {
	ns, name := namespaceAndName(params)
	minR, _ := intParam(params, "minReplicas")
	maxR, ok := intParam(params, "maxReplicas")
	if name == "" || !ok {
		return "", fmt.Errorf("hpa_configure requires params.name and params.maxReplicas")
	}
	if dryRun {
		return fmt.Sprintf("dry-run: would configure hpa %s/%s to [%d,%d]", ns, name, minR, maxR), nil
	}
	hpa, err := p.client.AutoscalingV2().HorizontalPodAutoscalers(ns).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	minR32 := int32(minR)
	maxR32 := int32(maxR)
	hpa.Spec.MinReplicas = &minR32
	hpa.Spec.MaxReplicas = maxR32
	if _, err := p.client.AutoscalingV2().HorizontalPodAutoscalers(ns).Update(ctx, hpa, metav1.UpdateOptions{}); err != nil {
		return "", err
	}
	return fmt.Sprintf("configured hpa %s/%s to [%d,%d]", ns, name, minR, maxR), nil
}

func (p *Provider) nodeCordon(ctx context.Context, params map[string]interface{}, cordon, dryRun bool) (string, error) {
	name, _ := params["name"].(string)
	if name == "" {
		return "", fmt.Errorf("node action requires params.name")
	}
	verb := "uncordon"
	if cordon {
		verb = "cordon"
	}
	if dryRun {
		return fmt.Sprintf("dry-run: would %s node %s", verb, name), nil
	}
	node, err := p.client.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	node.Spec.Unschedulable = cordon
	if _, err := p.client.CoreV1().Nodes().Update(ctx, node, metav1.UpdateOptions{}); err != nil {
		return "", err
	}
	return fmt.Sprintf("%sed node %s", verb, name), nil
}

func (p *Provider) namespaceCleanup(ctx context.Context, params map[string]interface{}, dryRun bool) (string, error) {
	ns, _ := params["namespace"].(string)
	if ns == "" {
		return "", fmt.Errorf("namespace_cleanup requires params.namespace")
	}
	pods, err := p.client.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{
		FieldSelector: "status.phase=Failed",
	})
	if err != nil {
		return "", err
	}
	if dryRun {
		return fmt.Sprintf("dry-run: would delete %d failed pods in namespace %s", len(pods.Items), ns), nil
	}
	for _, pod := range pods.Items {
		if err := p.client.CoreV1().Pods(ns).Delete(ctx, pod.Name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
			return "", err
		}
	}
	return fmt.Sprintf("deleted %d failed pods in namespace %s", len(pods.Items), ns), nil
}

func (p *Provider) configReload(ctx context.Context, params map[string]interface{}, dryRun bool) (string, error) {
	ns, name := namespaceAndName(params)
	if name == "" {
		return "", fmt.Errorf("config_reload requires params.name")
	}
	if dryRun {
		return fmt.Sprintf("dry-run: would bump config-reload annotation on %s/%s", ns, name), nil
	}
	dep, err := p.client.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	if dep.Spec.Template.ObjectMeta.Annotations == nil {
		dep.Spec.Template.ObjectMeta.Annotations = map[string]string{}
	}
	dep.Spec.Template.ObjectMeta.Annotations["autopilot.ai/configReloadedAt"] = time.Now().Format(time.RFC3339)
	if _, err := p.client.AppsV1().Deployments(ns).Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return "", err
	}
	return fmt.Sprintf("bumped config-reload annotation on %s/%s", ns, name), nil
}

func (p *Provider) secretRotate(ctx context.Context, params map[string]interface{}, dryRun bool) (string, error) {
	ns, name := namespaceAndName(params)
	key, _ := params["key"].(string)
	newValue, _ := params["newValue"].(string)
	if name == "" || key == "" {
		return "", fmt.Errorf("secret_rotate requires params.name and params.key")
	}
	if dryRun {
		return fmt.Sprintf("dry-run: would rotate key %q of secret %s/%s", key, ns, name), nil
	}
	secret, err := p.client.CoreV1().Secrets(ns).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	if secret.Data == nil {
		secret.Data = map[string][]byte{}
	}
	secret.Data[key] = []byte(newValue)
	if _, err := p.client.CoreV1().Secrets(ns).Update(ctx, secret, metav1.UpdateOptions{}); err != nil {
		return "", err
	}
	return fmt.Sprintf("rotated key %q of secret %s/%s", key, ns, name), nil
}

func (p *Provider) updateResources(ctx context.Context, params map[string]interface{}, dryRun bool) (string, error) {
	ns, name := namespaceAndName(params)
	if name == "" {
		return "", fmt.Errorf("update_resources requires params.name")
	}
	memLimit, _ := params["memoryLimit"].(string)
	cpuLimit, _ := params["cpuLimit"].(string)
	if memLimit == "" && p.metrics != nil {
		if derived, ok := p.peakMemoryLimit(ctx, ns, name); ok {
			memLimit = derived
		}
	}
	if memLimit == "" && cpuLimit == "" {
		return "", fmt.Errorf("update_resources needs memoryLimit/cpuLimit params or a metrics API to derive them")
	}
	if dryRun {
		return fmt.Sprintf("dry-run: would set resource limits on %s/%s (memory=%q cpu=%q)", ns, name, memLimit, cpuLimit), nil
	}

	limits := corev1.ResourceList{}
	if memLimit != "" {
		q, err := resource.ParseQuantity(memLimit)
		if err != nil {
			return "", fmt.Errorf("invalid memoryLimit %q: %w", memLimit, err)
		}
		limits[corev1.ResourceMemory] = q
	}
	if cpuLimit != "" {
		q, err := resource.ParseQuantity(cpuLimit)
		if err != nil {
			return "", fmt.Errorf("invalid cpuLimit %q: %w", cpuLimit, err)
		}
		limits[corev1.ResourceCPU] = q
	}

	dep, err := p.client.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	for i := range dep.Spec.Template.Spec.Containers {
		c := &dep.Spec.Template.Spec.Containers[i]
		if c.Resources.Limits == nil {
			c.Resources.Limits = corev1.ResourceList{}
		}
		for k, v := range limits {
			c.Resources.Limits[k] = v
		}
	}
	if _, err := p.client.AppsV1().Deployments(ns).Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return "", err
	}
	return fmt.Sprintf("updated resource limits on deployment %s/%s (memory=%q cpu=%q)", ns, name, memLimit, cpuLimit), nil
}

// peakMemoryLimit doubles the highest live container memory usage among the
// workload's pods, read from the metrics API, as the new memory limit.
func (p *Provider) peakMemoryLimit(ctx context.Context, ns, name string) (string, bool) {
	podMetrics, err := p.metrics.MetricsV1beta1().PodMetricses(ns).List(ctx, metav1.ListOptions{
		LabelSelector: "app=" + name,
	})
	if err != nil || len(podMetrics.Items) == 0 {
		return "", false
	}
	var peak int64
	for _, pm := range podMetrics.Items {
		for _, c := range pm.Containers {
			if mem, ok := c.Usage[corev1.ResourceMemory]; ok {
				if v := mem.Value(); v > peak {
					peak = v
				}
			}
		}
	}
	if peak == 0 {
		return "", false
	}
	return resource.NewQuantity(peak*2, resource.BinarySI).String(), true
}

func (p *Provider) resourceQuotaAdjust(ctx context.Context, params map[string]interface{}, dryRun bool) (string, error) {
	ns, name := namespaceAndName(params)
	hard, _ := params["hard"].(map[string]interface{})
	if name == "" || len(hard) == 0 {
		return "", fmt.Errorf("resource_quota_adjust requires params.name and params.hard")
	}
	if dryRun {
		return fmt.Sprintf("dry-run: would adjust %d hard limits on resource quota %s/%s", len(hard), ns, name), nil
	}
	quota, err := p.client.CoreV1().ResourceQuotas(ns).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	if quota.Spec.Hard == nil {
		quota.Spec.Hard = corev1.ResourceList{}
	}
	for k, v := range hard {
		q, err := resource.ParseQuantity(fmt.Sprintf("%v", v))
		if err != nil {
			return "", fmt.Errorf("invalid quota value for %s: %w", k, err)
		}
		quota.Spec.Hard[corev1.ResourceName(k)] = q
	}
	if _, err := p.client.CoreV1().ResourceQuotas(ns).Update(ctx, quota, metav1.UpdateOptions{}); err != nil {
		return "", err
	}
	return fmt.Sprintf("adjusted %d hard limits on resource quota %s/%s", len(hard), ns, name), nil
}

func intParam(params map[string]interface{}, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func isDryRun(params map[string]interface{}) bool {
	v, _ := params["__dry_run"].(bool)
	return v
}

