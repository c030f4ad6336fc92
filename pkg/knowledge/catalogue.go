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

package knowledge

import "github.com/ai-autopilot/incident-core/pkg/types"

// BuiltinCatalogue returns the built-in set of IncidentPatterns shipped
// with the core: a representative cross-section that exercises every category,
// symptom type, and condition the scoring algorithm supports, and is the
// seam a larger generated catalogue would be spliced into (see
// BuiltinCatalogue's callers — NewBase appends to, never replaces, this
// list).
func BuiltinCatalogue() []types.IncidentPattern {
	return []types.IncidentPattern{
		{
			PatternID:   "k8s-pod-oom-crashloop",
			Name:        "Pod OOMKilled causing CrashLoopBackOff",
			Category:    types.CategoryKubernetes,
			Subcategory: "pod",
			Severity:    types.SeverityHigh,
			Symptoms: []types.Symptom{
				{Type: types.SymptomMetric, Name: "memory_usage_pct", Condition: types.ConditionAbove, Value: "90", Weight: 3},
				{Type: types.SymptomEvent, Name: "OOMKilled", Condition: types.ConditionContains, Weight: 4},
			},
			Signals:    []string{"OOMKilled", "CrashLoopBackOff", "out of memory"},
			RootCauses: []string{"Memory limit too low for workload", "Memory leak in application"},
			Actions: []types.RecommendedAction{
				{ActionType: "restart_service", ActionCategory: "k8s", BaseConfidence: 70, RequiresApproval: false, EstimatedResolutionSeconds: 60},
				{ActionType: "resource_quota_adjust", ActionCategory: "k8s", BaseConfidence: 60, RequiresApproval: true, EstimatedResolutionSeconds: 180},
			},
			AutonomousSafe:       true,
			BlastRadius:          types.BlastRadiusLow,
			AvgResolutionSeconds: 120,
			Tags:                 []string{"memory", "kubernetes"},
		},
		{
			PatternID:   "k8s-node-pressure-evictions",
			Name:        "Node resource pressure causing pod evictions",
			Category:    types.CategoryKubernetes,
			Subcategory: "node",
			Severity:    types.SeverityHigh,
			Symptoms: []types.Symptom{
				{Type: types.SymptomMetric, Name: "node_disk_pressure_pct", Condition: types.ConditionAbove, Value: "85", Weight: 3},
				{Type: types.SymptomLog, Name: "disk full", Weight: 2},
			},
			Signals:    []string{"disk full", "evicted"},
			RootCauses: []string{"Ephemeral storage exhaustion", "Log volume growth"},
			Actions: []types.RecommendedAction{
				{ActionType: "node_drain", ActionCategory: "k8s", BaseConfidence: 55, RequiresApproval: true, EstimatedResolutionSeconds: 300},
				{ActionType: "namespace_cleanup", ActionCategory: "k8s", BaseConfidence: 50, RequiresApproval: true, EstimatedResolutionSeconds: 120},
			},
			AutonomousSafe:       false,
			BlastRadius:          types.BlastRadiusMedium,
			AvgResolutionSeconds: 300,
			Tags:                 []string{"node", "storage"},
		},
		{
			PatternID:   "db-postgres-connection-pool-exhaustion",
			Name:        "PostgreSQL connection pool exhaustion",
			Category:    types.CategoryDatabase,
			Subcategory: "postgres",
			Severity:    types.SeverityHigh,
			Symptoms: []types.Symptom{
				{Type: types.SymptomMetric, Name: "db_connections_used", Condition: types.ConditionAbove, Value: "95", Weight: 3},
				{Type: types.SymptomLog, Name: "connection pool", Weight: 2},
				{Type: types.SymptomEvent, Name: "timeout", Condition: types.ConditionContains, Weight: 1},
			},
			Signals:    []string{"connection refused", "timeout"},
			RootCauses: []string{"Leaked connections", "Undersized pool for load"},
			Actions: []types.RecommendedAction{
				{ActionType: "connection_pool_reset", ActionCategory: "database", BaseConfidence: 65, RequiresApproval: false, EstimatedResolutionSeconds: 30},
				{ActionType: "connection_limit_adjust", ActionCategory: "database", BaseConfidence: 55, RequiresApproval: true, EstimatedResolutionSeconds: 60},
			},
			AutonomousSafe:       true,
			BlastRadius:          types.BlastRadiusMedium,
			AvgResolutionSeconds: 90,
			Tags:                 []string{"database", "postgres"},
		},
		{
			PatternID:   "db-mysql-replication-lag",
			Name:        "MySQL replica falling behind primary",
			Category:    types.CategoryDatabase,
			Subcategory: "mysql",
			Severity:    types.SeverityMedium,
			Symptoms: []types.Symptom{
				{Type: types.SymptomMetric, Name: "replication_lag_seconds", Condition: types.ConditionAbove, Value: "60", Weight: 4},
				{Type: types.SymptomLog, Name: "replication lag", Weight: 1},
			},
			Signals:    []string{"replication lag"},
			RootCauses: []string{"Long-running transaction on primary", "Replica I/O saturation"},
			Actions: []types.RecommendedAction{
				{ActionType: "replica_sync", ActionCategory: "database", BaseConfidence: 50, RequiresApproval: true, EstimatedResolutionSeconds: 600},
			},
			AutonomousSafe:       false,
			BlastRadius:          types.BlastRadiusLow,
			AvgResolutionSeconds: 600,
			Tags:                 []string{"database", "mysql", "replication"},
		},
		{
			PatternID:   "cloud-asg-capacity-shortfall",
			Name:        "Autoscaling group under capacity for load",
			Category:    types.CategoryCloud,
			Subcategory: "autoscaling",
			Severity:    types.SeverityHigh,
			Symptoms: []types.Symptom{
				{Type: types.SymptomMetric, Name: "request_latency_ms", Condition: types.ConditionAbove, Value: "1000", Weight: 3},
				{Type: types.SymptomMetric, Name: "cpu_usage_pct", Condition: types.ConditionAbove, Value: "85", Weight: 2},
			},
			Signals:    []string{"CPU throttling"},
			RootCauses: []string{"Traffic spike beyond provisioned capacity"},
			Actions: []types.RecommendedAction{
				{ActionType: "scale_up", ActionCategory: "cloud", BaseConfidence: 70, RequiresApproval: false, EstimatedResolutionSeconds: 120},
				{ActionType: "autoscaling_adjust", ActionCategory: "cloud", BaseConfidence: 60, RequiresApproval: true, EstimatedResolutionSeconds: 180},
			},
			AutonomousSafe:       true,
			BlastRadius:          types.BlastRadiusMedium,
			AvgResolutionSeconds: 150,
			Tags:                 []string{"cloud", "autoscaling"},
		},
		{
			PatternID:   "cloud-dns-endpoint-unhealthy",
			Name:        "DNS failover target unhealthy",
			Category:    types.CategoryCloud,
			Subcategory: "dns",
			Severity:    types.SeverityCritical,
			Symptoms: []types.Symptom{
				{Type: types.SymptomEvent, Name: "health check failed", Condition: types.ConditionContains, Weight: 4},
				{Type: types.SymptomLog, Name: "connection refused", Weight: 2},
			},
			Signals:    []string{"health check failed", "connection refused"},
			RootCauses: []string{"Upstream region outage", "Misconfigured health check"},
			Actions: []types.RecommendedAction{
				{ActionType: "dns_failover", ActionCategory: "cloud", BaseConfidence: 60, RequiresApproval: true, EstimatedResolutionSeconds: 60},
			},
			AutonomousSafe:       false,
			BlastRadius:          types.BlastRadiusHigh,
			AvgResolutionSeconds: 90,
			Tags:                 []string{"cloud", "dns"},
		},
		{
			PatternID:   "app-5xx-error-rate-spike",
			Name:        "Application 5xx error rate spike",
			Category:    types.CategoryApplication,
			Subcategory: "error_rate",
			Severity:    types.SeverityHigh,
			Symptoms: []types.Symptom{
				{Type: types.SymptomMetric, Name: "error_rate", Condition: types.ConditionAbove, Value: "3", Weight: 4},
				{Type: types.SymptomLog, Name: "exception", Weight: 1},
			},
			Signals:    []string{"rate limit", "quota exceeded"},
			RootCauses: []string{"Bad deploy introducing a regression", "Downstream dependency failure"},
			Actions: []types.RecommendedAction{
				{ActionType: "rollback_deploy", ActionCategory: "cicd", BaseConfidence: 65, RequiresApproval: false, EstimatedResolutionSeconds: 180, RollbackAction: "rollback_deploy"},
			},
			AutonomousSafe:       true,
			BlastRadius:          types.BlastRadiusMedium,
			AvgResolutionSeconds: 180,
			Tags:                 []string{"application", "errors"},
		},
		{
			PatternID:   "app-deadlock-request-stall",
			Name:        "Application-level deadlock stalling requests",
			Category:    types.CategoryApplication,
			Subcategory: "concurrency",
			Severity:    types.SeverityCritical,
			Symptoms: []types.Symptom{
				{Type: types.SymptomEvent, Name: "deadlock", Condition: types.ConditionContains, Weight: 4},
				{Type: types.SymptomMetric, Name: "request_latency_ms", Condition: types.ConditionAbove, Value: "5000", Weight: 2},
			},
			Signals:    []string{"deadlock", "timeout"},
			RootCauses: []string{"Lock-ordering bug under concurrent load"},
			Actions: []types.RecommendedAction{
				{ActionType: "restart_service", ActionCategory: "k8s", BaseConfidence: 60, RequiresApproval: true, EstimatedResolutionSeconds: 60},
			},
			AutonomousSafe:       false,
			BlastRadius:          types.BlastRadiusHigh,
			AvgResolutionSeconds: 90,
			Tags:                 []string{"application", "concurrency"},
		},
		{
			PatternID:   "cicd-canary-regression",
			Name:        "Canary release regressing on error rate",
			Category:    types.CategoryCICD,
			Subcategory: "canary",
			Severity:    types.SeverityMedium,
			Symptoms: []types.Symptom{
				{Type: types.SymptomMetric, Name: "error_rate", Condition: types.ConditionAbove, Value: "2", Weight: 3},
			},
			Signals:    []string{"5xx"},
			RootCauses: []string{"Regression introduced in canary revision"},
			Actions: []types.RecommendedAction{
				{ActionType: "canary_rollback", ActionCategory: "cicd", BaseConfidence: 70, RequiresApproval: false, EstimatedResolutionSeconds: 90},
			},
			AutonomousSafe:       true,
			BlastRadius:          types.BlastRadiusLow,
			AvgResolutionSeconds: 90,
			Tags:                 []string{"cicd", "canary"},
		},
		{
			PatternID:   "cicd-pipeline-stuck-queue",
			Name:        "CI/CD pipeline stuck in a blocked queue",
			Category:    types.CategoryCICD,
			Subcategory: "pipeline",
			Severity:    types.SeverityLow,
			Symptoms: []types.Symptom{
				{Type: types.SymptomStatus, Name: "pipeline_status", Condition: types.ConditionEquals, Value: "stuck", Weight: 3},
			},
			Signals:    []string{},
			RootCauses: []string{"Runner pool exhaustion"},
			Actions: []types.RecommendedAction{
				{ActionType: "pipeline_retry", ActionCategory: "cicd", BaseConfidence: 55, RequiresApproval: true, EstimatedResolutionSeconds: 120},
			},
			AutonomousSafe:       false,
			BlastRadius:          types.BlastRadiusLow,
			AvgResolutionSeconds: 120,
			Tags:                 []string{"cicd"},
		},
		{
			PatternID:   "network-latency-upstream-degradation",
			Name:        "Upstream network latency degradation",
			Category:    types.CategoryNetwork,
			Subcategory: "latency",
			Severity:    types.SeverityMedium,
			Symptoms: []types.Symptom{
				{Type: types.SymptomMetric, Name: "network_latency_ms", Condition: types.ConditionAbove, Value: "500", Weight: 3},
				{Type: types.SymptomMetric, Name: "packet_loss_pct", Condition: types.ConditionAbove, Value: "1", Weight: 2},
			},
			Signals:    []string{"timeout"},
			RootCauses: []string{"Upstream provider network degradation"},
			Actions: []types.RecommendedAction{
				{ActionType: "lb_adjust", ActionCategory: "cloud", BaseConfidence: 50, RequiresApproval: true, EstimatedResolutionSeconds: 120},
			},
			AutonomousSafe:       false,
			BlastRadius:          types.BlastRadiusMedium,
			AvgResolutionSeconds: 150,
			Tags:                 []string{"network"},
		},
		{
			PatternID:   "security-cert-expired",
			Name:        "TLS certificate expired",
			Category:    types.CategorySecurity,
			Subcategory: "tls",
			Severity:    types.SeverityCritical,
			Symptoms: []types.Symptom{
				{Type: types.SymptomEvent, Name: "certificate expired", Condition: types.ConditionContains, Weight: 5},
			},
			Signals:    []string{"certificate expired", "authentication failed"},
			RootCauses: []string{"Automated renewal job failed"},
			Actions: []types.RecommendedAction{
				{ActionType: "secret_rotate", ActionCategory: "k8s", BaseConfidence: 55, RequiresApproval: true, EstimatedResolutionSeconds: 180},
			},
			AutonomousSafe:       false,
			BlastRadius:          types.BlastRadiusHigh,
			AvgResolutionSeconds: 300,
			Tags:                 []string{"security", "tls"},
		},
		{
			PatternID:   "monitoring-metric-ingestion-gap",
			Name:        "Monitoring pipeline metric ingestion gap",
			Category:    types.CategoryMonitoring,
			Subcategory: "ingestion",
			Severity:    types.SeverityLow,
			Symptoms: []types.Symptom{
				{Type: types.SymptomLog, Name: "scrape failed", Weight: 2},
			},
			Signals:    []string{},
			RootCauses: []string{"Exporter crash or network partition to scrape target"},
			Actions: []types.RecommendedAction{
				{ActionType: "config_reload", ActionCategory: "k8s", BaseConfidence: 45, RequiresApproval: true, EstimatedResolutionSeconds: 60},
			},
			AutonomousSafe:       false,
			BlastRadius:          types.BlastRadiusLow,
			AvgResolutionSeconds: 90,
			Tags:                 []string{"monitoring"},
		},
	}
}
