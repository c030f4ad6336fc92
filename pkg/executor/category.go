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

package executor

import "github.com/ai-autopilot/incident-core/pkg/types"

// actionTypeCategory is the static map from an action-type vocabulary word
// to the provider family that handles it. Every
// provider defines its own vocabulary; the core only needs to know which
// family to dispatch to.
var actionTypeCategory = map[string]types.ActionCategory{
	// k8s
	"pod_restart":           types.ActionCategoryK8s,
	"deployment_scale":      types.ActionCategoryK8s,
	"rollout_restart":       types.ActionCategoryK8s,
	"pod_eviction":          types.ActionCategoryK8s,
	"resource_quota_adjust": types.ActionCategoryK8s,
	"hpa_configure":         types.ActionCategoryK8s,
	"node_drain":            types.ActionCategoryK8s,
	"node_cordon":           types.ActionCategoryK8s,
	"node_uncordon":         types.ActionCategoryK8s,
	"namespace_cleanup":     types.ActionCategoryK8s,
	"config_reload":         types.ActionCategoryK8s,
	"secret_rotate":         types.ActionCategoryK8s,
	"restart_service":       types.ActionCategoryK8s,
	"scale_up":              types.ActionCategoryK8s,
	"scale_down":            types.ActionCategoryK8s,
	"update_resources":      types.ActionCategoryK8s,

	// cloud
	"instance_restart":   types.ActionCategoryCloud,
	"instance_start":     types.ActionCategoryCloud,
	"instance_stop":      types.ActionCategoryCloud,
	"lb_adjust":          types.ActionCategoryCloud,
	"sg_update":          types.ActionCategoryCloud,
	"dns_failover":       types.ActionCategoryCloud,
	"dns_update":         types.ActionCategoryCloud,
	"storage_cleanup":    types.ActionCategoryCloud,
	"snapshot_create":    types.ActionCategoryCloud,
	"snapshot_restore":   types.ActionCategoryCloud,
	"autoscaling_adjust": types.ActionCategoryCloud,
	"lambda_invoke":      types.ActionCategoryCloud,
	"alarm_manage":       types.ActionCategoryCloud,

	// database
	"connection_pool_reset":  types.ActionCategoryDatabase,
	"slow_query_kill":        types.ActionCategoryDatabase,
	"query_analyze":          types.ActionCategoryDatabase,
	"index_analyze":          types.ActionCategoryDatabase,
	"index_create":           types.ActionCategoryDatabase,
	"vacuum_run":             types.ActionCategoryDatabase,
	"replica_promote":        types.ActionCategoryDatabase,
	"replica_sync":           types.ActionCategoryDatabase,
	"backup_trigger":         types.ActionCategoryDatabase,
	"backup_restore":         types.ActionCategoryDatabase,
	"connection_limit_adjust": types.ActionCategoryDatabase,
	"cache_flush":            types.ActionCategoryDatabase,
	"stats_refresh":          types.ActionCategoryDatabase,
	"kill_connections":       types.ActionCategoryDatabase,

	// cicd
	"pipeline_trigger":   types.ActionCategoryCICD,
	"pipeline_cancel":    types.ActionCategoryCICD,
	"pipeline_retry":     types.ActionCategoryCICD,
	"rollback_deploy":    types.ActionCategoryCICD,
	"rollback":           types.ActionCategoryCICD,
	"canary_adjust":      types.ActionCategoryCICD,
	"canary_promote":     types.ActionCategoryCICD,
	"canary_rollback":    types.ActionCategoryCICD,
	"feature_flag_toggle": types.ActionCategoryCICD,
	"hotfix_deploy":      types.ActionCategoryCICD,
	"environment_sync":   types.ActionCategoryCICD,
	"artifact_promote":   types.ActionCategoryCICD,
	"deployment_pause":   types.ActionCategoryCICD,
	"deployment_resume":  types.ActionCategoryCICD,
}

// CategoryForActionType returns the provider family responsible for
// actionType, defaulting to generic for anything not in the static table
// (e.g. a user-added pattern's novel action type).
func CategoryForActionType(actionType string) types.ActionCategory {
	if c, ok := actionTypeCategory[actionType]; ok {
		return c
	}
	return types.ActionCategoryGeneric
}
