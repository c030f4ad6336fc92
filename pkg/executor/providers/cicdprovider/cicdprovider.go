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

// Package cicdprovider implements the ActionExecutor's CI/CD action
// family. pipeline_trigger, rollback_deploy, and the canary_*
// actions build a typed Tekton PipelineRun from the
// action's params before handing it to the injected Submitter; submission
// itself stays a collaborator concern so this package never needs a live
// cluster to be exercised in tests.
package cicdprovider

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	pipelinev1 "github.com/tektoncd/pipeline/pkg/apis/pipeline/v1"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// Submitter submits a constructed PipelineRun and reports its outcome.
// A production binary backs this with a real Tekton client; tests back it
// with an in-memory fake.
type Submitter interface {
	Submit(ctx context.Context, run *pipelinev1.PipelineRun) (*pipelinev1.PipelineRun, error)
}

// NonPipelineClient covers the CI/CD action types that aren't pipeline
// submissions: feature-flag toggles and environment bookkeeping.
type NonPipelineClient interface {
	ToggleFeatureFlag(ctx context.Context, flag string, enabled bool) error
	SyncEnvironment(ctx context.Context, from, to string) error
}

// Provider dispatches cicd-family action types.
type Provider struct {
	submitter Submitter
	env       NonPipelineClient
	namespace string
	log       *zap.Logger
}

// New wraps submitter and env with the uniform provider contract. namespace
// is the Tekton namespace PipelineRuns are created in.
func New(submitter Submitter, env NonPipelineClient, namespace string, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	if namespace == "" {
		namespace = "tekton-pipelines"
	}
	return &Provider{submitter: submitter, env: env, namespace: namespace, log: log}
}

// Execute implements executor.Provider.
func (p *Provider) Execute(ctx context.Context, actionType string, params map[string]interface{}) (types.ActionResult, error) {
	start := time.Now()
	dryRun, _ := params["__dry_run"].(bool)

	msg, details, err := p.dispatch(ctx, actionType, params, dryRun)
	result := types.ActionResult{
		Success:         err == nil,
		Message:         msg,
		Details:         details,
		DurationSeconds: time.Since(start).Seconds(),
		DryRun:          dryRun,
	}
	if err != nil {
		result.Message = err.Error()
		p.log.Warn("cicd action failed", logging.NewFields().
			Component("cicdprovider").Operation(actionType).Error(err).Zap()...)
	}
	return result, nil
}

var pipelineActionTypes = map[string]bool{
	"pipeline_trigger": true,
	"pipeline_cancel":  true,
	"pipeline_retry":   true,
	"rollback_deploy":  true,
	"rollback":         true,
	"canary_adjust":    true,
	"canary_promote":   true,
	"canary_rollback":  true,
	"hotfix_deploy":    true,
	"artifact_promote": true,
	"deployment_pause": true,
	"deployment_resume": true,
}

func (p *Provider) dispatch(ctx context.Context, actionType string, params map[string]interface{}, dryRun bool) (string, map[string]interface{}, error) {
	switch {
	case actionType == "feature_flag_toggle":
		flag, _ := params["flag"].(string)
		enabled, _ := params["enabled"].(bool)
		if dryRun {
			return fmt.Sprintf("dry-run: would set feature flag %s enabled=%v", flag, enabled), nil, nil
		}
		return fmt.Sprintf("set feature flag %s enabled=%v", flag, enabled), nil, p.env.ToggleFeatureFlag(ctx, flag, enabled)

	case actionType == "environment_sync":
		from, _ := params["from"].(string)
		to, _ := params["to"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would sync environment %s into %s", from, to), nil, nil
		}
		return fmt.Sprintf("synced environment %s into %s", from, to), nil, p.env.SyncEnvironment(ctx, from, to)

	case pipelineActionTypes[actionType]:
		run := buildPipelineRun(p.namespace, actionType, params)
		if dryRun {
			return fmt.Sprintf("dry-run: would submit pipeline run for %s (pipeline %s)", actionType, run.Spec.PipelineRef.Name), map[string]interface{}{"pipeline": run.Spec.PipelineRef.Name}, nil
		}
		submitted, err := p.submitter.Submit(ctx, run)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("submitted pipeline run %s for %s", submitted.Name, actionType), map[string]interface{}{"pipelineRun": submitted.Name}, nil

	default:
		return "", nil, fmt.Errorf("cicdprovider: unsupported action type %q", actionType)
	}
}

// buildPipelineRun constructs the typed PipelineRun object a collaborator's
// Tekton client would submit. pipeline and params are
// read out of the action's loosely-typed params map; anything that isn't a
// recognized scalar is stringified into a Tekton string param.
func buildPipelineRun(namespace, actionType string, params map[string]interface{}) *pipelinev1.PipelineRun {
	pipeline, _ := params["pipeline"].(string)
	if pipeline == "" {
		pipeline = actionType
	}

	var tektonParams []pipelinev1.Param
	if raw, ok := params["pipelineParams"].(map[string]interface{}); ok {
		for k, v := range raw {
			tektonParams = append(tektonParams, pipelinev1.Param{
				Name: k,
				Value: pipelinev1.ParamValue{
					Type:      pipelinev1.ParamTypeString,
					StringVal: fmt.Sprintf("%v", v),
				},
			})
		}
	}

	var workspaces []pipelinev1.WorkspaceBinding
	if raw, ok := params["workspaces"].([]interface{}); ok {
		for _, w := range raw {
			name, _ := w.(string)
			if name == "" {
				continue
			}
			workspaces = append(workspaces, pipelinev1.WorkspaceBinding{
				Name:     name,
				EmptyDir: &corev1.EmptyDirVolumeSource{},
			})
		}
	}

	return &pipelinev1.PipelineRun{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: "autopilot-" + actionType + "-",
			Namespace:    namespace,
			Labels: map[string]string{
				"autopilot.ai/actionType": actionType,
			},
		},
		Spec: pipelinev1.PipelineRunSpec{
			PipelineRef: &pipelinev1.PipelineRef{Name: pipeline},
			Params:      tektonParams,
			Workspaces:  workspaces,
		},
	}
}
