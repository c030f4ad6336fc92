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

// Package cloudprovider implements the ActionExecutor's cloud action
// family. Cloud actions span multiple providers (AWS, GCP,
// Azure) with incompatible SDKs, so this package defines the minimal
// collaborator interface it needs and leaves concrete SDK wiring to the
// binary that constructs it, the same "external collaborator with a
// minimal interface" boundary the CI/CD provider draws around its
// Tekton object construction.
package cloudprovider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// Client is the minimal surface a concrete cloud SDK client must expose.
// Each method corresponds to one or more action types in the cloud
// vocabulary.
type Client interface {
	RestartInstance(ctx context.Context, instanceID string) error
	SetInstanceState(ctx context.Context, instanceID string, running bool) error
	AdjustLoadBalancer(ctx context.Context, lbName string, params map[string]interface{}) error
	UpdateSecurityGroup(ctx context.Context, sgID string, params map[string]interface{}) error
	FailoverDNS(ctx context.Context, zone, record, target string) error
	CleanupStorage(ctx context.Context, bucket string, olderThanDays int) (int, error)
	CreateSnapshot(ctx context.Context, volumeID string) (string, error)
	RestoreSnapshot(ctx context.Context, snapshotID, volumeID string) error
	AdjustAutoscaling(ctx context.Context, groupName string, min, max, desired int) error
	InvokeFunction(ctx context.Context, functionName string, payload map[string]interface{}) (map[string]interface{}, error)
	ManageAlarm(ctx context.Context, alarmName string, enabled bool) error
}

// Provider dispatches cloud-family action types against a Client.
type Provider struct {
	client Client
	log    *zap.Logger
}

// New wraps client with the uniform provider contract.
func New(client Client, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{client: client, log: log}
}

// Execute implements executor.Provider.
func (p *Provider) Execute(ctx context.Context, actionType string, params map[string]interface{}) (types.ActionResult, error) {
	start := time.Now()
	dryRun, _ := params["__dry_run"].(bool)

	msg, details, err := p.dispatch(ctx, actionType, params, dryRun)
	if errors.Is(err, errUnsupportedActionType) {
		return types.ActionResult{}, err
	}
	result := types.ActionResult{
		Success:         err == nil,
		Message:         msg,
		Details:         details,
		DurationSeconds: time.Since(start).Seconds(),
		DryRun:          dryRun,
	}
	if err != nil {
		result.Message = err.Error()
		p.log.Warn("cloud action failed", logging.NewFields().
			Component("cloudprovider").Operation(actionType).Error(err).Zap()...)
	}
	return result, nil
}

// errUnsupportedActionType marks an action type outside the cloud vocabulary.
var errUnsupportedActionType = errors.New("unsupported action type")

func (p *Provider) dispatch(ctx context.Context, actionType string, params map[string]interface{}, dryRun bool) (string, map[string]interface{}, error) {
	id, _ := params["instanceID"].(string)

	switch actionType {
	case "instance_restart":
		if dryRun {
			return fmt.Sprintf("dry-run: would restart instance %s", id), nil, nil
		}
		return fmt.Sprintf("restarted instance %s", id), nil, p.client.RestartInstance(ctx, id)

	case "instance_start", "instance_stop":
		running := actionType == "instance_start"
		if dryRun {
			return fmt.Sprintf("dry-run: would set instance %s running=%v", id, running), nil, nil
		}
		return fmt.Sprintf("set instance %s running=%v", id, running), nil, p.client.SetInstanceState(ctx, id, running)

	case "lb_adjust":
		lb, _ := params["lbName"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would adjust load balancer %s", lb), nil, nil
		}
		return fmt.Sprintf("adjusted load balancer %s", lb), nil, p.client.AdjustLoadBalancer(ctx, lb, params)

	case "sg_update":
		sg, _ := params["sgID"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would update security group %s", sg), nil, nil
		}
		return fmt.Sprintf("updated security group %s", sg), nil, p.client.UpdateSecurityGroup(ctx, sg, params)

	case "dns_failover", "dns_update":
		zone, _ := params["zone"].(string)
		record, _ := params["record"].(string)
		target, _ := params["target"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would point %s in zone %s to %s", record, zone, target), nil, nil
		}
		return fmt.Sprintf("pointed %s in zone %s to %s", record, zone, target), nil, p.client.FailoverDNS(ctx, zone, record, target)

	case "storage_cleanup":
		bucket, _ := params["bucket"].(string)
		days := 30
		if v, ok := intParam(params, "olderThanDays"); ok {
			days = v
		}
		if dryRun {
			return fmt.Sprintf("dry-run: would clean objects older than %d days in %s", days, bucket), nil, nil
		}
		n, err := p.client.CleanupStorage(ctx, bucket, days)
		return fmt.Sprintf("removed %d objects older than %d days from %s", n, days, bucket), map[string]interface{}{"removed": n}, err

	case "snapshot_create":
		volume, _ := params["volumeID"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would snapshot volume %s", volume), nil, nil
		}
		snapID, err := p.client.CreateSnapshot(ctx, volume)
		return fmt.Sprintf("created snapshot %s of volume %s", snapID, volume), map[string]interface{}{"snapshotID": snapID}, err

	case "snapshot_restore":
		snap, _ := params["snapshotID"].(string)
		volume, _ := params["volumeID"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would restore snapshot %s onto volume %s", snap, volume), nil, nil
		}
		return fmt.Sprintf("restored snapshot %s onto volume %s", snap, volume), nil, p.client.RestoreSnapshot(ctx, snap, volume)

	case "autoscaling_adjust":
		group, _ := params["groupName"].(string)
		minN, _ := intParam(params, "min")
		maxN, _ := intParam(params, "max")
		desired, _ := intParam(params, "desired")
		if dryRun {
			return fmt.Sprintf("dry-run: would set %s to [%d,%d] desired=%d", group, minN, maxN, desired), nil, nil
		}
		return fmt.Sprintf("set %s to [%d,%d] desired=%d", group, minN, maxN, desired), nil, p.client.AdjustAutoscaling(ctx, group, minN, maxN, desired)

	case "lambda_invoke":
		fn, _ := params["functionName"].(string)
		payload, _ := params["payload"].(map[string]interface{})
		if dryRun {
			return fmt.Sprintf("dry-run: would invoke function %s", fn), nil, nil
		}
		out, err := p.client.InvokeFunction(ctx, fn, payload)
		return fmt.Sprintf("invoked function %s", fn), out, err

	case "alarm_manage":
		alarm, _ := params["alarmName"].(string)
		enabled, _ := params["enabled"].(bool)
		if dryRun {
			return fmt.Sprintf("dry-run: would set alarm %s enabled=%v", alarm, enabled), nil, nil
		}
		return fmt.Sprintf("set alarm %s enabled=%v", alarm, enabled), nil, p.client.ManageAlarm(ctx, alarm, enabled)

	default:
		return "", nil, fmt.Errorf("cloudprovider: %w %q", errUnsupportedActionType, actionType)
	}
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
