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

package autonomy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ai-autopilot/incident-core/pkg/autonomy/policy"
	"github.com/ai-autopilot/incident-core/pkg/store"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// blastRadiusScore maps the coarse BlastRadius enum onto the numeric scale
// the rego policy's rule 6 expects. Only high and
// critical reach the 80-point gate the policy checks against; low and
// medium never trip it regardless of action type.
func blastRadiusScore(b types.BlastRadius) float64 {
	switch b {
	case types.BlastRadiusCritical:
		return 100
	case types.BlastRadiusHigh:
		return 80
	case types.BlastRadiusMedium:
		return 50
	default:
		return 20
	}
}

// SafetyInput bundles everything the four in-process rails (1, 2, 4, 5)
// need, plus what rails 3 and 6 (delegated to policy.Evaluator) need.
type SafetyInput struct {
	Service          string
	ActionType       string
	BlastRadius      types.BlastRadius
	CurrentReplicas  int // 0 when the action type isn't a scale action
	TargetReplicas   int
	RecentCritical   int // count of critical anomalies among the service's last 10
}

// Veto is a single safety rail's refusal, carrying the exact rail number
// and a human reasoning string" format).
type Veto struct {
	Rail   int
	Reason string
}

func (v Veto) Error() string { return v.Reason }

// checkRails evaluates all six safety rails in order and returns the first
// veto encountered, or nil when every rail passes.
func (x *Executor) checkRails(ctx context.Context, in SafetyInput) *Veto {
	if v := x.checkConcurrency(); v != nil {
		return v
	}
	if v := x.checkCooldown(ctx, in.Service, in.ActionType); v != nil {
		return v
	}
	if v := x.checkBudget(ctx, in.ActionType); v != nil {
		return v
	}
	if v := checkScaleLimits(in); v != nil {
		return v
	}
	if v := checkServiceHealth(in); v != nil {
		return v
	}
	if v := x.checkBlastRadius(ctx, in.ActionType, in.BlastRadius); v != nil {
		return v
	}
	return nil
}

// checkConcurrency is rail 1: at most MaxConcurrentActions active actions
// at once, tracked in-process.
func (x *Executor) checkConcurrency() *Veto {
	x.activeMu.Lock()
	defer x.activeMu.Unlock()
	if x.active >= int64(x.cfg.MaxConcurrentActions) {
		return &Veto{Rail: 1, Reason: fmt.Sprintf("concurrency cap reached (%d active actions)", x.active)}
	}
	return nil
}

func (x *Executor) acquireSlot() {
	x.activeMu.Lock()
	x.active++
	x.activeMu.Unlock()
}

func (x *Executor) releaseSlot() {
	x.activeMu.Lock()
	if x.active > 0 {
		x.active--
	}
	x.activeMu.Unlock()
}

func cooldownKey(service, actionType string) string {
	return "autonomy:cooldown:" + service + ":" + actionType
}

// checkCooldown is rail 2: a per-(service, actionType) cooldown since the
// last autonomous execution.
func (x *Executor) checkCooldown(ctx context.Context, service, actionType string) *Veto {
	raw, err := x.store.Get(ctx, cooldownKey(service, actionType))
	if err != nil || raw == nil {
		return nil
	}
	lastUnix, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil
	}
	elapsed := time.Since(time.Unix(lastUnix, 0))
	remaining := time.Duration(x.cfg.CooldownSeconds)*time.Second - elapsed
	if remaining > 0 {
		return &Veto{Rail: 2, Reason: fmt.Sprintf("Cooldown active (%ds remaining)", int(remaining.Seconds()))}
	}
	return nil
}

func (x *Executor) markCooldown(ctx context.Context, service, actionType string) {
	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()
	ts := []byte(strconv.FormatInt(time.Now().Unix(), 10))
	ttl := time.Duration(x.cfg.CooldownSeconds) * time.Second
	_ = x.store.SetEx(ctx, cooldownKey(service, actionType), ttl, ts)
}

func executionsKey(actionType string) string { return "autonomy:executions:" + actionType }

// checkBudget is rail 3, delegated to the rego policy.
func (x *Executor) checkBudget(ctx context.Context, actionType string) *Veto {
	count := x.executionsLastHour(ctx, actionType)
	res := x.policy.Evaluate(ctx, policy.Input{ActionType: actionType, ExecutionsLastHour: count})
	if !res.Allow && res.VetoReason != "" {
		return &Veto{Rail: 3, Reason: res.VetoReason}
	}
	return nil
}

func (x *Executor) executionsLastHour(ctx context.Context, actionType string) int {
	now := time.Now()
	members, err := x.store.ZRangeByScore(ctx, executionsKey(actionType), float64(now.Add(-time.Hour).Unix()), float64(now.Unix()))
	if err != nil {
		return 0
	}
	return len(members)
}

func (x *Executor) recordExecution(ctx context.Context, actionType, actionID string) {
	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()
	_ = x.store.ZAdd(ctx, executionsKey(actionType), float64(time.Now().Unix()), actionID)
}

// checkScaleLimits is rail 4: 1 <= targetReplicas <= 3 * current, only
// meaningful when the action actually carries replica counts.
func checkScaleLimits(in SafetyInput) *Veto {
	if in.CurrentReplicas <= 0 {
		return nil
	}
	if in.TargetReplicas < 1 {
		return &Veto{Rail: 4, Reason: "target replica count must be at least 1"}
	}
	if in.TargetReplicas > 3*in.CurrentReplicas {
		return &Veto{Rail: 4, Reason: fmt.Sprintf("target replica count %d exceeds 3x current (%d)", in.TargetReplicas, in.CurrentReplicas)}
	}
	return nil
}

// ServiceHealthVetoThreshold is the critical-anomaly count (out of the
// last 10) that trips rail 5.
const ServiceHealthVetoThreshold = 3

// checkServiceHealth is rail 5: veto when the service's last 10 anomalies
// include 3 or more at critical severity.
func checkServiceHealth(in SafetyInput) *Veto {
	if in.RecentCritical >= ServiceHealthVetoThreshold {
		return &Veto{Rail: 5, Reason: fmt.Sprintf("service health critical (%d of last 10 anomalies critical)", in.RecentCritical)}
	}
	return nil
}

// checkBlastRadius is rail 6, delegated to the rego policy.
func (x *Executor) checkBlastRadius(ctx context.Context, actionType string, br types.BlastRadius) *Veto {
	res := x.policy.Evaluate(ctx, policy.Input{ActionType: actionType, BlastRadiusScore: blastRadiusScore(br)})
	if !res.Allow && res.VetoReason != "" {
		return &Veto{Rail: 6, Reason: res.VetoReason}
	}
	return nil
}
