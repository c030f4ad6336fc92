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

// Package prevention implements C8, the RepeatEliminator: it fingerprints
// a resolved or failed incident's failure shape, tracks its recurrence per
// service, and drives a preventive action once the same shape keeps coming
// back.
package prevention

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	sharedmath "github.com/ai-autopilot/incident-core/pkg/shared/math"

	"github.com/ai-autopilot/incident-core/pkg/executor"
	"github.com/ai-autopilot/incident-core/pkg/shared/keyedmutex"
	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/store"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// preventiveTable maps a symptom to the preventive action attempted when a
// pattern keeps recurring.
var preventiveTable = map[string]string{
	"latency_spike":        "scale_up",
	"memory_issue":         "restart_service",
	"error_rate_spike":     "rollback",
	"cpu_issue":            "scale_up",
	"connection_exhaustion": "kill_connections",
	"pod_crash":            "update_resources",
}

// PreventiveConfidenceBump and PreventiveConfidenceCap govern the
// preference bump for an action already recorded as successful for this
// pattern.
const (
	PreventiveConfidenceBump = 10
	PreventiveConfidenceCap  = 100
)

// PreventiveBaseConfidence is the starting confidence for a preventive
// selected from the symptom table, before any success-preference bump.
const PreventiveBaseConfidence = 60

// Signal is what the RepeatEliminator fingerprints an incident on.
type Signal struct {
	Service         string
	RootCauseType   string
	LatencySpike    bool
	ErrorRateSpike  bool
	MemoryIssue     bool
	CPUIssue        bool
}

// Fingerprint returns the first 16 hex characters of sha256({service,
// rootCauseType, latencySpike?, errorRateSpike?, memoryIssue?, cpuIssue?}).
// This is a distinct, shorter truncation from the
// Incident fingerprint in the glossary (24 hex chars): the two fingerprint
// different things (one incident occurrence vs. a recurring failure shape)
// and are kept deliberately distinct.
func (s Signal) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%t|%t|%t|%t",
		s.Service, s.RootCauseType, s.LatencySpike, s.ErrorRateSpike, s.MemoryIssue, s.CPUIssue)))
	return hex.EncodeToString(sum[:])[:16]
}

func (s Signal) symptom() string {
	switch {
	case s.LatencySpike:
		return "latency_spike"
	case s.MemoryIssue:
		return "memory_issue"
	case s.ErrorRateSpike:
		return "error_rate_spike"
	case s.CPUIssue:
		return "cpu_issue"
	default:
		return ""
	}
}

// Eliminator implements the RepeatEliminator component.
type Eliminator struct {
	store    store.KeyValueStore
	executor *executor.Executor
	log      *zap.Logger
	lock     *keyedmutex.Mutex
}

// New constructs an Eliminator backed by s, executing preventives through
// exec.
func New(s store.KeyValueStore, exec *executor.Executor, log *zap.Logger) *Eliminator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Eliminator{store: s, executor: exec, log: log, lock: keyedmutex.New()}
}

func patternKey(fingerprint string) string      { return "repeat_pattern:" + fingerprint }
func patternsByServiceKey(svc string) string    { return "repeat_patterns:" + svc }
func escalationsKey() string                    { return "escalations" }
func escalationsByServiceKey(svc string) string { return "escalations:" + svc }
func permanentFixesGlobalKey() string           { return "permanent_fixes" }
func permanentFixesKey(svc string) string       { return "permanent_fixes:" + svc }

// Observation is one resolved or failed incident handed to Record.
type Observation struct {
	IncidentID string
	ActionType string // the action actually taken for this incident, if any
	Success    bool
	Service    string
	Params     map[string]interface{}
}

// Record loads (or creates) the RepeatPattern for sig, bumps its
// occurrence count, records the outcome, and — once the pattern has
// recurred at least PreventiveOccurrenceThreshold times without a
// permanent fix — attempts a preventive action. Returns the updated
// pattern and, when one was attempted, the preventive action's result.
func (r *Eliminator) Record(ctx context.Context, sig Signal, obs Observation) (*types.RepeatPattern, *types.Action, error) {
	fp := sig.Fingerprint()
	unlock := r.lock.Lock(fp)
	defer unlock()

	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()

	p, err := r.load(ctx, fp, sig)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	p.OccurrenceCount++
	p.LastSeen = now
	if p.FirstSeen.IsZero() {
		p.FirstSeen = now
	}
	fix := types.FixRecord{ActionType: obs.ActionType, AppliedAt: now, IncidentID: obs.IncidentID}
	if obs.Success {
		p.SuccessfulFixes = append(p.SuccessfulFixes, fix)
	} else if obs.ActionType != "" {
		p.FailedFixes = append(p.FailedFixes, fix)
	}

	var preventiveAction *types.Action
	if p.OccurrenceCount >= types.PreventiveOccurrenceThreshold && !p.PermanentFixApplied {
		preventiveAction, err = r.applyPreventive(ctx, sig, p, obs)
		if err != nil {
			r.log.Warn("preventive action failed to execute", logging.NewFields().
				Component("prevention").Operation("apply_preventive").Service(sig.Service).
				Resource("pattern", fp).Error(err).Zap()...)
		}
	}

	if p.OccurrenceCount >= types.EscalationOccurrenceThreshold && !p.PermanentFixApplied && !p.Escalated {
		r.escalate(ctx, p)
	}

	if err := r.save(ctx, p); err != nil {
		return nil, nil, err
	}
	return p, preventiveAction, nil
}

func (r *Eliminator) load(ctx context.Context, fingerprint string, sig Signal) (*types.RepeatPattern, error) {
	raw, err := r.store.Get(ctx, patternKey(fingerprint))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return &types.RepeatPattern{
			PatternID:        fingerprint,
			Service:          sig.Service,
			RootCauseHash:    fingerprint,
			SymptomSignature: sig.symptom(),
		}, nil
	}
	var p types.RepeatPattern
	if err := json.Unmarshal(raw, &p); err != nil {
		r.log.Warn("malformed repeat pattern record, starting fresh", logging.NewFields().
			Component("prevention").Operation("load").Resource("pattern", fingerprint).Error(err).Zap()...)
		return &types.RepeatPattern{PatternID: fingerprint, Service: sig.Service, RootCauseHash: fingerprint, SymptomSignature: sig.symptom()}, nil
	}
	return &p, nil
}

func (r *Eliminator) save(ctx context.Context, p *types.RepeatPattern) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, patternKey(p.PatternID), raw, types.RepeatPatternTTL); err != nil {
		return err
	}
	if err := r.store.SAdd(ctx, patternsByServiceKey(p.Service), p.PatternID); err != nil {
		r.log.Warn("failed to index repeat pattern by service", logging.NewFields().
			Component("prevention").Operation("save").Service(p.Service).Resource("pattern", p.PatternID).Error(err).Zap()...)
	}
	return nil
}

// applyPreventive picks the preventive action for sig's symptom, preferring
// an action previously recorded as successful for this pattern (bumped per
// ConfidenceBump), and executes it through the ActionExecutor (propose
// then approve, mirroring the AutonomousExecutor's synchronous-approval
// contract). The selection confidence rides on the proposed action so the
// audit trail shows why this preventive was chosen.
func (r *Eliminator) applyPreventive(ctx context.Context, sig Signal, p *types.RepeatPattern, obs Observation) (*types.Action, error) {
	actionType, confidence := preferredAction(p, sig.symptom())
	if actionType == "" {
		return nil, nil
	}

	params := make(map[string]interface{}, len(obs.Params)+1)
	for k, v := range obs.Params {
		params[k] = v
	}
	params["confidence"] = confidence

	reasoning := fmt.Sprintf("preventive fix for recurring pattern %s (%d occurrences, confidence %.0f)", p.PatternID, p.OccurrenceCount, confidence)
	action, err := r.executor.Propose(ctx, actionType, sig.Service, params, reasoning, types.RiskMedium, obs.IncidentID, "prevention")
	if err != nil {
		return nil, err
	}
	executed, err := r.executor.Approve(ctx, action.ID, "prevention")
	if err != nil {
		return action, err
	}

	if executed.Result != nil && executed.Result.Success {
		p.PermanentFixApplied = true
		p.PermanentFixDetails = actionType
		r.recordPermanentFix(ctx, sig.Service, p.PatternID, actionType)
	}
	return executed, nil
}

// preferredAction returns the symptom's default preventive and its
// selection confidence, preferring any action already recorded as
// successful for this pattern; a success-preferred action carries the
// bumped confidence.
func preferredAction(p *types.RepeatPattern, symptom string) (string, float64) {
	if len(p.SuccessfulFixes) > 0 {
		return p.SuccessfulFixes[len(p.SuccessfulFixes)-1].ActionType, ConfidenceBump(PreventiveBaseConfidence)
	}
	return preventiveTable[symptom], PreventiveBaseConfidence
}

func (r *Eliminator) recordPermanentFix(ctx context.Context, service, patternID, actionType string) {
	entry, err := json.Marshal(map[string]string{"service": service, "patternID": patternID, "actionType": actionType})
	if err != nil {
		return
	}
	if err := store.LPushCapped(ctx, r.store, permanentFixesKey(service), entry, types.MaxPermanentFixRegistry); err != nil {
		r.log.Warn("failed to index permanent fix", logging.NewFields().
			Component("prevention").Operation("record_permanent_fix").Service(service).Resource("pattern", patternID).Error(err).Zap()...)
	}
	if err := store.LPushCapped(ctx, r.store, permanentFixesGlobalKey(), entry, types.MaxPermanentFixRegistry); err != nil {
		r.log.Warn("failed to index permanent fix globally", logging.NewFields().
			Component("prevention").Operation("record_permanent_fix").Service(service).Resource("pattern", patternID).Error(err).Zap()...)
	}
}

func (r *Eliminator) escalate(ctx context.Context, p *types.RepeatPattern) {
	p.Escalated = true
	rec := types.EscalationRecord{
		PatternID:   p.PatternID,
		Service:     p.Service,
		OccurredAt:  time.Now(),
		Occurrences: p.OccurrenceCount,
		Reason:      fmt.Sprintf("pattern recurred %d times without a permanent fix", p.OccurrenceCount),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := r.store.LPush(ctx, escalationsKey(), raw); err != nil {
		r.log.Warn("failed to append global escalation", logging.NewFields().
			Component("prevention").Operation("escalate").Resource("pattern", p.PatternID).Error(err).Zap()...)
	}
	if err := r.store.LPush(ctx, escalationsByServiceKey(p.Service), raw); err != nil {
		r.log.Warn("failed to append per-service escalation", logging.NewFields().
			Component("prevention").Operation("escalate").Service(p.Service).Resource("pattern", p.PatternID).Error(err).Zap()...)
	}
}

// ConfidenceBump applies the +10 (cap 100) preference bump for an action
// confirmed successful against this pattern.
func ConfidenceBump(current float64) float64 {
	return sharedmath.Clamp(current+PreventiveConfidenceBump, 0, PreventiveConfidenceCap)
}
