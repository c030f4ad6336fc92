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

// Package executor implements C7, the ActionExecutor: the state machine
// for a single remediation action, from proposal through approval,
// execution, and outcome recording.
package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/internal/tracing"
	sharederrors "github.com/ai-autopilot/incident-core/pkg/shared/errors"
	"github.com/ai-autopilot/incident-core/pkg/shared/keyedmutex"
	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/store"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// ProviderDeadline bounds a single provider call.
const ProviderDeadline = 30 * time.Second

// Provider is the uniform contract every action-type family (k8s, cloud,
// database, cicd, generic) implements.
type Provider interface {
	Execute(ctx context.Context, actionType string, params map[string]interface{}) (types.ActionResult, error)
}

// Executor implements the ActionExecutor component. Propose/Approve/
// Execute for the same action ID are serialized; distinct IDs run fully
// independently.
type Executor struct {
	store      store.KeyValueStore
	providers  map[types.ActionCategory]Provider
	generic    Provider
	dryRun     bool
	log        *zap.Logger
	actionLock *keyedmutex.Mutex
}

// New constructs an Executor. providers maps an ActionCategory to the
// provider that handles it; a missing category falls back to generic
// (pass nil for a conservative no-op generic provider).
func New(s store.KeyValueStore, providers map[types.ActionCategory]Provider, generic Provider, dryRun bool, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if generic == nil {
		generic = noopProvider{}
	}
	if providers == nil {
		providers = map[types.ActionCategory]Provider{}
	}
	return &Executor{store: s, providers: providers, generic: generic, dryRun: dryRun, log: log, actionLock: keyedmutex.New()}
}

func actionKey(id string) string              { return "action:" + id }
func outcomesKey() string                     { return "action_outcomes" }
func pendingQueueKey() string                 { return "actions:pending" }
func approvedQueueKey() string                { return "actions:approved" }
func serviceHistoryKey(service string) string { return "actions:history:" + service }
func successRateKey(actionType, service string) string {
	return "action_success_rate:" + actionType + ":" + service
}

// Propose creates a new Action in the pending state.
func (e *Executor) Propose(ctx context.Context, actionType, service string, params map[string]interface{}, reasoning string, risk types.Risk, incidentID, proposedBy string) (*types.Action, error) {
	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()

	a := &types.Action{
		ID:         uuid.NewString(),
		IncidentID: incidentID,
		ActionType: actionType,
		Service:    service,
		Params:     params,
		Reasoning:  reasoning,
		Risk:       risk,
		Status:     types.ActionPending,
		ProposedAt: time.Now(),
		ProposedBy: proposedBy,
	}
	if err := e.persist(ctx, a); err != nil {
		return nil, err
	}
	if err := store.LPushCapped(ctx, e.store, pendingQueueKey(), []byte(a.ID), 0); err != nil {
		e.log.Warn("failed to enqueue pending action", logging.NewFields().
			Component("executor").Operation("propose").Resource("action", a.ID).Error(err).Zap()...)
	}
	if err := store.LPushCapped(ctx, e.store, serviceHistoryKey(service), []byte(a.ID), 0); err != nil {
		e.log.Warn("failed to index action history", logging.NewFields().
			Component("executor").Operation("propose").Resource("action", a.ID).Error(err).Zap()...)
	}
	return a, nil
}

// Approve transitions a pending Action to approved, then synchronously
// executes it.
func (e *Executor) Approve(ctx context.Context, id, approver string) (*types.Action, error) {
	unlock := e.actionLock.Lock(id)
	defer unlock()

	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()

	a, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != types.ActionPending {
		return nil, sharederrors.InvalidState("approve", id, errInvalidTransition(a.Status, types.ActionApproved))
	}
	now := time.Now()
	a.Status = types.ActionApproved
	a.ApprovedBy = approver
	a.ApprovedAt = &now
	if err := e.persist(ctx, a); err != nil {
		return nil, err
	}
	_ = e.store.LRem(ctx, pendingQueueKey(), 0, []byte(id))
	if err := store.LPushCapped(ctx, e.store, approvedQueueKey(), []byte(id), 0); err != nil {
		e.log.Warn("failed to enqueue approved action", logging.NewFields().
			Component("executor").Operation("approve").Resource("action", id).Error(err).Zap()...)
	}

	return e.executeLocked(ctx, a)
}

// Execute transitions an approved Action through executing to a terminal
// status by dispatching to the appropriate provider.
func (e *Executor) Execute(ctx context.Context, id string) (*types.Action, error) {
	unlock := e.actionLock.Lock(id)
	defer unlock()

	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()

	a, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != types.ActionApproved {
		return nil, sharederrors.InvalidState("execute", id, errInvalidTransition(a.Status, types.ActionExecuting))
	}
	return e.executeLocked(ctx, a)
}

// executeLocked assumes the caller already holds actionLock for a.ID.
func (e *Executor) executeLocked(ctx context.Context, a *types.Action) (*types.Action, error) {
	now := time.Now()
	a.Status = types.ActionExecuting
	a.ExecutedAt = &now
	if err := e.persist(ctx, a); err != nil {
		return nil, err
	}

	provider := e.providerFor(a.ActionType)
	execCtx, cancel := context.WithTimeout(ctx, ProviderDeadline)
	defer cancel()

	params := a.Params
	if e.dryRun {
		params = withDryRun(params)
	}

	spanCtx, span := tracing.StartActionSpan(execCtx, a.ActionType, a.Service)
	result, err := provider.Execute(spanCtx, a.ActionType, params)
	tracing.End(span, err)
	completed := time.Now()
	a.CompletedAt = &completed
	_ = e.store.LRem(ctx, approvedQueueKey(), 0, []byte(a.ID))

	if err != nil {
		a.Status = types.ActionFailed
		a.Error = sharederrors.ProviderFailure("execute", a.ID, err).Error()
		e.recordSuccessRate(ctx, a, false)
		_ = e.persist(ctx, a)
		e.recordOutcome(ctx, a)
		tracing.RecordActionExecuted(ctx, a.ActionType, false)
		return a, nil
	}

	a.Result = &result
	if result.Success {
		a.Status = types.ActionSuccess
	} else {
		a.Status = types.ActionFailed
		a.Error = result.Message
	}
	e.recordSuccessRate(ctx, a, result.Success)
	if err := e.persist(ctx, a); err != nil {
		return nil, err
	}
	e.recordOutcome(ctx, a)
	tracing.RecordActionExecuted(ctx, a.ActionType, result.Success)
	return a, nil
}

// recordOutcome appends a compact terminal-state record to the global
// action-outcome log; best effort.
func (e *Executor) recordOutcome(ctx context.Context, a *types.Action) {
	rec := map[string]interface{}{
		"actionID":   a.ID,
		"incidentID": a.IncidentID,
		"actionType": a.ActionType,
		"service":    a.Service,
		"status":     a.Status,
	}
	if a.CompletedAt != nil {
		rec["completedAt"] = a.CompletedAt
	}
	if a.Result != nil {
		rec["success"] = a.Result.Success
		rec["durationSeconds"] = a.Result.DurationSeconds
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := e.store.LPush(ctx, outcomesKey(), raw); err != nil {
		e.log.Warn("failed to append action outcome", logging.NewFields().
			Component("executor").Operation("record_outcome").Resource("action", a.ID).Error(err).Zap()...)
	}
}

// Cancel transitions a pending or approved Action to cancelled. An
// in-flight action cancelled by a shutdown must reach this terminal state
// and emit a record, never be silently dropped.
func (e *Executor) Cancel(ctx context.Context, id, reason string) (*types.Action, error) {
	unlock := e.actionLock.Lock(id)
	defer unlock()

	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()

	a, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status.IsTerminal() {
		return nil, sharederrors.InvalidState("cancel", id, errInvalidTransition(a.Status, types.ActionCancelled))
	}
	now := time.Now()
	a.Status = types.ActionCancelled
	a.CompletedAt = &now
	a.Error = reason
	if err := e.persist(ctx, a); err != nil {
		return nil, err
	}
	_ = e.store.LRem(ctx, pendingQueueKey(), 0, []byte(id))
	_ = e.store.LRem(ctx, approvedQueueKey(), 0, []byte(id))
	e.recordOutcome(ctx, a)
	return a, nil
}

// Get loads the current state of an action.
func (e *Executor) Get(ctx context.Context, id string) (*types.Action, error) {
	return e.load(ctx, id)
}

func (e *Executor) load(ctx context.Context, id string) (*types.Action, error) {
	raw, err := e.store.Get(ctx, actionKey(id))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, sharederrors.InvalidState("load", id, errActionNotFound)
	}
	var a types.Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, sharederrors.MalformedInput("load", id, err)
	}
	return &a, nil
}

func (e *Executor) persist(ctx context.Context, a *types.Action) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return e.store.Set(ctx, actionKey(a.ID), raw, types.ActionTTL)
}

func (e *Executor) recordSuccessRate(ctx context.Context, a *types.Action, success bool) {
	key := successRateKey(a.ActionType, a.Service)
	if _, err := e.store.HIncrBy(ctx, key, "total", 1); err != nil {
		e.log.Warn("failed to record action success-rate total", logging.NewFields().
			Component("executor").Operation("record_success_rate").Resource("action", a.ID).Error(err).Zap()...)
		return
	}
	if success {
		if _, err := e.store.HIncrBy(ctx, key, "success", 1); err != nil {
			e.log.Warn("failed to record action success-rate success", logging.NewFields().
				Component("executor").Operation("record_success_rate").Resource("action", a.ID).Error(err).Zap()...)
		}
	}
}

// SuccessRate reads back the per-(actionType, service) success-rate hash.
func (e *Executor) SuccessRate(ctx context.Context, actionType, service string) (total, success int64, err error) {
	h, err := e.store.HGetAll(ctx, successRateKey(actionType, service))
	if err != nil {
		return 0, 0, err
	}
	return parseCount(h["total"]), parseCount(h["success"]), nil
}

func (e *Executor) providerFor(actionType string) Provider {
	category := CategoryForActionType(actionType)
	if p, ok := e.providers[category]; ok {
		return p
	}
	return e.generic
}

func withDryRun(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["__dry_run"] = true
	return out
}

func parseCount(raw []byte) int64 {
	if raw == nil {
		return 0
	}
	var n int64
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
