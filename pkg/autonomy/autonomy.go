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

// Package autonomy implements C6, the AutonomousExecutor: it composes the
// three confidence signals, runs the six safety rails, and decides whether
// a proposed action executes on its own or waits for a human. Execution
// itself is delegated to the ActionExecutor (C7); every
// decision, approved or not, is recorded through the DecisionLogger (C10).
package autonomy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/audit"
	"github.com/ai-autopilot/incident-core/pkg/autonomy/policy"
	"github.com/ai-autopilot/incident-core/pkg/executor"
	"github.com/ai-autopilot/incident-core/pkg/learning"
	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/store"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// Mode is the operator-selected execution posture.
type Mode string

const (
	ModeManual     Mode = "manual"
	ModeSupervised Mode = "supervised"
	ModeAutonomous Mode = "autonomous"
	ModeNight      Mode = "nightMode"
)

// Weights are the per-signal blend coefficients for confidence
// composition. They are expected to sum to 1 and are renormalized
// after every online adjustment.
type Weights struct {
	Rule       float64 `json:"rule"`
	AI         float64 `json:"ai"`
	Historical float64 `json:"historical"`
}

// DefaultWeights are the starting blend coefficients.
func DefaultWeights() Weights {
	return Weights{Rule: 0.40, AI: 0.40, Historical: 0.20}
}

func (w Weights) normalize() Weights {
	total := w.Rule + w.AI + w.Historical
	if total <= 0 {
		return DefaultWeights()
	}
	return Weights{Rule: w.Rule / total, AI: w.AI / total, Historical: w.Historical / total}
}

// Reinforcement and penalty steps, and the confidence thresholds that
// trigger them, for online weight adaptation. Because every weight moves by
// the same step, this is close to a no-op on the weight ratios once renormalized;
// the behavior is reproduced verbatim rather than "corrected" away.
const (
	WeightStep                   = 0.02
	WeightFloor                  = 0.01
	ReinforcementConfidenceFloor = 90.0
	PenaltyConfidenceFloor       = 75.0
)

// Config configures an Executor.
type Config struct {
	Mode                 Mode
	ConfidenceThreshold  float64 // default 75
	NightStartHour       int     // UTC hour, inclusive
	NightEndHour         int     // UTC hour, exclusive
	MaxConcurrentActions int     // default 3
	CooldownSeconds      int     // default 300
}

// DefaultConfig returns the standard operating defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                  ModeSupervised,
		ConfidenceThreshold:   75,
		NightStartHour:        22,
		NightEndHour:          6,
		MaxConcurrentActions:  3,
		CooldownSeconds:       300,
	}
}

// Executor implements the AutonomousExecutor component.
type Executor struct {
	store    store.KeyValueStore
	executor *executor.Executor
	learning *learning.Engine
	audit    *audit.Logger
	policy   *policy.Evaluator
	log      *zap.Logger
	cfg      Config

	activeMu sync.Mutex
	active   int64

	weightsMu sync.Mutex

	modeMu       sync.Mutex
	forcedManual bool
	pauseReason  string
}

// New constructs an Executor wired to its collaborators.
func New(s store.KeyValueStore, exec *executor.Executor, learn *learning.Engine, auditLog *audit.Logger, pol *policy.Evaluator, cfg Config, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 75
	}
	if cfg.MaxConcurrentActions == 0 {
		cfg.MaxConcurrentActions = 3
	}
	if cfg.CooldownSeconds == 0 {
		cfg.CooldownSeconds = 300
	}
	return &Executor{
		store:    s,
		executor: exec,
		learning: learn,
		audit:    auditLog,
		policy:   pol,
		cfg:      cfg,
		log:      log,
	}
}

func weightsKey() string { return "autonomy:weights" }

// PauseAutonomy forces the executor into manual mode until ResumeAutonomy
// is called, regardless of the configured mode. Used by the engine's store
// health watchdog when C1 has been unreachable past its grace window.
func (x *Executor) PauseAutonomy(reason string) {
	x.modeMu.Lock()
	x.forcedManual = true
	x.pauseReason = reason
	x.modeMu.Unlock()
	x.log.Warn("autonomous execution paused, mode forced to manual", logging.NewFields().
		Component("autonomy").Operation("pause").Error(fmt.Errorf("%s", reason)).Zap()...)
}

// ResumeAutonomy lifts a PauseAutonomy override, restoring the configured
// mode.
func (x *Executor) ResumeAutonomy() {
	x.modeMu.Lock()
	wasPaused := x.forcedManual
	x.forcedManual = false
	x.pauseReason = ""
	x.modeMu.Unlock()
	if wasPaused {
		x.log.Info("autonomous execution resumed", logging.NewFields().
			Component("autonomy").Operation("resume").Zap()...)
	}
}

// effectiveMode is the configured mode unless a health pause has forced
// manual.
func (x *Executor) effectiveMode() Mode {
	x.modeMu.Lock()
	defer x.modeMu.Unlock()
	if x.forcedManual {
		return ModeManual
	}
	return x.cfg.Mode
}

func (x *Executor) loadWeights(ctx context.Context) Weights {
	raw, err := x.store.Get(ctx, weightsKey())
	if err != nil || raw == nil {
		return DefaultWeights()
	}
	var w Weights
	if err := json.Unmarshal(raw, &w); err != nil {
		return DefaultWeights()
	}
	return w.normalize()
}

func (x *Executor) saveWeights(ctx context.Context, w Weights) {
	raw, err := json.Marshal(w)
	if err != nil {
		return
	}
	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()
	_ = x.store.Set(ctx, weightsKey(), raw, 0)
}

// Proposal is everything needed to propose and decide on one action.
type Proposal struct {
	IncidentID string
	Service    string
	ActionType string
	Params     map[string]interface{}
	Reasoning  string
	Risk       types.Risk

	Evidence    ConfidenceEvidence
	BlastRadius types.BlastRadius

	// CurrentReplicas/TargetReplicas feed rail 4 (scale limits); leave
	// CurrentReplicas at 0 for non-scale actions.
	CurrentReplicas int
	TargetReplicas  int

	// RecentCriticalAnomalies feeds rail 5 (service-health veto): the
	// count of critical anomalies among the service's last 10.
	RecentCriticalAnomalies int

	PatternID string
}

// autoAllowed reports whether mode permits autonomous execution at all for
// this risk tier, independent of confidence.
func autoAllowed(mode Mode, risk types.Risk, now time.Time, nightStart, nightEnd int) bool {
	switch mode {
	case ModeManual:
		return false
	case ModeSupervised:
		return risk == types.RiskLow
	case ModeAutonomous:
		return true
	case ModeNight:
		return inNightWindow(now, nightStart, nightEnd)
	default:
		return false
	}
}

func inNightWindow(now time.Time, start, end int) bool {
	h := now.UTC().Hour()
	if start == end {
		return true
	}
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// Decide proposes p as an Action via the ActionExecutor, runs the six
// safety rails and the confidence composition, and either auto-approves
// (which synchronously executes, per the ActionExecutor's contract) or
// leaves the action pending for a human. A DecisionLog is always recorded,
// and a successful or failed autonomous execution always feeds back into
// the LearningEngine.
func (x *Executor) Decide(ctx context.Context, p Proposal) (*types.Action, *types.DecisionLog, error) {
	action, err := x.executor.Propose(ctx, p.ActionType, p.Service, p.Params, p.Reasoning, p.Risk, p.IncidentID, "autonomy")
	if err != nil {
		return nil, nil, err
	}

	mode := x.effectiveMode()
	dl := &types.DecisionLog{
		DecisionID:     uuid.NewString(),
		Timestamp:      time.Now(),
		IncidentID:     p.IncidentID,
		Service:        p.Service,
		ActionType:     p.ActionType,
		Threshold:      x.cfg.ConfidenceThreshold,
		MatchedPattern: p.PatternID,
		ExecutionMode:  string(mode),
	}

	safetyIn := SafetyInput{
		Service:         p.Service,
		ActionType:      p.ActionType,
		BlastRadius:     p.BlastRadius,
		CurrentReplicas: p.CurrentReplicas,
		TargetReplicas:  p.TargetReplicas,
		RecentCritical:  p.RecentCriticalAnomalies,
	}
	if veto := x.checkRails(ctx, safetyIn); veto != nil {
		dl.Decision = types.DecisionDenied
		dl.SafetyChecks = []string{fmt.Sprintf("rail %d: %s", veto.Rail, veto.Reason)}
		dl.ReasoningSummary = veto.Reason
		x.logDecision(ctx, dl)
		return action, dl, nil
	}
	dl.SafetyChecks = []string{"all six safety rails passed"}

	weights := x.loadWeights(ctx)
	comp := compose(p.Evidence, weights)
	dl.FinalConfidence = comp.WeightedSum
	dl.Contributions = comp.Contributions
	for _, c := range comp.Contributions {
		dl.FactorsFor = append(dl.FactorsFor, c.Factors...)
	}

	allowed := autoAllowed(mode, p.Risk, time.Now(), x.cfg.NightStartHour, x.cfg.NightEndHour)
	if !allowed {
		dl.Decision = types.DecisionDeferred
		dl.ReasoningSummary = fmt.Sprintf("mode %q does not permit autonomous execution for %s-risk actions", mode, p.Risk)
		x.logDecision(ctx, dl)
		return action, dl, nil
	}
	if comp.WeightedSum < x.cfg.ConfidenceThreshold {
		dl.Decision = types.DecisionDeferred
		dl.ReasoningSummary = fmt.Sprintf("composed confidence %.1f below threshold %.1f", comp.WeightedSum, x.cfg.ConfidenceThreshold)
		x.logDecision(ctx, dl)
		return action, dl, nil
	}

	dl.Decision = types.DecisionApproved
	dl.ReasoningSummary = fmt.Sprintf("composed confidence %.1f meets threshold %.1f, autonomous execution approved", comp.WeightedSum, x.cfg.ConfidenceThreshold)
	x.logDecision(ctx, dl)

	x.acquireSlot()
	defer x.releaseSlot()
	x.markCooldown(ctx, p.Service, p.ActionType)
	x.recordExecution(ctx, p.ActionType, action.ID)

	executed, err := x.executor.Approve(ctx, action.ID, "autonomy")
	if err != nil {
		x.log.Error("autonomous approval failed", logging.NewFields().
			Component("autonomy").Operation("decide").Service(p.Service).Resource("action", action.ID).Error(err).Zap()...)
		return action, dl, err
	}

	success := executed.Result != nil && executed.Result.Success
	x.recordOutcome(ctx, p, comp.WeightedSum, executed, success)
	x.appendAutonomousOutcome(ctx, p, comp.WeightedSum, executed, success)
	x.adaptWeights(ctx, comp.WeightedSum, success)
	x.updateDecisionOutcome(ctx, dl.DecisionID, success)
	dl.Outcome = "failed"
	if success {
		dl.Outcome = "success"
	}

	return executed, dl, nil
}

func autonomousOutcomesKey() string { return "autonomous_outcomes" }

// appendAutonomousOutcome logs every autonomous execution's terminal result
// to the global outcome list; best effort.
func (x *Executor) appendAutonomousOutcome(ctx context.Context, p Proposal, confidence float64, executed *types.Action, success bool) {
	rec := map[string]interface{}{
		"actionID":   executed.ID,
		"incidentID": p.IncidentID,
		"actionType": p.ActionType,
		"service":    p.Service,
		"confidence": confidence,
		"success":    success,
		"mode":       string(x.cfg.Mode),
		"timestamp":  time.Now(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := x.store.LPush(ctx, autonomousOutcomesKey(), raw); err != nil {
		x.log.Warn("failed to append autonomous outcome", logging.NewFields().
			Component("autonomy").Operation("append_outcome").Resource("action", executed.ID).Error(err).Zap()...)
	}
}

func (x *Executor) logDecision(ctx context.Context, dl *types.DecisionLog) {
	if err := x.audit.Log(ctx, dl); err != nil {
		x.log.Warn("failed to persist decision log", logging.NewFields().
			Component("autonomy").Operation("log_decision").Service(dl.Service).Resource("decision", dl.DecisionID).Error(err).Zap()...)
	}
}

func (x *Executor) updateDecisionOutcome(ctx context.Context, decisionID string, success bool) {
	outcome := "failed"
	if success {
		outcome = "success"
	}
	if err := x.audit.UpdateOutcome(ctx, decisionID, outcome); err != nil {
		x.log.Warn("failed to update decision outcome", logging.NewFields().
			Component("autonomy").Operation("update_outcome").Resource("decision", decisionID).Error(err).Zap()...)
	}
}

func (x *Executor) recordOutcome(ctx context.Context, p Proposal, confidence float64, executed *types.Action, success bool) {
	if p.PatternID == "" {
		return
	}
	seconds := 0.0
	if executed.Result != nil {
		seconds = executed.Result.DurationSeconds
	}
	_, err := x.learning.RecordOutcome(ctx, types.LearningOutcome{
		OutcomeID:             uuid.NewString(),
		IncidentID:            p.IncidentID,
		PatternID:             p.PatternID,
		ActionType:            p.ActionType,
		ActionCategory:        string(executor.CategoryForActionType(p.ActionType)),
		Success:               success,
		Autonomous:            true,
		ConfidenceAtExecution: confidence,
		ExecutionSeconds:      seconds,
		Timestamp:             time.Now(),
	})
	if err != nil {
		x.log.Warn("failed to record autonomous outcome", logging.NewFields().
			Component("autonomy").Operation("record_outcome").Resource("pattern", p.PatternID).Error(err).Zap()...)
	}
}

// adaptWeights applies the online reinforcement scheme: a success
// at confidence >= 90 nudges every weight up by WeightStep, a failure at
// confidence >= 75 nudges every weight down, both followed by a floor and
// renormalization so the weights keep summing to 1.
func (x *Executor) adaptWeights(ctx context.Context, confidence float64, success bool) {
	x.weightsMu.Lock()
	defer x.weightsMu.Unlock()

	w := x.loadWeights(ctx)
	switch {
	case success && confidence >= ReinforcementConfidenceFloor:
		w.Rule += WeightStep
		w.AI += WeightStep
		w.Historical += WeightStep
	case !success && confidence >= PenaltyConfidenceFloor:
		w.Rule -= WeightStep
		w.AI -= WeightStep
		w.Historical -= WeightStep
	default:
		return
	}
	w.Rule = floorWeight(w.Rule)
	w.AI = floorWeight(w.AI)
	w.Historical = floorWeight(w.Historical)
	w = w.normalize()
	x.saveWeights(ctx, w)
}

func floorWeight(v float64) float64 {
	if v < WeightFloor {
		return WeightFloor
	}
	return v
}
