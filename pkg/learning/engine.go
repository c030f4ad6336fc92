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

// Package learning implements C4, the LearningEngine: the exclusive
// authority on per-pattern confidence adjustment, per-action historical
// success rate, and promotion/demotion for autonomous execution.
package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	sharedmath "github.com/ai-autopilot/incident-core/pkg/shared/math"

	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/store"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// EMAAlpha is the smoothing factor for PerActionRate.
const EMAAlpha = 0.3

// Promotion/demotion thresholds.
const (
	PromotionMinMatches     = 10
	PromotionMinSuccessRate = 0.90
	PromotionMinAutonomous  = 0.95
	DemotionMinFailures     = 3
	DemotionFailureRate     = 0.30
	ConsecutiveFailureAlert = 2
)

// Engine implements the LearningEngine component.
type Engine struct {
	store store.KeyValueStore
	log   *zap.Logger
}

// New constructs an Engine backed by s.
func New(s store.KeyValueStore, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: s, log: log}
}

func statsKey(patternID string) string    { return "learning:pattern_stats:" + patternID }
func outcomesKey(patternID string) string { return "learning:outcomes:" + patternID }
func timelineKey() string                 { return "learning:outcomes:timeline" }

// Stats loads the current PatternStats for patternID, returning a fresh
// zero-value record on a cache miss.
func (e *Engine) Stats(ctx context.Context, patternID string) (*types.PatternStats, error) {
	raw, err := e.store.Get(ctx, statsKey(patternID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return &types.PatternStats{PatternID: patternID, PerActionRate: map[string]float64{}, SeenOutcomeIDs: map[string]bool{}}, nil
	}
	var s types.PatternStats
	if err := json.Unmarshal(raw, &s); err != nil {
		e.log.Warn("discarding malformed pattern stats", logging.NewFields().
			Component("learning").Operation("stats").Resource("pattern", patternID).Error(err).Zap()...)
		return &types.PatternStats{PatternID: patternID, PerActionRate: map[string]float64{}, SeenOutcomeIDs: map[string]bool{}}, nil
	}
	if s.PerActionRate == nil {
		s.PerActionRate = map[string]float64{}
	}
	if s.SeenOutcomeIDs == nil {
		s.SeenOutcomeIDs = map[string]bool{}
	}
	return &s, nil
}

// TotalMatches implements knowledge.TotalMatchesLookup, letting the
// KnowledgeBase break confidence ties without a direct dependency on this
// package.
func (e *Engine) TotalMatches(patternID string) int {
	s, err := e.Stats(context.Background(), patternID)
	if err != nil || s == nil {
		return 0
	}
	return s.TotalMatches
}

func (e *Engine) saveStats(ctx context.Context, s *types.PatternStats) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return e.store.Set(ctx, statsKey(s.PatternID), raw, 0)
}

// RecordOutcome applies one outcome to the pattern's running statistics.
// It deduplicates by OutcomeID: a repeat of an already-seen outcome is a
// no-op.
func (e *Engine) RecordOutcome(ctx context.Context, o types.LearningOutcome) (*types.PatternStats, error) {
	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()

	s, err := e.Stats(ctx, o.PatternID)
	if err != nil {
		return nil, err
	}
	if s.SeenOutcomeIDs[o.OutcomeID] {
		return s, nil
	}
	s.SeenOutcomeIDs[o.OutcomeID] = true

	s.TotalMatches++
	now := o.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	s.LastMatchedAt = &now

	if o.Success {
		s.Successes++
		s.ConsecutiveFailures = 0
		s.LastSuccessAt = &now
	} else {
		s.Failures++
		s.ConsecutiveFailures++
	}

	// Running mean of avgResolutionSeconds over totalMatches.
	s.AvgResolutionSeconds += (o.ExecutionSeconds - s.AvgResolutionSeconds) / float64(s.TotalMatches)

	actionKey := o.ActionCategory + ":" + o.ActionType
	prevRate, seen := s.PerActionRate[actionKey]
	if !seen {
		prevRate = 0.5
	}
	successVal := 0.0
	if o.Success {
		successVal = 1.0
	}
	s.PerActionRate[actionKey] = EMAAlpha*successVal + (1-EMAAlpha)*prevRate

	if o.Autonomous {
		s.AutonomousAttempts++
		if o.Success {
			s.AutonomousSuccesses++
		}
	}

	s.ConfidenceAdjustment = sharedmath.Clamp(s.ConfidenceAdjustment+confidenceDelta(o, s), -1e9, 1e9)

	s.IsPromoted = s.IsPromoted || evaluatePromotion(s)
	s.IsDemoted = evaluateDemotion(s)

	if err := e.saveStats(ctx, s); err != nil {
		return nil, err
	}
	if err := e.appendOutcome(ctx, o); err != nil {
		e.log.Warn("failed to append learning outcome log", logging.NewFields().
			Component("learning").Operation("record_outcome").Resource("pattern", o.PatternID).Error(err).Zap()...)
	}
	return s, nil
}

func (e *Engine) appendOutcome(ctx context.Context, o types.LearningOutcome) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	if err := store.LPushCapped(ctx, e.store, outcomesKey(o.PatternID), raw, types.MaxOutcomesPerPattern); err != nil {
		return err
	}
	return store.LPushCapped(ctx, e.store, timelineKey(), raw, types.MaxOutcomesTimeline)
}

// confidenceDelta implements the positive/negative learning formula.
func confidenceDelta(o types.LearningOutcome, s *types.PatternStats) float64 {
	if o.Success {
		delta := 2.0
		if o.ConfidenceAtExecution < 60 {
			delta += 3.0
		} else if o.ConfidenceAtExecution < 80 {
			delta += 1.5
		}
		if s.AvgResolutionSeconds > 0 && o.ExecutionSeconds < 0.5*s.AvgResolutionSeconds {
			delta += 1.0
		}
		if o.ImprovementScore > 50 {
			delta += 2.0
		} else if o.ImprovementScore > 25 {
			delta += 1.0
		}
		if s.Successes > 50 {
			delta *= 0.5
		} else if s.Successes > 20 {
			delta *= 0.75
		}
		return sharedmath.Clamp(delta, 0, 5.0)
	}

	delta := -3.0
	if o.ConfidenceAtExecution > 90 {
		delta -= 5.0
	} else if o.ConfidenceAtExecution > 75 {
		delta -= 2.0
	}
	if o.ImprovementScore < -25 {
		delta -= 3.0
	}
	return sharedmath.Clamp(delta, -10.0, 0)
}

func evaluatePromotion(s *types.PatternStats) bool {
	if s.TotalMatches < PromotionMinMatches {
		return false
	}
	if s.SuccessRate() < PromotionMinSuccessRate {
		return false
	}
	if s.AutonomousAttempts > 0 && s.AutonomousSuccessRate() < PromotionMinAutonomous {
		return false
	}
	return true
}

func evaluateDemotion(s *types.PatternStats) bool {
	if s.Failures < DemotionMinFailures {
		return false
	}
	if s.TotalMatches == 0 {
		return false
	}
	return float64(s.Failures)/float64(s.TotalMatches) >= DemotionFailureRate
}

// NeedsImmediateReview reports whether consecutive failures have flagged
// the pattern for immediate human review.
func NeedsImmediateReview(s *types.PatternStats) bool {
	return s.ConsecutiveFailures >= ConsecutiveFailureAlert
}

// AdjustedConfidence implements the read-path confidence formula:
// blend the base confidence plus cumulative adjustment with the pattern's
// raw success rate once it has more than 5 matches, then clamp to [0,100].
func (e *Engine) AdjustedConfidence(ctx context.Context, patternID string, base float64) (float64, error) {
	s, err := e.Stats(ctx, patternID)
	if err != nil {
		return 0, err
	}
	effective := base + s.ConfidenceAdjustment
	if s.TotalMatches > 5 {
		effective = 0.7*effective + 0.7*0 + 0.3*(s.SuccessRate()*100)
	}
	return sharedmath.Clamp(effective, 0, 100), nil
}

// SafetyVerdict reports whether a
// pattern is currently safe to execute without human approval, plus the
// human-readable reasons when it is not.
type SafetyVerdict struct {
	Safe    bool
	Reasons []string
}

// AutonomousSafety evaluates the autonomy verdict:
// isDemoted ⇒ unsafe; isPromoted ⇒ safe; otherwise evaluate the promotion
// predicate directly and report what's missing.
func (e *Engine) AutonomousSafety(ctx context.Context, patternID string) (SafetyVerdict, error) {
	s, err := e.Stats(ctx, patternID)
	if err != nil {
		return SafetyVerdict{}, err
	}
	if s.IsDemoted {
		return SafetyVerdict{Safe: false, Reasons: []string{"pattern has been demoted from autonomous execution"}}, nil
	}
	if s.IsPromoted {
		reason := fmt.Sprintf("pattern is promoted for autonomous execution (%d/%d successes)", s.Successes, s.TotalMatches)
		return SafetyVerdict{Safe: true, Reasons: []string{reason}}, nil
	}

	var reasons []string
	if s.TotalMatches < PromotionMinMatches {
		reasons = append(reasons, "fewer than 10 recorded matches")
	}
	if s.SuccessRate() < PromotionMinSuccessRate {
		reasons = append(reasons, "success rate below 90%")
	}
	if s.AutonomousAttempts > 0 && s.AutonomousSuccessRate() < PromotionMinAutonomous {
		reasons = append(reasons, "autonomous success rate below 95%")
	}
	return SafetyVerdict{Safe: len(reasons) == 0, Reasons: reasons}, nil
}
