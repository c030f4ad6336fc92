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
	"fmt"
	"strings"
	"time"

	sharedmath "github.com/ai-autopilot/incident-core/pkg/shared/math"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// RecentDeploymentBonusWindow is the rollback rule-confidence bonus
// window.
const RecentDeploymentBonusWindow = 10 * time.Minute

// SimilarActionOutcome is one prior similar incident's outcome for the same
// action type, used by the historical confidence signal.
type SimilarActionOutcome struct {
	Similarity float64 // in [0,1]
	Success    bool
}

// ConfidenceEvidence bundles everything the three confidence signals
// need.
type ConfidenceEvidence struct {
	ActionType             string
	Risk                   types.Risk
	RecentDeploymentAge    time.Duration // negative means no recent deployment
	HasLatencyAnomaly      bool
	HasMemoryAnomaly       bool
	IncidentSeverity       types.Severity
	AIAnalysis             *types.Analysis
	SimilarActionOutcomes  []SimilarActionOutcome
}

// ruleConfidence computes the deterministic rule-based signal.
func ruleConfidence(e ConfidenceEvidence) (float64, []string) {
	score := 50.0
	var factors []string

	switch e.Risk {
	case types.RiskLow:
		score += 20
		factors = append(factors, "low-risk action (+20)")
	case types.RiskHigh:
		score -= 20
		factors = append(factors, "high-risk action (-20)")
	}
	if e.ActionType == "rollback" && e.RecentDeploymentAge >= 0 && e.RecentDeploymentAge < RecentDeploymentBonusWindow {
		score += 25
		factors = append(factors, "rollback with a deployment under 10 minutes old (+25)")
	}
	if e.ActionType == "scale_up" && e.HasLatencyAnomaly {
		score += 15
		factors = append(factors, "scale_up with a concurrent latency anomaly (+15)")
	}
	if e.ActionType == "restart_service" && e.HasMemoryAnomaly {
		score += 15
		factors = append(factors, "restart_service with a concurrent memory anomaly (+15)")
	}
	if e.IncidentSeverity == types.SeverityCritical {
		score += 10
		factors = append(factors, "critical incident (+10)")
	}
	return sharedmath.Clamp(score, 0, 100), factors
}

// aiConfidence computes the AI-based signal. A nil
// AIAnalysis has no rootCauseConfidence to start from; treated as neutral
// (50) rather than 0, consistent with the historical signal's "no data"
// default elsewhere in this package.
func aiConfidence(e ConfidenceEvidence) (float64, []string) {
	if e.AIAnalysis == nil {
		return 50, []string{"no AI analysis available, neutral confidence"}
	}
	base := e.AIAnalysis.RootCause.Confidence
	for _, rec := range e.AIAnalysis.RecommendedActions {
		if mentionsAction(rec.Action, e.ActionType) {
			priority := rec.Priority
			if priority < 1 {
				priority = 1
			}
			if priority > 5 {
				priority = 5
			}
			bonus := float64(6-priority) * 5
			return sharedmath.Clamp(base+bonus, 0, 100), []string{
				fmt.Sprintf("AI recommends this action at priority %d (+%.0f)", priority, bonus),
			}
		}
	}
	return sharedmath.Clamp(base*0.6, 0, 100), []string{"AI did not recommend this specific action (x0.6)"}
}

func mentionsAction(recommended, actionType string) bool {
	return strings.Contains(strings.ToLower(recommended), strings.ToLower(actionType))
}

// historicalConfidence computes the history-based signal:
// 50 with no similar incidents, else the similarity-weighted mean success
// rate.
func historicalConfidence(e ConfidenceEvidence) (float64, []string) {
	if len(e.SimilarActionOutcomes) == 0 {
		return 50, []string{"no similar incidents on record, neutral confidence"}
	}
	var weightedSum, weightTotal float64
	for _, o := range e.SimilarActionOutcomes {
		successVal := 0.0
		if o.Success {
			successVal = 1.0
		}
		weightedSum += o.Similarity * successVal
		weightTotal += o.Similarity
	}
	if weightTotal == 0 {
		return 50, []string{"similar incidents carried zero similarity weight, neutral confidence"}
	}
	rate := weightedSum / weightTotal
	return sharedmath.Clamp(rate*100, 0, 100), []string{
		fmt.Sprintf("similarity-weighted success rate across %d similar incidents", len(e.SimilarActionOutcomes)),
	}
}

// Composition is the result of combining the three confidence
// signals.
type Composition struct {
	Rule, AI, Historical float64
	WeightedSum          float64
	Contributions        []types.Contribution
}

// compose blends the three signals under w, already normalized to sum to 1.
func compose(e ConfidenceEvidence, w Weights) Composition {
	rule, ruleFactors := ruleConfidence(e)
	ai, aiFactors := aiConfidence(e)
	hist, histFactors := historicalConfidence(e)

	weighted := rule*w.Rule + ai*w.AI + hist*w.Historical

	return Composition{
		Rule:        rule,
		AI:          ai,
		Historical:  hist,
		WeightedSum: weighted,
		Contributions: []types.Contribution{
			{Source: "rule", Value: rule, Weight: w.Rule, Weighted: rule * w.Rule, Reasoning: "deterministic rule score", Factors: ruleFactors},
			{Source: "ai", Value: ai, Weight: w.AI, Weighted: ai * w.AI, Reasoning: "AI seam root-cause/recommendation score", Factors: aiFactors},
			{Source: "history", Value: hist, Weight: w.Historical, Weighted: hist * w.Historical, Reasoning: "similarity-weighted historical success rate", Factors: histFactors},
		},
	}
}
