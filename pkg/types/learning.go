package types

import "time"

// MaxOutcomesPerPattern bounds the per-pattern outcome log.
const MaxOutcomesPerPattern = 1000

// MaxOutcomesTimeline bounds the global outcome timeline.
const MaxOutcomesTimeline = 10000

// PatternStats is the LearningEngine's exclusive mutable record for one
// pattern.
type PatternStats struct {
	PatternID              string             `json:"patternID"`
	TotalMatches           int                `json:"totalMatches"`
	Successes              int                `json:"successes"`
	Failures               int                `json:"failures"`
	AvgResolutionSeconds   float64            `json:"avgResolutionSeconds"`
	ConfidenceAdjustment   float64            `json:"confidenceAdjustment"`
	IsPromoted             bool               `json:"isPromoted"`
	IsDemoted              bool               `json:"isDemoted"`
	PerActionRate          map[string]float64 `json:"perActionRate"`
	AutonomousAttempts     int                `json:"autonomousAttempts"`
	AutonomousSuccesses    int                `json:"autonomousSuccesses"`
	ConsecutiveFailures    int                `json:"consecutiveFailures"`
	LastMatchedAt          *time.Time         `json:"lastMatchedAt,omitempty"`
	LastSuccessAt          *time.Time         `json:"lastSuccessAt,omitempty"`
	SeenOutcomeIDs         map[string]bool    `json:"seenOutcomeIDs,omitempty"`
}

// SuccessRate returns successes/totalMatches, or 0 when there is no history.
func (p *PatternStats) SuccessRate() float64 {
	if p.TotalMatches == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.TotalMatches)
}

// AutonomousSuccessRate returns the success rate of autonomous attempts
// only, used by the promotion predicate.
func (p *PatternStats) AutonomousSuccessRate() float64 {
	if p.AutonomousAttempts == 0 {
		return 0
	}
	return float64(p.AutonomousSuccesses) / float64(p.AutonomousAttempts)
}

// LearningOutcome is the record fed into LearningEngine.RecordOutcome.
// Callers must supply a unique OutcomeID; RecordOutcome deduplicates by it.
type LearningOutcome struct {
	OutcomeID             string             `json:"outcomeID" validate:"required"`
	IncidentID            string             `json:"incidentID"`
	PatternID             string             `json:"patternID" validate:"required"`
	ActionType            string             `json:"actionType"`
	ActionCategory        string             `json:"actionCategory"`
	Success               bool               `json:"success"`
	Autonomous            bool               `json:"autonomous"`
	ConfidenceAtExecution float64            `json:"confidenceAtExecution"`
	ExecutionSeconds      float64            `json:"executionSeconds"`
	PreMetrics            map[string]float64 `json:"preMetrics,omitempty"`
	PostMetrics           map[string]float64 `json:"postMetrics,omitempty"`
	ImprovementScore      float64            `json:"improvementScore"`
	Timestamp             time.Time          `json:"timestamp"`
}

// ActionAnalytics is a read-only rollup over the outcome timeline. It
// carries no mutation authority of its own; it is computed from data the
// LearningEngine already owns.
type ActionAnalytics struct {
	ActionKey          string    `json:"actionKey"`
	TotalExecutions    int       `json:"totalExecutions"`
	SuccessRate        float64   `json:"successRate"`
	AvgDurationSeconds float64   `json:"avgDurationSeconds"`
	Trend7d            float64   `json:"trend7d"` // success-rate delta vs. the prior 7-day window
	LastExecutedAt     time.Time `json:"lastExecutedAt"`
}
