package types

import "time"

// DecisionLogTTL bounds the retention of an individual decision record.
const DecisionLogTTL = 30 * 24 * time.Hour

// MaxDecisionLogsPerService bounds the per-service decision log list.
const MaxDecisionLogsPerService = 1000

// MaxDecisionLogsTimeline bounds the global decision timeline.
const MaxDecisionLogsTimeline = 10000

// Decision is the executor's verdict for one proposed action.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
	DecisionDeferred Decision = "deferred"
)

// Contribution is one confidence signal's weighted contribution to a
// decision.
type Contribution struct {
	Source    string   `json:"source"` // "rule" | "ai" | "history"
	Value     float64  `json:"value"`
	Weight    float64  `json:"weight"`
	Weighted  float64  `json:"weighted"`
	Reasoning string   `json:"reasoning"`
	Factors   []string `json:"factors,omitempty"`
}

// DecisionLog is the structured, queryable audit trail for one autonomous
// decision.
type DecisionLog struct {
	DecisionID       string         `json:"decisionID"`
	Timestamp        time.Time      `json:"timestamp"`
	IncidentID       string         `json:"incidentID"`
	Service          string         `json:"service"`
	ActionType       string         `json:"actionType"`
	Decision         Decision       `json:"decision"`
	FinalConfidence  float64        `json:"finalConfidence"`
	Threshold        float64        `json:"threshold"`
	ReasoningSummary string         `json:"reasoningSummary"`
	Contributions    []Contribution `json:"contributions"`
	FactorsFor       []string       `json:"factorsFor"`
	FactorsAgainst   []string       `json:"factorsAgainst"`
	SafetyChecks     []string       `json:"safetyChecks"`
	MatchedPattern   string         `json:"matchedPattern,omitempty"`
	ExecutionMode    string         `json:"executionMode"`
	Outcome          string         `json:"outcome,omitempty"`
}
