package types

import "time"

// IncidentAnalysisTTL bounds how long a composed Incident is retained.
const IncidentAnalysisTTL = 30 * 24 * time.Hour

// MaxIncidentsPerIndex bounds the by-fingerprint and by-service incident
// indexes.
const MaxIncidentsPerIndex = 100

// PatternMatch is one scored catalogue match against an incident's
// evidence.
type PatternMatch struct {
	PatternID  string  `json:"patternID"`
	Confidence float64 `json:"confidence"`
}

// ScoredAction is a recommended action ranked for a specific incident.
type ScoredAction struct {
	ActionType                 string                 `json:"actionType"`
	ActionCategory             string                 `json:"actionCategory"`
	Params                     map[string]interface{} `json:"params,omitempty"`
	Combined                   float64                `json:"combined"`
	PatternConfidence          float64                `json:"patternConfidence"`
	HistoricalRate             float64                `json:"historicalRate"`
	RequiresApproval           bool                   `json:"requiresApproval"`
	EstimatedResolutionSeconds int                    `json:"estimatedResolutionSeconds"`
}

// Incident is the composed analysis artifact produced by the
// IncidentAnalyzer.
type Incident struct {
	IncidentID             string          `json:"incidentID"`
	Fingerprint            string          `json:"fingerprint"`
	Service                string          `json:"service"`
	Category               PatternCategory `json:"category"`
	Subcategory            string          `json:"subcategory"`
	Severity               Severity        `json:"severity"`
	Symptoms               []string        `json:"symptoms"`
	Signals                []string        `json:"signals"`
	MatchedPatterns        []PatternMatch  `json:"matchedPatterns"`
	BestPatternID          string          `json:"bestPatternID,omitempty"`
	PatternConfidence      float64         `json:"patternConfidence"`
	RootCause              string          `json:"rootCause"`
	RootCauseConfidence    float64         `json:"rootCauseConfidence"`
	ContributingFactors    []string        `json:"contributingFactors"`
	SimilarIncidentCount   int             `json:"similarIncidentCount"`
	HistoricalSuccessRate  float64         `json:"historicalSuccessRate"`
	AvgResolutionSeconds   float64         `json:"avgResolutionSeconds"`
	RecommendedActions     []ScoredAction  `json:"recommendedActions"`
	AutonomousSafe         bool            `json:"autonomousSafe"`
	AutonomousReason       string          `json:"autonomousReason"`
	BlastRadius            BlastRadius     `json:"blastRadius"`
	AffectedServices       []string        `json:"affectedServices"`
	PredictedResolutionSec float64         `json:"predictedResolutionSeconds"`
	RecurrenceProbability  float64         `json:"recurrenceProbability"`
	Timestamp              time.Time       `json:"timestamp"`
}

// AnomalyFeature is the (metric, type, severity, direction) tuple the
// fingerprint hashes over. Type distinguishes a metric
// anomaly from an error-rate spike so the two never collide after dedup.
type AnomalyFeature struct {
	Metric    string
	Type      string
	Severity  Severity
	Direction string
}
