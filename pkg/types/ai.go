package types

import "time"

// RootCause is the LLM seam's root-cause assessment.
type RootCause struct {
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// AIRecommendedAction is one action the AI seam suggests, ranked by
// priority 1 (most urgent) through 5.
type AIRecommendedAction struct {
	Action         string `json:"action"`
	Reasoning      string `json:"reasoning"`
	Risk           Risk   `json:"risk"`
	ExpectedImpact string `json:"expectedImpact"`
	Priority       int    `json:"priority" validate:"gte=1,lte=5"`
}

// Analysis is the AIAnalyzer seam's output. On any seam
// error, implementations return a structured fallback with Confidence <= 50
// rather than propagating the error to the caller.
type Analysis struct {
	RootCause               RootCause             `json:"rootCause"`
	ContributingFactors     []string              `json:"contributingFactors"`
	RecommendedActions      []AIRecommendedAction `json:"recommendedActions"`
	PreventiveMeasures      []string              `json:"preventiveMeasures"`
	Severity                Severity              `json:"severity"`
	EstimatedCustomerImpact string                `json:"estimatedCustomerImpact"`
	AnalyzedAt              time.Time             `json:"analyzedAt"`
	Service                 string                `json:"service"`
}
