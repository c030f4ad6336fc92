package types

import "time"

// RepeatPatternTTL bounds a tracked repeat pattern's lifetime.
const RepeatPatternTTL = 90 * 24 * time.Hour

// MaxPermanentFixRegistry bounds the per-service permanent-fix registry.
const MaxPermanentFixRegistry = 100

// PreventiveOccurrenceThreshold is the occurrence count at which a
// preventive fix is attempted.
const PreventiveOccurrenceThreshold = 3

// EscalationOccurrenceThreshold is the occurrence count at which an
// unresolved repeat pattern escalates.
const EscalationOccurrenceThreshold = 5

// FixRecord captures one attempted fix for a RepeatPattern.
type FixRecord struct {
	ActionType string    `json:"actionType"`
	AppliedAt  time.Time `json:"appliedAt"`
	IncidentID string    `json:"incidentID"`
}

// RepeatPattern tracks recurrence of a fingerprinted failure shape on one
// service.
type RepeatPattern struct {
	PatternID            string      `json:"patternID"`
	Service              string      `json:"service"`
	RootCauseHash        string      `json:"rootCauseHash"`
	SymptomSignature     string      `json:"symptomSignature"`
	OccurrenceCount      int         `json:"occurrenceCount"`
	FirstSeen            time.Time   `json:"firstSeen"`
	LastSeen             time.Time   `json:"lastSeen"`
	SuccessfulFixes      []FixRecord `json:"successfulFixes"`
	FailedFixes          []FixRecord `json:"failedFixes"`
	PermanentFixApplied  bool        `json:"permanentFixApplied"`
	PermanentFixDetails  string      `json:"permanentFixDetails,omitempty"`
	Escalated            bool        `json:"escalated"`
}

// EscalationRecord is appended to the global and per-service escalation
// lists when a repeat pattern crosses the escalation threshold unresolved.
type EscalationRecord struct {
	PatternID   string    `json:"patternID"`
	Service     string    `json:"service"`
	OccurredAt  time.Time `json:"occurredAt"`
	Occurrences int       `json:"occurrences"`
	Reason      string    `json:"reason"`
}
