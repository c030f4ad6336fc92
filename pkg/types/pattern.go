package types

// PatternCategory enumerates the catalogue's top-level groupings.
type PatternCategory string

const (
	CategoryKubernetes  PatternCategory = "kubernetes"
	CategoryDatabase    PatternCategory = "database"
	CategoryCloud       PatternCategory = "cloud"
	CategoryApplication PatternCategory = "application"
	CategoryCICD        PatternCategory = "cicd"
	CategoryNetwork     PatternCategory = "network"
	CategorySecurity    PatternCategory = "security"
	CategoryMonitoring  PatternCategory = "monitoring"
	CategoryUnknown     PatternCategory = "unknown"
)

// BlastRadius enumerates the estimated impact footprint of an action or
// incident.
type BlastRadius string

const (
	BlastRadiusLow      BlastRadius = "low"
	BlastRadiusMedium   BlastRadius = "medium"
	BlastRadiusHigh     BlastRadius = "high"
	BlastRadiusCritical BlastRadius = "critical"
)

// SymptomType enumerates what kind of signal a Symptom compares against.
type SymptomType string

const (
	SymptomMetric SymptomType = "metric"
	SymptomEvent  SymptomType = "event"
	SymptomLog    SymptomType = "log"
	SymptomStatus SymptomType = "status"
)

// SymptomCondition enumerates how a Symptom's value is compared.
type SymptomCondition string

const (
	ConditionAbove    SymptomCondition = "above"
	ConditionBelow    SymptomCondition = "below"
	ConditionEquals   SymptomCondition = "equals"
	ConditionContains SymptomCondition = "contains"
	ConditionMatches  SymptomCondition = "matches"
)

// Symptom is one weighted condition a pattern checks against the current
// anomaly/log evidence.
type Symptom struct {
	Type      SymptomType      `json:"type" validate:"required,oneof=metric event log status"`
	Name      string           `json:"name" validate:"required"`
	Condition SymptomCondition `json:"condition" validate:"required,oneof=above below equals contains matches"`
	Value     string           `json:"value"`
	Weight    float64          `json:"weight" validate:"gt=0"`
}

// RecommendedAction is a candidate remediation carried by a pattern.
type RecommendedAction struct {
	ActionType                 string                 `json:"actionType" validate:"required"`
	ActionCategory             string                 `json:"actionCategory"`
	BaseConfidence             float64                `json:"baseConfidence" validate:"gte=0,lte=100"`
	Params                     map[string]interface{} `json:"params,omitempty"`
	RequiresApproval           bool                   `json:"requiresApproval"`
	EstimatedResolutionSeconds int                    `json:"estimatedResolutionSeconds"`
	RollbackAction             string                 `json:"rollbackAction,omitempty"`
}

// ActionKey is the (actionCategory, actionType) composite key used by
// PatternStats.PerActionRate.
func (a RecommendedAction) ActionKey() string {
	return a.ActionCategory + ":" + a.ActionType
}

// IncidentPattern is a catalogued failure mode. Loaded at startup by the
// KnowledgeBase and never mutated at runtime; AutonomousSafe is overlaid at
// read time by the LearningEngine's promotion/demotion state, never written
// back onto this struct.
type IncidentPattern struct {
	PatternID            string              `json:"patternID" validate:"required"`
	Name                 string              `json:"name" validate:"required"`
	Category             PatternCategory     `json:"category" validate:"required"`
	Subcategory          string              `json:"subcategory"`
	Severity             Severity            `json:"severity"`
	Symptoms             []Symptom           `json:"symptoms"`
	Signals              []string            `json:"signals"`
	RootCauses           []string            `json:"rootCauses"`
	Actions              []RecommendedAction `json:"actions"`
	AutonomousSafe       bool                `json:"autonomousSafe"`
	BlastRadius          BlastRadius         `json:"blastRadius"`
	AvgResolutionSeconds int                 `json:"avgResolutionSeconds"`
	Tags                 []string            `json:"tags,omitempty"`
	RelatedPatterns      []string            `json:"relatedPatterns,omitempty"`
}

// TotalSymptomWeight returns W = sum(symptom.weight) used when normalizing
// match confidence.
func (p IncidentPattern) TotalSymptomWeight() float64 {
	var w float64
	for _, s := range p.Symptoms {
		w += s.Weight
	}
	return w
}
