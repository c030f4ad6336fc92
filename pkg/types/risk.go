package types

import "time"

// RiskAssessmentTTL bounds how long a DeploymentRiskAssessment is retained.
const RiskAssessmentTTL = 7 * 24 * time.Hour

// RiskLevel is the derived label for an overall risk score.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "minimal"
	RiskLevelLow RiskLevel = "low"
	RiskLevelMed RiskLevel = "medium"
	RiskHighLvl  RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ServiceCriticality is the tiering used by the criticality risk factor.
type ServiceCriticality string

const (
	Tier1 ServiceCriticality = "tier_1"
	Tier2 ServiceCriticality = "tier_2"
	Tier3 ServiceCriticality = "tier_3"
	Tier4 ServiceCriticality = "tier_4"
)

// RiskFactor is one weighted contributor to an overall deployment risk
// score.
type RiskFactor struct {
	Name        string   `json:"name"`
	Score       float64  `json:"score"`
	Weight      float64  `json:"weight"`
	Details     string   `json:"details"`
	Mitigations []string `json:"mitigations,omitempty"`
}

// DeploymentRiskAssessment is the one-shot pre-deploy scoring artifact.
type DeploymentRiskAssessment struct {
	DeploymentID            string       `json:"deploymentID"`
	Service                 string       `json:"service"`
	Version                 string       `json:"version"`
	PreviousVersion         string       `json:"previousVersion,omitempty"`
	OverallScore            float64      `json:"overallScore"`
	RiskLevel               RiskLevel    `json:"riskLevel"`
	Factors                 []RiskFactor `json:"factors"`
	ShouldProceed           bool         `json:"shouldProceed"`
	RequiresApproval        bool         `json:"requiresApproval"`
	AutoRollbackEnabled     bool         `json:"autoRollbackEnabled"`
	RollbackThresholdMinutes int         `json:"rollbackThresholdMinutes"`
	RollbackConfidence      float64      `json:"rollbackConfidence"`
	Recommendations         []string     `json:"recommendations"`
	AssessedAt              time.Time    `json:"assessedAt"`
	HistoricalContext       string       `json:"historicalContext"`
}

// DeploymentEvent describes one deployment recorded against a service's
// deployments sorted set.
type DeploymentEvent struct {
	Service           string    `json:"service"`
	Version           string    `json:"version"`
	PreviousVersion   string    `json:"previousVersion,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	FilesChanged      int       `json:"filesChanged,omitempty"`
	HasDBMigration    bool      `json:"hasDbMigration,omitempty"`
	HasConfigChange   bool      `json:"hasConfigChange,omitempty"`
}
