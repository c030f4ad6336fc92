package types

import "time"

// ActionStatus is the Action state machine's discriminant.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionApproved   ActionStatus = "approved"
	ActionExecuting  ActionStatus = "executing"
	ActionSuccess    ActionStatus = "success"
	ActionFailed     ActionStatus = "failed"
	ActionCancelled  ActionStatus = "cancelled"
)

// IsTerminal reports whether status ends the state machine; terminal
// statuses are never overwritten.
func (s ActionStatus) IsTerminal() bool {
	switch s {
	case ActionSuccess, ActionFailed, ActionCancelled:
		return true
	default:
		return false
	}
}

// Risk enumerates the coarse risk tier assigned to a proposed action.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// ActionTTL bounds how long a completed Action record is retained in C1.
const ActionTTL = 24 * time.Hour

// ActionResult is the outcome payload recorded by a provider on completion.
type ActionResult struct {
	Success        bool                   `json:"success"`
	Message        string                 `json:"message"`
	Details        map[string]interface{} `json:"details,omitempty"`
	DurationSeconds float64               `json:"durationSeconds"`
	DryRun         bool                   `json:"dryRun"`
}

// Action is the mutable state-machine record for a single remediation
// action. The AutonomousExecutor owns its lifecycle
// after proposal.
type Action struct {
	ID          string                 `json:"id"`
	IncidentID  string                 `json:"incidentID"`
	ActionType  string                 `json:"actionType"`
	Service     string                 `json:"service"`
	Params      map[string]interface{} `json:"params,omitempty"`
	Reasoning   string                 `json:"reasoning"`
	Risk        Risk                   `json:"risk"`
	Status      ActionStatus           `json:"status"`
	ProposedAt  time.Time              `json:"proposedAt"`
	ProposedBy  string                 `json:"proposedBy"`
	ApprovedBy  string                 `json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time             `json:"approvedAt,omitempty"`
	ExecutedAt  *time.Time             `json:"executedAt,omitempty"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
	Result      *ActionResult          `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// ActionCategory groups an action by the provider family that handles it.
// Used as the first half of PatternStats' actionKey and
// of the per-(actionType, service) success-rate hash key.
type ActionCategory string

const (
	ActionCategoryK8s      ActionCategory = "k8s"
	ActionCategoryCloud    ActionCategory = "cloud"
	ActionCategoryDatabase ActionCategory = "database"
	ActionCategoryCICD     ActionCategory = "cicd"
	ActionCategoryGeneric  ActionCategory = "generic"
)
