package autonomy_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/audit"
	"github.com/ai-autopilot/incident-core/pkg/autonomy"
	"github.com/ai-autopilot/incident-core/pkg/autonomy/policy"
	"github.com/ai-autopilot/incident-core/pkg/executor"
	"github.com/ai-autopilot/incident-core/pkg/learning"
	"github.com/ai-autopilot/incident-core/pkg/store/inmemstore"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

type stubProvider struct {
	result types.ActionResult
	err    error
}

func (s stubProvider) Execute(context.Context, string, map[string]interface{}) (types.ActionResult, error) {
	return s.result, s.err
}

func newHarness(mode autonomy.Mode) *autonomy.Executor {
	s := inmemstore.New()
	exec := executor.New(s, nil, stubProvider{result: types.ActionResult{Success: true, Message: "ok"}}, false, zap.NewNop())
	learn := learning.New(s, zap.NewNop())
	auditLog := audit.New(s, zap.NewNop())
	pol := policy.NewEvaluator(policy.Config{}, zap.NewNop())
	Expect(pol.StartHotReload(context.Background())).To(Succeed())

	cfg := autonomy.DefaultConfig()
	cfg.Mode = mode
	return autonomy.New(s, exec, learn, auditLog, pol, cfg, zap.NewNop())
}

var _ = Describe("autonomous executor", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("auto-approves and executes a high-confidence low-risk rollback after a recent deploy", func() {
		x := newHarness(autonomy.ModeAutonomous)

		p := autonomy.Proposal{
			IncidentID: "inc-1",
			Service:    "checkout",
			ActionType: "rollback",
			Params:     map[string]interface{}{},
			Reasoning:  "latency spike correlated with a deploy 4 minutes ago",
			Risk:       types.RiskLow,
			Evidence: autonomy.ConfidenceEvidence{
				ActionType:          "rollback",
				Risk:                types.RiskLow,
				RecentDeploymentAge: 4 * time.Minute,
				IncidentSeverity:    types.SeverityCritical,
				AIAnalysis: &types.Analysis{
					RootCause: types.RootCause{Confidence: 90},
					RecommendedActions: []types.AIRecommendedAction{
						{Action: "rollback", Priority: 1},
					},
				},
			},
			BlastRadius: types.BlastRadiusMedium,
		}

		action, dl, err := x.Decide(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(dl.Decision).To(Equal(types.DecisionApproved))
		Expect(dl.FinalConfidence).To(BeNumerically(">=", 75))
		Expect(action.Status).To(Equal(types.ActionSuccess))
		Expect(dl.Outcome).To(Equal("success"))
	})

	It("defers a supervised high-risk action regardless of confidence", func() {
		x := newHarness(autonomy.ModeSupervised)

		p := autonomy.Proposal{
			IncidentID: "inc-2",
			Service:    "billing",
			ActionType: "restart_service",
			Params:     map[string]interface{}{},
			Reasoning:  "memory pressure",
			Risk:       types.RiskHigh,
			Evidence: autonomy.ConfidenceEvidence{
				ActionType:       "restart_service",
				Risk:             types.RiskHigh,
				HasMemoryAnomaly: true,
			},
			BlastRadius: types.BlastRadiusLow,
		}

		action, dl, err := x.Decide(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(dl.Decision).To(Equal(types.DecisionDeferred))
		Expect(action.Status).To(Equal(types.ActionPending))
	})

	It("vetoes on an active cooldown with the exact remaining-seconds reasoning", func() {
		x := newHarness(autonomy.ModeAutonomous)

		p := autonomy.Proposal{
			IncidentID: "inc-3",
			Service:    "checkout",
			ActionType: "rollback",
			Params:     map[string]interface{}{},
			Reasoning:  "first rollback",
			Risk:       types.RiskLow,
			Evidence: autonomy.ConfidenceEvidence{
				ActionType:          "rollback",
				Risk:                types.RiskLow,
				RecentDeploymentAge: 2 * time.Minute,
				AIAnalysis: &types.Analysis{
					RootCause: types.RootCause{Confidence: 90},
					RecommendedActions: []types.AIRecommendedAction{
						{Action: "rollback", Priority: 1},
					},
				},
			},
			BlastRadius: types.BlastRadiusLow,
		}
		_, first, err := x.Decide(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Decision).To(Equal(types.DecisionApproved))

		p.IncidentID = "inc-4"
		_, second, err := x.Decide(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Decision).To(Equal(types.DecisionDenied))
		Expect(second.SafetyChecks[0]).To(ContainSubstring("rail 2"))
		Expect(second.SafetyChecks[0]).To(ContainSubstring("Cooldown active"))
	})

	It("vetoes when the service is unhealthy (rail 5)", func() {
		x := newHarness(autonomy.ModeAutonomous)

		p := autonomy.Proposal{
			IncidentID: "inc-5",
			Service:    "payments",
			ActionType: "scale_up",
			Params:     map[string]interface{}{},
			Reasoning:  "latency spike",
			Risk:       types.RiskLow,
			Evidence: autonomy.ConfidenceEvidence{
				ActionType:        "scale_up",
				Risk:              types.RiskLow,
				HasLatencyAnomaly: true,
			},
			BlastRadius:             types.BlastRadiusLow,
			RecentCriticalAnomalies: 3,
		}

		_, dl, err := x.Decide(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(dl.Decision).To(Equal(types.DecisionDenied))
		Expect(dl.SafetyChecks[0]).To(ContainSubstring("rail 5"))
	})

	It("vetoes a scale-up that exceeds the 3x replica limit (rail 4)", func() {
		x := newHarness(autonomy.ModeAutonomous)

		p := autonomy.Proposal{
			IncidentID: "inc-6",
			Service:    "search",
			ActionType: "scale_up",
			Params:     map[string]interface{}{},
			Reasoning:  "latency spike",
			Risk:       types.RiskLow,
			Evidence: autonomy.ConfidenceEvidence{
				ActionType:        "scale_up",
				Risk:              types.RiskLow,
				HasLatencyAnomaly: true,
			},
			BlastRadius:     types.BlastRadiusLow,
			CurrentReplicas: 2,
			TargetReplicas:  10,
		}

		_, dl, err := x.Decide(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(dl.Decision).To(Equal(types.DecisionDenied))
		Expect(dl.SafetyChecks[0]).To(ContainSubstring("rail 4"))
	})
})

var _ = Describe("autonomy pause", func() {
	It("defers everything while paused and recovers on resume", func() {
		x := newHarness(autonomy.ModeAutonomous)
		ctx := context.Background()

		p := autonomy.Proposal{
			IncidentID: "inc-7",
			Service:    "search",
			ActionType: "scale_up",
			Params:     map[string]interface{}{},
			Reasoning:  "latency spike",
			Risk:       types.RiskLow,
			Evidence: autonomy.ConfidenceEvidence{
				ActionType:        "scale_up",
				Risk:              types.RiskLow,
				HasLatencyAnomaly: true,
				AIAnalysis: &types.Analysis{
					RootCause: types.RootCause{Confidence: 95},
					RecommendedActions: []types.AIRecommendedAction{
						{Action: "scale_up", Priority: 1},
					},
				},
			},
			BlastRadius: types.BlastRadiusLow,
		}

		x.PauseAutonomy("store unreachable")
		action, dl, err := x.Decide(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(dl.Decision).To(Equal(types.DecisionDeferred))
		Expect(dl.ExecutionMode).To(Equal(string(autonomy.ModeManual)))
		Expect(action.Status).To(Equal(types.ActionPending))

		x.ResumeAutonomy()
		p.IncidentID = "inc-8"
		_, dl, err = x.Decide(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(dl.Decision).To(Equal(types.DecisionApproved))
	})
})
