package learning_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/learning"
	"github.com/ai-autopilot/incident-core/pkg/store/inmemstore"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

var _ = Describe("LearningEngine outcome intake", func() {
	var (
		eng *learning.Engine
		ctx context.Context
	)

	BeforeEach(func() {
		eng = learning.New(inmemstore.New(), zap.NewNop())
		ctx = context.Background()
	})

	It("increments totals and the EMA per-action rate on first sight", func() {
		stats, err := eng.RecordOutcome(ctx, types.LearningOutcome{
			OutcomeID: "o1", PatternID: "p1", ActionCategory: "k8s", ActionType: "restart_service",
			Success: true, ConfidenceAtExecution: 70, ExecutionSeconds: 10, Timestamp: time.Now(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.TotalMatches).To(Equal(1))
		Expect(stats.Successes).To(Equal(1))
		// EMA initialized at 0.5, success -> 0.3*1 + 0.7*0.5 = 0.65
		Expect(stats.PerActionRate["k8s:restart_service"]).To(BeNumerically("~", 0.65, 1e-9))
	})

	It("deduplicates a repeated OutcomeID", func() {
		o := types.LearningOutcome{OutcomeID: "dup", PatternID: "p1", Success: true, Timestamp: time.Now()}
		_, err := eng.RecordOutcome(ctx, o)
		Expect(err).NotTo(HaveOccurred())
		stats, err := eng.RecordOutcome(ctx, o)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.TotalMatches).To(Equal(1))
	})

	It("applies the capped positive-learning delta on success", func() {
		stats, err := eng.RecordOutcome(ctx, types.LearningOutcome{
			OutcomeID: "o2", PatternID: "p2", Success: true,
			ConfidenceAtExecution: 40, ImprovementScore: 60, Timestamp: time.Now(),
		})
		Expect(err).NotTo(HaveOccurred())
		// base 2.0 + 3.0 (conf<60) + 2.0 (improvement>50) = 7.0, capped at 5.0
		Expect(stats.ConfidenceAdjustment).To(BeNumerically("~", 5.0, 1e-9))
	})

	It("applies the floored negative-learning delta on failure", func() {
		stats, err := eng.RecordOutcome(ctx, types.LearningOutcome{
			OutcomeID: "o3", PatternID: "p3", Success: false,
			ConfidenceAtExecution: 95, ImprovementScore: -50, Timestamp: time.Now(),
		})
		Expect(err).NotTo(HaveOccurred())
		// base -3.0 -5.0 (conf>90) -3.0 (improvement<-25) = -11.0, floored at -10.0
		Expect(stats.ConfidenceAdjustment).To(BeNumerically("~", -10.0, 1e-9))
	})

	It("promotes a pattern meeting the matches/success-rate thresholds", func() {
		var stats *types.PatternStats
		var err error
		for i := 0; i < 10; i++ {
			stats, err = eng.RecordOutcome(ctx, types.LearningOutcome{
				OutcomeID: fmt.Sprintf("promo-%d", i), PatternID: "p-promo", Success: true,
				ConfidenceAtExecution: 80, Timestamp: time.Now(),
			})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(stats.IsPromoted).To(BeTrue())
	})

	It("keeps a pattern promoted through a partial failure that does not meet the demotion predicate", func() {
		var stats *types.PatternStats
		var err error
		for i := 0; i < 10; i++ {
			stats, err = eng.RecordOutcome(ctx, types.LearningOutcome{
				OutcomeID: fmt.Sprintf("mono-%d", i), PatternID: "p-mono", Success: true,
				ConfidenceAtExecution: 80, Timestamp: time.Now(),
			})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(stats.IsPromoted).To(BeTrue())

		// Two subsequent failures drop the success rate below the promotion
		// threshold (10/12 ~= 0.833 < 0.90) without reaching
		// DemotionMinFailures; promotion must not flip back to false.
		for i := 0; i < 2; i++ {
			stats, err = eng.RecordOutcome(ctx, types.LearningOutcome{
				OutcomeID: fmt.Sprintf("mono-fail-%d", i), PatternID: "p-mono", Success: false,
				ConfidenceAtExecution: 80, Timestamp: time.Now(),
			})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(stats.Failures).To(BeNumerically("<", learning.DemotionMinFailures))
		Expect(stats.IsPromoted).To(BeTrue(), "promotion must be monotonic until a demotion predicate fires")
		Expect(stats.IsDemoted).To(BeFalse())
	})

	It("demotes a pattern with a high failure rate", func() {
		var stats *types.PatternStats
		var err error
		for i := 0; i < 5; i++ {
			success := i < 2
			stats, err = eng.RecordOutcome(ctx, types.LearningOutcome{
				OutcomeID: fmt.Sprintf("demo-%d", i), PatternID: "p-demo", Success: success,
				Timestamp: time.Now(),
			})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(stats.Failures).To(BeNumerically(">=", learning.DemotionMinFailures))
		Expect(stats.IsDemoted).To(BeTrue())
	})

	It("flags two consecutive failures for immediate review", func() {
		var stats *types.PatternStats
		stats, _ = eng.RecordOutcome(ctx, types.LearningOutcome{OutcomeID: "c1", PatternID: "p-consec", Success: false, Timestamp: time.Now()})
		Expect(learning.NeedsImmediateReview(stats)).To(BeFalse())
		stats, _ = eng.RecordOutcome(ctx, types.LearningOutcome{OutcomeID: "c2", PatternID: "p-consec", Success: false, Timestamp: time.Now()})
		Expect(learning.NeedsImmediateReview(stats)).To(BeTrue())
	})

	It("reports safety reasons for an unevaluated pattern", func() {
		verdict, err := eng.AutonomousSafety(ctx, "never-seen")
		Expect(err).NotTo(HaveOccurred())
		Expect(verdict.Safe).To(BeFalse())
		Expect(verdict.Reasons).NotTo(BeEmpty())
	})

	It("blends adjusted confidence with success rate once totalMatches exceeds 5", func() {
		for i := 0; i < 6; i++ {
			_, err := eng.RecordOutcome(ctx, types.LearningOutcome{
				OutcomeID: fmt.Sprintf("blend-%d", i), PatternID: "p-blend", Success: true,
				ConfidenceAtExecution: 90, Timestamp: time.Now(),
			})
			Expect(err).NotTo(HaveOccurred())
		}
		eff, err := eng.AdjustedConfidence(ctx, "p-blend", 50)
		Expect(err).NotTo(HaveOccurred())
		Expect(eff).To(BeNumerically(">", 50))
		Expect(eff).To(BeNumerically("<=", 100))
	})
})

var _ = Describe("ActionAnalytics", func() {
	It("rolls up success rate and average duration for an action key", func() {
		eng := learning.New(inmemstore.New(), zap.NewNop())
		ctx := context.Background()

		for i := 0; i < 4; i++ {
			_, err := eng.RecordOutcome(ctx, types.LearningOutcome{
				OutcomeID: fmt.Sprintf("a-%d", i), PatternID: "p-analytics",
				ActionCategory: "k8s", ActionType: "restart_service",
				Success: i%2 == 0, ExecutionSeconds: 10, Timestamp: time.Now(),
			})
			Expect(err).NotTo(HaveOccurred())
		}

		analytics, err := eng.ActionAnalytics(ctx, "k8s:restart_service")
		Expect(err).NotTo(HaveOccurred())
		Expect(analytics.TotalExecutions).To(Equal(4))
		Expect(analytics.SuccessRate).To(BeNumerically("~", 0.5, 1e-9))
		Expect(analytics.AvgDurationSeconds).To(BeNumerically("~", 10, 1e-9))
	})
})
