package analysis_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/analysis"
	"github.com/ai-autopilot/incident-core/pkg/knowledge"
	"github.com/ai-autopilot/incident-core/pkg/learning"
	"github.com/ai-autopilot/incident-core/pkg/store/inmemstore"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

func TestAnalysis(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "IncidentAnalyzer Suite")
}

var _ = Describe("Analyzer.Compose", func() {
	var (
		s    = inmemstore.New()
		kb   = knowledge.NewBase(nil, zap.NewNop())
		eng  = learning.New(s, zap.NewNop())
		an   = analysis.New(s, kb, eng, nil, zap.NewNop())
		ctx  = context.Background()
	)

	It("matches the OOM pattern and marks autonomy unsafe below the confidence floor", func() {
		incident, err := an.Compose(ctx, analysis.ComposeInput{
			Service: "checkout",
			Anomalies: []types.Anomaly{
				{Service: "checkout", Metric: "memory_usage_pct", Value: 97, Mean: 50, Severity: types.SeverityCritical, ZScore: 4.1},
			},
			Logs: []string{"Container was OOMKilled"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(incident.Severity).To(Equal(types.SeverityCritical))
		Expect(incident.BestPatternID).To(Equal("k8s-pod-oom-crashloop"))
		Expect(incident.Signals).To(ContainElement("OOMKilled"))
		if incident.PatternConfidence < analysis.AutonomySafePatternConfidence {
			Expect(incident.AutonomousSafe).To(BeFalse())
		}
	})

	It("attributes root cause to a recent deployment over a pattern match", func() {
		dep := &types.DeploymentEvent{Service: "payment-api", Version: "v3.2.1"}
		incident, err := an.Compose(ctx, analysis.ComposeInput{
			Service: "payment-api",
			Anomalies: []types.Anomaly{
				{Service: "payment-api", Metric: "request_latency_ms", Value: 2000, Mean: 110, Severity: types.SeverityHigh},
			},
			RecentDeployment: dep,
			DeploymentAge:    5 * time.Minute,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(incident.RootCause).To(Equal("Recent deployment change"))
		Expect(incident.RootCauseConfidence).To(Equal(85.0))
		Expect(incident.ContributingFactors).To(ContainElement("recent deployment"))
	})

	It("bumps blast radius for a payment-named service", func() {
		incident, err := an.Compose(ctx, analysis.ComposeInput{
			Service:   "payment-service",
			Anomalies: []types.Anomaly{{Service: "payment-service", Metric: "cpu_usage_pct", Value: 95, Mean: 40, Severity: types.SeverityHigh}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(incident.BlastRadius).To(Equal(types.BlastRadiusMedium))
	})

	It("returns empty matches and a low-confidence root cause for featureless evidence", func() {
		incident, err := an.Compose(ctx, analysis.ComposeInput{Service: "idle-service"})
		Expect(err).NotTo(HaveOccurred())
		Expect(incident.MatchedPatterns).To(BeEmpty())
		Expect(incident.BestPatternID).To(BeEmpty())
		Expect(incident.RootCause).To(Equal("Unknown — requires investigation"))
		Expect(incident.RecurrenceProbability).To(Equal(0.1))
	})
})
