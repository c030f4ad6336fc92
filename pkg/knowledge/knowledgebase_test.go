package knowledge_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/knowledge"
	"github.com/ai-autopilot/incident-core/pkg/store/inmemstore"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

func marshalPattern(p types.IncidentPattern) ([]byte, error) {
	return json.Marshal(p)
}

type fakeTotalMatches map[string]int

func (f fakeTotalMatches) TotalMatches(patternID string) int { return f[patternID] }

var _ = Describe("KnowledgeBase pattern matching", func() {
	var base *knowledge.Base

	BeforeEach(func() {
		base = knowledge.NewBase(nil, zap.NewNop())
	})

	It("loads every built-in pattern by default", func() {
		Expect(base.Len()).To(Equal(len(knowledge.BuiltinCatalogue())))
	})

	It("matches a pattern whose metric symptom is satisfied by an anomaly", func() {
		ev := knowledge.Evidence{
			Anomalies: []types.Anomaly{
				{Service: "checkout", Metric: "memory_usage_pct", Value: 95, Severity: types.SeverityHigh},
			},
			Logs: []string{"Container terminated: OOMKilled"},
		}

		matches := base.Match(ev, 0, nil)
		Expect(matches).NotTo(BeEmpty())

		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.PatternID
		}
		Expect(ids).To(ContainElement("k8s-pod-oom-crashloop"))
	})

	It("scores strictly by matched weight over total weight", func() {
		p, ok := base.Get("k8s-pod-oom-crashloop")
		Expect(ok).To(BeTrue())

		// Only the metric symptom (weight 3 of 7) matches; no OOMKilled
		// event or log signal present.
		ev := knowledge.Evidence{
			Anomalies: []types.Anomaly{
				{Service: "checkout", Metric: "memory_usage_pct", Value: 95},
			},
		}
		matches := base.Match(ev, 1, nil)
		var got float64
		for _, m := range matches {
			if m.PatternID == p.PatternID {
				got = m.Confidence
			}
		}
		Expect(got).To(BeNumerically("~", 3.0/7.0*100, 0.01))
	})

	It("excludes patterns scoring below minConfidence", func() {
		ev := knowledge.Evidence{Anomalies: nil, Logs: nil}
		matches := base.Match(ev, 50, nil)
		Expect(matches).To(BeEmpty())
	})

	It("caps results at the top 5 and sorts by confidence descending", func() {
		ev := knowledge.Evidence{
			Anomalies: []types.Anomaly{
				{Service: "checkout", Metric: "memory_usage_pct", Value: 95},
				{Service: "checkout", Metric: "error_rate", Value: 10},
				{Service: "checkout", Metric: "cpu_usage_pct", Value: 90},
				{Service: "checkout", Metric: "request_latency_ms", Value: 2000},
				{Service: "checkout", Metric: "network_latency_ms", Value: 600},
				{Service: "checkout", Metric: "packet_loss_pct", Value: 5},
				{Service: "checkout", Metric: "replication_lag_seconds", Value: 90},
			},
			Logs: []string{"OOMKilled CrashLoopBackOff exception deadlock replication lag"},
		}
		matches := base.Match(ev, 1, nil)
		Expect(len(matches)).To(BeNumerically("<=", knowledge.MaxMatchedPatterns))
		for i := 1; i < len(matches); i++ {
			Expect(matches[i-1].Confidence).To(BeNumerically(">=", matches[i].Confidence))
		}
	})

	It("breaks confidence ties using the tie-break's totalMatches", func() {
		base = knowledge.NewBase([]types.IncidentPattern{
			{
				PatternID: "tie-a",
				Name:      "tie a",
				Category:  types.CategoryApplication,
				Symptoms:  []types.Symptom{{Type: types.SymptomLog, Name: "marker", Weight: 1}},
			},
			{
				PatternID: "tie-b",
				Name:      "tie b",
				Category:  types.CategoryApplication,
				Symptoms:  []types.Symptom{{Type: types.SymptomLog, Name: "marker", Weight: 1}},
			},
		}, zap.NewNop())

		tb := fakeTotalMatches{"tie-a": 5, "tie-b": 50}
		matches := base.Match(knowledge.Evidence{Logs: []string{"marker"}}, 1, tb)
		Expect(matches).To(HaveLen(2))
		Expect(matches[0].PatternID).To(Equal("tie-b"))
	})

	It("lets a learned pattern override a built-in one with the same ID", func() {
		overridden := knowledge.BuiltinCatalogue()[0]
		overridden.Name = "overridden by learned catalogue"

		b := knowledge.NewBase([]types.IncidentPattern{overridden}, zap.NewNop())
		got, ok := b.Get(overridden.PatternID)
		Expect(ok).To(BeTrue())
		Expect(got.Name).To(Equal("overridden by learned catalogue"))
	})
})

var _ = Describe("Load", func() {
	It("hydrates learned patterns persisted in the store alongside the built-ins", func() {
		s := inmemstore.New()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		learned := types.IncidentPattern{
			PatternID: "learned-custom-pattern",
			Name:      "Custom operator-added pattern",
			Category:  types.CategoryApplication,
			Symptoms:  []types.Symptom{{Type: types.SymptomLog, Name: "custom marker", Weight: 1}},
		}
		raw, err := marshalPattern(learned)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Set(ctx, "knowledge:pattern:"+learned.PatternID, raw, 0)).To(Succeed())

		base, err := knowledge.Load(ctx, s, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		got, ok := base.Get("learned-custom-pattern")
		Expect(ok).To(BeTrue())
		Expect(got.Name).To(Equal("Custom operator-added pattern"))
		Expect(base.Len()).To(Equal(len(knowledge.BuiltinCatalogue()) + 1))
	})

	It("accepts a YAML-encoded overlay", func() {
		s := inmemstore.New()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		overlay := []byte(`patternID: yaml-overlay-pattern
name: Operator overlay in YAML
category: application
symptoms:
  - type: log
    name: overlay marker
    condition: contains
    weight: 1
`)
		Expect(s.Set(ctx, "knowledge:pattern:yaml-overlay-pattern", overlay, 0)).To(Succeed())

		base, err := knowledge.Load(ctx, s, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		got, ok := base.Get("yaml-overlay-pattern")
		Expect(ok).To(BeTrue())
		Expect(got.Category).To(Equal(types.CategoryApplication))
	})
})
