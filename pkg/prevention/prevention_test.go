package prevention_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/executor"
	"github.com/ai-autopilot/incident-core/pkg/prevention"
	"github.com/ai-autopilot/incident-core/pkg/store/inmemstore"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

type stubProvider struct{ result types.ActionResult }

func (s stubProvider) Execute(context.Context, string, map[string]interface{}) (types.ActionResult, error) {
	return s.result, nil
}

var _ = Describe("repeat eliminator", func() {
	var (
		ctx context.Context
		el  *prevention.Eliminator
		sig prevention.Signal
	)

	BeforeEach(func() {
		ctx = context.Background()
		s := inmemstore.New()
		exec := executor.New(s, nil, stubProvider{result: types.ActionResult{Success: true}}, false, zap.NewNop())
		el = prevention.New(s, exec, zap.NewNop())
		sig = prevention.Signal{Service: "checkout", RootCauseType: "latency", LatencySpike: true}
	})

	It("tracks occurrences and stays below the preventive threshold", func() {
		p, action, err := el.Record(ctx, sig, prevention.Observation{IncidentID: "inc-1", Service: "checkout"})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.OccurrenceCount).To(Equal(1))
		Expect(action).To(BeNil())
	})

	It("applies a preventive action once occurrences reach the threshold", func() {
		var last *types.Action
		for i := 0; i < 3; i++ {
			_, action, err := el.Record(ctx, sig, prevention.Observation{IncidentID: "inc", Service: "checkout"})
			Expect(err).NotTo(HaveOccurred())
			if action != nil {
				last = action
			}
		}
		Expect(last).NotTo(BeNil())
		Expect(last.ActionType).To(Equal("scale_up"))
		Expect(last.Status).To(Equal(types.ActionSuccess))
	})

	It("escalates exactly once occurrences reach the escalation threshold without a fix", func() {
		s := inmemstore.New()
		exec := executor.New(s, nil, stubProvider{result: types.ActionResult{Success: false, Message: "still failing"}}, false, zap.NewNop())
		failingEl := prevention.New(s, exec, zap.NewNop())

		var p *types.RepeatPattern
		for i := 0; i < 5; i++ {
			var err error
			p, _, err = failingEl.Record(ctx, sig, prevention.Observation{IncidentID: "inc", Service: "checkout", Success: false})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(p.Escalated).To(BeTrue())
		Expect(p.PermanentFixApplied).To(BeFalse())

		n, err := s.LLen(ctx, "escalations:checkout")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		for i := 0; i < 5; i++ {
			var err error
			p, _, err = failingEl.Record(ctx, sig, prevention.Observation{IncidentID: "inc", Service: "checkout", Success: false})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(p.Escalated).To(BeTrue())

		n, err = s.LLen(ctx, "escalations:checkout")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)), "escalation must fire exactly once per pattern, not on every call past the threshold")
	})

	It("fingerprints deterministically on the same signal", func() {
		Expect(sig.Fingerprint()).To(Equal(sig.Fingerprint()))
		Expect(len(sig.Fingerprint())).To(Equal(16))
	})
})

var _ = Describe("preventive selection confidence", func() {
	var (
		ctx context.Context
		el  *prevention.Eliminator
		sig prevention.Signal
	)

	BeforeEach(func() {
		ctx = context.Background()
		s := inmemstore.New()
		exec := executor.New(s, nil, stubProvider{result: types.ActionResult{Success: true}}, false, zap.NewNop())
		el = prevention.New(s, exec, zap.NewNop())
		sig = prevention.Signal{Service: "checkout", RootCauseType: "latency", LatencySpike: true}
	})

	It("carries the base confidence for a table-selected preventive", func() {
		var preventive *types.Action
		for i := 0; i < 3; i++ {
			_, action, err := el.Record(ctx, sig, prevention.Observation{IncidentID: "inc", Service: "checkout"})
			Expect(err).NotTo(HaveOccurred())
			if action != nil {
				preventive = action
			}
		}
		Expect(preventive).NotTo(BeNil())
		Expect(preventive.Params["confidence"]).To(BeNumerically("~", prevention.PreventiveBaseConfidence, 1e-9))
	})

	It("bumps the confidence when preferring a previously successful fix", func() {
		var preventive *types.Action
		for i := 0; i < 3; i++ {
			_, action, err := el.Record(ctx, sig, prevention.Observation{
				IncidentID: "inc", Service: "checkout", ActionType: "scale_up", Success: true,
			})
			Expect(err).NotTo(HaveOccurred())
			if action != nil {
				preventive = action
			}
		}
		Expect(preventive).NotTo(BeNil())
		Expect(preventive.ActionType).To(Equal("scale_up"))
		Expect(preventive.Params["confidence"]).To(BeNumerically("~",
			prevention.PreventiveBaseConfidence+prevention.PreventiveConfidenceBump, 1e-9))
	})
})
