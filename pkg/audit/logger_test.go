package audit_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/audit"
	"github.com/ai-autopilot/incident-core/pkg/store/inmemstore"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

var _ = Describe("decision logger", func() {
	var (
		ctx context.Context
		l   *audit.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		l = audit.New(inmemstore.New(), zap.NewNop())
	})

	It("persists a decision log and indexes it by service and timeline", func() {
		dl := &types.DecisionLog{
			DecisionID:      "dec-1",
			Service:         "checkout",
			ActionType:      "rollback",
			Decision:        types.DecisionApproved,
			FinalConfidence: 82,
			Threshold:       75,
		}
		Expect(l.Log(ctx, dl)).To(Succeed())

		got, err := l.Get(ctx, "dec-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ActionType).To(Equal("rollback"))

		byService, err := l.RecentByService(ctx, "checkout", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(byService).To(HaveLen(1))

		timeline, err := l.RecentTimeline(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(timeline).To(HaveLen(1))
	})

	It("updates the outcome label in place without duplicating index entries", func() {
		dl := &types.DecisionLog{DecisionID: "dec-2", Service: "billing", Decision: types.DecisionDenied}
		Expect(l.Log(ctx, dl)).To(Succeed())

		Expect(l.UpdateOutcome(ctx, "dec-2", "success")).To(Succeed())

		got, err := l.Get(ctx, "dec-2")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Outcome).To(Equal("success"))

		byService, err := l.RecentByService(ctx, "billing", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(byService).To(HaveLen(1))
	})

	It("errors when a decision ID doesn't exist", func() {
		_, err := l.Get(ctx, "missing")
		Expect(err).To(HaveOccurred())
	})
})
