package policy_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/autonomy/policy"
)

func TestPolicy(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Safety Rail Policy Suite")
}

var _ = Describe("safety rail policy", func() {
	var ev *policy.Evaluator
	ctx := context.Background()

	BeforeEach(func() {
		ev = policy.NewEvaluator(policy.Config{}, zap.NewNop())
		Expect(ev.StartHotReload(ctx)).To(Succeed())
	})

	It("allows a rollback under budget and blast radius", func() {
		res := ev.Evaluate(ctx, policy.Input{ActionType: "rollback", ExecutionsLastHour: 1, BlastRadiusScore: 40})
		Expect(res.Allow).To(BeTrue())
	})

	It("vetoes a rollback once the hourly budget is exhausted", func() {
		res := ev.Evaluate(ctx, policy.Input{ActionType: "rollback", ExecutionsLastHour: 2, BlastRadiusScore: 10})
		Expect(res.Allow).To(BeFalse())
		Expect(res.VetoReason).To(ContainSubstring("budget exhausted"))
	})

	It("vetoes a high blast-radius restart above the cap", func() {
		res := ev.Evaluate(ctx, policy.Input{ActionType: "restart", ExecutionsLastHour: 0, BlastRadiusScore: 90})
		Expect(res.Allow).To(BeFalse())
		Expect(res.VetoReason).To(ContainSubstring("blast radius"))
	})

	It("degrades to deny when the policy file is missing", func() {
		bad := policy.NewEvaluator(policy.Config{PolicyPath: "testdata/does-not-exist.rego"}, zap.NewNop())
		Expect(bad.StartHotReload(ctx)).To(Succeed())
		res := bad.Evaluate(ctx, policy.Input{ActionType: "rollback"})
		Expect(res.Allow).To(BeFalse())
		Expect(res.Degraded).To(BeTrue())
	})
})
