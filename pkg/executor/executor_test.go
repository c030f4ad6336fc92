package executor_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/executor"
	"github.com/ai-autopilot/incident-core/pkg/store/inmemstore"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

type stubProvider struct {
	result types.ActionResult
	err    error
	calls  int
	seen   map[string]interface{}
}

func (s *stubProvider) Execute(_ context.Context, _ string, params map[string]interface{}) (types.ActionResult, error) {
	s.calls++
	s.seen = params
	return s.result, s.err
}

var _ = Describe("action executor", func() {
	var (
		ctx  context.Context
		s    *inmemstore.Client
		k8s  *stubProvider
		exec *executor.Executor
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = inmemstore.New()
		k8s = &stubProvider{result: types.ActionResult{Success: true, Message: "restarted"}}
		exec = executor.New(s, map[types.ActionCategory]executor.Provider{
			types.ActionCategoryK8s: k8s,
		}, nil, false, zap.NewNop())
	})

	It("proposes an action in the pending state", func() {
		a, err := exec.Propose(ctx, "pod_restart", "checkout", nil, "oom loop", types.RiskLow, "inc-1", "analyzer")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Status).To(Equal(types.ActionPending))
		Expect(a.ID).NotTo(BeEmpty())
	})

	It("approves and synchronously executes via the matching provider", func() {
		a, err := exec.Propose(ctx, "pod_restart", "checkout", map[string]interface{}{"pod": "checkout-1"}, "oom loop", types.RiskLow, "inc-1", "analyzer")
		Expect(err).NotTo(HaveOccurred())

		done, err := exec.Approve(ctx, a.ID, "oncall")
		Expect(err).NotTo(HaveOccurred())
		Expect(done.Status).To(Equal(types.ActionSuccess))
		Expect(k8s.calls).To(Equal(1))
		Expect(done.Result.Success).To(BeTrue())
	})

	It("refuses to approve twice", func() {
		a, _ := exec.Propose(ctx, "pod_restart", "checkout", nil, "oom loop", types.RiskLow, "inc-1", "analyzer")
		_, err := exec.Approve(ctx, a.ID, "oncall")
		Expect(err).NotTo(HaveOccurred())

		_, err = exec.Approve(ctx, a.ID, "oncall")
		Expect(err).To(HaveOccurred())
	})

	It("marks the action failed when the provider errors", func() {
		k8s.err = errors.New("kubelet unreachable")
		a, _ := exec.Propose(ctx, "pod_restart", "checkout", nil, "oom loop", types.RiskLow, "inc-1", "analyzer")
		done, err := exec.Approve(ctx, a.ID, "oncall")
		Expect(err).NotTo(HaveOccurred())
		Expect(done.Status).To(Equal(types.ActionFailed))
		Expect(done.Error).NotTo(BeEmpty())
	})

	It("falls back to the generic provider when the action's category has no provider", func() {
		a, _ := exec.Propose(ctx, "snapshot_restore", "billing", nil, "corrupt volume", types.RiskMedium, "inc-2", "analyzer")
		done, err := exec.Approve(ctx, a.ID, "oncall")
		Expect(err).NotTo(HaveOccurred())
		Expect(done.Status).To(Equal(types.ActionFailed))
		Expect(done.Error).To(ContainSubstring("no provider registered"))
	})

	It("injects the dry-run marker when the executor is configured for dry runs", func() {
		dryExec := executor.New(s, map[types.ActionCategory]executor.Provider{types.ActionCategoryK8s: k8s}, nil, true, zap.NewNop())
		a, _ := dryExec.Propose(ctx, "pod_restart", "checkout", map[string]interface{}{"pod": "checkout-1"}, "oom loop", types.RiskLow, "inc-1", "analyzer")
		_, err := dryExec.Approve(ctx, a.ID, "oncall")
		Expect(err).NotTo(HaveOccurred())
		Expect(k8s.seen).To(HaveKeyWithValue("__dry_run", true))
	})

	It("cancels a pending action", func() {
		a, _ := exec.Propose(ctx, "pod_restart", "checkout", nil, "oom loop", types.RiskLow, "inc-1", "analyzer")
		cancelled, err := exec.Cancel(ctx, a.ID, "shutdown")
		Expect(err).NotTo(HaveOccurred())
		Expect(cancelled.Status).To(Equal(types.ActionCancelled))
	})

	It("tracks the per-(actionType,service) success rate", func() {
		a, _ := exec.Propose(ctx, "pod_restart", "checkout", nil, "oom loop", types.RiskLow, "inc-1", "analyzer")
		_, err := exec.Approve(ctx, a.ID, "oncall")
		Expect(err).NotTo(HaveOccurred())

		total, success, err := exec.SuccessRate(ctx, "pod_restart", "checkout")
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(int64(1)))
		Expect(success).To(Equal(int64(1)))
	})
})
