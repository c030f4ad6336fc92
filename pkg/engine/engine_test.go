package engine_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/analysis"
	"github.com/ai-autopilot/incident-core/pkg/audit"
	"github.com/ai-autopilot/incident-core/pkg/autonomy"
	"github.com/ai-autopilot/incident-core/pkg/autonomy/policy"
	"github.com/ai-autopilot/incident-core/pkg/detection"
	"github.com/ai-autopilot/incident-core/pkg/engine"
	"github.com/ai-autopilot/incident-core/pkg/executor"
	"github.com/ai-autopilot/incident-core/pkg/knowledge"
	"github.com/ai-autopilot/incident-core/pkg/learning"
	"github.com/ai-autopilot/incident-core/pkg/prevention"
	"github.com/ai-autopilot/incident-core/pkg/risk"
	"github.com/ai-autopilot/incident-core/pkg/store"
	"github.com/ai-autopilot/incident-core/pkg/store/inmemstore"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

type stubRollbackProvider struct{}

func (stubRollbackProvider) Execute(context.Context, string, map[string]interface{}) (types.ActionResult, error) {
	return types.ActionResult{Success: true, Message: "rolled back"}, nil
}

func newTestEngine(s store.KeyValueStore, mode autonomy.Mode) *engine.Engine {
	log := zap.NewNop()
	kb := knowledge.NewBase(nil, log)
	learn := learning.New(s, log)
	an := analysis.New(s, kb, learn, nil, log)
	det := detection.NewDetector(s, log)
	exec := executor.New(s, nil, stubRollbackProvider{}, false, log)
	auditLog := audit.New(s, log)
	pol := policy.NewEvaluator(policy.Config{}, log)
	Expect(pol.StartHotReload(context.Background())).To(Succeed())

	cfg := autonomy.DefaultConfig()
	cfg.Mode = mode
	auto := autonomy.New(s, exec, learn, auditLog, pol, cfg, log)
	elim := prevention.New(s, exec, log)
	riskAn := risk.New(s, log)

	ecfg := engine.DefaultConfig()
	ecfg.PollInterval = 10 * time.Millisecond
	ecfg.CorrelatorInterval = 10 * time.Millisecond
	ecfg.DrainerInterval = 10 * time.Millisecond
	ecfg.CorrelationCooldown = time.Hour

	return engine.New(engine.Deps{
		Store:     s,
		Detector:  det,
		Analyzer:  an,
		Autonomy:  auto,
		Actions:   exec,
		Eliminate: elim,
		Risk:      riskAn,
		AI:        nil,
	}, ecfg, log)
}

// serviceActionIDs reads the executor's per-service action history
// directly off the shared store, mirroring how pkg/executor indexes it.
func serviceActionIDs(ctx context.Context, s store.KeyValueStore, service string) []string {
	raws, err := s.LRange(ctx, "actions:history:"+service, 0, -1)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(raws))
	for _, r := range raws {
		out = append(out, string(r))
	}
	return out
}

var _ = Describe("Engine end-to-end", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	// A latency spike shortly after a
	// deployment drives the full pipeline from ingestion through to a
	// recorded autonomous decision, without the test pinning itself to
	// the exact confidence numbers that decide approve vs. defer.
	It("turns an ingested latency spike with a recent deploy into a proposed action and decision log", func() {
		s := inmemstore.New()
		eng := newTestEngine(s, autonomy.ModeAutonomous)
		in := eng.Ingestor()

		now := time.Now()
		for i := 0; i < 20; i++ {
			Expect(in.PushMetric(ctx, engine.MetricSample{
				Service: "payment-api", Metric: "request_latency_ms",
				Value: 98 + float64(i%20), At: now.Add(-time.Duration(40-i) * time.Second),
			})).To(Succeed())
		}
		Expect(in.PushDeployment(ctx, engine.DeploymentRecord{
			Service: "payment-api", Version: "v3.2.1", At: now.Add(-300 * time.Second),
		})).To(Succeed())
		for _, v := range []float64{1500, 2000, 1800} {
			Expect(in.PushMetric(ctx, engine.MetricSample{
				Service: "payment-api", Metric: "request_latency_ms", Value: v, At: now,
			})).To(Succeed())
		}

		runCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		done := make(chan struct{})
		go func() { eng.Run(runCtx); close(done) }()

		Eventually(func() []string {
			return serviceActionIDs(ctx, s, "payment-api")
		}, 1500*time.Millisecond, 20*time.Millisecond).ShouldNot(BeEmpty())

		ids := serviceActionIDs(ctx, s, "payment-api")
		actionsExec := executor.New(s, nil, stubRollbackProvider{}, false, zap.NewNop())
		got, err := actionsExec.Get(ctx, ids[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).NotTo(Equal(types.ActionCancelled))

		auditLog := audit.New(s, zap.NewNop())
		logs, err := auditLog.RecentByService(ctx, "payment-api", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(logs).NotTo(BeEmpty())
		Expect(logs[0].SafetyChecks).NotTo(BeEmpty())

		cancel()
		<-done
	})

	It("drains an action stuck in approved back to a terminal state", func() {
		s := inmemstore.New()
		eng := newTestEngine(s, autonomy.ModeManual)
		log := zap.NewNop()
		exec := executor.New(s, nil, stubRollbackProvider{}, false, log)

		action, err := exec.Propose(ctx, "rollback", "checkout", nil, "manual test", types.RiskLow, "inc-x", "tester")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.LPush(ctx, "actions:approved", []byte(action.ID))).To(Succeed())
		_, err = exec.Get(ctx, action.ID)
		Expect(err).NotTo(HaveOccurred())

		// Force the action into "approved" without executing, simulating a
		// crash between Approve and Execute (open question 4 in DESIGN.md).
		approved := *action
		approved.Status = types.ActionApproved
		raw, err := json.Marshal(approved)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Set(ctx, "action:"+action.ID, raw, 24*time.Hour)).To(Succeed())

		runCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		done := make(chan struct{})
		go func() { eng.Run(runCtx); close(done) }()

		Eventually(func() types.ActionStatus {
			got, err := exec.Get(ctx, action.ID)
			if err != nil {
				return ""
			}
			return got.Status
		}, 400*time.Millisecond, 10*time.Millisecond).Should(Equal(types.ActionSuccess))

		cancel()
		<-done
	})
})
