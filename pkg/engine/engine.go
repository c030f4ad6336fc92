/*
Copyright 2026 The Incident Core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package engine

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ai-autopilot/incident-core/internal/tracing"
	"github.com/ai-autopilot/incident-core/pkg/aiseam"
	"github.com/ai-autopilot/incident-core/pkg/analysis"
	"github.com/ai-autopilot/incident-core/pkg/autonomy"
	"github.com/ai-autopilot/incident-core/pkg/detection"
	"github.com/ai-autopilot/incident-core/pkg/executor"
	"github.com/ai-autopilot/incident-core/pkg/prevention"
	"github.com/ai-autopilot/incident-core/pkg/risk"
	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/store"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// Config paces the four worker loops and gates when an anomaly cluster is
// composed into an incident. "Crosses the trigger threshold" is resolved
// here as: compose on every fresh anomaly or log-carried signal, throttled
// by CorrelationCooldown per service so a burst of samples produces one
// incident, not one per sample.
type Config struct {
	// PollInterval paces L1/L2 when their queues are empty.
	PollInterval time.Duration

	// CorrelatorInterval paces L3's sweep over services with recent
	// anomalies.
	CorrelatorInterval time.Duration

	// DrainerInterval paces L4's sweep over the approved-action queue.
	DrainerInterval time.Duration

	// CorrelationCooldown bounds how often L3 will compose a fresh incident
	// for the same service.
	CorrelationCooldown time.Duration

	// ShutdownDrain bounds how long Run waits for in-flight work after ctx
	// is cancelled.
	ShutdownDrain time.Duration
}

// DefaultConfig returns the default pacing for every loop Config covers.
func DefaultConfig() Config {
	return Config{
		PollInterval:        2 * time.Second,
		CorrelatorInterval:  5 * time.Second,
		DrainerInterval:     5 * time.Second,
		CorrelationCooldown: 60 * time.Second,
		ShutdownDrain:       30 * time.Second,
	}
}

// Notifier is the narrow seam fatal-error escalations (a store outage
// past its grace window) are routed through. Notification formatting and
// delivery belong to an external collaborator; a nil Notifier degrades to
// log-only.
type Notifier interface {
	Escalate(ctx context.Context, subject, detail string) error
}

// Engine owns the four cooperative worker loops and
// wires C2 through C10 together along the steady-state data flow.
// It holds no mutable state of its own beyond what's needed to pace the
// loops; every cross-loop fact lives in the KeyValueStore.
type Engine struct {
	store     store.KeyValueStore
	detector  *detection.Detector
	analyzer  *analysis.Analyzer
	autonomy  *autonomy.Executor
	actions   *executor.Executor
	eliminate *prevention.Eliminator
	risk      *risk.Analyzer
	ai        aiseam.AIAnalyzer
	notify    Notifier

	cfg Config
	log *zap.Logger
}

// Deps bundles the already-constructed components Run wires together. Each
// field is expected to be built by its owning package's constructor (e.g.
// detection.NewDetector), sharing the same KeyValueStore.
type Deps struct {
	Store     store.KeyValueStore
	Detector  *detection.Detector
	Analyzer  *analysis.Analyzer
	Autonomy  *autonomy.Executor
	Actions   *executor.Executor
	Eliminate *prevention.Eliminator
	Risk      *risk.Analyzer
	AI        aiseam.AIAnalyzer

	// Notify is optional; see Notifier.
	Notify Notifier
}

// New constructs an Engine from already-wired components.
func New(d Deps, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:     d.Store,
		detector:  d.Detector,
		analyzer:  d.Analyzer,
		autonomy:  d.Autonomy,
		actions:   d.Actions,
		eliminate: d.Eliminate,
		risk:      d.Risk,
		ai:        d.AI,
		notify:    d.Notify,
		cfg:       cfg,
		log:       log,
	}
}

// Run starts the worker loops plus the store-health watchdog and blocks
// until ctx is cancelled, then waits up to cfg.ShutdownDrain for them to
// return.
func (e *Engine) Run(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	loops := []func(context.Context){
		e.runMetricLoop,
		e.runLogLoop,
		e.runCorrelatorLoop,
		e.runApprovedDrainLoop,
		e.runStoreHealthLoop,
	}
	for _, loop := range loops {
		l := loop
		g.Go(func() error {
			l(gctx)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	<-ctx.Done()
	select {
	case <-done:
	case <-time.After(e.cfg.ShutdownDrain):
		e.log.Warn("worker loops did not drain within shutdown window", logging.NewFields().
			Component("engine").Operation("shutdown").Zap()...)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// runMetricLoop is L1: it drains ingest:metrics and ingest:deployments,
// feeding each sample to the AnomalyDetector and recording each deployment
// into C2's correlation index.
func (e *Engine) runMetricLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		worked := e.drainOneMetric(ctx) || e.drainOneDeployment(ctx)
		if !worked {
			if !sleepOrDone(ctx, e.cfg.PollInterval) {
				return
			}
		}
	}
}

func (e *Engine) drainOneMetric(ctx context.Context) bool {
	raw, err := e.store.RPop(ctx, metricsQueueKey())
	if err != nil || raw == nil {
		return false
	}
	var s MetricSample
	if jsonErr := json.Unmarshal(raw, &s); jsonErr != nil {
		e.log.Warn("discarding malformed metric sample", logging.NewFields().
			Component("engine").Operation("drain_metric").Error(jsonErr).Zap()...)
		return true
	}
	if s.At.IsZero() {
		s.At = time.Now()
	}
	spanCtx, span := tracing.StartLoopSpan(ctx, "metric", s.Service)
	a, err := e.detector.ProcessSample(spanCtx, s.Service, s.Metric, s.Value, s.At)
	tracing.End(span, err)
	if err != nil {
		e.log.Warn("anomaly detection failed for sample, skipping", logging.NewFields().
			Component("engine").Operation("drain_metric").Service(s.Service).Error(err).Zap()...)
	}
	if a != nil {
		anomaliesDetected.Inc()
	}
	return true
}

func (e *Engine) drainOneDeployment(ctx context.Context) bool {
	raw, err := e.store.RPop(ctx, deploymentsQueueKey())
	if err != nil || raw == nil {
		return false
	}
	var d DeploymentRecord
	if jsonErr := json.Unmarshal(raw, &d); jsonErr != nil {
		e.log.Warn("discarding malformed deployment record", logging.NewFields().
			Component("engine").Operation("drain_deployment").Error(jsonErr).Zap()...)
		return true
	}
	if d.At.IsZero() {
		d.At = time.Now()
	}
	if err := e.detector.RecordDeployment(ctx, d.Service, d.Version, d.At); err != nil {
		e.log.Warn("failed to record deployment, skipping", logging.NewFields().
			Component("engine").Operation("drain_deployment").Service(d.Service).Error(err).Zap()...)
	}
	return true
}

// runLogLoop is L2: it drains ingest:logs into each service's recent-log
// ring buffer, the corpus IncidentAnalyzer and KnowledgeBase read for log
// and event symptom matching.
func (e *Engine) runLogLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !e.drainOneLog(ctx) {
			if !sleepOrDone(ctx, e.cfg.PollInterval) {
				return
			}
		}
	}
}

func (e *Engine) drainOneLog(ctx context.Context) bool {
	raw, err := e.store.RPop(ctx, logsQueueKey())
	if err != nil || raw == nil {
		return false
	}
	var l LogLine
	if jsonErr := json.Unmarshal(raw, &l); jsonErr != nil {
		e.log.Warn("discarding malformed log line", logging.NewFields().
			Component("engine").Operation("drain_log").Error(jsonErr).Zap()...)
		return true
	}
	spanCtx, span := tracing.StartLoopSpan(ctx, "log", l.Service)
	err = store.LPushCappedTTL(spanCtx, e.store, recentLogsKey(l.Service), []byte(l.Message), MaxRecentLogs, RecentLogsTTL)
	tracing.End(span, err)
	if err != nil {
		e.log.Warn("failed to append recent log, dropping", logging.NewFields().
			Component("engine").Operation("drain_log").Service(l.Service).Error(err).Zap()...)
	}
	return true
}

func (e *Engine) recentLogs(ctx context.Context, service string) []string {
	raws, err := e.store.LRange(ctx, recentLogsKey(service), 0, MaxRecentLogs-1)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		out = append(out, string(raw))
	}
	return out
}

func correlatorCooldownKey(service string) string { return "engine:correlator_cooldown:" + service }

// runCorrelatorLoop is L3: it sweeps services with recent anomalies,
// composes an Incident once per CorrelationCooldown window, matches
// patterns, proposes the best recommended action to the
// AutonomousExecutor, and feeds the outcome back into the
// RepeatEliminator.
func (e *Engine) runCorrelatorLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		e.correlateOnce(ctx)
		if !sleepOrDone(ctx, e.cfg.CorrelatorInterval) {
			return
		}
	}
}

func (e *Engine) correlateOnce(ctx context.Context) {
	keys, err := e.store.Keys(ctx, "recent_anomalies:")
	if err != nil {
		e.log.Warn("failed to list services with recent anomalies", logging.NewFields().
			Component("engine").Operation("correlate").Error(err).Zap()...)
		return
	}
	for _, key := range keys {
		if ctx.Err() != nil {
			return
		}
		service := strings.TrimPrefix(key, "recent_anomalies:")
		e.correlateService(ctx, service)
	}
}

func (e *Engine) correlateService(ctx context.Context, service string) {
	if cd, _ := e.store.Get(ctx, correlatorCooldownKey(service)); cd != nil {
		return
	}

	ctx, span := tracing.StartLoopSpan(ctx, "correlate", service)
	defer func() { tracing.End(span, nil) }()

	anomalies, err := e.detector.RecentAnomalies(ctx, service, 100)
	if err != nil || len(anomalies) == 0 {
		return
	}
	logs := e.recentLogs(ctx, service)

	now := time.Now()
	correlation, _ := e.detector.CorrelateDeployment(ctx, service, now)
	var recentDeploy *types.DeploymentEvent
	var deployAge time.Duration
	if correlation.Correlated {
		recentDeploy = &types.DeploymentEvent{Service: service, Version: correlation.Version}
		deployAge = time.Duration(correlation.AgeMinutes * float64(time.Minute))
	}

	var aiAnalysis *types.Analysis
	if e.ai != nil {
		deployVersions := make([]string, 0, 1)
		if recentDeploy != nil {
			deployVersions = append(deployVersions, recentDeploy.Version)
		}
		analysisCtx, cancel := context.WithTimeout(ctx, aiseam.AnalyzeDeadline)
		result, err := e.ai.Analyze(analysisCtx, aiseam.Request{
			ServiceName: service,
			Anomalies:   anomalies,
			Logs:        logs,
			Deployments: deployVersions,
		})
		cancel()
		if err != nil {
			fallback := aiseam.Fallback(aiseam.Request{ServiceName: service, Anomalies: anomalies, Logs: logs}, err.Error())
			aiAnalysis = &fallback
		} else {
			aiAnalysis = &result
		}
	}

	incident, err := e.analyzer.Compose(ctx, analysis.ComposeInput{
		Service:          service,
		Anomalies:        anomalies,
		Logs:             logs,
		RecentDeployment: recentDeploy,
		DeploymentAge:    deployAge,
		AIAnalysis:       aiAnalysis,
	})
	if err != nil {
		e.log.Warn("incident composition failed, skipping", logging.NewFields().
			Component("engine").Operation("correlate").Service(service).Error(err).Zap()...)
		return
	}

	_ = e.store.SetEx(ctx, correlatorCooldownKey(service), e.cfg.CorrelationCooldown, []byte("1"))

	incidentsComposed.Inc()
	e.proposeTopAction(ctx, incident, anomalies, aiAnalysis, recentDeploy, deployAge)
}

// proposeTopAction hands the incident's single best recommended action to
// the AutonomousExecutor and, once it reaches a terminal state, feeds the
// outcome into the RepeatEliminator.
func (e *Engine) proposeTopAction(ctx context.Context, incident *types.Incident, anomalies []types.Anomaly, aiAnalysis *types.Analysis, recentDeploy *types.DeploymentEvent, deployAge time.Duration) {
	if len(incident.RecommendedActions) == 0 {
		return
	}
	top := incident.RecommendedActions[0]

	riskLevel := types.RiskMedium
	if top.RequiresApproval {
		riskLevel = types.RiskHigh
	}

	// Rail 5 looks at the service's last 10 anomalies only; anomalies is
	// newest first.
	criticalCount := 0
	for i, a := range anomalies {
		if i >= 10 {
			break
		}
		if a.Severity == types.SeverityCritical {
			criticalCount++
		}
	}

	// A negative age tells the rule-confidence signal there was no recent
	// deployment; the zero value would read as "deployed just now".
	age := -time.Second
	if recentDeploy != nil {
		age = deployAge
	}

	evidence := autonomy.ConfidenceEvidence{
		ActionType:          top.ActionType,
		Risk:                riskLevel,
		RecentDeploymentAge: age,
		IncidentSeverity:    incident.Severity,
		HasLatencyAnomaly:   hasMetricSubstring(anomalies, "latency"),
		HasMemoryAnomaly:    hasMetricSubstring(anomalies, "mem"),
		AIAnalysis:          aiAnalysis,
	}
	if incident.SimilarIncidentCount > 0 {
		evidence.SimilarActionOutcomes = []autonomy.SimilarActionOutcome{
			{Similarity: 1.0, Success: incident.HistoricalSuccessRate >= 0.5},
		}
	}

	proposal := autonomy.Proposal{
		IncidentID:              incident.IncidentID,
		Service:                 incident.Service,
		ActionType:              top.ActionType,
		Params:                  top.Params,
		Reasoning:               incident.RootCause,
		Risk:                    riskLevel,
		Evidence:                evidence,
		BlastRadius:             incident.BlastRadius,
		RecentCriticalAnomalies: criticalCount,
		PatternID:               incident.BestPatternID,
	}

	action, _, err := e.autonomy.Decide(ctx, proposal)
	if err != nil {
		e.log.Warn("autonomous decision failed", logging.NewFields().
			Component("engine").Operation("propose_action").Service(incident.Service).Error(err).Zap()...)
		return
	}
	if action == nil || !action.Status.IsTerminal() {
		return
	}

	e.recordRepeat(ctx, incident, action)
}

func hasMetricSubstring(anomalies []types.Anomaly, substr string) bool {
	for _, a := range anomalies {
		if strings.Contains(strings.ToLower(a.Metric), substr) {
			return true
		}
	}
	return false
}

// recordRepeat derives a prevention.Signal from the incident and feeds the
// terminal action's outcome into the RepeatEliminator.
func (e *Engine) recordRepeat(ctx context.Context, incident *types.Incident, action *types.Action) {
	sig := prevention.Signal{
		Service:        incident.Service,
		RootCauseType:  string(incident.Category) + ":" + incident.Subcategory,
		LatencySpike:   containsSymptom(incident, "latency"),
		ErrorRateSpike: containsSymptom(incident, "error_rate") || containsSymptom(incident, "error rate"),
		MemoryIssue:    containsSymptom(incident, "memory"),
		CPUIssue:       containsSymptom(incident, "cpu"),
	}
	obs := prevention.Observation{
		IncidentID: incident.IncidentID,
		ActionType: action.ActionType,
		Success:    action.Status == types.ActionSuccess,
		Service:    incident.Service,
		Params:     action.Params,
	}
	if _, _, err := e.eliminate.Record(ctx, sig, obs); err != nil {
		e.log.Warn("failed to record repeat-pattern outcome", logging.NewFields().
			Component("engine").Operation("record_repeat").Service(incident.Service).Error(err).Zap()...)
	}
}

func containsSymptom(incident *types.Incident, substr string) bool {
	for _, s := range incident.Symptoms {
		if strings.Contains(strings.ToLower(s), substr) {
			return true
		}
	}
	for _, a := range incident.Signals {
		if strings.Contains(strings.ToLower(a), substr) {
			return true
		}
	}
	return false
}

// runApprovedDrainLoop is L4: it sweeps the approved-action queue and
// drives any action still stuck in "approved" (never reached Execute,
// e.g. after a crash mid-approval, or pushed directly by an external
// approver) to a terminal state.
func (e *Engine) runApprovedDrainLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		e.drainApprovedOnce(ctx)
		if !sleepOrDone(ctx, e.cfg.DrainerInterval) {
			return
		}
	}
}

func (e *Engine) drainApprovedOnce(ctx context.Context) {
	ids, err := e.store.LRange(ctx, "actions:approved", 0, -1)
	if err != nil {
		return
	}
	for _, raw := range ids {
		if ctx.Err() != nil {
			return
		}
		id := string(raw)
		action, err := e.actions.Get(ctx, id)
		if err != nil || action.Status != types.ActionApproved {
			continue
		}
		spanCtx, span := tracing.StartLoopSpan(ctx, "drain", action.Service)
		_, execErr := e.actions.Execute(spanCtx, id)
		tracing.End(span, execErr)
		if execErr != nil {
			e.log.Warn("approved-action drain failed to execute", logging.NewFields().
				Component("engine").Operation("drain_approved").Resource("action", id).Error(execErr).Zap()...)
		}
	}
}

// Store-health watchdog pacing: an unreachable store past
// StoreUnhealthyAfter pauses the autonomous executor (manual mode) and
// escalates through the Notifier; recovery resumes the configured mode.
const (
	StoreHealthInterval = 5 * time.Second
	StoreUnhealthyAfter = 30 * time.Second
)

// runStoreHealthLoop watches C1 reachability. Detection stays best-effort
// during an outage; only autonomous execution is gated.
func (e *Engine) runStoreHealthLoop(ctx context.Context) {
	var downSince time.Time
	paused := false
	for {
		if ctx.Err() != nil {
			return
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := e.store.Ping(pingCtx)
		cancel()

		switch {
		case err != nil:
			if downSince.IsZero() {
				downSince = time.Now()
			}
			if !paused && time.Since(downSince) >= StoreUnhealthyAfter {
				paused = true
				reason := "key-value store unreachable for over 30s"
				e.autonomy.PauseAutonomy(reason)
				if e.notify != nil {
					if nerr := e.notify.Escalate(ctx, "store unavailable", reason); nerr != nil {
						e.log.Warn("failed to escalate store outage", logging.NewFields().
							Component("engine").Operation("store_health").Error(nerr).Zap()...)
					}
				}
			}
		default:
			if paused {
				e.autonomy.ResumeAutonomy()
			}
			paused = false
			downSince = time.Time{}
		}

		if !sleepOrDone(ctx, StoreHealthInterval) {
			return
		}
	}
}

// AssessDeployment delegates to C9 for a pre-deploy risk assessment and
// records the deployment into C2's correlation index so a subsequent
// incident on the same service can find it.
func (e *Engine) AssessDeployment(ctx context.Context, in risk.Input) (*types.DeploymentRiskAssessment, error) {
	assessment, err := e.risk.Assess(ctx, in)
	if err != nil {
		return nil, err
	}
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}
	if err := e.detector.RecordDeployment(ctx, in.Service, in.Version, at); err != nil {
		e.log.Warn("failed to index deployment after risk assessment", logging.NewFields().
			Component("engine").Operation("assess_deployment").Service(in.Service).Error(err).Zap()...)
	}
	return assessment, nil
}

// ShouldAutoRollback delegates to C9's post-deploy rollback decision.
func (e *Engine) ShouldAutoRollback(ctx context.Context, service string, currentErrorRate float64) (bool, string) {
	return e.risk.ShouldAutoRollback(ctx, service, currentErrorRate)
}

// Ingestor exposes the engine's ingestion queues for an external collector
// to push into.
func (e *Engine) Ingestor() *Ingestor {
	return NewIngestor(e.store)
}
