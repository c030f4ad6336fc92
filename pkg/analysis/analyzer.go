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

package analysis

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/aiseam"
	"github.com/ai-autopilot/incident-core/pkg/knowledge"
	"github.com/ai-autopilot/incident-core/pkg/learning"
	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	sharedmath "github.com/ai-autopilot/incident-core/pkg/shared/math"
	"github.com/ai-autopilot/incident-core/pkg/store"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// Thresholds and tuning constants for incident composition.
const (
	AutonomySafePatternConfidence = 70.0
	RecentDeploymentWindow        = time.Hour
	HighCPUThresholdPct           = 80.0
	HighMemoryThresholdPct        = 85.0
	TrafficSpikeRatio             = 1.5
	ManyAnomaliesThreshold        = 4
	DefaultPredictedResolution    = 300.0
	MaxSimilarByFingerprint       = 10
	MaxServiceHistoryScan         = 50
	MaxRecommendedActions         = 5
)

// criticalServiceSubstrings bump an incident's blast radius one level when
// the service name contains any of them.
var criticalServiceSubstrings = []string{"auth", "payment", "database", "gateway"}

// ComposeInput bundles the evidence an IncidentAnalyzer composes an
// Incident from. Collaborators (the worker loops) are
// responsible for gathering this evidence via C2's correlation helpers and
// whatever log/metric collectors feed C1.
type ComposeInput struct {
	Service            string
	Anomalies          []types.Anomaly
	Logs               []string
	RecentDeployment   *types.DeploymentEvent // non-nil if one landed within the correlation window
	DeploymentAge      time.Duration
	PreIncidentCPUPct  float64
	PreIncidentMemPct  float64
	TrafficRatio       float64 // current / rolling average; 0 if unknown
	AIAnalysis         *types.Analysis // pre-fetched AI seam result, nil to let Analyzer call the seam itself
}

// Analyzer implements C5, the IncidentAnalyzer. It
// composes a complete Incident record from raw anomaly/log evidence,
// drawing on C3 for pattern matches, C4 for adjusted confidence and
// autonomy verdicts, and the AI seam for a root-cause fallback.
type Analyzer struct {
	store store.KeyValueStore
	kb    *knowledge.Base
	learn *learning.Engine
	ai    aiseam.AIAnalyzer
	log   *zap.Logger
}

// New constructs an Analyzer. ai may be nil, in which case Compose skips
// the AI seam entirely and relies on the heuristic root-cause path.
func New(s store.KeyValueStore, kb *knowledge.Base, learn *learning.Engine, ai aiseam.AIAnalyzer, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{store: s, kb: kb, learn: learn, ai: ai, log: log}
}

func incidentKey(id string) string          { return "incident_analysis:" + id }
func byFingerprintKey(fp string) string     { return "incidents:by_fingerprint:" + fp }
func byServiceKey(service string) string    { return "incidents:by_service:" + service }

// Compose runs the thirteen-step composition algorithm and persists the
// resulting Incident under the documented key layout.
func (a *Analyzer) Compose(ctx context.Context, in ComposeInput) (*types.Incident, error) {
	if in.AIAnalysis == nil && a.ai != nil {
		aiCtx, aiCancel := context.WithTimeout(ctx, aiseam.AnalyzeDeadline)
		result, err := a.ai.Analyze(aiCtx, aiseam.Request{ServiceName: in.Service, Anomalies: in.Anomalies, Logs: in.Logs})
		aiCancel()
		if err == nil {
			in.AIAnalysis = &result
		}
	}

	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()

	fp := Fingerprint(in.Service, in.Anomalies)
	symptoms := ExtractSymptoms(in.Anomalies)
	signals := ExtractSignals(in.Logs)
	severity := OverallSeverity(in.Anomalies)
	category, subcategory := Categorize(in.Anomalies, in.Logs)

	matches := a.kb.Match(knowledge.Evidence{Anomalies: in.Anomalies, Logs: in.Logs}, 0, a.learn)

	var bestPatternID string
	var patternConfidence float64
	if len(matches) > 0 {
		bestPatternID = matches[0].PatternID
		base := matches[0].Confidence
		if adjusted, err := a.learn.AdjustedConfidence(ctx, bestPatternID, base); err == nil {
			patternConfidence = adjusted
		} else {
			patternConfidence = base
		}
	}

	priorByFingerprint, err := a.similarByFingerprint(ctx, in.Service, fp)
	if err != nil {
		a.log.Warn("failed to load fingerprint history", logging.NewFields().
			Component("analysis").Operation("compose").Service(in.Service).Error(err).Zap()...)
	}
	similarBySymptom, err := a.similarBySymptomOverlap(ctx, in.Service, symptoms, fp)
	if err != nil {
		a.log.Warn("failed to load service incident history", logging.NewFields().
			Component("analysis").Operation("compose").Service(in.Service).Error(err).Zap()...)
	}
	similarIncidentCount := len(priorByFingerprint) + len(similarBySymptom)

	historicalSuccessRate, avgResolution := a.historicalStats(ctx, bestPatternID)

	rootCause, rootCauseConfidence := a.rootCause(ctx, in, bestPatternID, patternConfidence, signals)

	contributingFactors := contributingFactors(in)

	var recommended []types.ScoredAction
	if bestPatternID != "" {
		if p, ok := a.kb.Get(bestPatternID); ok {
			recommended = a.rankPatternActions(ctx, p)
		}
	} else if in.AIAnalysis != nil {
		recommended = rankAIActions(*in.AIAnalysis)
	}

	autonomousSafe, autonomousReason := a.autonomyVerdict(ctx, bestPatternID, patternConfidence)

	blastRadius := blastRadiusFor(in.Service, []string{in.Service})

	predicted := predictedResolution(avgResolution, bestPatternID, a.kb)
	recurrence := recurrenceProbability(len(priorByFingerprint), len(similarBySymptom))

	incident := &types.Incident{
		IncidentID:             uuid.NewString(),
		Fingerprint:            fp,
		Service:                in.Service,
		Category:               category,
		Subcategory:            subcategory,
		Severity:               severity,
		Symptoms:               symptoms,
		Signals:                signals,
		MatchedPatterns:        matches,
		BestPatternID:          bestPatternID,
		PatternConfidence:      patternConfidence,
		RootCause:              rootCause,
		RootCauseConfidence:    rootCauseConfidence,
		ContributingFactors:    contributingFactors,
		SimilarIncidentCount:   similarIncidentCount,
		HistoricalSuccessRate:  historicalSuccessRate,
		AvgResolutionSeconds:   avgResolution,
		RecommendedActions:     recommended,
		AutonomousSafe:         autonomousSafe,
		AutonomousReason:       autonomousReason,
		BlastRadius:            blastRadius,
		AffectedServices:       []string{in.Service},
		PredictedResolutionSec: predicted,
		RecurrenceProbability:  recurrence,
		Timestamp:              time.Now(),
	}

	if err := a.persist(ctx, incident); err != nil {
		return incident, err
	}
	return incident, nil
}

func (a *Analyzer) persist(ctx context.Context, incident *types.Incident) error {
	raw, err := json.Marshal(incident)
	if err != nil {
		return err
	}
	if err := a.store.Set(ctx, incidentKey(incident.IncidentID), raw, types.IncidentAnalysisTTL); err != nil {
		return err
	}
	if err := store.LPushCapped(ctx, a.store, byFingerprintKey(incident.Fingerprint), []byte(incident.IncidentID), types.MaxIncidentsPerIndex); err != nil {
		a.log.Warn("failed to index incident by fingerprint", logging.NewFields().
			Component("analysis").Operation("persist").Resource("incident", incident.IncidentID).Error(err).Zap()...)
	}
	if err := store.LPushCapped(ctx, a.store, byServiceKey(incident.Service), []byte(incident.IncidentID), types.MaxIncidentsPerIndex); err != nil {
		a.log.Warn("failed to index incident by service", logging.NewFields().
			Component("analysis").Operation("persist").Resource("incident", incident.IncidentID).Error(err).Zap()...)
	}
	return nil
}

// loadIncident fetches and unmarshals one persisted Incident, skipping
// (never erroring on) a malformed record.
func (a *Analyzer) loadIncident(ctx context.Context, id string) (*types.Incident, bool) {
	raw, err := a.store.Get(ctx, incidentKey(id))
	if err != nil || raw == nil {
		return nil, false
	}
	var inc types.Incident
	if err := json.Unmarshal(raw, &inc); err != nil {
		return nil, false
	}
	return &inc, true
}

// similarByFingerprint is the first similarity pass:
// the exact fingerprint index, up to MaxSimilarByFingerprint.
func (a *Analyzer) similarByFingerprint(ctx context.Context, service, fp string) ([]*types.Incident, error) {
	ids, err := a.store.LRange(ctx, byFingerprintKey(fp), 0, MaxSimilarByFingerprint-1)
	if err != nil {
		return nil, err
	}
	var out []*types.Incident
	for _, raw := range ids {
		if inc, ok := a.loadIncident(ctx, string(raw)); ok {
			out = append(out, inc)
		}
	}
	return out, nil
}

// similarBySymptomOverlap is the second similarity pass: symptom overlap
// over the service's last MaxServiceHistoryScan stored incidents, ranked
// by shared symptom count. Incidents with fingerprint fp are skipped here
// because the caller's separate exact-match pass already counts them, so
// the two passes are disjoint.
func (a *Analyzer) similarBySymptomOverlap(ctx context.Context, service string, symptoms []string, fp string) ([]*types.Incident, error) {
	ids, err := a.store.LRange(ctx, byServiceKey(service), 0, MaxServiceHistoryScan-1)
	if err != nil {
		return nil, err
	}
	type scored struct {
		inc     *types.Incident
		overlap int
	}
	var candidates []scored
	want := toSet(symptoms)
	for _, raw := range ids {
		inc, ok := a.loadIncident(ctx, string(raw))
		if !ok || inc.Fingerprint == fp {
			continue
		}
		overlap := 0
		for _, s := range inc.Symptoms {
			if want[s] {
				overlap++
			}
		}
		if overlap > 0 {
			candidates = append(candidates, scored{inc, overlap})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].overlap > candidates[j].overlap })
	out := make([]*types.Incident, len(candidates))
	for i, c := range candidates {
		out[i] = c.inc
	}
	return out, nil
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

// historicalStats derives the historical stats from the best
// pattern's PatternStats as the historical record: successRate =
// resolved/count, avgResolution over non-zero resolution times. C4 already
// tracks both as PatternStats.SuccessRate() and AvgResolutionSeconds (a
// running mean seeded only from outcomes that reported a resolution time),
// so this reuses that record rather than re-deriving it from raw Incident
// history.
func (a *Analyzer) historicalStats(ctx context.Context, patternID string) (successRate, avgResolution float64) {
	if patternID == "" {
		return 0, 0
	}
	stats, err := a.learn.Stats(ctx, patternID)
	if err != nil {
		return 0, 0
	}
	return stats.SuccessRate(), stats.AvgResolutionSeconds
}

// rootCause picks the highest-confidence root-cause attribution.
func (a *Analyzer) rootCause(ctx context.Context, in ComposeInput, bestPatternID string, patternConfidence float64, signals []string) (string, float64) {
	if in.RecentDeployment != nil && in.DeploymentAge <= RecentDeploymentWindow {
		return "Recent deployment change", 85
	}
	if bestPatternID != "" {
		if p, ok := a.kb.Get(bestPatternID); ok {
			return p.Name, patternConfidence
		}
	}
	lowerLogs := strings.ToLower(strings.Join(in.Logs, " "))
	hasSignal := func(kw string) bool { return strings.Contains(lowerLogs, kw) }
	switch {
	case hasSignal("oom") || hasSignal("out of memory"):
		return "Memory exhaustion", 90
	case hasSignal("connection") && hasSignal("timeout"):
		return "Connection timeout under load", 75
	}
	if in.AIAnalysis != nil && in.AIAnalysis.RootCause.Description != "" {
		return in.AIAnalysis.RootCause.Description, in.AIAnalysis.RootCause.Confidence
	}
	return "Unknown — requires investigation", 30
}

// contributingFactors lists the aggravating conditions present at
// composition time.
func contributingFactors(in ComposeInput) []string {
	var factors []string
	if in.PreIncidentCPUPct > HighCPUThresholdPct {
		factors = append(factors, "high pre-incident CPU utilization")
	}
	if in.PreIncidentMemPct > HighMemoryThresholdPct {
		factors = append(factors, "high pre-incident memory utilization")
	}
	if in.TrafficRatio >= TrafficSpikeRatio {
		factors = append(factors, "traffic spike relative to baseline")
	}
	if in.RecentDeployment != nil && in.DeploymentAge <= RecentDeploymentWindow {
		factors = append(factors, "recent deployment")
	}
	if len(in.Anomalies) >= ManyAnomaliesThreshold {
		factors = append(factors, "multiple concurrent anomalies")
	}
	return factors
}

// rankPatternActions ranks the best matched pattern's candidate actions:
// combined = 0.6*patternActionConfidence +
// 0.4*100*historicalActionRate, top MaxRecommendedActions.
func (a *Analyzer) rankPatternActions(ctx context.Context, p types.IncidentPattern) []types.ScoredAction {
	stats, err := a.learn.Stats(ctx, p.PatternID)
	var perActionRate map[string]float64
	if err == nil {
		perActionRate = stats.PerActionRate
	}

	out := make([]types.ScoredAction, 0, len(p.Actions))
	for _, act := range p.Actions {
		rate, ok := perActionRate[act.ActionKey()]
		if !ok {
			rate = 0.5
		}
		combined := 0.6*act.BaseConfidence + 0.4*100*rate
		out = append(out, types.ScoredAction{
			ActionType:                 act.ActionType,
			ActionCategory:             act.ActionCategory,
			Params:                     act.Params,
			Combined:                   sharedmath.Clamp(combined, 0, 100),
			PatternConfidence:          act.BaseConfidence,
			HistoricalRate:             rate,
			RequiresApproval:           act.RequiresApproval,
			EstimatedResolutionSeconds: act.EstimatedResolutionSeconds,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Combined > out[j].Combined })
	if len(out) > MaxRecommendedActions {
		out = out[:MaxRecommendedActions]
	}
	return out
}

// rankAIActions falls back to the AI seam's recommendations when no
// catalogue pattern matched.
func rankAIActions(analysis types.Analysis) []types.ScoredAction {
	out := make([]types.ScoredAction, 0, len(analysis.RecommendedActions))
	for _, rec := range analysis.RecommendedActions {
		priority := rec.Priority
		if priority < 1 {
			priority = 1
		}
		confidence := sharedmath.Clamp(float64(6-priority)*15, 0, 100)
		out = append(out, types.ScoredAction{
			ActionType:       rec.Action,
			Combined:         confidence,
			RequiresApproval: rec.Risk == types.RiskHigh,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Combined > out[j].Combined })
	if len(out) > MaxRecommendedActions {
		out = out[:MaxRecommendedActions]
	}
	return out
}

// autonomyVerdict decides whether this incident may execute without a
// human in the loop.
func (a *Analyzer) autonomyVerdict(ctx context.Context, bestPatternID string, patternConfidence float64) (bool, string) {
	if bestPatternID == "" {
		return false, "no catalogue pattern matched this incident"
	}
	if patternConfidence < AutonomySafePatternConfidence {
		return false, "pattern confidence below the 70% autonomy floor"
	}
	verdict, err := a.learn.AutonomousSafety(ctx, bestPatternID)
	if err != nil {
		return false, "unable to evaluate pattern autonomy safety"
	}
	if !verdict.Safe {
		return false, strings.Join(verdict.Reasons, "; ")
	}
	return true, "pattern is promoted for autonomous execution"
}

// blastRadiusFor estimates the incident's impact footprint.
func blastRadiusFor(service string, affected []string) types.BlastRadius {
	var radius types.BlastRadius
	switch {
	case len(affected) > 3:
		radius = types.BlastRadiusHigh
	case len(affected) <= 3 && len(affected) > 1:
		radius = types.BlastRadiusMedium
	default:
		radius = types.BlastRadiusLow
	}
	if containsCriticalSubstring(service) {
		radius = bumpBlastRadius(radius)
	}
	return radius
}

func containsCriticalSubstring(service string) bool {
	lower := strings.ToLower(service)
	for _, sub := range criticalServiceSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

func bumpBlastRadius(r types.BlastRadius) types.BlastRadius {
	switch r {
	case types.BlastRadiusLow:
		return types.BlastRadiusMedium
	case types.BlastRadiusMedium:
		return types.BlastRadiusHigh
	default:
		return types.BlastRadiusCritical
	}
}

// predictedResolution picks the best available resolution-time estimate:
// historical mean if available, else the pattern's own average, else the
// 300s default.
func predictedResolution(historicalAvg float64, patternID string, kb *knowledge.Base) float64 {
	if historicalAvg > 0 {
		return historicalAvg
	}
	if patternID != "" {
		if p, ok := kb.Get(patternID); ok && p.AvgResolutionSeconds > 0 {
			return float64(p.AvgResolutionSeconds)
		}
	}
	return DefaultPredictedResolution
}

// recurrenceProbability maps prior occurrences onto a recurrence estimate:
// the exact-fingerprint occurrence count drives the gradient; when there is
// no exact-fingerprint history at all, a symptom-overlap match still
// counts as "some history" (0.2) while truly no related history drops to
// the floor (0.1) — two deliberately distinct fallbacks.
func recurrenceProbability(exactOccurrences, symptomOverlapCount int) float64 {
	switch {
	case exactOccurrences >= 5:
		return 0.9
	case exactOccurrences >= 3:
		return 0.7
	case exactOccurrences >= 1:
		return 0.5
	case symptomOverlapCount > 0:
		return 0.2
	default:
		return 0.1
	}
}
