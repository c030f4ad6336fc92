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

// Package risk implements C9, the DeploymentRiskAnalyzer: a seven-factor
// pre-deploy risk score and a post-deploy auto-rollback decision.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	sharedmath "github.com/ai-autopilot/incident-core/pkg/shared/math"
	"github.com/ai-autopilot/incident-core/pkg/store"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// Factor weights.
const (
	WeightHistorical      = 0.25
	WeightCriticality     = 0.20
	WeightCurrentHealth   = 0.15
	WeightChangeMagnitude = 0.15
	WeightTiming          = 0.10
	WeightDependencies     = 0.10
	WeightRecent          = 0.05
)

// Risk-level and decision thresholds.
const (
	ThresholdCritical = 80.0
	ThresholdHigh     = 60.0
	ThresholdMedium   = 40.0
	ThresholdLow      = 20.0

	ShouldProceedMax       = 80.0
	RequiresApprovalMin    = 60.0
	AutoRollbackEnabledMin = 50.0

	MaxDeployHistory = 20
)

// DefaultRollbackThreshold is used when no assessment is on record for the
// service.
const DefaultRollbackThreshold = 70.0

// rollbackThresholds maps a risk level to its post-deploy error-rate
// auto-rollback trigger.
var rollbackThresholds = map[types.RiskLevel]float64{
	types.RiskCritical: 20,
	types.RiskHighLvl:  30,
	types.RiskLevelMed: 50,
	types.RiskLevelLow: 70,
	types.RiskMinimal:  90,
}

// Analyzer implements the DeploymentRiskAnalyzer component.
type Analyzer struct {
	store store.KeyValueStore
	log   *zap.Logger
}

// New constructs an Analyzer backed by s.
func New(s store.KeyValueStore, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{store: s, log: log}
}

func assessmentKey(id string) string              { return "risk_assessment:" + id }
func assessmentsByServiceKey(svc string) string    { return "risk_assessments:" + svc }
func deployOutcomesKey(service string) string      { return "risk:deploy_outcomes:" + service }

// Input bundles everything Assess needs beyond what the Analyzer itself
// tracks (the last-20-deploys history) to score the seven factors.
type Input struct {
	DeploymentID    string
	Service         string
	Version         string
	PreviousVersion string

	// Criticality overrides the name-based tier heuristic when set.
	Criticality types.ServiceCriticality

	RecentAnomalyCount      int // for currentHealth
	FilesChanged            int
	HasDBMigration          bool
	HasConfigChange         bool
	// ChangeMagnitudeOverride, when non-nil, replaces the version-bump
	// heuristic's base score (e.g. with an imagediff-adjusted value).
	ChangeMagnitudeOverride *float64

	At time.Time // defaults to now; drives the timing factor

	// DependencyAnomalyCounts maps each service in the fixed critical
	// dependency list to its recent anomaly count.
	DependencyAnomalyCounts map[string]int

	RecentIncidentCount24h int
}

// RecordDeployOutcome appends a deploy's pass/fail result to the service's
// rolling history, capped at MaxDeployHistory, feeding the historical
// failure-rate factor.
func (a *Analyzer) RecordDeployOutcome(ctx context.Context, service string, success bool) error {
	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()
	val := []byte("0")
	if success {
		val = []byte("1")
	}
	return store.LPushCapped(ctx, a.store, deployOutcomesKey(service), val, MaxDeployHistory)
}

func (a *Analyzer) historicalFailureRate(ctx context.Context, service string) (float64, bool) {
	raws, err := a.store.LRange(ctx, deployOutcomesKey(service), 0, MaxDeployHistory-1)
	if err != nil || len(raws) == 0 {
		return 0, false
	}
	failures := 0
	for _, r := range raws {
		if string(r) == "0" {
			failures++
		}
	}
	return float64(failures) / float64(len(raws)), true
}

func historicalScore(rate float64, hasHistory bool) float64 {
	if !hasHistory {
		return 30
	}
	switch {
	case rate == 0:
		return 10
	case rate < 0.10:
		return 25
	case rate < 0.20:
		return 45
	case rate < 0.30:
		return 65
	default:
		return 85
	}
}

// criticalityTier derives a ServiceCriticality from a string-pattern match
// over the service name, used when Input.Criticality is
// left unset.
func criticalityTier(service string) types.ServiceCriticality {
	s := strings.ToLower(service)
	switch {
	case strings.Contains(s, "payment"), strings.Contains(s, "checkout"), strings.Contains(s, "auth"), strings.Contains(s, "billing"):
		return types.Tier1
	case strings.Contains(s, "api"), strings.Contains(s, "core"), strings.Contains(s, "order"):
		return types.Tier2
	case strings.Contains(s, "internal"), strings.Contains(s, "batch"), strings.Contains(s, "report"):
		return types.Tier3
	default:
		return types.Tier4
	}
}

func criticalityScore(tier types.ServiceCriticality) float64 {
	switch tier {
	case types.Tier1:
		return 80
	case types.Tier2:
		return 55
	case types.Tier3:
		return 30
	default:
		return 10
	}
}

func currentHealthScore(recentAnomalies int) float64 {
	switch {
	case recentAnomalies == 0:
		return 15
	case recentAnomalies <= 2:
		return 35
	case recentAnomalies <= 5:
		return 60
	default:
		return 85
	}
}

// versionBumpKind classifies a semver-like "a.b.c" bump as major/minor/patch.
func versionBumpKind(prev, curr string) string {
	p := strings.Split(strings.TrimPrefix(prev, "v"), ".")
	c := strings.Split(strings.TrimPrefix(curr, "v"), ".")
	if len(p) < 1 || len(c) < 1 || prev == "" || curr == "" {
		return "unknown"
	}
	if len(p) >= 1 && len(c) >= 1 && p[0] != c[0] {
		return "major"
	}
	if len(p) >= 2 && len(c) >= 2 && p[1] != c[1] {
		return "minor"
	}
	if len(p) >= 3 && len(c) >= 3 && p[2] != c[2] {
		return "patch"
	}
	return "unknown"
}

func changeMagnitudeScore(in Input) float64 {
	var base float64
	if in.ChangeMagnitudeOverride != nil {
		base = *in.ChangeMagnitudeOverride
	} else {
		switch versionBumpKind(in.PreviousVersion, in.Version) {
		case "major":
			base = 75
		case "minor":
			base = 45
		case "patch":
			base = 20
		default:
			base = 50
		}
	}
	if in.HasDBMigration {
		base += 20
	}
	if in.HasConfigChange {
		base += 10
	}
	if in.FilesChanged > 100 {
		base += 15
	}
	return sharedmath.Clamp(base, 0, 100)
}

func timingScore(at time.Time) float64 {
	t := at.UTC()
	h := t.Hour()
	switch {
	case t.Weekday() == time.Friday && h >= 14:
		return 85
	case t.Weekday() == time.Saturday || t.Weekday() == time.Sunday:
		return 70
	case h >= 22 || h < 6:
		return 60
	case h >= 9 && h <= 18:
		return 45
	default:
		return 20
	}
}

func dependenciesScore(counts map[string]int) float64 {
	unhealthy := 0
	for _, c := range counts {
		if c >= 3 {
			unhealthy++
		}
	}
	switch {
	case unhealthy == 0:
		return 15
	case unhealthy == 1:
		return 45
	case unhealthy <= 2:
		return 65
	default:
		return 85
	}
}

func recentIncidentsScore(count int) float64 {
	switch {
	case count == 0:
		return 10
	case count == 1:
		return 35
	case count <= 3:
		return 60
	default:
		return 85
	}
}

func riskLevelFor(score float64) types.RiskLevel {
	switch {
	case score >= ThresholdCritical:
		return types.RiskCritical
	case score >= ThresholdHigh:
		return types.RiskHighLvl
	case score >= ThresholdMedium:
		return types.RiskLevelMed
	case score >= ThresholdLow:
		return types.RiskLevelLow
	default:
		return types.RiskMinimal
	}
}

// Assess computes the seven weighted risk factors for in and persists the
// resulting DeploymentRiskAssessment, indexed by service.
func (a *Analyzer) Assess(ctx context.Context, in Input) (*types.DeploymentRiskAssessment, error) {
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}
	tier := in.Criticality
	if tier == "" {
		tier = criticalityTier(in.Service)
	}

	failureRate, hasHistory := a.historicalFailureRate(ctx, in.Service)

	factors := []types.RiskFactor{
		{Name: "historical", Score: historicalScore(failureRate, hasHistory), Weight: WeightHistorical, Details: "failure rate over the last 20 deploys", Mitigations: historicalMitigations(failureRate, hasHistory)},
		{Name: "criticality", Score: criticalityScore(tier), Weight: WeightCriticality, Details: "service tier: " + string(tier), Mitigations: criticalityMitigations(tier)},
		{Name: "currentHealth", Score: currentHealthScore(in.RecentAnomalyCount), Weight: WeightCurrentHealth, Details: "recent anomaly count"},
		{Name: "changeMagnitude", Score: changeMagnitudeScore(in), Weight: WeightChangeMagnitude, Details: "version bump + migration/config/file-count signals", Mitigations: magnitudeMitigations(in)},
		{Name: "timing", Score: timingScore(at), Weight: WeightTiming, Details: "deploy time of week", Mitigations: timingMitigations(at)},
		{Name: "dependencies", Score: dependenciesScore(in.DependencyAnomalyCounts), Weight: WeightDependencies, Details: "critical dependency health"},
		{Name: "recent", Score: recentIncidentsScore(in.RecentIncidentCount24h), Weight: WeightRecent, Details: "incidents in the last 24h"},
	}

	var overall float64
	for _, f := range factors {
		overall += f.Score * f.Weight
	}

	level := riskLevelFor(overall)
	assessment := &types.DeploymentRiskAssessment{
		DeploymentID:             in.DeploymentID,
		Service:                  in.Service,
		Version:                  in.Version,
		PreviousVersion:          in.PreviousVersion,
		OverallScore:             overall,
		RiskLevel:                level,
		Factors:                  factors,
		ShouldProceed:            overall < ShouldProceedMax,
		RequiresApproval:         overall >= RequiresApprovalMin,
		AutoRollbackEnabled:      overall >= AutoRollbackEnabledMin,
		RollbackThresholdMinutes: 15,
		RollbackConfidence:       sharedmath.Clamp(overall, 0, 100),
		AssessedAt:               at,
		HistoricalContext:        a.historicalContext(ctx, in.Service, failureRate, hasHistory),
	}
	assessment.Recommendations = recommendations(assessment, factors)

	if err := a.persist(ctx, assessment); err != nil {
		return nil, err
	}
	return assessment, nil
}

func historicalMitigations(rate float64, hasHistory bool) []string {
	if !hasHistory {
		return []string{"no deploy history on record; treat the first deploys as canaries"}
	}
	if rate >= 0.20 {
		return []string{"review the service's recent failed deploys before proceeding"}
	}
	return nil
}

func criticalityMitigations(tier types.ServiceCriticality) []string {
	if tier != types.Tier1 {
		return nil
	}
	return []string{
		"stage the release behind a canary before full rollout",
		"require a second approver for tier-1 services",
	}
}

func magnitudeMitigations(in Input) []string {
	var out []string
	if in.HasDBMigration {
		out = append(out, "run the database migration separately ahead of the code deploy")
	}
	if in.FilesChanged > 100 {
		out = append(out, "split the change into smaller deploys")
	}
	return out
}

func timingMitigations(at time.Time) []string {
	t := at.UTC()
	if (t.Weekday() == time.Friday && t.Hour() >= 14) || t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return []string{"defer to a weekday morning deploy window"}
	}
	return nil
}

// recommendations renders the assessment's headline guidance: the block or
// approval notice first, then the rollback arming note, then each elevated
// factor's mitigations.
func recommendations(assessment *types.DeploymentRiskAssessment, factors []types.RiskFactor) []string {
	var out []string
	if !assessment.ShouldProceed {
		out = append(out, fmt.Sprintf("Deployment blocked: overall risk %.0f is at or above the %s threshold", assessment.OverallScore, types.RiskCritical))
	} else if assessment.RequiresApproval {
		out = append(out, fmt.Sprintf("Manual approval required: overall risk %.0f", assessment.OverallScore))
	}
	if assessment.AutoRollbackEnabled {
		threshold := DefaultRollbackThreshold
		if t, ok := rollbackThresholds[assessment.RiskLevel]; ok {
			threshold = t
		}
		out = append(out, fmt.Sprintf("Auto-rollback armed: triggers at %.0f%% error rate", threshold))
	}
	for _, f := range factors {
		if f.Score >= 60 {
			out = append(out, f.Mitigations...)
		}
	}
	return out
}

// historicalContext summarizes the deploy history the historical factor
// scored, for a human reading the assessment.
func (a *Analyzer) historicalContext(ctx context.Context, service string, rate float64, hasHistory bool) string {
	if !hasHistory {
		return "no deployment history recorded for " + service
	}
	raws, err := a.store.LRange(ctx, deployOutcomesKey(service), 0, MaxDeployHistory-1)
	if err != nil {
		return ""
	}
	failures := int(rate*float64(len(raws)) + 0.5)
	return fmt.Sprintf("%d of the last %d deploys of %s failed (%.0f%%)", failures, len(raws), service, rate*100)
}

func (a *Analyzer) persist(ctx context.Context, assessment *types.DeploymentRiskAssessment) error {
	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()

	raw, err := json.Marshal(assessment)
	if err != nil {
		return err
	}
	if err := a.store.Set(ctx, assessmentKey(assessment.DeploymentID), raw, types.RiskAssessmentTTL); err != nil {
		return err
	}
	if err := store.LPushCapped(ctx, a.store, assessmentsByServiceKey(assessment.Service), []byte(assessment.DeploymentID), MaxDeployHistory); err != nil {
		a.log.Warn("failed to index risk assessment by service", logging.NewFields().
			Component("risk").Operation("assess").Service(assessment.Service).Resource("assessment", assessment.DeploymentID).Error(err).Zap()...)
	}
	return nil
}

func (a *Analyzer) latestAssessment(ctx context.Context, service string) (*types.DeploymentRiskAssessment, bool) {
	ids, err := a.store.LRange(ctx, assessmentsByServiceKey(service), 0, 0)
	if err != nil || len(ids) == 0 {
		return nil, false
	}
	raw, err := a.store.Get(ctx, assessmentKey(string(ids[0])))
	if err != nil || raw == nil {
		return nil, false
	}
	var assessment types.DeploymentRiskAssessment
	if err := json.Unmarshal(raw, &assessment); err != nil {
		return nil, false
	}
	return &assessment, true
}

// ShouldAutoRollback is the post-deploy rollback decision:
// the service's most recent risk assessment determines the error-rate
// threshold (falling back to DefaultRollbackThreshold with no assessment
// on record); currentErrorRate at or above that threshold triggers a
// rollback.
func (a *Analyzer) ShouldAutoRollback(ctx context.Context, service string, currentErrorRate float64) (bool, string) {
	threshold := DefaultRollbackThreshold
	level := types.RiskLevelLow
	if assessment, ok := a.latestAssessment(ctx, service); ok {
		level = assessment.RiskLevel
		if t, ok := rollbackThresholds[level]; ok {
			threshold = t
		}
	}
	if currentErrorRate >= threshold {
		return true, "current error rate exceeds the " + string(level) + "-risk rollback threshold"
	}
	return false, ""
}
