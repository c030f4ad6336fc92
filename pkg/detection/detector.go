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

// Package detection implements C2, the AnomalyDetector: it turns a stream
// of (service, metric, value) samples into Anomaly records and owns the
// rolling Baseline exclusively.
package detection

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	sharederrors "github.com/ai-autopilot/incident-core/pkg/shared/errors"
	"github.com/ai-autopilot/incident-core/pkg/shared/keyedmutex"
	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	sharedmath "github.com/ai-autopilot/incident-core/pkg/shared/math"
	"github.com/ai-autopilot/incident-core/pkg/store"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// ZScoreThreshold is the gate above which a sample is an anomaly.
const ZScoreThreshold = 2.5

// ErrorRateSpikeMultiplier and ErrorRateFloor gate the error-rate path.
const (
	ErrorRateSpikeMultiplier = 3.0
	ErrorRateFloor           = 1.0
	ErrorRateCriticalPct     = 5.0
	ErrorRateMetricName      = "error_rate"
)

// DeploymentCorrelationWindow is how far back a deployment is still
// considered "recent" relative to an anomaly.
const DeploymentCorrelationWindow = 30 * time.Minute

// DeploymentRecencyHighConfidence is the age below which a correlated
// deployment is reported with "high" rather than "medium" confidence.
const DeploymentRecencyHighConfidence = 10 * time.Minute

// Detector implements the AnomalyDetector component.
type Detector struct {
	store store.KeyValueStore
	log   *zap.Logger
	keyed *keyedmutex.Mutex
}

// NewDetector constructs a Detector backed by s. log may be zap.NewNop()
// in tests.
func NewDetector(s store.KeyValueStore, log *zap.Logger) *Detector {
	return &Detector{store: s, log: log, keyed: keyedmutex.New()}
}

func baselineKey(service, metric string) string {
	return "baseline:" + service + ":" + metric
}

func recentAnomaliesKey(service string) string {
	return "recent_anomalies:" + service
}

func deploymentsKey(service string) string {
	return "deployments:" + service
}

// loadBaseline reads the current baseline for (service, metric), returning
// a fresh zero-value baseline on a cache miss or malformed record
// (MalformedInput is skipped, never fatal).
func (d *Detector) loadBaseline(ctx context.Context, service, metric string) *types.Baseline {
	raw, err := d.store.Get(ctx, baselineKey(service, metric))
	if err != nil || raw == nil {
		return &types.Baseline{Service: service, Metric: metric}
	}
	var b types.Baseline
	if jsonErr := json.Unmarshal(raw, &b); jsonErr != nil {
		d.log.Warn("discarding malformed baseline", logging.NewFields().
			Component("detection").Operation("load_baseline").Service(service).Error(jsonErr).Zap()...)
		return &types.Baseline{Service: service, Metric: metric}
	}
	return &b
}

// saveBaseline persists b with the 7-day TTL, retrying once on a
// transient failure before dropping the update.
func (d *Detector) saveBaseline(ctx context.Context, b *types.Baseline) {
	raw, err := json.Marshal(b)
	if err != nil {
		return
	}
	key := baselineKey(b.Service, b.Metric)
	if err := d.store.Set(ctx, key, raw, types.BaselineTTL); err != nil {
		if err2 := d.store.Set(ctx, key, raw, types.BaselineTTL); err2 != nil {
			d.log.Warn("dropping baseline update after retry", logging.NewFields().
				Component("detection").Operation("save_baseline").Resource("baseline", key).
				Error(sharederrors.TransientStorage("save_baseline", key, err2)).Zap()...)
		}
	}
}

// ProcessSample feeds one (service, metric, value) sample through the
// rolling baseline and returns an Anomaly when the z-score gate trips. A
// nil, nil result means no anomaly (including the warm-up window where
// count < 10).
func (d *Detector) ProcessSample(ctx context.Context, service, metric string, value float64, at time.Time) (*types.Anomaly, error) {
	unlock := d.keyed.Lock(service + ":" + metric)
	defer unlock()

	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()

	b := d.loadBaseline(ctx, service, metric)

	var anomaly *types.Anomaly
	if b.Count >= types.BaselineWarmupCount {
		z := 0.0
		if b.StdDev != 0 {
			z = absf(value-b.Mean) / b.StdDev
		}
		if z > ZScoreThreshold {
			anomaly = &types.Anomaly{
				Service:      service,
				Metric:       metric,
				Value:        value,
				Mean:         b.Mean,
				StdDev:       b.StdDev,
				ZScore:       z,
				DeviationPct: deviationPct(value, b.Mean),
				Severity:     severityForZScore(z),
				DetectedAt:   at,
			}
		}
	}

	b.Values = append(b.Values, value)
	if len(b.Values) > types.MaxBaselineValues {
		b.Values = b.Values[len(b.Values)-types.MaxBaselineValues:]
	}
	b.Count = len(b.Values)
	b.Mean = sharedmath.Mean(b.Values)
	b.StdDev = sharedmath.StandardDeviation(b.Values)
	b.UpdatedAt = at

	d.saveBaseline(ctx, b)

	if anomaly != nil {
		d.appendRecentAnomaly(ctx, *anomaly)
	}
	return anomaly, nil
}

// ProcessErrorRate implements the error-rate spike path:
// given a window's (errorCount, totalCount), it maintains a baseline on the
// synthetic "error_rate" metric and emits an anomaly on a sustained spike.
func (d *Detector) ProcessErrorRate(ctx context.Context, service string, errorCount, totalCount int, at time.Time) (*types.Anomaly, error) {
	if totalCount <= 0 {
		return nil, nil
	}
	rate := float64(errorCount) / float64(totalCount) * 100

	unlock := d.keyed.Lock(service + ":" + ErrorRateMetricName)
	defer unlock()

	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()

	b := d.loadBaseline(ctx, service, ErrorRateMetricName)

	var anomaly *types.Anomaly
	if rate > ErrorRateSpikeMultiplier*b.Mean && rate > ErrorRateFloor {
		sev := types.SeverityMedium
		if rate > ErrorRateCriticalPct {
			sev = types.SeverityCritical
		}
		z := 0.0
		if b.StdDev != 0 {
			z = absf(rate-b.Mean) / b.StdDev
		}
		anomaly = &types.Anomaly{
			Service:      service,
			Metric:       ErrorRateMetricName,
			Value:        rate,
			Mean:         b.Mean,
			StdDev:       b.StdDev,
			ZScore:       z,
			DeviationPct: deviationPct(rate, b.Mean),
			Severity:     sev,
			DetectedAt:   at,
		}
	}

	b.Values = append(b.Values, rate)
	if len(b.Values) > types.MaxBaselineValues {
		b.Values = b.Values[len(b.Values)-types.MaxBaselineValues:]
	}
	b.Count = len(b.Values)
	b.Mean = sharedmath.Mean(b.Values)
	b.StdDev = sharedmath.StandardDeviation(b.Values)
	b.UpdatedAt = at

	d.saveBaseline(ctx, b)

	if anomaly != nil {
		d.appendRecentAnomaly(ctx, *anomaly)
	}
	return anomaly, nil
}

// appendRecentAnomaly is best-effort: storage failures are logged and
// swallowed.
func (d *Detector) appendRecentAnomaly(ctx context.Context, a types.Anomaly) {
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	key := recentAnomaliesKey(a.Service)
	if err := store.LPushCappedTTL(ctx, d.store, key, raw, types.MaxRecentAnomalies, types.RecentAnomaliesTTL); err != nil {
		d.log.Warn("dropping recent-anomaly append", logging.NewFields().
			Component("detection").Operation("append_recent_anomaly").Resource("anomaly", key).Error(err).Zap()...)
	}
}

// RecentAnomalies returns up to limit of the most recent anomalies recorded
// for service, newest first.
func (d *Detector) RecentAnomalies(ctx context.Context, service string, limit int64) ([]types.Anomaly, error) {
	raws, err := d.store.LRange(ctx, recentAnomaliesKey(service), 0, limit-1)
	if err != nil {
		return nil, err
	}
	out := make([]types.Anomaly, 0, len(raws))
	for _, raw := range raws {
		var a types.Anomaly
		if jsonErr := json.Unmarshal(raw, &a); jsonErr != nil {
			continue // MalformedInput: skip, never abort
		}
		out = append(out, a)
	}
	return out, nil
}

// RecordDeployment indexes a deployment of version on service at "at" into
// the service's deployments sorted set, scored by unix seconds, so later
// CorrelateDeployment and risk-analyzer lookups can find it.
func (d *Detector) RecordDeployment(ctx context.Context, service, version string, at time.Time) error {
	return d.store.ZAdd(ctx, deploymentsKey(service), float64(at.Unix()), version)
}

// CorrelateDeployment checks whether a deployment on service happened
// within DeploymentCorrelationWindow before at.
func (d *Detector) CorrelateDeployment(ctx context.Context, service string, at time.Time) (types.DeploymentCorrelation, error) {
	minScore := float64(at.Add(-DeploymentCorrelationWindow).Unix())
	maxScore := float64(at.Unix())

	members, err := d.store.ZRangeByScore(ctx, deploymentsKey(service), minScore, maxScore)
	if err != nil {
		return types.DeploymentCorrelation{}, err
	}
	if len(members) == 0 {
		return types.DeploymentCorrelation{}, nil
	}

	// ZRangeByScore is ascending; the most recent deployment in the window
	// is the last member.
	version := members[len(members)-1]

	// The store interface doesn't expose scores directly on ZRangeByScore;
	// deploymentAge recovers the deployment's score by bisecting the window
	// with further ZRangeByScore queries.
	age := d.deploymentAge(ctx, service, version, at)

	confidence := "medium"
	if age < DeploymentRecencyHighConfidence {
		confidence = "high"
	}
	return types.DeploymentCorrelation{
		Correlated: true,
		Version:    version,
		AgeMinutes: age.Minutes(),
		Confidence: confidence,
	}, nil
}

// deploymentAge narrows the correlation window via bisection against
// ZRangeByScore until it isolates the deployment's score, giving an exact
// age without the store needing a "get score" primitive.
func (d *Detector) deploymentAge(ctx context.Context, service, version string, at time.Time) time.Duration {
	lo := at.Add(-DeploymentCorrelationWindow).Unix()
	hi := at.Unix()
	for i := 0; i < 40 && hi-lo > 0; i++ {
		mid := lo + (hi-lo+1)/2
		members, err := d.store.ZRangeByScore(ctx, deploymentsKey(service), float64(mid), float64(hi))
		if err != nil {
			break
		}
		if contains(members, version) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	deployedAt := time.Unix(lo, 0)
	return at.Sub(deployedAt)
}

func contains(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}

func severityForZScore(z float64) types.Severity {
	switch {
	case z > 4:
		return types.SeverityCritical
	case z > 3:
		return types.SeverityHigh
	case z > ZScoreThreshold:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func deviationPct(value, mean float64) float64 {
	if mean == 0 {
		return 0
	}
	return (value - mean) / mean * 100
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
