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

// Package analysis implements C5, the IncidentAnalyzer: it composes a
// complete Incident record from raw anomaly/log evidence.
package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/ai-autopilot/incident-core/pkg/detection"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// FingerprintLength is the number of hex digits retained from the SHA-256
// digest.
const FingerprintLength = 24

// Fingerprint computes the stable incident fingerprint:
// a hash of the service plus the deduplicated, sorted set of
// (metric, type, severity, direction) tuples across anomalies.
func Fingerprint(service string, anomalies []types.Anomaly) string {
	features := make(map[types.AnomalyFeature]struct{}, len(anomalies))
	for _, a := range anomalies {
		features[featureOf(a)] = struct{}{}
	}

	sorted := make([]types.AnomalyFeature, 0, len(features))
	for f := range features {
		sorted = append(sorted, f)
	}
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Metric != b.Metric {
			return a.Metric < b.Metric
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Severity != b.Severity {
			return a.Severity < b.Severity
		}
		return a.Direction < b.Direction
	})

	h := sha256.New()
	h.Write([]byte(service))
	for _, f := range sorted {
		fmt.Fprintf(h, "|metric:%s|type:%s|severity:%s|direction:%s", f.Metric, f.Type, f.Severity, f.Direction)
	}
	return hex.EncodeToString(h.Sum(nil))[:FingerprintLength]
}

func featureOf(a types.Anomaly) types.AnomalyFeature {
	kind := "metric"
	if a.Metric == detection.ErrorRateMetricName {
		kind = "error_rate"
	}
	return types.AnomalyFeature{
		Metric:    a.Metric,
		Type:      kind,
		Severity:  a.Severity,
		Direction: a.Direction(),
	}
}
