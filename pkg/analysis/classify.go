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
	"fmt"
	"strings"

	"github.com/ai-autopilot/incident-core/pkg/types"
)

// SignalKeywords is the fixed, case-insensitive vocabulary scanned for in
// the log corpus.
var SignalKeywords = []string{
	"OOMKilled", "CrashLoopBackOff", "timeout", "connection refused",
	"out of memory", "disk full", "CPU throttling", "deadlock",
	"replication lag", "certificate expired", "authentication failed",
	"rate limit", "quota exceeded", "health check failed",
}

// ExtractSymptoms renders each anomaly as the human-readable symptom
// string "High <metric>: <v> (threshold: <t>)". The
// anomaly's own baseline mean stands in for "threshold" since C2 does not
// retain a separate alerting threshold.
func ExtractSymptoms(anomalies []types.Anomaly) []string {
	out := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		out = append(out, fmt.Sprintf("High %s: %.4g (threshold: %.4g)", a.Metric, a.Value, a.Mean))
	}
	return out
}

// ExtractSignals scans the log corpus for SignalKeywords, case-insensitive,
// and returns the keywords that were found, in SignalKeywords order.
func ExtractSignals(logs []string) []string {
	buf := strings.ToLower(strings.Join(logs, " "))
	var found []string
	for _, kw := range SignalKeywords {
		if strings.Contains(buf, strings.ToLower(kw)) {
			found = append(found, kw)
		}
	}
	return found
}

// OverallSeverity returns the highest-weight severity across anomalies
//; SeverityLow if anomalies is empty.
func OverallSeverity(anomalies []types.Anomaly) types.Severity {
	best := types.SeverityLow
	bestWeight := -1
	for _, a := range anomalies {
		if w := a.Severity.Weight(); w > bestWeight {
			bestWeight = w
			best = a.Severity
		}
	}
	return best
}

type categoryRule struct {
	category    types.PatternCategory
	subcategory string
	keywords    []string
}

// categoryRules is the first-match-wins classification table, evaluated
// in order.
var categoryRules = []categoryRule{
	{types.CategoryKubernetes, "pod", []string{"pod"}},
	{types.CategoryKubernetes, "container", []string{"container"}},
	{types.CategoryKubernetes, "kubelet", []string{"kubelet"}},
	{types.CategoryKubernetes, "node", []string{"node"}},
	{types.CategoryDatabase, "mysql", []string{"mysql"}},
	{types.CategoryDatabase, "postgres", []string{"postgres"}},
	{types.CategoryDatabase, "mongodb", []string{"mongodb"}},
	{types.CategoryDatabase, "redis", []string{"redis"}},
	{types.CategoryDatabase, "connection_pool", []string{"connection pool"}},
	{types.CategoryNetwork, "latency", []string{"latency"}},
	{types.CategoryNetwork, "packet_loss", []string{"packet_loss", "packet loss"}},
	{types.CategoryNetwork, "timeout", []string{"timeout"}},
	{types.CategoryApplication, "error_rate", []string{"error_rate"}},
	{types.CategoryApplication, "5xx", []string{"5xx"}},
	{types.CategoryApplication, "exception", []string{"exception"}},
	{types.CategoryApplication, "cpu", []string{"cpu"}},
	{types.CategoryApplication, "memory", []string{"memory"}},
}

// Categorize scans the log corpus plus
// anomaly metric names for the first matching rule; default to
// (unknown, unknown).
func Categorize(anomalies []types.Anomaly, logs []string) (types.PatternCategory, string) {
	haystack := strings.ToLower(strings.Join(logs, " "))
	for _, a := range anomalies {
		haystack += " " + strings.ToLower(a.Metric)
	}

	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.category, rule.subcategory
			}
		}
	}
	return types.CategoryUnknown, "unknown"
}
