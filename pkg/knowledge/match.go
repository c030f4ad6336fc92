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

package knowledge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ai-autopilot/incident-core/pkg/knowledge/jqmatch"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// signalBonus is added to a pattern's raw score for every signal string
// found in the incident's concatenated, lowercased log buffer.
const signalBonus = 0.5

// scorePattern computes the weighted symptom/signal match score.
func scorePattern(p types.IncidentPattern, anomalies []types.Anomaly, lowerLogBuf string) float64 {
	w := p.TotalSymptomWeight()
	if w <= 0 {
		return 0
	}

	var r float64
	for _, s := range p.Symptoms {
		if symptomMatches(s, anomalies, lowerLogBuf) {
			r += s.Weight
		}
	}
	for _, signal := range p.Signals {
		if signal == "" {
			continue
		}
		if strings.Contains(lowerLogBuf, strings.ToLower(signal)) {
			r += signalBonus
		}
	}

	return clampConfidence(r / w * 100)
}

func clampConfidence(c float64) float64 {
	if c > 100 {
		return 100
	}
	if c < 0 {
		return 0
	}
	return c
}

func symptomMatches(s types.Symptom, anomalies []types.Anomaly, lowerLogBuf string) bool {
	// condition: matches is additive to the five built-in conditions: it
	// runs independently of Type against every anomaly in scope, so a
	// user-added pattern can reach fields none of the built-in symptom
	// types expose.
	if s.Condition == types.ConditionMatches {
		for _, a := range anomalies {
			if jqmatch.Matches(s.Value, a) {
				return true
			}
		}
		return false
	}
	switch s.Type {
	case types.SymptomMetric:
		for _, a := range anomalies {
			if a.Metric == s.Name && conditionHolds(s.Condition, a.Value, s.Value) {
				return true
			}
		}
		return false
	case types.SymptomEvent:
		needle := strings.ToLower(s.Name)
		for _, a := range anomalies {
			if strings.Contains(strings.ToLower(anomalyString(a)), needle) {
				return true
			}
		}
		return false
	case types.SymptomLog:
		return strings.Contains(lowerLogBuf, strings.ToLower(s.Name))
	default:
		return false
	}
}

// anomalyString is the representation event symptoms scan for substrings.
func anomalyString(a types.Anomaly) string {
	return fmt.Sprintf("%s %s %.4f severity=%s direction=%s", a.Service, a.Metric, a.Value, a.Severity, a.Direction())
}

// conditionHolds evaluates a metric symptom's above/below/equals condition
// against a.Value, comparing numerically.
func conditionHolds(cond types.SymptomCondition, actual float64, want string) bool {
	switch cond {
	case types.ConditionAbove:
		threshold, err := strconv.ParseFloat(want, 64)
		if err != nil {
			return false
		}
		return actual > threshold
	case types.ConditionBelow:
		threshold, err := strconv.ParseFloat(want, 64)
		if err != nil {
			return false
		}
		return actual < threshold
	case types.ConditionEquals:
		threshold, err := strconv.ParseFloat(want, 64)
		if err != nil {
			return false
		}
		return actual == threshold
	default:
		// contains/matches are not meaningful against a numeric metric
		// value; a metric symptom only ever uses above/below/equals.
		return false
	}
}
