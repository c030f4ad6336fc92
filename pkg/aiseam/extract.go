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

package aiseam

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/itchyny/gojq"

	"github.com/ai-autopilot/incident-core/pkg/types"
)

// field queries are compiled once (package init) rather than per-call, and
// use "// empty"/"// 0" defaults so a field the model omits or nests
// differently yields a zero value instead of an extraction error — a
// prompt-shape drift degrades the analysis, it never panics the caller.
var fieldQueries = compileQueries(map[string]string{
	"rootCause.description": `.rootCause.description // empty`,
	"rootCause.confidence":  `.rootCause.confidence // 0`,
	"rootCause.reasoning":   `.rootCause.reasoning // empty`,
	"contributingFactors":   `.contributingFactors // []`,
	"recommendedActions":    `.recommendedActions // []`,
	"preventiveMeasures":    `.preventiveMeasures // []`,
	"severity":              `.severity // "low"`,
	"customerImpact":        `.estimatedCustomerImpact // empty`,
})

func compileQueries(raw map[string]string) map[string]*gojq.Query {
	out := make(map[string]*gojq.Query, len(raw))
	for name, q := range raw {
		parsed, err := gojq.Parse(q)
		if err != nil {
			// Programmer error in a literal above; fail loudly at init
			// rather than silently mis-extracting at runtime.
			panic(fmt.Sprintf("aiseam: invalid gojq query %q for %s: %v", q, name, err))
		}
		out[name] = parsed
	}
	return out
}

func runQuery(q *gojq.Query, doc interface{}) (interface{}, bool) {
	iter := q.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return nil, false
	}
	if _, isErr := v.(error); isErr {
		return nil, false
	}
	return v, true
}

func queryString(q *gojq.Query, doc interface{}) string {
	v, ok := runQuery(q, doc)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func queryFloat(q *gojq.Query, doc interface{}) float64 {
	v, ok := runQuery(q, doc)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

// ExtractAnalysis parses a model's raw text reply as JSON and pulls out a
// types.Analysis using the compiled gojq queries above, so a reply that
// wraps the JSON in prose or renames a nested field still yields a usable
// (if partial) Analysis rather than a hard parse failure. service and now
// fill in Service/AnalyzedAt, which the model is not asked to produce.
func ExtractAnalysis(raw, service string, now time.Time) (types.Analysis, error) {
	doc, err := decodeJSONObject(raw)
	if err != nil {
		return types.Analysis{}, err
	}

	analysis := types.Analysis{
		RootCause: types.RootCause{
			Description: queryString(fieldQueries["rootCause.description"], doc),
			Confidence:  queryFloat(fieldQueries["rootCause.confidence"], doc),
			Reasoning:   queryString(fieldQueries["rootCause.reasoning"], doc),
		},
		Severity:                types.Severity(strings.ToLower(queryString(fieldQueries["severity"], doc))),
		EstimatedCustomerImpact: queryString(fieldQueries["customerImpact"], doc),
		Service:                 service,
		AnalyzedAt:              now,
	}
	if v, ok := runQuery(fieldQueries["contributingFactors"], doc); ok {
		analysis.ContributingFactors = toStringSlice(v)
	}
	if v, ok := runQuery(fieldQueries["preventiveMeasures"], doc); ok {
		analysis.PreventiveMeasures = toStringSlice(v)
	}
	if v, ok := runQuery(fieldQueries["recommendedActions"], doc); ok {
		analysis.RecommendedActions = toRecommendedActions(v)
	}
	if analysis.Severity == "" {
		analysis.Severity = types.SeverityLow
	}
	return analysis, nil
}

// decodeJSONObject tolerates a reply that wraps the JSON object in prose or
// markdown code fences by extracting the outermost {...} span before
// unmarshalling.
func decodeJSONObject(raw string) (interface{}, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("aiseam: no JSON object found in reply")
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &doc); err != nil {
		return nil, fmt.Errorf("aiseam: decode reply: %w", err)
	}
	return doc, nil
}

func toStringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toRecommendedActions(v interface{}) []types.AIRecommendedAction {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]types.AIRecommendedAction, 0, len(arr))
	for _, e := range arr {
		m, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		priority := 5
		if p, ok := m["priority"].(float64); ok {
			priority = int(p)
		}
		out = append(out, types.AIRecommendedAction{
			Action:         stringField(m, "action"),
			Reasoning:      stringField(m, "reasoning"),
			Risk:           types.Risk(stringField(m, "risk")),
			ExpectedImpact: stringField(m, "expectedImpact"),
			Priority:       priority,
		})
	}
	return out
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
