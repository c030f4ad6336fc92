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

// Package aiseam defines the opaque AIAnalyzer collaborator the core
// consults for a root-cause assessment it cannot derive
// deterministically. Concrete backends live in pkg/aiseam/anthropic and
// pkg/aiseam/bedrock; both are wrapped in CircuitBreaker before being handed
// to C5.
package aiseam

import (
	"context"
	"time"

	"github.com/ai-autopilot/incident-core/pkg/types"
)

// AnalyzeDeadline is the default bound on an AIAnalyzer.Analyze call.
const AnalyzeDeadline = 120 * time.Second

// FallbackConfidenceCap is the maximum confidence a seam may report when it
// falls back after an error.
const FallbackConfidenceCap = 50.0

// Request bundles the evidence handed to the AI seam.
type Request struct {
	ServiceName string
	Anomalies   []types.Anomaly
	Logs        []string
	Deployments []string
}

// AIAnalyzer is the seam IncidentAnalyzer (C5) and AutonomousExecutor (C6)
// consult for an AI-derived root cause and action ranking.
type AIAnalyzer interface {
	Analyze(ctx context.Context, req Request) (types.Analysis, error)
}

// Fallback builds the structured degraded-mode Analysis returned whenever
// a seam implementation cannot produce a real answer.
func Fallback(req Request, reason string) types.Analysis {
	return types.Analysis{
		RootCause: types.RootCause{
			Description: "AI analysis unavailable — falling back to heuristic assessment",
			Confidence:  30,
			Reasoning:   reason,
		},
		Severity:   severityOf(req.Anomalies),
		Service:    req.ServiceName,
		AnalyzedAt: time.Now(),
	}
}

func severityOf(anomalies []types.Anomaly) types.Severity {
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
