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
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// analysisPromptText is shared by every concrete backend: it asks the
// model for a root-cause assessment in the exact JSON shape types.Analysis
// expects, so the gojq extraction in each backend has a consistent
// document to query.
const analysisPromptText = `You are an SRE incident analyst. Given the signals below for service
"{{.service}}", return ONLY a JSON object (no prose, no markdown fences) with this shape:

{
  "rootCause": {"description": "...", "confidence": 0-100, "reasoning": "..."},
  "contributingFactors": ["..."],
  "recommendedActions": [
    {"action": "...", "reasoning": "...", "risk": "low|medium|high", "expectedImpact": "...", "priority": 1-5}
  ],
  "preventiveMeasures": ["..."],
  "severity": "low|medium|high|critical",
  "estimatedCustomerImpact": "..."
}

Anomalies:
{{.anomalies}}

Recent log excerpts:
{{.logs}}

Recent deployments:
{{.deployments}}
`

// promptTemplate is built once at package init; PromptTemplate.Format is
// safe for concurrent use.
var promptTemplate = prompts.PromptTemplate{
	Template:       analysisPromptText,
	TemplateFormat: prompts.TemplateFormatGoTemplate,
	InputVariables: []string{"service", "anomalies", "logs", "deployments"},
}

// BuildPrompt renders the shared analysis prompt for req. Both the
// anthropic and bedrock backends call this so a prompt-shape change only
// has to happen once.
func BuildPrompt(req Request) (string, error) {
	anomalies := "none reported"
	if len(req.Anomalies) > 0 {
		lines := make([]string, 0, len(req.Anomalies))
		for _, a := range req.Anomalies {
			lines = append(lines, fmt.Sprintf("- metric=%s value=%.2f mean=%.2f zScore=%.2f severity=%s (%s baseline)",
				a.Metric, a.Value, a.Mean, a.ZScore, a.Severity, a.Direction()))
		}
		anomalies = strings.Join(lines, "\n")
	}
	logs := "none captured"
	if len(req.Logs) > 0 {
		logs = strings.Join(req.Logs, "\n")
	}
	deployments := "none recorded"
	if len(req.Deployments) > 0 {
		deployments = strings.Join(req.Deployments, "\n")
	}

	return promptTemplate.Format(map[string]interface{}{
		"service":     req.ServiceName,
		"anomalies":   anomalies,
		"logs":        logs,
		"deployments": deployments,
	})
}
