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

// Package anthropic backs the AIAnalyzer seam with the
// Anthropic Messages API. The prompt is built once by pkg/aiseam.BuildPrompt
// and the reply is parsed with pkg/aiseam.ExtractAnalysis, so a change to
// the shared prompt/extraction contract never needs to touch this file.
package anthropic

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/aiseam"
	sharederrors "github.com/ai-autopilot/incident-core/pkg/shared/errors"
	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = anthropic.ModelClaude3_7SonnetLatest

// DefaultMaxTokens bounds the reply so a verbose model can't blow past the
// AnalyzeDeadline on token generation alone.
const DefaultMaxTokens = 2048

// Config configures a Backend.
type Config struct {
	APIKey    string
	Model     anthropic.Model
	MaxTokens int64
}

// Backend implements aiseam.AIAnalyzer against the Anthropic API directly.
// Production wiring always wraps it in an aiseam.CircuitBreaker before
// handing it to C5/C6.
type Backend struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       *zap.Logger
}

// New builds a Backend from cfg. An empty APIKey relies on the
// ANTHROPIC_API_KEY environment variable, matching the SDK's own default
// option resolution.
func New(cfg Config, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Backend{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		log:       log,
	}
}

// Analyze implements aiseam.AIAnalyzer.
func (b *Backend) Analyze(ctx context.Context, req aiseam.Request) (types.Analysis, error) {
	prompt, err := aiseam.BuildPrompt(req)
	if err != nil {
		return types.Analysis{}, sharederrors.MalformedInput("build prompt", req.ServiceName, err)
	}

	msg, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: b.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return types.Analysis{}, sharederrors.AnalyzerUnavailable("analyze", req.ServiceName, err)
	}

	text := extractText(msg)
	analysis, err := aiseam.ExtractAnalysis(text, req.ServiceName, time.Now())
	if err != nil {
		b.log.Warn("anthropic reply did not parse as the expected analysis shape", logging.NewFields().
			Component("aiseam.anthropic").Operation("analyze").Service(req.ServiceName).Error(err).Zap()...)
		return types.Analysis{}, sharederrors.MalformedInput("parse analysis", req.ServiceName, err)
	}
	return analysis, nil
}

func extractText(msg *anthropic.Message) string {
	if msg == nil {
		return ""
	}
	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}
