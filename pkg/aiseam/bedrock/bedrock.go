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

// Package bedrock backs the AIAnalyzer seam with a
// Claude model served through AWS Bedrock. It shares the same prompt
// template and gojq-based extraction as pkg/aiseam/anthropic; only the
// transport and wire body differ.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/aiseam"
	sharederrors "github.com/ai-autopilot/incident-core/pkg/shared/errors"
	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// DefaultModelID is used when Config.ModelID is empty.
const DefaultModelID = "anthropic.claude-3-5-sonnet-20241022-v2:0"

// DefaultMaxTokens bounds the reply length.
const DefaultMaxTokens = 2048

// bedrockAnthropicVersion is required on every Claude-on-Bedrock messages
// request body.
const bedrockAnthropicVersion = "bedrock-2023-05-31"

// Config configures a Backend.
type Config struct {
	Region    string
	ModelID   string
	MaxTokens int
}

// Backend implements aiseam.AIAnalyzer against a Claude model hosted on AWS
// Bedrock. Production wiring always wraps it in an aiseam.CircuitBreaker
// before handing it to C5/C6.
type Backend struct {
	client    *bedrockruntime.Client
	modelID   string
	maxTokens int
	log       *zap.Logger
}

// New loads AWS credentials/region via the default config chain (env vars,
// shared config file, EC2/ECS role) and builds a Backend.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var optFns []func(*config.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, sharederrors.FailedTo("load aws config", err)
	}

	modelID := cfg.ModelID
	if modelID == "" {
		modelID = DefaultModelID
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Backend{
		client:    bedrockruntime.NewFromConfig(awsCfg),
		modelID:   modelID,
		maxTokens: maxTokens,
		log:       log,
	}, nil
}

// bedrockMessage is the Claude Messages-API request body Bedrock expects
// for anthropic.* model IDs.
type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockResponse struct {
	Content []bedrockContentBlock `json:"content"`
}

// Analyze implements aiseam.AIAnalyzer.
func (b *Backend) Analyze(ctx context.Context, req aiseam.Request) (types.Analysis, error) {
	prompt, err := aiseam.BuildPrompt(req)
	if err != nil {
		return types.Analysis{}, sharederrors.MalformedInput("build prompt", req.ServiceName, err)
	}

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        b.maxTokens,
		Messages:         []bedrockMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return types.Analysis{}, sharederrors.MalformedInput("marshal bedrock request", req.ServiceName, err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return types.Analysis{}, sharederrors.AnalyzerUnavailable("analyze", req.ServiceName, err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return types.Analysis{}, sharederrors.MalformedInput("decode bedrock response", req.ServiceName,
			fmt.Errorf("unmarshal body: %w", err))
	}
	text := joinText(resp.Content)

	analysis, err := aiseam.ExtractAnalysis(text, req.ServiceName, time.Now())
	if err != nil {
		b.log.Warn("bedrock reply did not parse as the expected analysis shape", logging.NewFields().
			Component("aiseam.bedrock").Operation("analyze").Service(req.ServiceName).Error(err).Zap()...)
		return types.Analysis{}, sharederrors.MalformedInput("parse analysis", req.ServiceName, err)
	}
	return analysis, nil
}

func joinText(blocks []bedrockContentBlock) string {
	var out string
	for _, blk := range blocks {
		if blk.Type == "text" {
			out += blk.Text
		}
	}
	return out
}
