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
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	sharederrors "github.com/ai-autopilot/incident-core/pkg/shared/errors"
	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// CircuitBreaker wraps an AIAnalyzer backend with a gobreaker circuit so
// repeated seam failures trip AnalyzerUnavailable fast instead of blocking
// the analysis pipeline on every incident.
type CircuitBreaker struct {
	backend AIAnalyzer
	cb      *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewCircuitBreaker wraps backend. name identifies the breaker in metrics
// and logs (e.g. "anthropic", "bedrock").
func NewCircuitBreaker(name string, backend AIAnalyzer, log *zap.Logger) *CircuitBreaker {
	if log == nil {
		log = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        "aiseam:" + name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(n string, from, to gobreaker.State) {
			log.Warn("ai seam circuit breaker state change", logging.NewFields().
				Component("aiseam").Operation("state_change").Resource("breaker", n).Zap()...)
		},
	}
	return &CircuitBreaker{backend: backend, cb: gobreaker.NewCircuitBreaker(settings), log: log}
}

// Analyze implements AIAnalyzer, degrading to the structured fallback on a
// breaker trip, timeout, or backend error.
func (c *CircuitBreaker) Analyze(ctx context.Context, req Request) (types.Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, AnalyzeDeadline)
	defer cancel()

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.backend.Analyze(ctx, req)
	})
	if err != nil {
		c.log.Warn("ai seam call failed, returning fallback analysis", logging.NewFields().
			Component("aiseam").Operation("analyze").Service(req.ServiceName).
			Error(sharederrors.AnalyzerUnavailable("analyze", req.ServiceName, err)).Zap()...)
		return Fallback(req, err.Error()), nil
	}
	return result.(types.Analysis), nil
}
