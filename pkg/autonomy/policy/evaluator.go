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

// Package policy expresses two of AutonomousExecutor's six safety rails
// as a declarative rego policy, evaluated in-process via
// OPA's Go embedding. The remaining four rails are simple enough to stay
// as plain Go (pkg/autonomy/safety.go); these two are data-driven tables
// that read more naturally as policy than as a switch statement.
package policy

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
)

// Config configures an Evaluator.
type Config struct {
	// PolicyPath points at a .rego file on disk. When empty,
	// DefaultPolicySource (the compiled-in safety_rails.rego) is used.
	PolicyPath string
}

// Input is the proposed-action context handed to the policy for rules 3
// and 6.
type Input struct {
	ActionType          string  `json:"action_type"`
	ExecutionsLastHour  int     `json:"executions_last_hour"`
	BlastRadiusScore    float64 `json:"blast_radius_score"`
}

// Result is the policy's verdict.
type Result struct {
	Allow     bool
	VetoReason string
	// Degraded reports that the policy could not be loaded/compiled and
	// the evaluator fell back to default-deny.
	Degraded bool
}

// Evaluator loads and evaluates the safety-rail rego policy. It is safe
// for concurrent use; the compiled query is swapped atomically on reload.
type Evaluator struct {
	cfg     Config
	log     *zap.Logger
	query   atomic.Pointer[rego.PreparedEvalQuery]
	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewEvaluator constructs an Evaluator. Call StartHotReload to load the
// policy (and, if cfg.PolicyPath is set, watch it for changes).
func NewEvaluator(cfg Config, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{cfg: cfg, log: log}
}

// StartHotReload performs the initial policy load and, when cfg.PolicyPath
// is a real file, starts an fsnotify watch that recompiles on every
// write. A missing or invalid policy is not a startup error — Evaluate
// degrades to default-deny instead.
func (e *Evaluator) StartHotReload(ctx context.Context) error {
	e.reload(ctx)

	if e.cfg.PolicyPath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		e.log.Warn("failed to start policy watcher, hot-reload disabled", logging.NewFields().
			Component("autonomy.policy").Operation("start_hot_reload").Error(err).Zap()...)
		return nil
	}
	if err := watcher.Add(e.cfg.PolicyPath); err != nil {
		watcher.Close()
		return nil
	}
	e.watcher = watcher
	go e.watchLoop(ctx)
	return nil
}

func (e *Evaluator) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.watcher.Close()
			return
		case ev, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				e.reload(ctx)
			}
		case <-e.watcher.Errors:
		}
	}
}

func (e *Evaluator) reload(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	src := DefaultPolicySource
	if e.cfg.PolicyPath != "" {
		b, err := os.ReadFile(e.cfg.PolicyPath)
		if err != nil {
			e.log.Warn("safety policy file unreadable, evaluator will degrade", logging.NewFields().
				Component("autonomy.policy").Operation("reload").Resource("policy", e.cfg.PolicyPath).Error(err).Zap()...)
			e.query.Store(nil)
			return
		}
		src = string(b)
	}

	prepared, err := rego.New(
		rego.Query("data.autopilot.safety"),
		rego.Module("safety_rails.rego", src),
	).PrepareForEval(ctx)
	if err != nil {
		e.log.Warn("safety policy failed to compile, evaluator will degrade", logging.NewFields().
			Component("autonomy.policy").Operation("reload").Error(err).Zap()...)
		e.query.Store(nil)
		return
	}
	e.query.Store(&prepared)
}

// Evaluate runs the compiled policy against in. A nil/degraded policy
// (missing file, compile error) evaluates to default-deny, never an error
// — the safety rails must fail closed, not crash the proposal path.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) Result {
	q := e.query.Load()
	if q == nil {
		return Result{Allow: false, VetoReason: "safety policy unavailable, defaulting to deny", Degraded: true}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	rs, err := q.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"action_type":          in.ActionType,
		"executions_last_hour": in.ExecutionsLastHour,
		"blast_radius_score":   in.BlastRadiusScore,
	}))
	if err != nil || len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Result{Allow: false, VetoReason: "safety policy evaluation failed, defaulting to deny", Degraded: true}
	}

	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Result{Allow: false, VetoReason: "safety policy returned an unexpected shape, defaulting to deny", Degraded: true}
	}
	allow, _ := doc["allow"].(bool)
	reason, _ := doc["veto_reason"].(string)
	return Result{Allow: allow, VetoReason: reason}
}
