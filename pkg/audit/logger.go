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

// Package audit implements C10, the DecisionLogger: the structured,
// queryable audit trail for every autonomous decision.
package audit

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	sharederrors "github.com/ai-autopilot/incident-core/pkg/shared/errors"
	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/store"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

var errDecisionNotFound = errors.New("decision log not found")

// Logger implements the DecisionLogger component.
type Logger struct {
	store store.KeyValueStore
	log   *zap.Logger
}

// New constructs a Logger backed by s.
func New(s store.KeyValueStore, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{store: s, log: log}
}

func decisionKey(id string) string           { return "decision_log:" + id }
func decisionsByServiceKey(svc string) string { return "decision_logs:" + svc }
func decisionsTimelineKey() string            { return "decision_logs:timeline" }

// Log persists dl by decisionID, and indexes it by service and in the
// global timeline.
func (l *Logger) Log(ctx context.Context, dl *types.DecisionLog) error {
	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()

	raw, err := json.Marshal(dl)
	if err != nil {
		return err
	}
	if err := l.store.Set(ctx, decisionKey(dl.DecisionID), raw, types.DecisionLogTTL); err != nil {
		return err
	}
	if err := store.LPushCapped(ctx, l.store, decisionsByServiceKey(dl.Service), []byte(dl.DecisionID), types.MaxDecisionLogsPerService); err != nil {
		l.log.Warn("failed to index decision log by service", logging.NewFields().
			Component("audit").Operation("log").Service(dl.Service).Resource("decision", dl.DecisionID).Error(err).Zap()...)
	}
	if err := store.LPushCapped(ctx, l.store, decisionsTimelineKey(), []byte(dl.DecisionID), types.MaxDecisionLogsTimeline); err != nil {
		l.log.Warn("failed to index decision log in the global timeline", logging.NewFields().
			Component("audit").Operation("log").Resource("decision", dl.DecisionID).Error(err).Zap()...)
	}
	return nil
}

// Get loads a single DecisionLog by ID.
func (l *Logger) Get(ctx context.Context, decisionID string) (*types.DecisionLog, error) {
	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()

	raw, err := l.store.Get(ctx, decisionKey(decisionID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, sharederrors.InvalidState("get", decisionID, errDecisionNotFound)
	}
	var dl types.DecisionLog
	if err := json.Unmarshal(raw, &dl); err != nil {
		return nil, sharederrors.MalformedInput("get", decisionID, err)
	}
	return &dl, nil
}

// UpdateOutcome replaces the decision's outcome label in place:
// both index lists already carry the decisionID, so only the keyed
// record itself is rewritten.
func (l *Logger) UpdateOutcome(ctx context.Context, decisionID, outcome string) error {
	dl, err := l.Get(ctx, decisionID)
	if err != nil {
		return err
	}
	dl.Outcome = outcome

	ctx, cancel := store.WithDefaultDeadline(ctx)
	defer cancel()

	raw, err := json.Marshal(dl)
	if err != nil {
		return err
	}
	return l.store.Set(ctx, decisionKey(decisionID), raw, types.DecisionLogTTL)
}

// RecentByService returns up to limit of the most recent decision logs for
// service, newest first.
func (l *Logger) RecentByService(ctx context.Context, service string, limit int64) ([]types.DecisionLog, error) {
	return l.loadList(ctx, decisionsByServiceKey(service), limit)
}

// RecentTimeline returns up to limit of the most recent decision logs
// across every service, newest first.
func (l *Logger) RecentTimeline(ctx context.Context, limit int64) ([]types.DecisionLog, error) {
	return l.loadList(ctx, decisionsTimelineKey(), limit)
}

func (l *Logger) loadList(ctx context.Context, key string, limit int64) ([]types.DecisionLog, error) {
	ids, err := l.store.LRange(ctx, key, 0, limit-1)
	if err != nil {
		return nil, err
	}
	out := make([]types.DecisionLog, 0, len(ids))
	for _, raw := range ids {
		dl, err := l.Get(ctx, string(raw))
		if err != nil {
			continue // MalformedInput / race with TTL expiry: skip, never abort
		}
		out = append(out, *dl)
	}
	return out, nil
}
