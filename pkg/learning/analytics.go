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

package learning

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ai-autopilot/incident-core/pkg/types"
)

// ActionAnalyticsWindow bounds how much of the global timeline a rollup
// scans; the timeline itself is already capped at MaxOutcomesTimeline, so
// this just avoids re-decoding the whole thing when only recent history is
// needed.
const ActionAnalyticsWindow = 2000

// ActionAnalytics computes a read-only rollup over the most recent outcomes
// for actionKey (actionCategory:actionType), supplementing the per-action
// EMA with trend rollups (see DESIGN.md).
// It carries no mutation authority; RecordOutcome is the only writer of the
// underlying timeline.
func (e *Engine) ActionAnalytics(ctx context.Context, actionKey string) (types.ActionAnalytics, error) {
	raws, err := e.store.LRange(ctx, timelineKey(), 0, ActionAnalyticsWindow-1)
	if err != nil {
		return types.ActionAnalytics{}, err
	}

	var (
		total, successes     int
		durationSum          float64
		lastExecutedAt       time.Time
		recentTotal, recentS int
		priorTotal, priorS   int
	)
	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	priorCutoff := cutoff.Add(-7 * 24 * time.Hour)

	for _, raw := range raws {
		var o types.LearningOutcome
		if jsonErr := json.Unmarshal(raw, &o); jsonErr != nil {
			continue
		}
		if o.ActionCategory+":"+o.ActionType != actionKey {
			continue
		}
		total++
		durationSum += o.ExecutionSeconds
		if o.Success {
			successes++
		}
		if o.Timestamp.After(lastExecutedAt) {
			lastExecutedAt = o.Timestamp
		}
		switch {
		case o.Timestamp.After(cutoff):
			recentTotal++
			if o.Success {
				recentS++
			}
		case o.Timestamp.After(priorCutoff):
			priorTotal++
			if o.Success {
				priorS++
			}
		}
	}

	out := types.ActionAnalytics{ActionKey: actionKey, TotalExecutions: total, LastExecutedAt: lastExecutedAt}
	if total > 0 {
		out.SuccessRate = float64(successes) / float64(total)
		out.AvgDurationSeconds = durationSum / float64(total)
	}
	if recentTotal > 0 && priorTotal > 0 {
		out.Trend7d = float64(recentS)/float64(recentTotal) - float64(priorS)/float64(priorTotal)
	}
	return out, nil
}
