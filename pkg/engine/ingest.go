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

// Package engine wires C1 through C10 into the four cooperative worker
// loops of the incident pipeline (metric poller, log poller, anomaly
// correlator, approved-action drainer) and the ingestion queues that feed
// them. HTTP ingestion itself is out of scope; Ingestor is
// the narrow seam an external collaborator pushes samples through.
package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ai-autopilot/incident-core/pkg/store"
)

// MaxRecentLogs bounds the per-service recent-log ring buffer the
// correlator reads for symptom/signal matching.
const MaxRecentLogs = 200

// RecentLogsTTL bounds the lifetime of the recent-log ring buffer,
// mirroring the anomaly ring buffer's retention policy.
const RecentLogsTTL = 24 * time.Hour

func metricsQueueKey() string             { return "ingest:metrics" }
func logsQueueKey() string                { return "ingest:logs" }
func deploymentsQueueKey() string         { return "ingest:deployments" }
func recentLogsKey(service string) string { return "recent_logs:" + service }

// MetricSample is one (service, metric, value) observation queued for C2.
type MetricSample struct {
	Service string    `json:"service"`
	Metric  string    `json:"metric"`
	Value   float64   `json:"value"`
	At      time.Time `json:"at"`
}

// LogLine is one raw log line queued for correlation against C3's log-type
// symptoms and the signal-keyword scan.
type LogLine struct {
	Service string    `json:"service"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// DeploymentRecord is one deployment event queued so the AnomalyDetector
// can correlate anomalies against it.
type DeploymentRecord struct {
	Service string    `json:"service"`
	Version string    `json:"version"`
	At      time.Time `json:"at"`
}

// Ingestor is the write side of the engine's ingestion queues. An external
// ingestion endpoint (an external collaborator) is expected to call
// these; the engine's poll loops are the only readers.
type Ingestor struct {
	store store.KeyValueStore
}

// NewIngestor constructs an Ingestor backed by s.
func NewIngestor(s store.KeyValueStore) *Ingestor {
	return &Ingestor{store: s}
}

// PushMetric enqueues a metric sample for L1 to drain.
func (in *Ingestor) PushMetric(ctx context.Context, s MetricSample) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return in.store.LPush(ctx, metricsQueueKey(), raw)
}

// PushLog enqueues a log line for L2 to drain.
func (in *Ingestor) PushLog(ctx context.Context, l LogLine) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return in.store.LPush(ctx, logsQueueKey(), raw)
}

// PushDeployment enqueues a deployment event for L1 to drain into C2's
// deployment correlation index.
func (in *Ingestor) PushDeployment(ctx context.Context, d DeploymentRecord) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return in.store.LPush(ctx, deploymentsQueueKey(), raw)
}
