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

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters served by cmd/autopilotd's /metrics endpoint. Registered on the
// default registry so the promhttp handler picks them up without extra
// wiring.
var (
	anomaliesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopilot_anomalies_detected_total",
		Help: "Metric samples that crossed the z-score gate and produced an anomaly.",
	})

	incidentsComposed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopilot_incidents_created_total",
		Help: "Incidents composed by the correlator loop.",
	})
)
