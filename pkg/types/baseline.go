// Package types holds the value records shared across every component of
// the incident-response pipeline. Records here are immutable unless their
// doc comment says otherwise; components read and write them only through
// the KeyValueStore (pkg/store) interface.
package types

import "time"

// MaxBaselineValues bounds the retained sample window for a Baseline.
const MaxBaselineValues = 1000

// BaselineWarmupCount is the minimum sample count before the detector will
// emit anomalies for a (service, metric) pair.
const BaselineWarmupCount = 10

// Baseline is the rolling mean/stddev window for one (service, metric) pair.
// Mutated exclusively by the AnomalyDetector (pkg/detection).
type Baseline struct {
	Service   string    `json:"service"`
	Metric    string    `json:"metric"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"stddev"`
	Count     int       `json:"count"`
	Values    []float64 `json:"values"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BaselineTTL is the inactivity window after which a Baseline is dropped.
const BaselineTTL = 7 * 24 * time.Hour
