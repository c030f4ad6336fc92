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

// Package tracing installs the process-wide OpenTelemetry tracer and meter
// providers and exposes the span/counter helpers pkg/engine's four worker
// loops and pkg/executor's action execution start against.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ai-autopilot/incident-core"

var actionsExecuted metric.Int64Counter

func init() {
	// Best-effort: the global meter is a delegating proxy, so this is safe
	// to call before Setup installs a real MeterProvider. A failure here
	// only means the counter silently no-ops.
	c, err := meter().Int64Counter(
		"autopilot_actions_executed_total",
		metric.WithDescription("Actions dispatched to an ActionExecutor provider, by action type and outcome"),
	)
	if err == nil {
		actionsExecuted = c
	}
}

// Setup installs the TracerProvider and MeterProvider every span/counter in
// this package reports through. sampleRatio <= 0 leaves otel's default
// no-op providers in place (tracing disabled). The returned func shuts both
// providers down and must be called during process shutdown.
func Setup(serviceName string, sampleRatio float64) (func(context.Context) error, error) {
	if sampleRatio <= 0 {
		return func(context.Context) error { return nil }, nil
	}

	res := resource.NewWithAttributes("", attribute.String("service.name", serviceName))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(sampleRatio)),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := mp.Shutdown(ctx); err != nil {
			return err
		}
		return tp.Shutdown(ctx)
	}, nil
}

func tracer() trace.Tracer { return otel.Tracer(instrumentationName) }
func meter() metric.Meter  { return otel.Meter(instrumentationName) }

// StartLoopSpan starts a span for one unit of work processed by one of
// pkg/engine's four cooperative loops (metric, log, correlate, drain).
func StartLoopSpan(ctx context.Context, loop, service string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "engine.loop."+loop, trace.WithAttributes(
		attribute.String("loop", loop),
		attribute.String("service", service),
	))
}

// StartActionSpan starts a span around one ActionExecutor provider
// dispatch.
func StartActionSpan(ctx context.Context, actionType, service string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "executor.execute", trace.WithAttributes(
		attribute.String("action_type", actionType),
		attribute.String("service", service),
	))
}

// End finalizes span, recording err as a span error/status when non-nil.
// Every StartLoopSpan/StartActionSpan call must be paired with End.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordActionExecuted increments the actions-executed counter, tagged by
// actionType and success.
func RecordActionExecuted(ctx context.Context, actionType string, success bool) {
	if actionsExecuted == nil {
		return
	}
	actionsExecuted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action_type", actionType),
		attribute.Bool("success", success),
	))
}
