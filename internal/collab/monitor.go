package collab

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Monitor emits one span and a handful of counters per extraction or
// ordering step, scoped by relation identifier.
type Monitor struct {
	tracer trace.Tracer
	steps  metric.Int64Counter
	failed metric.Int64Counter
	bytes  metric.Int64Counter
}

// NewMonitor wires a Monitor off the global otel providers. Callers install
// whichever exporter they want (stdout, OTLP, …) via otel.SetTracerProvider
// / otel.SetMeterProvider before calling this.
func NewMonitor() (*Monitor, error) {
	meter := otel.Meter("etl-core")

	steps, err := meter.Int64Counter("etl_core.steps_total",
		metric.WithDescription("relation ordering or extraction steps completed"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("etl_core.failures_total",
		metric.WithDescription("extraction failures, required and non-required"))
	if err != nil {
		return nil, err
	}
	extractedBytes, err := meter.Int64Counter("etl_core.bytes_extracted_total",
		metric.WithDescription("bytes reported by the upstream source size probe"))
	if err != nil {
		return nil, err
	}

	return &Monitor{
		tracer: otel.Tracer("etl-core"),
		steps:  steps,
		failed: failed,
		bytes:  extractedBytes,
	}, nil
}

// StepSpan starts a span for one named step (e.g. "order", "extract") on a
// given relation identifier, returning the derived context and a finish
// function the caller defers. The finish function takes the error the step
// produced, if any, and records span status plus the step counter.
func (m *Monitor) StepSpan(ctx context.Context, step, identifier string) (context.Context, func(error)) {
	ctx, span := m.tracer.Start(ctx, step, trace.WithAttributes(
		attribute.String("etl.relation", identifier),
	))
	start := time.Now()
	return ctx, func(err error) {
		defer span.End()
		m.steps.Add(ctx, 1,
			metric.WithAttributes(attribute.String("step", step), attribute.Bool("ok", err == nil)))
		span.SetAttributes(attribute.Int64("duration_ms", time.Since(start).Milliseconds()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
}

// RecordFailure increments the failure counter for a source/relation pair,
// tagged by whether the failing relation was in the required closure.
func (m *Monitor) RecordFailure(ctx context.Context, sourceName, identifier string, required bool) {
	m.failed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", sourceName),
		attribute.String("relation", identifier),
		attribute.Bool("required", required),
	))
}

// RecordBytes records the size probed for one upstream table, used to size
// its extraction partitioning.
func (m *Monitor) RecordBytes(ctx context.Context, identifier string, n int64) {
	m.bytes.Add(ctx, n, metric.WithAttributes(attribute.String("relation", identifier)))
}
