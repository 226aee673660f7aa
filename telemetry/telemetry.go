// Package telemetry wraps the OpenTelemetry tracer and meter the engine
// reports through. Without a host-installed provider everything is a no-op.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "sunnyflow"

// Outcomes recorded on every invocation.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type Instruments struct {
	tracer   trace.Tracer
	ops      metric.Int64Counter
	duration metric.Float64Histogram
}

// New builds instruments from the given providers, falling back to the
// global ones when nil.
func New(tp trace.TracerProvider, mp metric.MeterProvider) (*Instruments, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	ops, err := meter.Int64Counter("sunnyflow.operations",
		metric.WithDescription("Invocations processed by operation and outcome"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("sunnyflow.operation.duration",
		metric.WithDescription("Invocation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &Instruments{
		tracer:   tp.Tracer(instrumentationName),
		ops:      ops,
		duration: duration,
	}, nil
}

// Track opens a span for one invocation. The returned func closes it with
// the outcome and the error, if any.
func (i *Instruments) Track(ctx context.Context, operation string) (context.Context, func(outcome string, err error)) {
	start := time.Now()
	ctx, span := i.tracer.Start(ctx, "sunnyflow."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("sunnyflow.operation", operation)),
	)

	return ctx, func(outcome string, err error) {
		attrs := metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		)
		i.ops.Add(ctx, 1, attrs)
		i.duration.Record(ctx, time.Since(start).Seconds(), attrs)

		span.SetAttributes(attribute.String("sunnyflow.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			if outcome == OutcomeFailed {
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
	}
}
