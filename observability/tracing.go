package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/grantrelay"

// Tracer provides OpenTelemetry tracing for grantrelay.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return NewTracerWithProvider(otel.GetTracerProvider())
}

// NewTracerWithProvider creates a tracer from an explicit provider.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(tracerName),
	}
}

// StartDeliverSpan starts a span for one delivery attempt of a record.
func (t *Tracer) StartDeliverSpan(ctx context.Context, recordID, operation, principal string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "grantrelay.deliver",
		trace.WithAttributes(
			attribute.String("grantrelay.record_id", recordID),
			attribute.String("grantrelay.operation", operation),
			attribute.String("grantrelay.principal", principal),
		),
	)
}

// EndDeliverSpan ends a delivery span with its outcome.
func (t *Tracer) EndDeliverSpan(span trace.Span, outcome string, latencyMs int64, err error) {
	span.SetAttributes(
		attribute.String("grantrelay.outcome", outcome),
		attribute.Int64("grantrelay.latency_ms", latencyMs),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartSweepSpan starts a span covering one sweep.
func (t *Tracer) StartSweepSpan(ctx context.Context, trigger string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "grantrelay.sweep",
		trace.WithAttributes(attribute.String("grantrelay.trigger", trigger)),
	)
}

// EndSweepSpan ends a sweep span with its counters.
func (t *Tracer) EndSweepSpan(span trace.Span, listed, delivered, discarded, retried int, err error) {
	span.SetAttributes(
		attribute.Int("grantrelay.listed", listed),
		attribute.Int("grantrelay.delivered", delivered),
		attribute.Int("grantrelay.discarded", discarded),
		attribute.Int("grantrelay.retried", retried),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
