package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "leaseforge"

// StartLeaseSpan starts a span for a lease operation such as "transition" or "sign".
func StartLeaseSpan(ctx context.Context, op, leaseID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "lease."+op,
		trace.WithAttributes(
			attribute.String("lease.id", leaseID),
			attribute.String("lease.op", op),
		),
	)
}

// StartSweepSpan starts a span for one expiry sweep.
func StartSweepSpan(ctx context.Context, batchSize int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "expiry.sweep",
		trace.WithAttributes(attribute.Int("sweep.batch_size", batchSize)),
	)
}

// StartNotifySpan starts a span for delivery through one notifier.
func StartNotifySpan(ctx context.Context, channel, leaseID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "notify",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("notify.channel", channel),
			attribute.String("lease.id", leaseID),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
