package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "leaseforge"

// Metrics holds all LeaseForge metric instruments.
type Metrics struct {
	Transitions         metric.Int64Counter
	Signatures          metric.Int64Counter
	ChangeRequests      metric.Int64Counter
	NotificationsFailed metric.Int64Counter
	ExpirySwept         metric.Int64Counter
	Conflicts           metric.Int64Counter
	SweepDuration       metric.Float64Histogram
}

// NewMetrics creates all metric instruments against the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Transitions, err = meter.Int64Counter("leaseforge.transitions",
		metric.WithDescription("Number of committed lease status transitions"))
	if err != nil {
		return nil, err
	}

	m.Signatures, err = meter.Int64Counter("leaseforge.signatures",
		metric.WithDescription("Number of recorded signatures"))
	if err != nil {
		return nil, err
	}

	m.ChangeRequests, err = meter.Int64Counter("leaseforge.change_requests",
		metric.WithDescription("Number of tenant change requests"))
	if err != nil {
		return nil, err
	}

	m.NotificationsFailed, err = meter.Int64Counter("leaseforge.notifications.failed",
		metric.WithDescription("Number of notifications that could not be delivered"))
	if err != nil {
		return nil, err
	}

	m.ExpirySwept, err = meter.Int64Counter("leaseforge.expiry.swept",
		metric.WithDescription("Number of leases moved to expired by the sweeper"))
	if err != nil {
		return nil, err
	}

	m.Conflicts, err = meter.Int64Counter("leaseforge.conflicts",
		metric.WithDescription("Number of writes rejected for a stale version"))
	if err != nil {
		return nil, err
	}

	m.SweepDuration, err = meter.Float64Histogram("leaseforge.expiry.duration_seconds",
		metric.WithDescription("Expiry sweep duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTransition counts a committed transition. Safe on a nil receiver.
func (m *Metrics) RecordTransition(ctx context.Context, from, to, trigger string) {
	if m == nil {
		return
	}
	m.Transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("trigger", trigger),
	))
}

// RecordSignature counts a recorded signature by party.
func (m *Metrics) RecordSignature(ctx context.Context, party string) {
	if m == nil {
		return
	}
	m.Signatures.Add(ctx, 1, metric.WithAttributes(attribute.String("party", party)))
}

// RecordChangeRequest counts a tenant change request.
func (m *Metrics) RecordChangeRequest(ctx context.Context) {
	if m == nil {
		return
	}
	m.ChangeRequests.Add(ctx, 1)
}

// RecordNotificationFailure counts a failed notification by channel.
func (m *Metrics) RecordNotificationFailure(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.NotificationsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

// RecordConflict counts a stale-version rejection by operation.
func (m *Metrics) RecordConflict(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.Conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordSweep records one completed expiry sweep.
func (m *Metrics) RecordSweep(ctx context.Context, expired int, seconds float64) {
	if m == nil {
		return
	}
	m.ExpirySwept.Add(ctx, int64(expired))
	m.SweepDuration.Record(ctx, seconds)
}
