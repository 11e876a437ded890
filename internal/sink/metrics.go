package sink

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hamed0406/reachmon/internal/domain"
)

// Metrics records probe outcomes and transitions as OpenTelemetry instruments.
type Metrics struct {
	results     metric.Int64Counter
	transitions metric.Int64Counter
	latency     metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	results, err := meter.Int64Counter("reachmon.probe.results",
		metric.WithDescription("Number of completed probes"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter("reachmon.transitions",
		metric.WithDescription("Number of target status transitions"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("reachmon.probe.latency",
		metric.WithDescription("Round-trip latency of successful probes"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{results: results, transitions: transitions, latency: latency}, nil
}

func (m *Metrics) RecordResult(ctx context.Context, r domain.ProbeResult) error {
	outcome := "success"
	if !r.Success {
		outcome = string(r.Reason)
	}
	m.results.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target_id", string(r.TargetID)),
		attribute.String("method", string(r.Method)),
		attribute.String("outcome", outcome),
	))
	if ms := r.NullableLatencyMS(); ms != nil {
		m.latency.Record(ctx, *ms, metric.WithAttributes(
			attribute.String("target_id", string(r.TargetID)),
			attribute.String("method", string(r.Method)),
		))
	}
	return nil
}

func (m *Metrics) RecordTransition(ctx context.Context, e domain.TransitionEvent) error {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target_id", string(e.TargetID)),
		attribute.String("to", string(e.To)),
	))
	return nil
}
