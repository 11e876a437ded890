package sink

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/hamed0406/reachmon/internal/domain"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func TestMetrics_RecordsCountersAndLatency(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()

	_ = m.RecordResult(ctx, domain.Succeeded(testTarget, time.Now(), 12*time.Millisecond))
	_ = m.RecordResult(ctx, domain.Failed(testTarget, time.Now(), domain.ReasonTimeout, ""))
	_ = m.RecordTransition(ctx, domain.TransitionEvent{TargetID: "t1", From: domain.StatusUnknown, To: domain.StatusUp})

	rm := collect(t, reader)

	results := findMetric(rm, "reachmon.probe.results")
	if results == nil {
		t.Fatalf("reachmon.probe.results not found")
	}
	sum, ok := results.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", results.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 || len(sum.DataPoints) != 2 {
		t.Fatalf("expected 2 results across 2 outcomes, got %d over %d points", total, len(sum.DataPoints))
	}

	lat := findMetric(rm, "reachmon.probe.latency")
	if lat == nil {
		t.Fatalf("reachmon.probe.latency not found")
	}
	hist, ok := lat.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("expected one latency sample, got %+v", lat.Data)
	}
	if hist.DataPoints[0].Sum != 12 {
		t.Fatalf("expected 12ms recorded, got %v", hist.DataPoints[0].Sum)
	}

	if findMetric(rm, "reachmon.transitions") == nil {
		t.Fatalf("reachmon.transitions not found")
	}
}
