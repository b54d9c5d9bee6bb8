package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the data point of a counter whose attribute
// key equals value.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestHistogramObservation(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"talewind.turn.duration", m.TurnDuration},
		{"talewind.llm.duration", m.LLMDuration},
		{"talewind.tts.duration", m.TTSDuration},
		{"talewind.tool_execution.duration", m.ToolExecutionDuration},
		{"talewind.playback.duration", m.PlaybackDuration},
		{"talewind.http.request.duration", m.HTTPRequestDuration},
	}
	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)
	for _, tc := range histograms {
		met := findMetric(rm, tc.name)
		if met == nil {
			t.Errorf("metric %q not found", tc.name)
			continue
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok || len(hist.DataPoints) == 0 {
			t.Errorf("metric %q is not a histogram with data", tc.name)
			continue
		}
		if got := hist.DataPoints[0].Count; got != 2 {
			t.Errorf("%s sample count = %d, want 2", tc.name, got)
		}
	}
}

func TestRecordHelpers(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTurn(ctx, "ok", time.Second)
	m.RecordTurn(ctx, "ok", 2*time.Second)
	m.RecordTurn(ctx, "transient", time.Second)
	m.RecordProviderRequest(ctx, "openai", "llm", "ok")
	m.RecordProviderError(ctx, "elevenlabs", "tts")
	m.RecordToolCall(ctx, "roll_dice", "ok", 5*time.Millisecond)
	m.RecordToolCall(ctx, "roll_dice", "error", 5*time.Millisecond)
	m.RecordRetry(ctx, "llm")
	m.RecordBreakerTransition(ctx, "openai", "open")
	m.RecordPlayback(ctx, "narrator", "ok", 3*time.Second)
	m.RecordToolListFailure(ctx)

	rm := collect(t, reader)
	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"talewind.turns", "outcome", "ok", 2},
		{"talewind.turns", "outcome", "transient", 1},
		{"talewind.provider.requests", "provider", "openai", 1},
		{"talewind.provider.errors", "kind", "tts", 1},
		{"talewind.tool.calls", "status", "error", 1},
		{"talewind.retries", "kind", "llm", 1},
		{"talewind.breaker.transitions", "state", "open", 1},
	}
	for _, tt := range tests {
		if got := sumWhere(t, rm, tt.name, tt.key, tt.value); got != tt.want {
			t.Errorf("%s{%s=%s} = %d, want %d", tt.name, tt.key, tt.value, got, tt.want)
		}
	}
}

func TestGauges(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.PlaybackQueue.Add(ctx, 3)
	m.PlaybackQueue.Add(ctx, -1)
	m.ActiveWaves.Add(ctx, 1)

	rm := collect(t, reader)
	gauges := []struct {
		name string
		want int64
	}{
		{"talewind.playback.queue", 2},
		{"talewind.playback.active_waves", 1},
	}
	for _, tc := range gauges {
		met := findMetric(rm, tc.name)
		if met == nil {
			t.Fatalf("metric %q not found", tc.name)
		}
		sum, ok := met.Data.(metricdata.Sum[int64])
		if !ok || len(sum.DataPoints) == 0 {
			t.Fatalf("metric %q is not a sum with data", tc.name)
		}
		if got := sum.DataPoints[0].Value; got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	t.Parallel()

	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different pointers")
	}
}
