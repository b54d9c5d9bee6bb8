// Package observe provides the observability primitives of talewind:
// OpenTelemetry metrics and traces, trace-aware logging, and HTTP middleware
// for the diagnostics server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported in
// Prometheus format by [InitProvider]. [DefaultMetrics] uses the global meter
// provider; tests should call [NewMetrics] with their own provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every talewind metric.
const meterName = "github.com/MrWong99/talewind"

// Metrics holds the OpenTelemetry instruments of the application.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks a whole turn from input to committed transcript.
	TurnDuration metric.Float64Histogram

	// LLMDuration tracks one LLM stream, first request to last chunk.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks time to the first audio chunk of a synthesis.
	TTSDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tool calls made during a turn.
	ToolExecutionDuration metric.Float64Histogram

	// PlaybackDuration tracks how long the sink spent playing one segment.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts finished turns by outcome ("ok" or a failure kind).
	Turns metric.Int64Counter

	// ProviderRequests counts provider calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures by provider and kind.
	ProviderErrors metric.Int64Counter

	// ToolCalls counts tool invocations by tool and status.
	ToolCalls metric.Int64Counter

	// ToolListFailures counts turns that ran without tools because the
	// catalogue could not be fetched.
	ToolListFailures metric.Int64Counter

	// Retries counts retried provider calls by kind.
	Retries metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by breaker and
	// target state.
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// PlaybackQueue tracks segments waiting for or in playback.
	PlaybackQueue metric.Int64UpDownCounter

	// ActiveWaves tracks playback waves still in flight.
	ActiveWaves metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks diagnostics requests by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Turns and playback run
// for many seconds, so the range is wider than a pure request latency scale.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.TurnDuration, "talewind.turn.duration", "Latency of a whole story turn."},
		{&met.LLMDuration, "talewind.llm.duration", "Latency of an LLM stream."},
		{&met.TTSDuration, "talewind.tts.duration", "Time to first audio of a synthesis."},
		{&met.ToolExecutionDuration, "talewind.tool_execution.duration", "Latency of tool execution."},
		{&met.PlaybackDuration, "talewind.playback.duration", "Wall-clock playback time of one segment."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.Turns, "talewind.turns", "Finished turns by outcome."},
		{&met.ProviderRequests, "talewind.provider.requests", "Provider requests by provider, kind and status."},
		{&met.ProviderErrors, "talewind.provider.errors", "Provider errors by provider and kind."},
		{&met.ToolCalls, "talewind.tool.calls", "Tool invocations by tool name and status."},
		{&met.ToolListFailures, "talewind.tool.list_failures", "Turns that ran without tools after a failed catalogue fetch."},
		{&met.Retries, "talewind.retries", "Retried provider calls by kind."},
		{&met.BreakerTransitions, "talewind.breaker.transitions", "Circuit breaker transitions by breaker and state."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.PlaybackQueue, err = m.Int64UpDownCounter("talewind.playback.queue",
		metric.WithDescription("Segments queued or playing in the audio sink."),
	); err != nil {
		return nil, err
	}
	if met.ActiveWaves, err = m.Int64UpDownCounter("talewind.playback.active_waves",
		metric.WithDescription("Playback waves in flight."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("talewind.http.request.duration",
		metric.WithDescription("Diagnostics HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first use
// from [otel.GetMeterProvider]. It panics if instrument creation fails,
// which does not happen with a well-behaved global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurn counts a finished turn and records its duration.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordToolCall counts a tool invocation and records its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolExecutionDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordRetry counts one retried call of the given kind ("llm", "tts").
func (m *Metrics) RecordRetry(ctx context.Context, kind string) {
	m.Retries.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordBreakerTransition counts a circuit breaker moving to state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}

// RecordPlayback records the playback of one segment. status is "ok" or a
// short failure label.
func (m *Metrics) RecordPlayback(ctx context.Context, speaker, status string, d time.Duration) {
	m.PlaybackDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("speaker", speaker),
			attribute.String("status", status),
		),
	)
}

// RecordToolListFailure counts a turn that ran without tools.
func (m *Metrics) RecordToolListFailure(ctx context.Context) {
	m.ToolListFailures.Add(ctx, 1)
}
