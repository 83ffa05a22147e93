// Package observe provides application-wide observability primitives for
// livescribe: OpenTelemetry metrics, distributed tracing, structured logging,
// error reporting, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all livescribe metrics.
const meterName = "github.com/MrWong99/livescribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TranscribeDuration tracks transcription latency per flush. Use with
	// attribute.String("outcome", ...).
	TranscribeDuration metric.Float64Histogram

	// VADDuration tracks the latency of a single VAD window score.
	VADDuration metric.Float64Histogram

	// --- Counters ---

	// Flushes counts buffer flushes. Use with attribute.String("trigger", ...)
	// (vad, fallback or commit).
	Flushes metric.Int64Counter

	// Transcripts counts transcription outcomes. Use with
	// attribute.String("outcome", ...) (committed, empty or error).
	Transcripts metric.Int64Counter

	// Events counts outbound protocol events. Use with
	// attribute.String("type", ...).
	Events metric.Int64Counter

	// --- Error counters ---

	// DecodeErrors counts dropped audio chunks.
	DecodeErrors metric.Int64Counter

	// CapabilityErrors counts VAD and transcriber failures. Use with
	// attribute.String("capability", ...), attribute.String("phase", ...)
	// (init or call).
	CapabilityErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of connected streaming sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// transcription latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// vadBuckets covers single-window scoring, which should stay well under the
// 32 ms window length.
var vadBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscribeDuration, err = m.Float64Histogram("livescribe.transcribe.duration",
		metric.WithDescription("Latency of one transcription call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VADDuration, err = m.Float64Histogram("livescribe.vad.duration",
		metric.WithDescription("Latency of scoring one VAD window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(vadBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Flushes, err = m.Int64Counter("livescribe.flushes",
		metric.WithDescription("Total buffer flushes by trigger."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("livescribe.transcripts",
		metric.WithDescription("Total transcription outcomes."),
	); err != nil {
		return nil, err
	}
	if met.Events, err = m.Int64Counter("livescribe.events",
		metric.WithDescription("Total outbound protocol events by type."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.DecodeErrors, err = m.Int64Counter("livescribe.decode_errors",
		metric.WithDescription("Total audio chunks dropped because they could not be decoded."),
	); err != nil {
		return nil, err
	}
	if met.CapabilityErrors, err = m.Int64Counter("livescribe.capability_errors",
		metric.WithDescription("Total VAD and transcriber failures by capability and phase."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("livescribe.active_sessions",
		metric.WithDescription("Number of connected streaming sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("livescribe.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTranscription records the latency and outcome of one transcription.
func (m *Metrics) RecordTranscription(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.TranscribeDuration.Record(ctx, d.Seconds(), attrs)
	m.Transcripts.Add(ctx, 1, attrs)
}

// RecordVAD records the latency of one VAD window score.
func (m *Metrics) RecordVAD(ctx context.Context, d time.Duration) {
	m.VADDuration.Record(ctx, d.Seconds())
}

// RecordFlush records a buffer flush with its trigger.
func (m *Metrics) RecordFlush(ctx context.Context, trigger string) {
	m.Flushes.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// RecordEvent records one outbound protocol event.
func (m *Metrics) RecordEvent(ctx context.Context, eventType string) {
	m.Events.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

// RecordDecodeError records one dropped audio chunk.
func (m *Metrics) RecordDecodeError(ctx context.Context) {
	m.DecodeErrors.Add(ctx, 1)
}

// RecordCapabilityError records a VAD or transcriber failure.
func (m *Metrics) RecordCapabilityError(ctx context.Context, capability, phase string) {
	m.CapabilityErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("capability", capability),
			attribute.String("phase", phase),
		),
	)
}
