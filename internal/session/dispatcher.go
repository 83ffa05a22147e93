package session

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/livescribe/internal/observe"
	"github.com/MrWong99/livescribe/internal/protocol"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
)

// Transcription outcomes, used as the metrics "outcome" label.
const (
	OutcomeCommitted = "committed"
	OutcomeEmpty     = "empty"
	OutcomeError     = "error"
)

// Result is what one Dispatcher.Run produced.
type Result struct {
	// Event is the single event to send to the client.
	Event protocol.Event

	// Outcome is OutcomeCommitted, OutcomeEmpty or OutcomeError.
	Outcome string

	// Transcript is the raw backend result. Zero on error.
	Transcript stt.Transcript

	// Language is the resolved language code reported to the client.
	Language string

	Latency time.Duration

	// Err is a *CallError when the backend failed.
	Err error
}

// Dispatcher hands flushed audio to the transcriber and turns the outcome
// into exactly one protocol event.
type Dispatcher struct {
	provider   stt.Provider
	sampleRate int
	timeout    time.Duration
	metrics    *observe.Metrics
	now        func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTranscribeTimeout bounds each transcription call. Zero means no limit.
func WithTranscribeTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithDispatcherMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithDispatcherMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher returns a Dispatcher calling p for audio at sampleRate.
func NewDispatcher(p stt.Provider, sampleRate int, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		provider:   p,
		sampleRate: sampleRate,
		now:        time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Run transcribes samples with the session's language and filter settings.
// buffered is the buffer length observed at flush time and is echoed in the
// committed event.
//
// The call is detached from ctx cancellation: a client that disconnects
// mid-call lets it finish, and the caller discards the result. Only the
// optional transcribe timeout can cut it short.
func (d *Dispatcher) Run(ctx context.Context, samples []float32, cfg Config, buffered time.Duration) Result {
	callCtx := context.WithoutCancel(ctx)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, d.timeout)
		defer cancel()
	}
	callCtx, span := observe.StartSpan(callCtx, "session.transcribe",
		trace.WithAttributes(
			attribute.String("language", cfg.Language),
			attribute.Float64("buffer_seconds", buffered.Seconds()),
		),
	)
	defer span.End()

	start := d.now()
	tr, err := d.provider.Transcribe(callCtx, stt.Request{
		Samples:    samples,
		SampleRate: d.sampleRate,
		Language:   cfg.TranscribeLanguage(),
		VADFilter:  cfg.VADFilter,
	})
	latency := d.now().Sub(start)

	res := Result{Latency: latency}
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res.Outcome = OutcomeError
		res.Err = &CallError{Capability: "stt", Err: err}
		res.Event = protocol.NewError(err.Error())

	case strings.TrimSpace(tr.Text) == "":
		res.Outcome = OutcomeEmpty
		res.Transcript = tr
		res.Event = protocol.NewEmptyTranscript()

	default:
		res.Outcome = OutcomeCommitted
		res.Transcript = tr
		res.Language = resolveLanguage(cfg, tr.Language)
		res.Event = protocol.NewCommittedTranscript(
			strings.TrimSpace(tr.Text),
			res.Language,
			latency.Round(time.Millisecond).Milliseconds(),
			toProtocolWords(tr.Words),
			buffered.Seconds(),
		)
	}
	span.SetAttributes(attribute.String("outcome", res.Outcome))
	d.metrics.RecordTranscription(ctx, res.Outcome, latency)
	return res
}

// resolveLanguage reports the detected language in auto mode and the
// configured one otherwise, falling back to the configuration when the
// backend did not report a language.
func resolveLanguage(cfg Config, detected string) string {
	if cfg.TranscribeLanguage() == "" && detected != "" {
		return detected
	}
	return cfg.Language
}

func toProtocolWords(words []stt.Word) []protocol.Word {
	if len(words) == 0 {
		return nil
	}
	out := make([]protocol.Word, len(words))
	for i, w := range words {
		out[i] = protocol.Word{
			Text:        w.Text,
			Start:       w.Start.Seconds(),
			End:         w.End.Seconds(),
			Probability: w.Probability,
		}
	}
	return out
}
