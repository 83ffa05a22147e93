package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/livescribe/internal/capability"
	"github.com/MrWong99/livescribe/internal/observe"
	"github.com/MrWong99/livescribe/internal/protocol"
	"github.com/MrWong99/livescribe/pkg/audio"
	"github.com/MrWong99/livescribe/pkg/journal"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
	"github.com/MrWong99/livescribe/pkg/provider/vad"
)

// DefaultSampleRate is the only input rate clients may send.
const DefaultSampleRate = 16000

// Conn is a full-duplex, ordered channel of text frames.
//
// Read returns io.EOF once the peer has closed the connection normally.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// Controller runs streaming sessions. One Controller is shared by every
// connection; all per-connection state lives inside [Controller.Run].
type Controller struct {
	caps       *capability.Set
	defaults   func() Config
	policy     Policy
	sampleRate int
	metrics    *observe.Metrics
	journal    journal.Recorder
	timeout    time.Duration
	newID      func() string
}

// Option configures a Controller.
type Option func(*Controller)

// WithDefaults sets the function consulted for the initial configuration of
// every new session. It is called once per connection, so swapping what it
// returns only affects sessions opened afterwards.
func WithDefaults(fn func() Config) Option {
	return func(c *Controller) { c.defaults = fn }
}

// WithPolicy overrides the segmentation policy.
func WithPolicy(p Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithSampleRate overrides the input sample rate. Defaults to 16 kHz.
func WithSampleRate(sr int) Option {
	return func(c *Controller) { c.sampleRate = sr }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithJournal records every committed transcript to r.
func WithJournal(r journal.Recorder) Option {
	return func(c *Controller) { c.journal = r }
}

// WithTimeout bounds each transcription call. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithIDFunc overrides session id generation. Defaults to random UUIDs.
func WithIDFunc(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

// NewController returns a Controller drawing backends from caps.
func NewController(caps *capability.Set, opts ...Option) *Controller {
	c := &Controller{
		caps:       caps,
		defaults:   DefaultConfig,
		policy:     DefaultPolicy(),
		sampleRate: DefaultSampleRate,
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Run serves one connection until the peer goes away or ctx is cancelled.
// A normal close or cancellation returns nil. When the transcriber cannot be
// constructed an error event is sent and the *capability.InitError is
// returned.
func (c *Controller) Run(ctx context.Context, conn Conn) error {
	id := c.newID()
	ctx = observe.WithSessionID(ctx, id)
	log := observe.Logger(ctx)

	s := &state{
		ctrl:    c,
		conn:    conn,
		id:      id,
		log:     log,
		cfg:     c.defaults(),
		buf:     NewBuffer(c.sampleRate),
		window:  WindowSize(c.sampleRate),
		windowD: audio.Duration(WindowSize(c.sampleRate), c.sampleRate),
	}

	transcriber, err := c.caps.Transcriber.Get(ctx)
	if err != nil {
		c.metrics.RecordCapabilityError(ctx, "stt", "init")
		observe.ReportError(ctx, err, map[string]string{"capability": "stt", "phase": "init"})
		log.Error("session: transcriber unavailable", "err", err)
		if werr := s.send(ctx, protocol.NewError(fmt.Sprintf("model load failed: %v", err))); werr != nil {
			log.Debug("session: send init error", "err", werr)
		}
		return err
	}
	s.dispatcher = NewDispatcher(transcriber, c.sampleRate,
		WithTranscribeTimeout(c.timeout),
		WithDispatcherMetrics(c.metrics),
	)
	s.vad = c.openVAD(ctx, log)
	defer func() {
		if s.vad != nil {
			if err := s.vad.Close(); err != nil {
				log.Debug("session: close vad", "err", err)
			}
		}
	}()

	c.metrics.ActiveSessions.Add(ctx, 1)
	defer c.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	log.Info("session: started", "vad_enabled", s.vad != nil, "language", s.cfg.Language)
	if err := s.send(ctx, protocol.NewSessionStarted(s.cfg.View(), s.vad != nil, id)); err != nil {
		return closeErr(ctx, err)
	}

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			log.Info("session: ended", "reason", err)
			return closeErr(ctx, err)
		}
		if err := s.handle(ctx, data); err != nil {
			log.Info("session: ended", "reason", err)
			return closeErr(ctx, err)
		}
	}
}

// openVAD resolves the shared engine and opens a per-session handle. Any
// failure leaves the session without VAD.
func (c *Controller) openVAD(ctx context.Context, log *slog.Logger) vad.SessionHandle {
	if c.caps.VAD == nil {
		return nil
	}
	engine, err := c.caps.VAD.Get(ctx)
	if err != nil {
		c.metrics.RecordCapabilityError(ctx, "vad", "init")
		observe.ReportError(ctx, err, map[string]string{"capability": "vad", "phase": "init"})
		log.Warn("session: vad unavailable, using duration fallback", "err", err)
		return nil
	}
	h, err := engine.NewSession(vad.Config{SampleRate: c.sampleRate, WindowSize: WindowSize(c.sampleRate)})
	if err != nil {
		c.metrics.RecordCapabilityError(ctx, "vad", "init")
		log.Warn("session: open vad session, using duration fallback", "err", err)
		return nil
	}
	return h
}

// closeErr maps the ways a session normally ends to nil.
func closeErr(ctx context.Context, err error) error {
	if errors.Is(err, io.EOF) || ctx.Err() != nil {
		return nil
	}
	return err
}

// state is everything one connection owns. It is only touched by the
// goroutine running Controller.Run.
type state struct {
	ctrl       *Controller
	conn       Conn
	id         string
	log        *slog.Logger
	cfg        Config
	buf        *Buffer
	tracker    Tracker
	vad        vad.SessionHandle
	dispatcher *Dispatcher

	window  int
	windowD time.Duration

	commitPending bool
	seq           int
}

func (s *state) send(ctx context.Context, ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", ev.Kind(), err)
	}
	if err := s.conn.Write(ctx, data); err != nil {
		return fmt.Errorf("session: write %s: %w", ev.Kind(), err)
	}
	s.ctrl.metrics.RecordEvent(ctx, ev.Kind())
	return nil
}

// handle processes one inbound frame. Only transport failures are returned.
func (s *state) handle(ctx context.Context, data []byte) error {
	msg, err := protocol.Parse(data)
	if err != nil {
		s.log.Debug("session: ignoring message", "err", err)
		return nil
	}

	switch msg.Kind {
	case protocol.KindConfig:
		cfg, err := s.cfg.Merge(msg.Config)
		if err != nil {
			s.log.Debug("session: config fields rejected", "err", err)
		}
		s.cfg = cfg
		s.log.Debug("session: config updated", "config", cfg.View())
		return s.send(ctx, protocol.NewConfigUpdated(cfg.View()))

	case protocol.KindCommit:
		s.commitPending = true
		return nil

	case protocol.KindAudio:
		return s.handleAudio(ctx, msg)
	}
	return nil
}

func (s *state) handleAudio(ctx context.Context, msg protocol.Message) error {
	samples, err := audio.DecodeBase64PCM(msg.Audio)
	if err != nil {
		s.ctrl.metrics.RecordDecodeError(ctx)
		s.log.Debug("session: dropping audio chunk", "err", err)
		return nil
	}
	if msg.Commit {
		s.commitPending = true
	}
	s.buf.Append(samples)

	vadActive := s.vad != nil
	speechEnded := false
	if vadActive {
		var err error
		speechEnded, err = s.analyse(ctx)
		var callErr *CallError
		switch {
		case errors.As(err, &callErr):
			vadActive = false
		case err != nil:
			return err
		}
	}
	buffered := s.buf.Duration()

	dec := s.ctrl.policy.Decide(Input{
		VADActive:   vadActive,
		SpeechEnded: speechEnded,
		Commit:      s.commitPending,
		Buffered:    buffered,
		Speaking:    s.tracker.Speaking(),
	})
	s.commitPending = false

	switch {
	case dec.Flush:
		return s.flush(ctx, dec.Trigger)
	case dec.BufferedStatus:
		return s.send(ctx, protocol.NewBufferedStatus(BufferedText(buffered), buffered.Seconds()))
	}
	return nil
}

// analyse scores every complete window not yet seen and drives the tracker.
// It stops early on a flush-eligible end of speech, reporting true, or on a
// scoring failure, returning a *CallError. Any other error is a transport
// failure.
//
// Audio of a speech run too short to flush is dropped when the run ends.
// While silent, analysed audio beyond the policy's pre-roll is dropped.
func (s *state) analyse(ctx context.Context) (bool, error) {
	for {
		win, ok := s.buf.NextWindow(s.window)
		if !ok {
			if !s.tracker.Speaking() {
				s.buf.TrimAnalysed(audio.Samples(s.ctrl.policy.PreRoll, s.ctrl.sampleRate))
			}
			return false, nil
		}

		start := time.Now()
		prob, err := s.vad.Score(win)
		s.ctrl.metrics.RecordVAD(ctx, time.Since(start))
		if err != nil {
			callErr := &CallError{Capability: "vad", Err: err}
			s.ctrl.metrics.RecordCapabilityError(ctx, "vad", "call")
			observe.ReportError(ctx, callErr, map[string]string{"capability": "vad", "phase": "call"})
			s.log.Warn("session: vad failed, using duration fallback for this chunk", "err", err)
			return false, callErr
		}

		tr := s.tracker.Update(prob, s.windowD, s.cfg)
		if tr.Started {
			if err := s.send(ctx, protocol.NewSpeechStarted()); err != nil {
				return false, err
			}
		}
		if tr.Ended {
			if !tr.Flush {
				s.log.Debug("session: discarding short speech run", "speech", tr.SpeechDuration)
				s.buf.TrimAnalysed(0)
				s.vad.Reset()
			}
			if err := s.send(ctx, protocol.NewSpeechEnded(tr.SpeechDuration.Seconds())); err != nil {
				return false, err
			}
		}
		if err := s.send(ctx, protocol.NewVADStatus(s.tracker.Speaking(), prob, s.buf.Duration().Seconds())); err != nil {
			return false, err
		}
		if tr.Flush {
			return true, nil
		}
	}
}

// flush drains the buffer and transcribes it. The buffer is empty afterwards
// whatever the outcome.
func (s *state) flush(ctx context.Context, trigger Trigger) error {
	s.ctrl.metrics.RecordFlush(ctx, string(trigger))
	buffered := s.buf.Duration()
	samples := s.buf.Drain()
	s.tracker.Reset()
	if s.vad != nil {
		s.vad.Reset()
	}
	s.log.Debug("session: flushing", "trigger", trigger, "buffered", buffered)

	res := s.dispatcher.Run(ctx, samples, s.cfg, buffered)
	if ctx.Err() != nil {
		s.log.Debug("session: discarding result of abandoned session", "outcome", res.Outcome)
		return ctx.Err()
	}

	switch res.Outcome {
	case OutcomeError:
		s.ctrl.metrics.RecordCapabilityError(ctx, "stt", "call")
		observe.ReportError(ctx, res.Err, map[string]string{"capability": "stt", "phase": "call"})
		s.log.Warn("session: transcription failed", "err", res.Err, "trigger", trigger)
	case OutcomeCommitted:
		s.log.Info("session: committed transcript",
			"latency", res.Latency,
			"language", res.Language,
			"buffered", buffered,
		)
		// Recorded before sending so a client that sees the event can
		// already look it up.
		s.record(ctx, res, buffered)
	}
	return s.send(ctx, res.Event)
}

func (s *state) record(ctx context.Context, res Result, buffered time.Duration) {
	if s.ctrl.journal == nil {
		return
	}
	ev, ok := res.Event.(protocol.CommittedTranscript)
	if !ok {
		return
	}
	s.seq++
	e := journal.Entry{
		SessionID:      s.id,
		Seq:            s.seq,
		Text:           ev.Text,
		Language:       ev.LanguageCode,
		LatencyMS:      ev.LatencyMS,
		BufferDuration: buffered,
		Words:          journalWords(res.Transcript.Words),
		CreatedAt:      time.Now(),
	}
	if err := s.ctrl.journal.Record(ctx, e); err != nil {
		s.log.Warn("session: journal record failed", "err", err)
	}
}

func journalWords(words []stt.Word) []journal.Word {
	if len(words) == 0 {
		return nil
	}
	out := make([]journal.Word, len(words))
	for i, w := range words {
		out[i] = journal.Word{
			Text:        w.Text,
			Start:       w.Start.Seconds(),
			End:         w.End.Seconds(),
			Probability: w.Probability,
		}
	}
	return out
}
