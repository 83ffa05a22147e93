package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/livescribe/internal/capability"
	"github.com/MrWong99/livescribe/internal/observe"
	"github.com/MrWong99/livescribe/pkg/audio"
	journalmock "github.com/MrWong99/livescribe/pkg/journal/mock"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
	sttmock "github.com/MrWong99/livescribe/pkg/provider/stt/mock"
	"github.com/MrWong99/livescribe/pkg/provider/vad"
	vadmock "github.com/MrWong99/livescribe/pkg/provider/vad/mock"
)

// ---- fakes & helpers --------------------------------------------------------

// fakeConn replays scripted inbound frames and captures outbound ones. Read
// returns io.EOF once the script is exhausted.
type fakeConn struct {
	mu       sync.Mutex
	in       [][]byte
	out      [][]byte
	writeErr error
}

func (c *fakeConn) Read(_ context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.in) == 0 {
		return nil, io.EOF
	}
	f := c.in[0]
	c.in = c.in[1:]
	return f, nil
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.out = append(c.out, append([]byte(nil), data...))
	return nil
}

// events decodes every captured frame.
func (c *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, len(c.out))
	for i, f := range c.out {
		if err := json.Unmarshal(f, &out[i]); err != nil {
			t.Fatalf("frame %d is not JSON: %v", i, err)
		}
	}
	return out
}

func (c *fakeConn) push(frames ...[]byte) {
	c.in = append(c.in, frames...)
}

func types(evs []map[string]any) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i], _ = ev["type"].(string)
	}
	return out
}

func ofType(evs []map[string]any, typ string) []map[string]any {
	var out []map[string]any
	for _, ev := range evs {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

// tone returns n samples of a 440 Hz sine; silence returns zeros.
func tone(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return s
}

func silence(n int) []float32 { return make([]float32, n) }

func audioFrame(samples []float32) []byte {
	b64 := base64.StdEncoding.EncodeToString(audio.Float32ToPCM16(samples))
	return []byte(fmt.Sprintf(`{"type":"audio","audio_base_64":%q}`, b64))
}

func frames(n int, chunk func() []float32) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = audioFrame(chunk())
	}
	return out
}

// energyScore marks loud windows as speech.
func energyScore(window []float32) (float64, error) {
	if audio.RMS(window) > 0.1 {
		return 0.95, nil
	}
	return 0.05, nil
}

type harness struct {
	t       *testing.T
	stt     *sttmock.Provider
	vad     *vadmock.Session
	journal *journalmock.Store
	caps    *capability.Set
	metrics *observe.Metrics
	conn    *fakeConn
}

// newHarness wires a controller with a mock transcriber and, when withVAD is
// set, a mock VAD session scoring by energy.
func newHarness(t *testing.T, withVAD bool) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		stt:     &sttmock.Provider{},
		journal: &journalmock.Store{},
		conn:    &fakeConn{},
	}
	h.caps = &capability.Set{Transcriber: capability.Ready[stt.Provider]("stt", h.stt)}
	if withVAD {
		h.vad = &vadmock.Session{ScoreFunc: energyScore}
		h.caps.VAD = capability.Ready[vad.Engine]("vad", &vadmock.Engine{Session: h.vad})
	}
	h.metrics, _ = newTestMetrics(t)
	return h
}

func (h *harness) run(opts ...Option) error {
	h.t.Helper()
	opts = append([]Option{
		WithMetrics(h.metrics),
		WithJournal(h.journal),
		WithIDFunc(func() string { return "sess-1" }),
	}, opts...)
	return NewController(h.caps, opts...).Run(context.Background(), h.conn)
}

// ---- open -------------------------------------------------------------------

func TestController_SessionStarted(t *testing.T) {
	for _, withVAD := range []bool{false, true} {
		t.Run(fmt.Sprintf("vad=%v", withVAD), func(t *testing.T) {
			h := newHarness(t, withVAD)
			if err := h.run(); err != nil {
				t.Fatalf("Run: %v", err)
			}
			evs := h.conn.events(t)
			if len(evs) != 1 {
				t.Fatalf("events = %v, want only session_started", types(evs))
			}
			ev := evs[0]
			if ev["type"] != "session_started" || ev["message_type"] != "session_started" {
				t.Errorf("event = %v", ev)
			}
			if ev["vad_enabled"] != withVAD {
				t.Errorf("vad_enabled = %v, want %v", ev["vad_enabled"], withVAD)
			}
			if ev["session_id"] != "sess-1" {
				t.Errorf("session_id = %v", ev["session_id"])
			}
			cfg := ev["config"].(map[string]any)
			if cfg["language"] != "tr" || cfg["silence_threshold"] != 0.5 || cfg["vad_filter"] != true {
				t.Errorf("config = %v", cfg)
			}
			if withVAD && h.vad.CloseCallCount != 1 {
				t.Errorf("vad Close calls = %d, want 1", h.vad.CloseCallCount)
			}
		})
	}
}

func TestController_TranscriberInitFailure(t *testing.T) {
	h := newHarness(t, false)
	h.caps.Transcriber = capability.NewLazy("stt", func(context.Context) (stt.Provider, error) {
		return nil, errors.New("model file missing")
	})
	h.conn.push(audioFrame(tone(1600)))

	err := h.run()
	var initErr *capability.InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("Run error = %v, want *capability.InitError", err)
	}
	evs := h.conn.events(t)
	if len(evs) != 1 || evs[0]["type"] != "error" {
		t.Fatalf("events = %v, want a single error", types(evs))
	}
	if msg, _ := evs[0]["error"].(string); !strings.Contains(msg, "model file missing") {
		t.Errorf("error = %q", msg)
	}
}

func TestController_VADInitFailureDisablesVAD(t *testing.T) {
	h := newHarness(t, false)
	h.caps.VAD = capability.NewLazy("vad", func(context.Context) (vad.Engine, error) {
		return nil, errors.New("onnx runtime missing")
	})
	if err := h.run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ev := h.conn.events(t)[0]; ev["vad_enabled"] != false {
		t.Errorf("vad_enabled = %v, want false", ev["vad_enabled"])
	}
}

func TestController_DefaultsFunc(t *testing.T) {
	h := newHarness(t, false)
	if err := h.run(WithDefaults(func() Config {
		c := DefaultConfig()
		c.Language = "de"
		return c
	})); err != nil {
		t.Fatalf("Run: %v", err)
	}
	cfg := h.conn.events(t)[0]["config"].(map[string]any)
	if cfg["language"] != "de" {
		t.Errorf("language = %v, want de", cfg["language"])
	}
}

// ---- message loop -----------------------------------------------------------

func TestController_ConfigRoundTrip(t *testing.T) {
	h := newHarness(t, false)
	h.conn.push(
		[]byte(`{"type":"config","config":{"language":"en"}}`),
		[]byte(`{"message_type":"config","config":{"vad_threshold":0.7}}`),
	)
	if err := h.run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	upd := ofType(h.conn.events(t), "config_updated")
	if len(upd) != 2 {
		t.Fatalf("config_updated events = %d, want 2", len(upd))
	}
	first := upd[0]["config"].(map[string]any)
	if first["language"] != "en" || first["vad_threshold"] != 0.5 || first["silence_threshold"] != 0.5 {
		t.Errorf("first update = %v", first)
	}
	second := upd[1]["config"].(map[string]any)
	if second["language"] != "en" || second["vad_threshold"] != 0.7 {
		t.Errorf("second update = %v", second)
	}
}

func TestController_IgnoresMalformedMessages(t *testing.T) {
	h := newHarness(t, false)
	h.conn.push(
		[]byte(`not json`),
		[]byte(`{"type":"bogus"}`),
		[]byte(`{"type":"audio"}`),
		[]byte(`{"type":"audio","audio_base_64":"@@@"}`),
		[]byte(`{"type":"audio","audio_base_64":"AAAA"}`), // three bytes
		[]byte(`{"type":"config","config":{"language":"en"}}`),
	)
	if err := h.run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := types(h.conn.events(t)); len(got) != 2 || got[1] != "config_updated" {
		t.Errorf("events = %v, want session_started, config_updated", got)
	}
	if h.stt.CallCount() != 0 {
		t.Errorf("transcribe calls = %d, want 0", h.stt.CallCount())
	}
}

// ---- segmentation without VAD -----------------------------------------------

func TestController_FallbackFlushAtThreeSeconds(t *testing.T) {
	h := newHarness(t, false)
	m, reader := newTestMetrics(t)
	h.metrics = m

	// 3.2 s of silence in 100 ms chunks.
	h.conn.push([]byte(`{"type":"config","config":{"language":"en"}}`))
	h.conn.push(frames(32, func() []float32 { return silence(1600) })...)

	if err := h.run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if h.stt.CallCount() != 1 {
		t.Fatalf("transcribe calls = %d, want 1", h.stt.CallCount())
	}
	call, _ := h.stt.LastCall()
	if len(call.Req.Samples) != 48000 {
		t.Errorf("flushed %d samples, want 48000", len(call.Req.Samples))
	}
	if call.Req.Language != "en" {
		t.Errorf("request language = %q, want en", call.Req.Language)
	}

	evs := h.conn.events(t)
	if n := len(ofType(evs, "vad_status")); n != 0 {
		t.Errorf("vad_status events = %d, want 0 without VAD", n)
	}
	var (
		flushAt  = -1
		statuses int
	)
	for i, ev := range evs {
		if ev["type"] != "partial_transcript" {
			continue
		}
		if ev["text"] == "" {
			if flushAt >= 0 {
				t.Fatalf("second flush result at event %d", i)
			}
			flushAt = i
			continue
		}
		if flushAt >= 0 {
			t.Errorf("buffered status after flush: %v", ev)
		}
		statuses++
	}
	if flushAt < 0 {
		t.Fatal("no empty partial_transcript for the flush")
	}
	// Chunks 3..29 leave 0.3 s to 2.9 s buffered.
	if statuses != 27 {
		t.Errorf("buffered status events = %d, want 27", statuses)
	}
	first := ofType(evs, "partial_transcript")[0]
	if first["text"] != "[0.3s audio buffered...]" || first["buffer_duration"] != 0.3 {
		t.Errorf("first status = %v", first)
	}
	if got := counter(t, reader, "livescribe.flushes", "trigger", "fallback"); got != 1 {
		t.Errorf("fallback flushes = %d, want 1", got)
	}
}

func TestController_TranscriptionErrorKeepsSession(t *testing.T) {
	h := newHarness(t, false)
	var calls int
	h.stt.TranscribeFunc = func(context.Context, stt.Request) (stt.Transcript, error) {
		calls++
		if calls == 1 {
			return stt.Transcript{}, errors.New("backend exploded")
		}
		return stt.Transcript{Text: "recovered", Language: "tr"}, nil
	}
	h.conn.push(frames(60, func() []float32 { return tone(1600) })...)

	if err := h.run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	evs := h.conn.events(t)
	errs := ofType(evs, "error")
	if len(errs) != 1 || errs[0]["error"] != "backend exploded" {
		t.Fatalf("error events = %v", errs)
	}
	committed := ofType(evs, "committed_transcript")
	if len(committed) != 1 || committed[0]["text"] != "recovered" {
		t.Fatalf("committed = %v", committed)
	}
	if committed[0]["buffer_duration"] != 3.0 {
		t.Errorf("buffer_duration = %v, want 3 (buffer cleared after error)", committed[0]["buffer_duration"])
	}
	if h.stt.CallCount() != 2 {
		t.Fatalf("transcribe calls = %d, want 2", h.stt.CallCount())
	}
	for i, c := range h.stt.Calls {
		if len(c.Req.Samples) != 48000 {
			t.Errorf("call %d flushed %d samples, want 48000", i, len(c.Req.Samples))
		}
	}
}

func TestController_AudioCommitFieldWithoutVAD(t *testing.T) {
	h := newHarness(t, false)
	h.stt.Result = stt.Transcript{Text: "kısa"}
	b64 := base64.StdEncoding.EncodeToString(audio.Float32ToPCM16(tone(6400)))
	h.conn.push([]byte(fmt.Sprintf(`{"message_type":"input_audio_chunk","audio":%q,"commit":true}`, b64)))

	if err := h.run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.stt.CallCount() != 1 {
		t.Fatalf("transcribe calls = %d, want 1", h.stt.CallCount())
	}
	if c := ofType(h.conn.events(t), "committed_transcript"); len(c) != 1 || c[0]["message_type"] != "committed_transcript" {
		t.Errorf("committed = %v", c)
	}
}

func TestController_CommitUnderMinimumIsConsumed(t *testing.T) {
	h := newHarness(t, false)
	h.conn.push(
		[]byte(`{"type":"commit"}`),
		audioFrame(silence(1600)), // 0.1 s: too short, commit consumed
		audioFrame(silence(3200)), // 0.3 s total, no commit pending
	)
	if err := h.run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.stt.CallCount() != 0 {
		t.Errorf("transcribe calls = %d, want 0", h.stt.CallCount())
	}
}

// ---- segmentation with VAD --------------------------------------------------

// 2560 samples = 5 VAD windows = 160 ms.
const vadChunk = 2560

func TestController_VADUtterance(t *testing.T) {
	h := newHarness(t, true)
	h.stt.Result = stt.Transcript{
		Text:     " merhaba dünya",
		Language: "tr",
		Words:    []stt.Word{{Text: "merhaba", Start: 0, End: 400 * time.Millisecond, Probability: 0.8}},
	}
	// 640 ms of speech, then 640 ms of silence. The run ends on the 16th
	// silent window, the first window of the fourth silent chunk.
	h.conn.push(frames(4, func() []float32 { return tone(vadChunk) })...)
	h.conn.push(frames(4, func() []float32 { return silence(vadChunk) })...)

	if err := h.run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	evs := h.conn.events(t)

	if n := len(ofType(evs, "speech_started")); n != 1 {
		t.Errorf("speech_started = %d, want 1", n)
	}
	ended := ofType(evs, "speech_ended")
	if len(ended) != 1 || ended[0]["speech_duration"] != 0.64 {
		t.Fatalf("speech_ended = %v, want one with 0.64", ended)
	}
	if n := len(ofType(evs, "vad_status")); n != 36 {
		t.Errorf("vad_status = %d, want 36", n)
	}
	if n := len(ofType(evs, "partial_transcript")); n != 0 {
		t.Errorf("partial_transcript = %d, want 0", n)
	}

	got := types(evs)
	if got[1] != "speech_started" || got[2] != "vad_status" {
		t.Errorf("speech_started must precede the first vad_status: %v", got[:3])
	}
	last := evs[len(evs)-1]
	if last["type"] != "committed_transcript" {
		t.Fatalf("last event = %v, want committed_transcript", last["type"])
	}
	if last["text"] != "merhaba dünya" || last["language_code"] != "tr" || last["buffer_duration"] != 1.28 {
		t.Errorf("committed = %v", last)
	}
	if got[len(got)-2] != "vad_status" || got[len(got)-3] != "speech_ended" {
		t.Errorf("tail = %v, want speech_ended, vad_status, committed_transcript", got[len(got)-3:])
	}

	call, _ := h.stt.LastCall()
	if len(call.Req.Samples) != 8*vadChunk {
		t.Errorf("flushed %d samples, want %d", len(call.Req.Samples), 8*vadChunk)
	}
	if n := h.vad.ScoreCallCount(); n != 36 {
		t.Errorf("scored %d windows, want 36", n)
	}
	if h.vad.ResetCallCount != 1 {
		t.Errorf("vad Reset calls = %d, want 1", h.vad.ResetCallCount)
	}

	entries := h.journal.Entries()
	if len(entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(entries))
	}
	if e := entries[0]; e.SessionID != "sess-1" || e.Seq != 1 || e.Text != "merhaba dünya" || len(e.Words) != 1 {
		t.Errorf("entry = %+v", e)
	}
}

func TestController_ShortSpeechIsDiscarded(t *testing.T) {
	h := newHarness(t, true)
	h.stt.Result = stt.Transcript{Text: "merhaba"}
	// 320 ms of speech, then 960 ms of silence: the run ends on the 16th
	// silent window and is too short to flush.
	h.conn.push(frames(2, func() []float32 { return tone(vadChunk) })...)
	h.conn.push(frames(6, func() []float32 { return silence(vadChunk) })...)
	// A real utterance: 960 ms of speech, then enough silence to end it.
	h.conn.push(frames(6, func() []float32 { return tone(vadChunk) })...)
	h.conn.push(frames(4, func() []float32 { return silence(vadChunk) })...)

	if err := h.run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	evs := h.conn.events(t)
	ended := ofType(evs, "speech_ended")
	if len(ended) != 2 || ended[0]["speech_duration"] != 0.32 || ended[1]["speech_duration"] != 0.96 {
		t.Fatalf("speech_ended = %v, want 0.32 then 0.96", ended)
	}
	if h.stt.CallCount() != 1 {
		t.Fatalf("transcribe calls = %d, want 1", h.stt.CallCount())
	}
	// Only the pre-roll of the silence before the second run survives.
	call, _ := h.stt.LastCall()
	want := audio.Samples(PreRoll, DefaultSampleRate) + 10*vadChunk
	if len(call.Req.Samples) != want {
		t.Errorf("flushed %d samples, want %d", len(call.Req.Samples), want)
	}
	for i, v := range call.Req.Samples[:audio.Samples(PreRoll, DefaultSampleRate)] {
		if v != 0 {
			t.Fatalf("sample %d = %v: audio from the discarded run was transcribed", i, v)
		}
	}
	if h.vad.ResetCallCount != 2 {
		t.Errorf("vad Reset calls = %d, want 2 (discard and flush)", h.vad.ResetCallCount)
	}

	// Once the tracker is silent again the buffered audio is reported.
	status := ofType(evs, "partial_transcript")
	if len(status) == 0 {
		t.Fatal("no buffered status after the discarded run")
	}
	if text, _ := status[0]["text"].(string); !strings.HasSuffix(text, "s audio buffered...]") {
		t.Errorf("status text = %q", text)
	}
}

func TestController_SilenceWithVADStaysBounded(t *testing.T) {
	h := newHarness(t, true)
	// 10 s of silence.
	h.conn.push(frames(63, func() []float32 { return silence(vadChunk) })...)

	if err := h.run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.stt.CallCount() != 0 {
		t.Errorf("transcribe calls = %d, want 0", h.stt.CallCount())
	}
	// Status is reported while a chunk is analysed, before the trim.
	limit := (PreRoll + audio.Duration(vadChunk, DefaultSampleRate)).Seconds()
	var peak float64
	for _, ev := range ofType(h.conn.events(t), "vad_status") {
		if d, _ := ev["buffer_duration"].(float64); d > peak {
			peak = d
		}
	}
	if peak == 0 || peak > limit {
		t.Errorf("largest vad_status buffer_duration = %v, want in (0, %v]", peak, limit)
	}
	status := ofType(h.conn.events(t), "partial_transcript")
	if len(status) == 0 {
		t.Fatal("no buffered status while idle")
	}
	if last := status[len(status)-1]; last["buffer_duration"] != PreRoll.Seconds() {
		t.Errorf("idle buffer_duration = %v, want %v", last["buffer_duration"], PreRoll.Seconds())
	}
}

func TestController_VADFailureFallsBackPerChunk(t *testing.T) {
	h := newHarness(t, true)
	h.vad.ScoreFunc = nil
	h.vad.ScoreErr = errors.New("inference failed")
	h.conn.push(frames(30, func() []float32 { return tone(1600) })...)

	if err := h.run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	evs := h.conn.events(t)
	if evs[0]["vad_enabled"] != true {
		t.Errorf("vad_enabled = %v, want true", evs[0]["vad_enabled"])
	}
	if n := len(ofType(evs, "vad_status")); n != 0 {
		t.Errorf("vad_status = %d, want 0", n)
	}
	if h.stt.CallCount() != 1 {
		t.Fatalf("transcribe calls = %d, want 1 fallback flush", h.stt.CallCount())
	}
	if call, _ := h.stt.LastCall(); len(call.Req.Samples) != 48000 {
		t.Errorf("flushed %d samples, want 48000", len(call.Req.Samples))
	}
}

func TestController_CommitWithVAD(t *testing.T) {
	h := newHarness(t, true)
	h.stt.Result = stt.Transcript{Text: "tamam"}
	// Continuous speech never ends on its own.
	h.conn.push(frames(3, func() []float32 { return tone(vadChunk) })...)
	h.conn.push([]byte(`{"type":"commit"}`))
	h.conn.push(audioFrame(tone(vadChunk)))
	// The flush starts a fresh run, so the silence that follows must not end
	// the speech that was already transcribed.
	h.conn.push(frames(4, func() []float32 { return silence(vadChunk) })...)

	if err := h.run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.stt.CallCount() != 1 {
		t.Fatalf("transcribe calls = %d, want 1", h.stt.CallCount())
	}
	if call, _ := h.stt.LastCall(); len(call.Req.Samples) != 4*vadChunk {
		t.Errorf("flushed %d samples, want %d", len(call.Req.Samples), 4*vadChunk)
	}
	evs := h.conn.events(t)
	if n := len(ofType(evs, "speech_started")); n != 1 {
		t.Errorf("speech_started = %d, want 1", n)
	}
	if n := len(ofType(evs, "speech_ended")); n != 0 {
		t.Errorf("speech_ended = %d, want 0", n)
	}
	if h.vad.ResetCallCount != 1 {
		t.Errorf("vad Reset calls = %d, want 1", h.vad.ResetCallCount)
	}
}

func TestController_AutoLanguageReportsDetected(t *testing.T) {
	h := newHarness(t, false)
	h.stt.Result = stt.Transcript{Text: "guten Tag", Language: "de"}
	h.conn.push([]byte(`{"type":"config","config":{"language":"auto"}}`))
	h.conn.push(frames(30, func() []float32 { return tone(1600) })...)

	if err := h.run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if call, _ := h.stt.LastCall(); call.Req.Language != "" {
		t.Errorf("request language = %q, want empty for auto", call.Req.Language)
	}
	c := ofType(h.conn.events(t), "committed_transcript")
	if len(c) != 1 || c[0]["language_code"] != "de" {
		t.Errorf("committed = %v", c)
	}
}

// ---- close ------------------------------------------------------------------

func TestController_CancelDuringFlushDiscardsResult(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var callCtxErr error
	h.stt.TranscribeFunc = func(callCtx context.Context, _ stt.Request) (stt.Transcript, error) {
		cancel()
		callCtxErr = callCtx.Err()
		return stt.Transcript{Text: "too late"}, nil
	}
	h.conn.push(frames(30, func() []float32 { return tone(1600) })...)

	ctrl := NewController(h.caps, WithMetrics(h.metrics), WithJournal(h.journal))
	if err := ctrl.Run(ctx, h.conn); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if callCtxErr != nil {
		t.Errorf("transcription context was cancelled: %v", callCtxErr)
	}
	if n := len(ofType(h.conn.events(t), "committed_transcript")); n != 0 {
		t.Errorf("committed_transcript = %d, want 0 after disconnect", n)
	}
	if n := len(h.journal.Entries()); n != 0 {
		t.Errorf("journal entries = %d, want 0", n)
	}
}

func TestController_WriteErrorEndsSession(t *testing.T) {
	h := newHarness(t, false)
	h.conn.writeErr = errors.New("broken pipe")
	err := h.run()
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("Run error = %v, want broken pipe", err)
	}
}

func TestController_ReadErrorEndsSession(t *testing.T) {
	h := newHarness(t, false)
	readErr := errors.New("connection reset")
	conn := &erroringConn{err: readErr}
	err := NewController(h.caps, WithMetrics(h.metrics)).Run(context.Background(), conn)
	if !errors.Is(err, readErr) {
		t.Errorf("Run error = %v, want %v", err, readErr)
	}
}

type erroringConn struct{ err error }

func (c *erroringConn) Read(context.Context) ([]byte, error) { return nil, c.err }
func (c *erroringConn) Write(context.Context, []byte) error  { return nil }
