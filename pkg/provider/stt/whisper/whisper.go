// Package whisper provides whisper.cpp-backed STT providers.
//
// Provider talks to a running whisper-server binary (which exposes a REST API
// at POST /inference). NativeProvider links the model in-process through the
// whisper.cpp CGO bindings. Both are batch engines: each Transcribe call
// uploads or processes one complete utterance.
//
// When Request.VADFilter is set, leading and trailing low-energy audio is
// trimmed before inference. whisper hallucinates readily on long silent
// stretches, so this noticeably improves short utterances.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithModel("small"))
//	tr, err := p.Transcribe(ctx, stt.Request{Samples: samples, SampleRate: 16000})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/livescribe/pkg/audio"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
)

const (
	defaultSampleRate = 16000

	// trimFrame is the frame length used for silence trimming (30 ms at 16 kHz).
	trimFrame = 480

	// defaultTrimThreshold is the RMS level, on normalised samples, below
	// which a frame counts as non-speech. Roughly -46 dBFS.
	defaultTrimThreshold = 0.005

	// trimPad keeps this many quiet frames around the detected speech so word
	// onsets are not clipped.
	trimPad = 10
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithTrimThreshold sets the RMS level below which audio is trimmed when a
// request asks for VAD filtering. Defaults to 0.005.
func WithTrimThreshold(rms float64) Option {
	return func(p *Provider) {
		p.trimThreshold = rms
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
// It is stateless between calls and safe for concurrent use.
type Provider struct {
	serverURL     string
	model         string
	trimThreshold float64
	httpClient    *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:     strings.TrimRight(serverURL, "/"),
		trimThreshold: defaultTrimThreshold,
		httpClient:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Model returns the configured model identifier, or "" for the server default.
func (p *Provider) Model() string { return p.model }

// Transcribe encodes req.Samples as WAV and POSTs it to the whisper.cpp
// /inference endpoint as multipart/form-data, requesting verbose JSON so the
// detected language and word timings come back with the text.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	samples := prepare(req, p.trimThreshold)
	if len(samples) == 0 {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", stt.ErrNoAudio)
	}
	sr := req.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	wav := audio.EncodeWAV(samples, sr)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = "auto"
	}
	fields := [][2]string{
		{"language", lang},
		{"response_format", "verbose_json"},
		{"temperature", "0.0"},
	}
	if p.model != "" {
		fields = append(fields, [2]string{"model", p.model})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var result verboseResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.transcript(), nil
}

// verboseResponse is the subset of whisper.cpp's verbose_json output we use.
type verboseResponse struct {
	Text             string `json:"text"`
	Language         string `json:"language"`
	DetectedLanguage string `json:"detected_language"`
	Segments         []struct {
		Words []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

func (r verboseResponse) transcript() stt.Transcript {
	lang := r.DetectedLanguage
	if lang == "" {
		lang = r.Language
	}
	t := stt.Transcript{
		Text:     strings.TrimSpace(r.Text),
		Language: stt.NormalizeLanguage(lang),
	}
	for _, seg := range r.Segments {
		for _, w := range seg.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			t.Words = append(t.Words, stt.Word{
				Text:        text,
				Start:       stt.Seconds(w.Start),
				End:         stt.Seconds(w.End),
				Probability: w.Probability,
			})
		}
	}
	return t
}

// prepare applies silence trimming when the request asks for it.
func prepare(req stt.Request, threshold float64) []float32 {
	if !req.VADFilter || threshold <= 0 {
		return req.Samples
	}
	return audio.TrimSilence(req.Samples, trimFrame, threshold, trimPad)
}
