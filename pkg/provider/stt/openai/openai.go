// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (or any server exposing the same /audio/transcriptions
// contract, such as faster-whisper-server).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/livescribe/pkg/audio"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = string(oai.AudioModelWhisper1)

const defaultSampleRate = 16000

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the client retries a failed request.
// Negative values keep the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI STT Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Model returns the transcription model name.
func (p *Provider) Model() string { return p.model }

// Transcribe implements stt.Provider. It uploads the utterance as WAV and
// requests verbose JSON with word timestamps.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.Samples) == 0 {
		return stt.Transcript{}, fmt.Errorf("openai stt: %w", stt.ErrNoAudio)
	}
	sr := req.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	wav := audio.EncodeWAV(req.Samples, sr)

	params := oai.AudioTranscriptionNewParams{
		File:                   oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model:                  oai.AudioModel(p.model),
		ResponseFormat:         oai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word"},
		Temperature:            param.NewOpt(0.0),
	}
	if req.Language != "" {
		params.Language = param.NewOpt(req.Language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}

	var verbose verboseTranscription
	if raw := resp.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &verbose); err != nil {
			return stt.Transcript{}, fmt.Errorf("openai stt: parse response: %w", err)
		}
	}
	if verbose.Text == "" {
		verbose.Text = resp.Text
	}
	return verbose.transcript(), nil
}

// verboseTranscription mirrors the verbose_json response. The SDK's
// Transcription type only surfaces text, so the rest is read from raw JSON.
type verboseTranscription struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Words    []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

func (v verboseTranscription) transcript() stt.Transcript {
	t := stt.Transcript{
		Text:     strings.TrimSpace(v.Text),
		Language: stt.NormalizeLanguage(v.Language),
	}
	for _, w := range v.Words {
		t.Words = append(t.Words, stt.Word{
			Text:  strings.TrimSpace(w.Word),
			Start: stt.Seconds(w.Start),
			End:   stt.Seconds(w.End),
		})
	}
	return t
}
