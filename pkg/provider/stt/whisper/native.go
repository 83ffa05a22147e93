// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/livescribe/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared; every Transcribe call gets its own context.
type NativeProvider struct {
	model         whisperlib.Model
	modelPath     string
	threads       uint
	trimThreshold float64
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeThreads sets the number of CPU threads per inference. Zero keeps
// the whisper.cpp default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// WithNativeTrimThreshold sets the RMS level below which audio is trimmed
// when a request asks for VAD filtering. Defaults to 0.005.
func WithNativeTrimThreshold(rms float64) NativeOption {
	return func(p *NativeProvider) { p.trimThreshold = rms }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:         model,
		modelPath:     modelPath,
		trimThreshold: defaultTrimThreshold,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Model returns the path the model was loaded from.
func (p *NativeProvider) Model() string { return p.modelPath }

// Transcribe runs whisper.cpp inference on a fresh context. Contexts are not
// thread-safe, but the model can be shared across goroutines.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	samples := prepare(req, p.trimThreshold)
	if len(samples) == 0 {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", stt.ErrNoAudio)
	}
	if req.SampleRate != 0 && req.SampleRate != whisperlib.SampleRate {
		return stt.Transcript{}, fmt.Errorf("whisper: sample rate %d not supported, want %d", req.SampleRate, whisperlib.SampleRate)
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
	wctx.SetTokenTimestamps(true)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts []string
		words []stt.Word
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		words = append(words, tokensToWords(segment.Tokens, wctx.IsText)...)
	}

	detected := wctx.DetectedLanguage()
	if req.Language != "" {
		detected = req.Language
	}
	return stt.Transcript{
		Text:     strings.Join(parts, " "),
		Language: stt.NormalizeLanguage(detected),
		Words:    words,
	}, nil
}

// tokensToWords merges whisper sub-word tokens into words. A token whose text
// starts with a space opens a new word; any other text token extends the
// previous one. Special tokens are skipped via isText. A word's probability
// is the lowest of its tokens.
func tokensToWords(tokens []whisperlib.Token, isText func(whisperlib.Token) bool) []stt.Word {
	var words []stt.Word
	for _, tok := range tokens {
		if !isText(tok) || tok.Text == "" {
			continue
		}
		p := float64(tok.P)
		if len(words) == 0 || strings.HasPrefix(tok.Text, " ") {
			text := strings.TrimSpace(tok.Text)
			if text == "" {
				continue
			}
			words = append(words, stt.Word{Text: text, Start: tok.Start, End: tok.End, Probability: p})
			continue
		}
		last := &words[len(words)-1]
		last.Text += tok.Text
		last.End = tok.End
		last.Probability = min(last.Probability, p)
	}
	return words
}
