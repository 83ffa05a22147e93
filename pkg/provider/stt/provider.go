// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider wraps a batch transcription engine (a local whisper.cpp server or
// model, the OpenAI audio API, Deepgram's pre-recorded API) and exposes one
// uniform call: hand over a committed utterance, receive its text, the
// language the engine settled on and, when the engine reports them, per-word
// timings. Segmentation happens upstream in the session engine; providers
// never buffer audio across calls.
//
// Implementations must be safe for concurrent use. Many sessions share one
// provider instance.
package stt

import (
	"context"
	"errors"
)

// ErrNoAudio is returned by providers when Request.Samples is empty.
var ErrNoAudio = errors.New("stt: no audio samples")

// Request describes one utterance to transcribe.
type Request struct {
	// Samples is mono audio normalised to [-1, 1].
	Samples []float32

	// SampleRate is the rate of Samples in Hz. The session engine always
	// sends 16000.
	SampleRate int

	// Language is an ISO 639-1 code (e.g. "en", "tr"). An empty string asks
	// the provider to auto-detect.
	Language string

	// VADFilter asks the provider to drop non-speech regions before
	// recognition, if it supports doing so.
	VADFilter bool
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe runs recognition over req.Samples and returns the result.
	// An utterance with no recognisable speech yields a Transcript with empty
	// Text and a nil error.
	//
	// Returns an error if the backend call fails or ctx is cancelled.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
