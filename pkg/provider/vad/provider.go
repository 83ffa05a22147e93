// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a window-level speech scorer (e.g., Silero VAD, WebRTC VAD,
// or a plain energy detector) and surfaces it as a per-stream session. Each
// session may keep its own internal state (recurrent model state, smoothing
// history) so that multiple concurrent audio streams are scored independently.
//
// Scoring is synchronous: Score returns the speech probability of one analysis
// window. The session engine decides what to do with it; backends never make
// speaking/silence decisions themselves.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import "errors"

// ErrClosed is returned by SessionHandle.Score after Close.
var ErrClosed = errors.New("vad: session is closed")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// samples passed to Score. The session engine always uses 16000.
	SampleRate int

	// WindowSize is the number of samples per analysis window (512 for 32 ms
	// at 16 kHz). Score returns an error for windows of any other length.
	WindowSize int
}

// SessionHandle represents an active VAD session for a single audio stream. It
// is an interface so that test code can supply mock implementations without a
// live engine.
type SessionHandle interface {
	// Score returns the speech probability in [0, 1] for one analysis window
	// of normalised mono samples. Returns an error if the window has the wrong
	// length or the engine fails internally; callers treat an error as "no
	// decision" for that window.
	Score(window []float32) (float64, error)

	// Reset clears accumulated model state without closing the session.
	Reset()

	// Close releases all resources associated with the session. After Close,
	// Score returns ErrClosed. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid (e.g. unsupported sample
	// rate or window size).
	NewSession(cfg Config) (SessionHandle, error)
}
