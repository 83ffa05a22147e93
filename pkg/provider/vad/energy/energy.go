// Package energy provides a dependency-free VAD engine that maps the RMS level
// of each window to a speech probability through a logistic curve over dBFS.
//
// It is far less robust than a neural detector in noisy rooms, but it needs no
// model files and is a sensible default for headset microphones.
//
// Usage:
//
//	eng := energy.New(energy.WithMidpointDB(-42))
//	h, err := eng.NewSession(vad.Config{SampleRate: 16000, WindowSize: 512})
//	p, err := h.Score(window)
package energy

import (
	"fmt"
	"math"
	"sync"

	"github.com/MrWong99/livescribe/pkg/audio"
	"github.com/MrWong99/livescribe/pkg/provider/vad"
)

const (
	defaultMidpointDB = -40.0
	defaultSteepness  = 0.5

	// floorDB is the level reported for digital silence.
	floorDB = -120.0
)

// Compile-time assertion that Engine implements vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithMidpointDB sets the level in dBFS at which the probability is 0.5.
// Defaults to -40 dBFS.
func WithMidpointDB(db float64) Option {
	return func(e *Engine) { e.midpointDB = db }
}

// WithSteepness sets the logistic slope per dB. Larger values approach a hard
// gate. Defaults to 0.5.
func WithSteepness(k float64) Option {
	return func(e *Engine) {
		if k > 0 {
			e.steepness = k
		}
	}
}

// Engine is a stateless energy detector. Sessions only validate the window
// length, so Engine and its sessions are safe for concurrent use.
type Engine struct {
	midpointDB float64
	steepness  float64
}

// New returns an Engine with the given options applied.
func New(opts ...Option) *Engine {
	e := &Engine{
		midpointDB: defaultMidpointDB,
		steepness:  defaultSteepness,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy vad: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("energy vad: invalid window size %d", cfg.WindowSize)
	}
	return &session{engine: e, windowSize: cfg.WindowSize}, nil
}

// Probability maps an RMS level to a speech probability.
func (e *Engine) Probability(rms float64) float64 {
	db := floorDB
	if rms > 0 {
		db = max(20*math.Log10(rms), floorDB)
	}
	return 1 / (1 + math.Exp(-e.steepness*(db-e.midpointDB)))
}

type session struct {
	engine     *Engine
	windowSize int

	mu     sync.Mutex
	closed bool
}

// Score implements vad.SessionHandle.
func (s *session) Score(window []float32) (float64, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, vad.ErrClosed
	}
	if len(window) != s.windowSize {
		return 0, fmt.Errorf("energy vad: window has %d samples, want %d", len(window), s.windowSize)
	}
	return s.engine.Probability(audio.RMS(window)), nil
}

// Reset implements vad.SessionHandle. The energy detector keeps no state.
func (s *session) Reset() {}

// Close implements vad.SessionHandle.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
