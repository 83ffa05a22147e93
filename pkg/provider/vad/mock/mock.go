// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script speech probabilities and inspect the windows that
// were submitted for scoring.
//
// Example:
//
//	sess := &mock.Session{Probabilities: []float64{0.9, 0.9, 0.1}}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/MrWong99/livescribe/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session that always scores 0.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Probabilities are returned by successive Score calls. Once exhausted the
	// last value repeats; an empty script scores 0.
	Probabilities []float64

	// ScoreFunc, if set, overrides Probabilities and ScoreErr.
	ScoreFunc func(window []float32) (float64, error)

	// ScoreErr, if non-nil, is returned by every Score call.
	ScoreErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// Windows records a copy of every window passed to Score.
	Windows [][]float32

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Score records the window and returns the next scripted probability.
func (s *Session) Score(window []float32) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]float32, len(window))
	copy(cp, window)
	s.Windows = append(s.Windows, cp)
	if s.ScoreFunc != nil {
		return s.ScoreFunc(window)
	}
	if s.ScoreErr != nil {
		return 0, s.ScoreErr
	}
	if len(s.Probabilities) == 0 {
		return 0, nil
	}
	idx := min(len(s.Windows)-1, len(s.Probabilities)-1)
	return s.Probabilities[idx], nil
}

// ScoreCallCount returns how many windows have been scored. Thread-safe.
func (s *Session) ScoreCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Windows)
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)
