package session

import (
	"errors"
	"fmt"
)

// ErrCall is the sentinel matched by every *CallError.
var ErrCall = errors.New("session: capability call failed")

// CallError wraps a single failed VAD or transcription call. It never ends
// the session.
type CallError struct {
	// Capability is "vad" or "stt".
	Capability string
	Err        error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("session: %s call: %v", e.Capability, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCall.
func (e *CallError) Is(target error) bool { return target == ErrCall }
