package session

import (
	"fmt"
	"time"
)

const (
	// FallbackWindow is the buffered length that forces a flush when VAD is
	// unavailable or failed.
	FallbackWindow = 3 * time.Second

	// MinFlushDuration is the shortest buffer that is ever transcribed.
	MinFlushDuration = 300 * time.Millisecond

	// PreRoll is how much already-analysed audio is kept ahead of speech
	// while VAD reports silence.
	PreRoll = 300 * time.Millisecond
)

// Trigger names the reason for a flush.
type Trigger string

const (
	TriggerVAD      Trigger = "vad"
	TriggerFallback Trigger = "fallback"
	TriggerCommit   Trigger = "commit"
)

// Input is what the policy needs to know about one processed audio chunk.
type Input struct {
	// VADActive is true when a VAD session exists and no window failed to
	// score during this chunk.
	VADActive bool

	// SpeechEnded is true when the tracker signalled a flush-eligible end of
	// speech during this chunk.
	SpeechEnded bool

	// Commit is true when the client asked to flush.
	Commit bool

	// Buffered is the buffered audio length after appending the chunk.
	Buffered time.Duration

	// Speaking is the tracker state after the chunk.
	Speaking bool
}

// Decision is the outcome of Policy.Decide.
type Decision struct {
	Flush   bool
	Trigger Trigger

	// BufferedStatus asks the caller to report buffered-but-untranscribed
	// audio. Never set together with Flush.
	BufferedStatus bool
}

// Policy decides when the buffer is handed to the transcriber.
type Policy struct {
	FallbackWindow   time.Duration
	MinFlushDuration time.Duration
	PreRoll          time.Duration
}

// DefaultPolicy returns the standard 3.0 s fallback, 0.3 s minimum and
// 0.3 s pre-roll.
func DefaultPolicy() Policy {
	return Policy{FallbackWindow: FallbackWindow, MinFlushDuration: MinFlushDuration, PreRoll: PreRoll}
}

// Decide applies, in order: VAD end-of-speech when VAD is active, the
// duration fallback otherwise, then a pending client commit in either mode.
// A flush is only honoured when at least MinFlushDuration is buffered.
func (p Policy) Decide(in Input) Decision {
	var trigger Trigger
	switch {
	case in.VADActive && in.SpeechEnded:
		trigger = TriggerVAD
	case !in.VADActive && in.Buffered >= p.FallbackWindow:
		trigger = TriggerFallback
	case in.Commit:
		trigger = TriggerCommit
	}

	if trigger != "" && in.Buffered >= p.MinFlushDuration {
		return Decision{Flush: true, Trigger: trigger}
	}
	return Decision{BufferedStatus: in.Buffered >= p.MinFlushDuration && !in.Speaking}
}

// BufferedText renders the buffered-status placeholder text.
func BufferedText(buffered time.Duration) string {
	return fmt.Sprintf("[%.1fs audio buffered...]", buffered.Seconds())
}
