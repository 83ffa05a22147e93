package session

import (
	"time"

	"github.com/MrWong99/livescribe/pkg/audio"
)

// vadWindow is the analysis window length.
const vadWindow = 32 * time.Millisecond

// WindowSize returns the VAD window length in samples for sampleRate
// (512 at 16 kHz).
func WindowSize(sampleRate int) int {
	return audio.Samples(vadWindow, sampleRate)
}

// Transition reports what one Tracker.Update changed.
type Transition struct {
	// Started is set on Silent → Speaking.
	Started bool

	// Ended is set on Speaking → Silent after enough silence.
	Ended bool

	// Flush is set together with Ended when the speech run was at least
	// MinSpeechDuration long.
	Flush bool

	// SpeechDuration is the speech accumulated before the reset on Ended.
	SpeechDuration time.Duration
}

// Tracker is the Silent/Speaking state machine fed with one speech
// probability per analysis window.
//
// While speaking, exactly one of the speech and silence counters grows per
// window. While silent neither does. Both reset when a run ends, whether or
// not it was long enough to flush.
type Tracker struct {
	speaking bool
	speech   time.Duration
	silence  time.Duration
}

// Speaking reports the current state.
func (t *Tracker) Speaking() bool { return t.speaking }

// Counters returns the accumulated speech and silence durations.
func (t *Tracker) Counters() (speech, silence time.Duration) {
	return t.speech, t.silence
}

// Update feeds one window's probability. window is the audio length the
// probability covers.
func (t *Tracker) Update(prob float64, window time.Duration, cfg Config) Transition {
	var tr Transition
	if prob > cfg.VADThreshold {
		if !t.speaking {
			t.speaking = true
			t.speech = 0
			tr.Started = true
		}
		t.silence = 0
		t.speech += window
		return tr
	}

	if !t.speaking {
		return tr
	}
	t.silence += window
	if t.silence >= cfg.SilenceThreshold {
		tr.Ended = true
		tr.SpeechDuration = t.speech
		tr.Flush = t.speech >= cfg.MinSpeechDuration
		t.speaking = false
		t.speech = 0
		t.silence = 0
	}
	return tr
}

// Reset returns the tracker to Silent with zeroed counters.
func (t *Tracker) Reset() {
	*t = Tracker{}
}
