package stt

import "time"

// Transcript is the result of one Transcribe call.
type Transcript struct {
	// Text is the transcribed speech content, trimmed of surrounding space.
	Text string

	// Language is the ISO 639-1 code the engine used or detected. May be
	// empty when the engine does not report it.
	Language string

	// Words contains per-word timing when the engine supports it. Offsets are
	// relative to the start of the submitted audio. May be nil.
	Words []Word
}

// Word holds per-word metadata from providers that support it.
type Word struct {
	Text        string
	Start       time.Duration
	End         time.Duration
	Probability float64
}

// Seconds converts a fractional seconds value, as most engines report word
// offsets, to a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
