package session

import (
	"time"

	"github.com/MrWong99/livescribe/pkg/audio"
)

// Buffer holds the samples of the utterance being collected. It also keeps
// an analysis cursor so that every VAD window is scored exactly once, however
// the audio was split into chunks.
//
// Buffer is not safe for concurrent use; it belongs to one session goroutine.
type Buffer struct {
	sampleRate int
	samples    []float32
	analysed   int
}

// NewBuffer returns an empty buffer for audio at sampleRate.
func NewBuffer(sampleRate int) *Buffer {
	return &Buffer{sampleRate: sampleRate}
}

// Append adds decoded samples to the end of the buffer.
func (b *Buffer) Append(chunk []float32) {
	b.samples = append(b.samples, chunk...)
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int { return len(b.samples) }

// Duration returns the buffered audio length.
func (b *Buffer) Duration() time.Duration {
	return audio.Duration(len(b.samples), b.sampleRate)
}

// NextWindow returns the next size samples that have not yet been analysed
// and advances the cursor. ok is false when fewer than size unanalysed
// samples are available. The returned slice aliases the buffer and must not
// be retained past the next Append or Drain.
func (b *Buffer) NextWindow(size int) (window []float32, ok bool) {
	if size <= 0 || b.analysed+size > len(b.samples) {
		return nil, false
	}
	window = b.samples[b.analysed : b.analysed+size]
	b.analysed += size
	return window, true
}

// Drain returns every buffered sample and leaves the buffer empty with its
// cursor reset. The caller owns the returned slice.
func (b *Buffer) Drain() []float32 {
	out := b.samples
	b.samples = nil
	b.analysed = 0
	return out
}

// TrimAnalysed drops analysed samples from the front of the buffer, keeping
// the most recent keep of them and everything not yet analysed. The cursor
// moves with the kept samples.
func (b *Buffer) TrimAnalysed(keep int) {
	drop := b.analysed - max(keep, 0)
	if drop <= 0 {
		return
	}
	n := copy(b.samples, b.samples[drop:])
	b.samples = b.samples[:n]
	b.analysed -= drop
}
