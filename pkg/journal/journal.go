// Package journal records committed transcripts so they can be looked up
// after the session that produced them has ended.
//
// The audio path never blocks on the journal: writes go through [Guard],
// which logs and swallows backend failures.
package journal

import (
	"context"
	"time"
)

// Word is one timed word of a journalled transcript. Offsets are relative to
// the start of the flushed audio.
type Word struct {
	Text        string  `json:"text"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// Entry is a single committed transcript.
type Entry struct {
	// SessionID identifies the WebSocket session that produced the entry.
	SessionID string

	// Seq is the 1-based position of the entry within its session.
	Seq int

	Text     string
	Language string

	// LatencyMS is the transcription call latency in milliseconds.
	LatencyMS int64

	// BufferDuration is the buffered audio at flush time.
	BufferDuration time.Duration

	Words []Word

	CreatedAt time.Time
}

// Recorder persists committed transcripts.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Store is a Recorder that can also list what it recorded.
type Store interface {
	Recorder

	// List returns the entries of sessionID ordered by Seq. An unknown
	// session yields an empty slice and no error.
	List(ctx context.Context, sessionID string) ([]Entry, error)
}
