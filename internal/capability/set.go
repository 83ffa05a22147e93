package capability

import (
	"github.com/MrWong99/livescribe/pkg/provider/stt"
	"github.com/MrWong99/livescribe/pkg/provider/vad"
)

// Set is the capabilities handed to every session.
type Set struct {
	// Transcriber is required. Sessions end if it cannot be constructed.
	Transcriber *Lazy[stt.Provider]

	// VAD is optional. When nil, or when construction fails, sessions fall
	// back to duration-based segmentation.
	VAD *Lazy[vad.Engine]

	// Model is the configured transcription model, for status reporting.
	Model string
}

// VADLoaded reports whether a VAD engine has been constructed.
func (s *Set) VADLoaded() bool {
	return s.VAD != nil && s.VAD.Loaded()
}
