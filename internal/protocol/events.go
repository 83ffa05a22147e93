package protocol

import (
	"encoding/json"
	"math"
)

// Outbound event kinds.
const (
	TypeSessionStarted      = "session_started"
	TypeConfigUpdated       = "config_updated"
	TypeSpeechStarted       = "speech_started"
	TypeSpeechEnded         = "speech_ended"
	TypeVADStatus           = "vad_status"
	TypeCommittedTranscript = "committed_transcript"
	TypePartialTranscript   = "partial_transcript"
	TypeError               = "error"
)

// Event is any outbound message.
type Event interface {
	// Kind returns the value of the event's "type" field.
	Kind() string
}

// Header carries the event kind. It is mirrored into message_type for
// clients that key on that field.
type Header struct {
	Type        string `json:"type"`
	MessageType string `json:"message_type"`
}

// Kind implements Event.
func (h Header) Kind() string { return h.Type }

func header(kind string) Header { return Header{Type: kind, MessageType: kind} }

// SessionConfig is the client-visible form of a session's configuration.
type SessionConfig struct {
	Language          string  `json:"language"`
	SilenceThreshold  float64 `json:"silence_threshold"`
	MinSpeechDuration float64 `json:"min_speech_duration"`
	VADThreshold      float64 `json:"vad_threshold"`
	VADFilter         bool    `json:"vad_filter"`
}

// Word is one timed word of a committed transcript. Offsets are seconds from
// the start of the flushed audio.
type Word struct {
	Text        string  `json:"text"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

type SessionStarted struct {
	Header
	Config     SessionConfig `json:"config"`
	VADEnabled bool          `json:"vad_enabled"`
	SessionID  string        `json:"session_id"`
}

func NewSessionStarted(cfg SessionConfig, vadEnabled bool, sessionID string) SessionStarted {
	return SessionStarted{Header: header(TypeSessionStarted), Config: cfg, VADEnabled: vadEnabled, SessionID: sessionID}
}

type ConfigUpdated struct {
	Header
	Config SessionConfig `json:"config"`
}

func NewConfigUpdated(cfg SessionConfig) ConfigUpdated {
	return ConfigUpdated{Header: header(TypeConfigUpdated), Config: cfg}
}

type SpeechStarted struct {
	Header
}

func NewSpeechStarted() SpeechStarted {
	return SpeechStarted{Header: header(TypeSpeechStarted)}
}

type SpeechEnded struct {
	Header
	SpeechDuration float64 `json:"speech_duration"`
}

// NewSpeechEnded reports the speech accumulated before the tracker reset,
// in seconds rounded to two decimals.
func NewSpeechEnded(seconds float64) SpeechEnded {
	return SpeechEnded{Header: header(TypeSpeechEnded), SpeechDuration: Round2(seconds)}
}

type VADStatus struct {
	Header
	IsSpeaking     bool    `json:"is_speaking"`
	SpeechProb     float64 `json:"speech_prob"`
	BufferDuration float64 `json:"buffer_duration"`
}

func NewVADStatus(speaking bool, prob, bufferSeconds float64) VADStatus {
	return VADStatus{
		Header:         header(TypeVADStatus),
		IsSpeaking:     speaking,
		SpeechProb:     Round2(prob),
		BufferDuration: Round2(bufferSeconds),
	}
}

// CommittedTranscript carries a finished utterance. BufferDuration is the
// buffered audio at flush time.
type CommittedTranscript struct {
	Header
	Text           string  `json:"text"`
	LanguageCode   string  `json:"language_code"`
	LatencyMS      int64   `json:"latency_ms"`
	Words          []Word  `json:"words"`
	BufferDuration float64 `json:"buffer_duration"`
}

// NewCommittedTranscript builds a committed transcript. An empty words slice
// is sent as null.
func NewCommittedTranscript(text, language string, latencyMS int64, words []Word, bufferSeconds float64) CommittedTranscript {
	if len(words) == 0 {
		words = nil
	}
	return CommittedTranscript{
		Header:         header(TypeCommittedTranscript),
		Text:           text,
		LanguageCode:   language,
		LatencyMS:      latencyMS,
		Words:          words,
		BufferDuration: Round2(bufferSeconds),
	}
}

type PartialTranscript struct {
	Header
	Text           string   `json:"text"`
	BufferDuration *float64 `json:"buffer_duration,omitempty"`
}

// NewEmptyTranscript is sent when a flush produced no recognisable speech.
func NewEmptyTranscript() PartialTranscript {
	return PartialTranscript{Header: header(TypePartialTranscript)}
}

// NewBufferedStatus reports audio that is buffered but not yet transcribed,
// e.g. "[1.2s audio buffered...]".
func NewBufferedStatus(text string, bufferSeconds float64) PartialTranscript {
	d := Round2(bufferSeconds)
	return PartialTranscript{Header: header(TypePartialTranscript), Text: text, BufferDuration: &d}
}

type ErrorEvent struct {
	Header
	Error string `json:"error"`
}

func NewError(msg string) ErrorEvent {
	return ErrorEvent{Header: header(TypeError), Error: msg}
}

// Encode marshals an event into a text frame.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
