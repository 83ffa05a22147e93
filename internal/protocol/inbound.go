// Package protocol defines the JSON messages exchanged with streaming
// clients: a tagged-union inbound Message produced by Parse, and the outbound
// event types the session engine emits.
//
// Older clients use different field names for the same thing ("message_type"
// for "type", "input_audio_chunk" for "audio", "audio" for "audio_base_64").
// Parse normalises all of them so nothing downstream ever looks at aliases.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies an inbound message.
type Kind string

const (
	KindConfig Kind = "config"
	KindAudio  Kind = "audio"
	KindCommit Kind = "commit"
)

// ErrParse is the sentinel matched by every *ParseError.
var ErrParse = errors.New("protocol: parse error")

// ParseError describes an inbound frame that could not be turned into a
// Message. Callers ignore such frames and keep reading.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Message is a normalised inbound message. Exactly the fields relevant to
// Kind are populated.
type Message struct {
	Kind Kind

	// Config holds the raw values of a config message, keyed by field name.
	// Never nil for KindConfig.
	Config map[string]json.RawMessage

	// Audio is the base64 payload of an audio message.
	Audio string

	// Commit is set when an audio message also asks to flush.
	Commit bool
}

// wireMessage accepts every field name any client is known to send.
type wireMessage struct {
	Type        string          `json:"type"`
	MessageType string          `json:"message_type"`
	Config      json.RawMessage `json:"config"`
	AudioBase64 string          `json:"audio_base_64"`
	Audio       string          `json:"audio"`
	Commit      bool            `json:"commit"`
}

// Parse decodes one inbound text frame.
func Parse(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, &ParseError{Reason: "invalid JSON", Err: err}
	}

	kind := w.Type
	if kind == "" {
		kind = w.MessageType
	}

	switch kind {
	case string(KindConfig):
		cfg := map[string]json.RawMessage{}
		if len(w.Config) > 0 && string(w.Config) != "null" {
			if err := json.Unmarshal(w.Config, &cfg); err != nil {
				return Message{}, &ParseError{Reason: "config must be an object", Err: err}
			}
		}
		return Message{Kind: KindConfig, Config: cfg}, nil

	case string(KindAudio), "input_audio_chunk":
		payload := w.AudioBase64
		if payload == "" {
			payload = w.Audio
		}
		if payload == "" {
			return Message{}, &ParseError{Reason: "audio message without payload"}
		}
		return Message{Kind: KindAudio, Audio: payload, Commit: w.Commit}, nil

	case string(KindCommit):
		return Message{Kind: KindCommit}, nil

	case "":
		return Message{}, &ParseError{Reason: "missing message type"}

	default:
		return Message{}, &ParseError{Reason: fmt.Sprintf("unknown message type %q", kind)}
	}
}
