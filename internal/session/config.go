package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/livescribe/internal/protocol"
)

// LanguageAuto asks the transcriber to detect the language.
const LanguageAuto = "auto"

// MaxDuration bounds the duration settings a client may send.
const MaxDuration = time.Hour

// Config is the per-session tuning a client may change with config messages.
type Config struct {
	// Language is an ISO 639-1 code or [LanguageAuto].
	Language string

	// SilenceThreshold is how much continuous silence ends an utterance.
	SilenceThreshold time.Duration

	// MinSpeechDuration is the shortest speech run worth transcribing.
	// Shorter runs are discarded when they end.
	MinSpeechDuration time.Duration

	// VADThreshold is the probability above which a window counts as speech.
	VADThreshold float64

	// VADFilter is forwarded to the transcriber.
	VADFilter bool
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Language:          "tr",
		SilenceThreshold:  500 * time.Millisecond,
		MinSpeechDuration: 500 * time.Millisecond,
		VADThreshold:      0.5,
		VADFilter:         true,
	}
}

// TranscribeLanguage returns the language to request from the transcriber:
// empty for auto-detection.
func (c Config) TranscribeLanguage() string {
	if strings.EqualFold(c.Language, LanguageAuto) {
		return ""
	}
	return c.Language
}

// View returns the client-visible form of c.
func (c Config) View() protocol.SessionConfig {
	return protocol.SessionConfig{
		Language:          c.Language,
		SilenceThreshold:  c.SilenceThreshold.Seconds(),
		MinSpeechDuration: c.MinSpeechDuration.Seconds(),
		VADThreshold:      c.VADThreshold,
		VADFilter:         c.VADFilter,
	}
}

// Merge overlays the provided fields onto c and returns the result. Only
// known keys are considered; unknown keys are ignored. Numbers may be sent as
// JSON numbers or numeric strings and booleans as JSON booleans or
// "true"/"false". vad_threshold is clamped to [0, 1].
//
// A field whose value cannot be coerced, or a negative duration, keeps its
// previous value; the returned error joins one entry per rejected field.
// The returned Config is valid either way.
func (c Config) Merge(fields map[string]json.RawMessage) (Config, error) {
	out := c
	var errs []error

	for key, raw := range fields {
		var err error
		switch key {
		case "language":
			var lang string
			if lang, err = parseString(raw); err == nil {
				if lang = strings.TrimSpace(lang); lang == "" {
					err = errors.New("must not be empty")
				} else {
					out.Language = lang
				}
			}
		case "silence_threshold":
			var d time.Duration
			if d, err = parseSeconds(raw); err == nil {
				out.SilenceThreshold = d
			}
		case "min_speech_duration":
			var d time.Duration
			if d, err = parseSeconds(raw); err == nil {
				out.MinSpeechDuration = d
			}
		case "vad_threshold":
			var v float64
			if v, err = parseNumber(raw); err == nil {
				out.VADThreshold = min(max(v, 0), 1)
			}
		case "vad_filter":
			var b bool
			if b, err = parseBool(raw); err == nil {
				out.VADFilter = b
			}
		default:
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("session: config %s: %w", key, err))
		}
	}
	return out, errors.Join(errs...)
}

func parseString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.New("must be a string")
	}
	return s, nil
}

func parseNumber(raw json.RawMessage) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		s, serr := parseString(raw)
		if serr != nil {
			return 0, errors.New("must be a number")
		}
		if v, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, fmt.Errorf("must be a number: %q", s)
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("must be finite")
	}
	return v, nil
}

func parseSeconds(raw json.RawMessage) (time.Duration, error) {
	v, err := parseNumber(raw)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("must not be negative, got %g", v)
	}
	if v > MaxDuration.Seconds() {
		return 0, fmt.Errorf("must be at most %g seconds, got %g", MaxDuration.Seconds(), v)
	}
	return time.Duration(math.Round(v * float64(time.Second))), nil
}

func parseBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	s, err := parseString(raw)
	if err != nil {
		return false, errors.New("must be a boolean")
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("must be a boolean: %q", s)
}
