// Package audio holds the PCM helpers shared by the session engine and the
// transcription backends: decoding client payloads into normalised float32
// samples, encoding samples back into 16-bit WAV for HTTP backends, and a
// small energy toolkit used for silence trimming and the energy VAD.
//
// All sample slices are mono. The engine runs at a fixed 16 kHz; callers pass
// the rate explicitly wherever a duration is derived.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrDecode is matched by every [DecodeError] via errors.Is.
var ErrDecode = errors.New("audio: decode failed")

// DecodeError reports a malformed audio payload. The session drops the chunk
// and keeps going.
type DecodeError struct {
	// Reason is a short description of what was wrong with the payload.
	Reason string

	// Err is the underlying error, if any (e.g. a base64.CorruptInputError).
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: decode: %s: %v", e.Reason, e.Err)
	}
	return "audio: decode: " + e.Reason
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes every DecodeError match [ErrDecode].
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// DecodeBase64PCM decodes a base64 payload carrying 16-bit signed
// little-endian mono PCM into samples normalised to [-1.0, 1.0) by dividing
// by 32768. Padded and unpadded base64 are both accepted.
//
// A *DecodeError is returned for invalid base64 or a byte length that is not
// a multiple of two.
func DecodeBase64PCM(payload string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		raw, rawErr = base64.RawStdEncoding.DecodeString(payload)
		if rawErr != nil {
			return nil, &DecodeError{Reason: "invalid base64", Err: err}
		}
	}
	if len(raw)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd byte length %d", len(raw))}
	}
	return PCM16ToFloat32(raw), nil
}

// PCM16ToFloat32 converts 16-bit signed little-endian PCM to float32 samples
// normalised by 32768. A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// Float32ToPCM16 converts normalised samples back to 16-bit signed
// little-endian PCM, clamping values outside [-1, 1].
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * 32768.0)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// Duration returns the playback length of n mono samples at sampleRate.
// Returns 0 for a non-positive rate.
func Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}

// Samples returns how many mono samples cover d at sampleRate, rounded down.
func Samples(d time.Duration, sampleRate int) int {
	if sampleRate <= 0 || d <= 0 {
		return 0
	}
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}
