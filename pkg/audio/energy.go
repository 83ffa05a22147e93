package audio

import "math"

// RMS returns the root-mean-square level of normalised samples (0 for an
// empty slice). Full-scale sine is ~0.707.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// TrimSilence drops leading and trailing frames whose RMS is below threshold.
// frameSize is the analysis frame length in samples; pad frames of context are
// kept on each side of the detected speech. When no frame reaches threshold
// the input is returned unchanged so the backend still gets a chance to
// decide.
func TrimSilence(samples []float32, frameSize int, threshold float64, pad int) []float32 {
	if frameSize <= 0 || len(samples) <= frameSize {
		return samples
	}
	frames := (len(samples) + frameSize - 1) / frameSize
	first, last := -1, -1
	for i := range frames {
		end := min((i+1)*frameSize, len(samples))
		if RMS(samples[i*frameSize:end]) >= threshold {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return samples
	}
	first = max(first-pad, 0)
	last = min(last+pad, frames-1)
	return samples[first*frameSize : min((last+1)*frameSize, len(samples))]
}
