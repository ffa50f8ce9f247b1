package waveform

import "math"

// SampleRate is the rate every impairment assumes when converting seconds and
// hertz into sample offsets.
const SampleRate = 44100

// Signal is a mono signal normalized to [-1.0, 1.0].
type Signal []float64

// PCM is integer audio as exchanged with the codec.
type PCM struct {
	Samples    []int
	BitDepth   int
	SampleRate int
}

// FullScale returns the largest positive sample value for the bit depth.
func (p PCM) FullScale() float64 {
	bits := p.BitDepth
	if bits <= 0 {
		bits = 16
	}
	return float64(int64(1)<<(bits-1) - 1)
}

// Normalize returns a fresh normalized copy. The receiver is never aliased, so
// callers may mutate the result freely.
func (p PCM) Normalize() Signal {
	scale := p.FullScale()
	out := make(Signal, len(p.Samples))
	for i, s := range p.Samples {
		out[i] = float64(s) / scale
	}
	return out
}

// FromSignal clamps s to [-1, 1] and quantizes it to 16-bit PCM with rounding.
// Non-finite samples become silence.
func FromSignal(s Signal, sampleRate int) PCM {
	const scale = 32767.0
	samples := make([]int, len(s))
	for i, v := range s {
		samples[i] = int(math.Round(Clamp(v) * scale))
	}
	return PCM{Samples: samples, BitDepth: 16, SampleRate: sampleRate}
}

// Clamp limits v to [-1, 1]. NaN maps to 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// ClampInPlace clamps every sample of s.
func ClampInPlace(s Signal) Signal {
	for i, v := range s {
		s[i] = Clamp(v)
	}
	return s
}

// Duration is the signal length in seconds at SampleRate.
func (s Signal) Duration() float64 {
	return float64(len(s)) / SampleRate
}
