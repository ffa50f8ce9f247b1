package noise

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/loqalabs/codecbench/internal/waveform"
)

// Apply runs the transform for p over a copy of s. The result has the same
// length as s and every sample lies in [-1, 1]. The input is never modified.
// A nil p returns the clamped copy unchanged.
func Apply(s waveform.Signal, p Params, rng *rand.Rand) waveform.Signal {
	out := waveform.ClampInPlace(append(waveform.Signal(nil), s...))
	if len(out) == 0 {
		return out
	}
	switch p := p.(type) {
	case Gaussian:
		addGaussian(out, p, rng)
	case WhiteSNR:
		addWhite(out, p, rng)
	case Impulse:
		addImpulse(out, p, rng)
	case Reverb:
		addReverb(out, p)
	case Tonal:
		addTonal(out, p)
	case Hum:
		addHum(out, p)
	}
	return waveform.ClampInPlace(out)
}

func addGaussian(s waveform.Signal, p Gaussian, rng *rand.Rand) {
	if p.Sigma == 0 {
		floats.AddConst(p.Mean, s)
		return
	}
	dist := distuv.Normal{Mu: p.Mean, Sigma: p.Sigma, Src: rng}
	for i := range s {
		s[i] += dist.Rand()
	}
}

// addWhite scales noise in the amplitude domain so extreme negative SNRs
// saturate the output instead of underflowing to silence.
func addWhite(s waveform.Signal, p WhiteSNR, rng *rand.Rand) {
	power := floats.Dot(s, s) / float64(len(s))
	if power == 0 || math.IsNaN(power) || math.IsInf(power, 0) {
		return
	}
	sigma := math.Sqrt(power) * math.Pow(10, -p.SNRdB/20)
	if sigma == 0 || math.IsNaN(sigma) {
		return
	}
	if math.IsInf(sigma, 0) {
		sigma = math.MaxFloat64
	}
	addGaussian(s, Gaussian{Sigma: sigma}, rng)
}

func addImpulse(s waveform.Signal, p Impulse, rng *rand.Rand) {
	if p.Probability == 0 || p.Amplitude == 0 {
		return
	}
	hit := distuv.Bernoulli{P: p.Probability, Src: rng}
	sign := distuv.Bernoulli{P: 0.5, Src: rng}
	for i := range s {
		if hit.Rand() == 0 {
			continue
		}
		if sign.Rand() == 1 {
			s[i] += p.Amplitude
		} else {
			s[i] -= p.Amplitude
		}
	}
}

// addReverb reads echoes from an untouched copy so earlier echoes never feed
// later ones. Offsets are bounded by len(s) before any integer conversion, so
// every finite delay is safe.
func addReverb(s waveform.Signal, p Reverb) {
	if p.Echoes <= 0 || p.Decay == 0 {
		return
	}
	delaySamples := p.Delay * waveform.SampleRate
	if delaySamples >= float64(len(s)) {
		return
	}
	delay := int(delaySamples)
	if delay == 0 {
		// Every echo lands on the dry sample itself.
		floats.Scale(1+echoGainSum(p.Decay, p.Echoes), s)
		return
	}
	dry := append(waveform.Signal(nil), s...)
	last := min(p.Echoes, (len(s)-1)/delay)
	for i := 1; i <= last; i++ {
		offset := i * delay
		gain := math.Min(math.Pow(p.Decay, float64(i)), math.MaxFloat64)
		floats.AddScaled(s[offset:], gain, dry[:len(s)-offset])
	}
}

// echoGainSum is decay + decay^2 + ... + decay^n in closed form, capped to a
// finite value.
func echoGainSum(decay float64, n int) float64 {
	var sum float64
	if decay == 1 {
		sum = float64(n)
	} else {
		sum = decay * (1 - math.Pow(decay, float64(n))) / (1 - decay)
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return math.MaxFloat64
	}
	return math.Min(sum, math.MaxFloat64)
}

func addTonal(s waveform.Signal, p Tonal) {
	if p.Amplitude == 0 {
		return
	}
	step := 2 * math.Pi * p.Freq / waveform.SampleRate
	for i := range s {
		s[i] += p.Amplitude * math.Sin(step*float64(i))
	}
}

func addHum(s waveform.Signal, p Hum) {
	if p.Amplitude == 0 {
		return
	}
	for k := 1; k <= p.Harmonics; k++ {
		addTonal(s, Tonal{Freq: p.BaseFreq * float64(k), Amplitude: p.Amplitude / float64(k)})
	}
}
