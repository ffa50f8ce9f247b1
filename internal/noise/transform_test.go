package noise

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/mjibson/go-dsp/fft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/codecbench/internal/waveform"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func randomSignal(rng *rand.Rand, n int) waveform.Signal {
	s := make(waveform.Signal, n)
	for i := range s {
		s[i] = rng.Float64()*2 - 1
	}
	return s
}

func harshParams() []Params {
	return []Params{
		Gaussian{Mean: 0.3, Sigma: 2},
		WhiteSNR{SNRdB: -20},
		Impulse{Probability: 0.5, Amplitude: 3},
		Reverb{Delay: 0.0001, Decay: 0.99, Echoes: 8},
		Tonal{Freq: 440, Amplitude: 5},
		Hum{BaseFreq: 60, Amplitude: 4, Harmonics: 6},
	}
}

func TestApplyOutputStaysInRange(t *testing.T) {
	rng := newRand(7)
	for _, p := range harshParams() {
		for _, n := range []int{0, 1, 17, 4096} {
			in := randomSignal(rng, n)
			out := Apply(in, p, rng)
			require.Len(t, out, n, "model %s", p.Model())
			for i, v := range out {
				require.Truef(t, v >= -1 && v <= 1, "model %s sample %d = %v", p.Model(), i, v)
			}
		}
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	rng := newRand(1)
	in := randomSignal(rng, 512)
	orig := append(waveform.Signal(nil), in...)
	for _, p := range harshParams() {
		_ = Apply(in, p, rng)
		require.Equal(t, orig, in, "model %s mutated its input", p.Model())
	}
}

func TestGaussianZeroSigmaIsIdentity(t *testing.T) {
	rng := newRand(3)
	in := randomSignal(rng, 1000)
	out := Apply(in, Gaussian{Mean: 0, Sigma: 0}, rng)
	assert.Equal(t, in, out)
}

func TestWhiteNoiseOnSilence(t *testing.T) {
	rng := newRand(5)
	silent := make(waveform.Signal, 2048)
	out := Apply(silent, WhiteSNR{SNRdB: 0}, rng)
	assert.Equal(t, silent, out)

	assert.Empty(t, Apply(waveform.Signal{}, WhiteSNR{SNRdB: 10}, rng))
}

func TestWhiteNoiseHitsTargetSNR(t *testing.T) {
	rng := newRand(11)
	in := make(waveform.Signal, 200000)
	for i := range in {
		in[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/waveform.SampleRate)
	}
	out := Apply(in, WhiteSNR{SNRdB: 10}, rng)

	var signalPower, noisePower float64
	for i := range in {
		signalPower += in[i] * in[i]
		d := out[i] - in[i]
		noisePower += d * d
	}
	snr := 10 * math.Log10(signalPower/noisePower)
	assert.InDelta(t, 10, snr, 0.2)
}

func TestWhiteNoiseExtremeSNRSaturates(t *testing.T) {
	rng := newRand(17)
	in := make(waveform.Signal, 256)
	for i := range in {
		in[i] = 0.5 * math.Sin(float64(i)/8)
	}
	p, err := Bind(ModelWhite, []string{"snr_db"}, []float64{-1e6})
	require.NoError(t, err)
	out := Apply(in, p, rng)
	for i, v := range out {
		assert.Equal(t, 1.0, math.Abs(v), "sample %d", i)
	}
}

func TestReverbWithoutEchoesIsIdentity(t *testing.T) {
	rng := newRand(9)
	in := randomSignal(rng, 3000)
	assert.Equal(t, in, Apply(in, Reverb{Delay: 0.01, Decay: 0.5, Echoes: 0}, rng))
	assert.Equal(t, in, Apply(in, Reverb{Delay: 0.01, Decay: 0, Echoes: 4}, rng))
}

func TestReverbEchoPlacement(t *testing.T) {
	in := make(waveform.Signal, 1000)
	in[0] = 0.5
	out := Apply(in, Reverb{Delay: samples(100), Decay: 0.5, Echoes: 3}, nil)

	assert.InDelta(t, 0.5, out[0], 1e-12)
	assert.InDelta(t, 0.25, out[100], 1e-12)
	assert.InDelta(t, 0.125, out[200], 1e-12)
	assert.InDelta(t, 0.0625, out[300], 1e-12)
	assert.Equal(t, 0.0, out[400])
	assert.Equal(t, 0.0, out[50])
}

func TestReverbClampsOnceAfterSumming(t *testing.T) {
	in := waveform.Signal{-0.9, 0.9, 0.9}
	out := Apply(in, Reverb{Delay: samples(1), Decay: 1, Echoes: 2}, nil)
	// Index 2 peaks at 1.8 after the first echo; clamping only at the end
	// lets the second echo bring it back to 0.9.
	assert.InDelta(t, -0.9, out[0], 1e-12)
	assert.InDelta(t, 0.0, out[1], 1e-12)
	assert.InDelta(t, 0.9, out[2], 1e-12)
}

func TestReverbHugeDelayIsIdentity(t *testing.T) {
	p, err := Bind(ModelReverb, []string{"delay", "decay", "num_echos"}, []float64{1e15, 0.5, 2})
	require.NoError(t, err)
	in := randomSignal(newRand(21), 100)
	assert.Equal(t, in, Apply(in, p, nil))
}

func TestReverbZeroDelayFoldsEchoes(t *testing.T) {
	in := waveform.Signal{0.1, -0.2, 0}
	out := Apply(in, Reverb{Delay: 0, Decay: 0.5, Echoes: 1 << 40}, nil)
	// 1 + 0.5 + 0.25 + ... approaches 2.
	assert.InDelta(t, 0.2, out[0], 1e-9)
	assert.InDelta(t, -0.4, out[1], 1e-9)
	assert.Equal(t, 0.0, out[2])

	loud := Apply(waveform.Signal{0.1, -0.1}, Reverb{Delay: 0, Decay: 3, Echoes: 1 << 40}, nil)
	assert.Equal(t, waveform.Signal{1, -1}, loud)
}

func TestReverbManyEchoesStopAtSignalEnd(t *testing.T) {
	in := make(waveform.Signal, 10)
	in[0] = 0.5
	out := Apply(in, Reverb{Delay: samples(3), Decay: 0.5, Echoes: 1 << 40}, nil)
	assert.InDelta(t, 0.25, out[3], 1e-12)
	assert.InDelta(t, 0.125, out[6], 1e-12)
	assert.InDelta(t, 0.0625, out[9], 1e-12)
}

// samples converts a sample count to a delay in seconds that truncates back
// to exactly n samples.
func samples(n int) float64 {
	return (float64(n) + 0.5) / waveform.SampleRate
}

func TestImpulseCertainHitsEverySample(t *testing.T) {
	rng := newRand(13)
	out := Apply(make(waveform.Signal, 500), Impulse{Probability: 1, Amplitude: 0.5}, rng)
	var pos, neg int
	for _, v := range out {
		switch v {
		case 0.5:
			pos++
		case -0.5:
			neg++
		default:
			t.Fatalf("unexpected sample %v", v)
		}
	}
	assert.Greater(t, pos, 150)
	assert.Greater(t, neg, 150)
}

func TestImpulseZeroProbabilityIsIdentity(t *testing.T) {
	rng := newRand(17)
	in := randomSignal(rng, 256)
	assert.Equal(t, in, Apply(in, Impulse{Probability: 0, Amplitude: 1}, rng))
}

func spectrumPeak(s waveform.Signal) (int, []float64) {
	spectrum := fft.FFTReal(s)
	mags := make([]float64, len(spectrum)/2)
	peak := 0
	for i := range mags {
		mags[i] = cmplx.Abs(spectrum[i])
		if mags[i] > mags[peak] {
			peak = i
		}
	}
	return peak, mags
}

func TestTonalNoiseFrequency(t *testing.T) {
	// One second of audio gives 1 Hz bins.
	out := Apply(make(waveform.Signal, waveform.SampleRate), Tonal{Freq: 1000, Amplitude: 0.1}, nil)
	peak, _ := spectrumPeak(out)
	assert.Equal(t, 1000, peak)
	assert.InDelta(t, 0.0, out[0], 1e-12)
}

func TestHumHarmonicsDecay(t *testing.T) {
	out := Apply(make(waveform.Signal, waveform.SampleRate), Hum{BaseFreq: 50, Amplitude: 0.3, Harmonics: 3}, nil)
	peak, mags := spectrumPeak(out)
	assert.Equal(t, 50, peak)
	assert.InDelta(t, mags[50]/2, mags[100], mags[50]*0.01)
	assert.InDelta(t, mags[50]/3, mags[150], mags[50]*0.01)
	assert.Less(t, mags[200], mags[50]*0.001)
}

func TestApplyIsReproducibleWithSeed(t *testing.T) {
	in := randomSignal(newRand(2), 1024)
	for _, p := range harshParams() {
		a := Apply(in, p, newRand(99))
		b := Apply(in, p, newRand(99))
		assert.Equal(t, a, b, "model %s", p.Model())
	}
}
