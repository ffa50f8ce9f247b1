package noise

import (
	"fmt"
	"math"
)

// Model identifies a noise model variant.
type Model string

const (
	ModelGaussian Model = "gaussian"
	ModelWhite    Model = "white"
	ModelImpulse  Model = "impulse"
	ModelReverb   Model = "reverb"
	ModelTonal    Model = "tonal"
	ModelHum      Model = "hum"
)

// Params is the closed set of typed parameter structs, one per Model.
type Params interface {
	Model() Model
	Validate() error
}

// Gaussian adds i.i.d. N(Mean, Sigma²) samples.
type Gaussian struct {
	Mean  float64
	Sigma float64
}

// WhiteSNR adds zero-mean Gaussian noise scaled to reach SNRdB against the
// signal's mean power.
type WhiteSNR struct {
	SNRdB float64
}

// Impulse adds ±Amplitude spikes to each sample with the given Probability.
type Impulse struct {
	Probability float64
	Amplitude   float64
}

// Reverb sums Echoes delayed copies, echo i delayed by i*Delay seconds and
// scaled by Decay^i.
type Reverb struct {
	Delay  float64
	Decay  float64
	Echoes int
}

// Tonal adds a single sinusoid.
type Tonal struct {
	Freq      float64
	Amplitude float64
}

// Hum adds Harmonics multiples of BaseFreq, harmonic k scaled by Amplitude/k.
type Hum struct {
	BaseFreq  float64
	Amplitude float64
	Harmonics int
}

func (Gaussian) Model() Model { return ModelGaussian }
func (WhiteSNR) Model() Model { return ModelWhite }
func (Impulse) Model() Model  { return ModelImpulse }
func (Reverb) Model() Model   { return ModelReverb }
func (Tonal) Model() Model    { return ModelTonal }
func (Hum) Model() Model      { return ModelHum }

func (p Gaussian) Validate() error {
	if err := finite("mean", p.Mean); err != nil {
		return err
	}
	return nonNegative("sigma", p.Sigma)
}

func (p WhiteSNR) Validate() error { return finite("snr_db", p.SNRdB) }

func (p Impulse) Validate() error {
	if err := finite("probability", p.Probability); err != nil {
		return err
	}
	if p.Probability < 0 || p.Probability > 1 {
		return fmt.Errorf("probability must be within [0, 1], got %v", p.Probability)
	}
	return nonNegative("amplitude", p.Amplitude)
}

func (p Reverb) Validate() error {
	if err := nonNegative("delay", p.Delay); err != nil {
		return err
	}
	if err := nonNegative("decay", p.Decay); err != nil {
		return err
	}
	if p.Echoes < 0 {
		return fmt.Errorf("num_echos must be >= 0, got %d", p.Echoes)
	}
	return nil
}

func (p Tonal) Validate() error {
	if err := nonNegative("freq", p.Freq); err != nil {
		return err
	}
	return finite("amplitude", p.Amplitude)
}

func (p Hum) Validate() error {
	if err := nonNegative("base_freq", p.BaseFreq); err != nil {
		return err
	}
	if err := finite("amplitude", p.Amplitude); err != nil {
		return err
	}
	if p.Harmonics < 0 {
		return fmt.Errorf("num_harmonics must be >= 0, got %d", p.Harmonics)
	}
	return nil
}

type binder struct {
	names    []string
	defaults []float64
	build    func(v []float64) (Params, error)
}

// binders lists each model's parameter names in canonical order together with
// the defaults used when a definition omits a name.
var binders = map[Model]binder{
	ModelGaussian: {
		names:    []string{"mean", "sigma"},
		defaults: []float64{0.0, 0.2},
		build: func(v []float64) (Params, error) {
			return Gaussian{Mean: v[0], Sigma: v[1]}, nil
		},
	},
	ModelWhite: {
		names:    []string{"snr_db"},
		defaults: []float64{20.0},
		build: func(v []float64) (Params, error) {
			return WhiteSNR{SNRdB: v[0]}, nil
		},
	},
	ModelImpulse: {
		names:    []string{"probability", "amplitude"},
		defaults: []float64{0.01, 0.5},
		build: func(v []float64) (Params, error) {
			return Impulse{Probability: v[0], Amplitude: v[1]}, nil
		},
	},
	ModelReverb: {
		names:    []string{"delay", "decay", "num_echos"},
		defaults: []float64{0.3, 0.5, 3},
		build: func(v []float64) (Params, error) {
			n, err := count("num_echos", v[2])
			if err != nil {
				return nil, err
			}
			return Reverb{Delay: v[0], Decay: v[1], Echoes: n}, nil
		},
	},
	ModelTonal: {
		names:    []string{"freq", "amplitude"},
		defaults: []float64{1000.0, 0.1},
		build: func(v []float64) (Params, error) {
			return Tonal{Freq: v[0], Amplitude: v[1]}, nil
		},
	},
	ModelHum: {
		names:    []string{"base_freq", "amplitude", "num_harmonics"},
		defaults: []float64{50.0, 0.1, 3},
		build: func(v []float64) (Params, error) {
			n, err := count("num_harmonics", v[2])
			if err != nil {
				return nil, err
			}
			return Hum{BaseFreq: v[0], Amplitude: v[1], Harmonics: n}, nil
		},
	},
}

// ParameterNames returns the canonical parameter order for m.
func ParameterNames(m Model) ([]string, bool) {
	b, ok := binders[m]
	if !ok {
		return nil, false
	}
	return append([]string(nil), b.names...), true
}

// Bind maps values positionally onto names and builds the typed parameters
// for m. Names the model does not declare are rejected; declared names that
// are absent keep their defaults.
func Bind(m Model, names []string, values []float64) (Params, error) {
	b, ok := binders[m]
	if !ok {
		return nil, fmt.Errorf("unknown noise model %q", m)
	}
	if len(names) != len(values) {
		return nil, fmt.Errorf("expected %d values for parameters %v, got %d", len(names), names, len(values))
	}
	bound := append([]float64(nil), b.defaults...)
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		idx := indexOf(b.names, name)
		if idx < 0 {
			return nil, fmt.Errorf("model %q has no parameter %q", m, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("parameter %q bound twice", name)
		}
		seen[name] = true
		bound[idx] = values[i]
	}
	p, err := b.build(bound)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func count(name string, v float64) (int, error) {
	if err := nonNegative(name, v); err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%s must be a whole number, got %v", name, v)
	}
	return int(v), nil
}

func finite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be finite", name)
	}
	return nil
}

func nonNegative(name string, v float64) error {
	if err := finite(name, v); err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("%s must be >= 0, got %v", name, v)
	}
	return nil
}
