package noise

import (
	"fmt"
	"strings"

	"github.com/loqalabs/codecbench/internal/config"
)

// Difficulty is a coarse severity label used only for reporting.
type Difficulty int

const (
	DifficultyNone Difficulty = iota
	DifficultyEasy
	DifficultyMedium
	DifficultyHard
	DifficultyExtreme
)

var difficultyNames = [...]string{"none", "easy", "medium", "hard", "extreme"}

func (d Difficulty) String() string {
	if d < 0 || int(d) >= len(difficultyNames) {
		return fmt.Sprintf("difficulty(%d)", int(d))
	}
	return difficultyNames[d]
}

func (d Difficulty) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Difficulty) UnmarshalText(text []byte) error {
	parsed, err := ParseDifficulty(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDifficulty accepts the lower-case label; an empty label means none.
func ParseDifficulty(s string) (Difficulty, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DifficultyNone, nil
	}
	for i, name := range difficultyNames {
		if name == s {
			return Difficulty(i), nil
		}
	}
	return DifficultyNone, fmt.Errorf("unknown difficulty %q", s)
}

// Case is one parameter tuple of a Definition.
type Case struct {
	Values     []float64
	Difficulty Difficulty
}

// Definition is a named noise model with its parameter labels and cases.
type Definition struct {
	Name           string
	Model          Model
	ParameterNames []string
	Cases          []Case
}

// DefaultCatalogue is the built-in catalogue used when no noise section is
// configured.
func DefaultCatalogue() []Definition {
	return []Definition{
		{
			Name:           "Gaussian noise",
			Model:          ModelGaussian,
			ParameterNames: []string{"mean", "sigma"},
			Cases: []Case{
				{Values: []float64{0.0, 0.05}, Difficulty: DifficultyEasy},
				{Values: []float64{0.0, 0.2}, Difficulty: DifficultyMedium},
				{Values: []float64{0.0, 0.5}, Difficulty: DifficultyHard},
				{Values: []float64{0.0, 1}, Difficulty: DifficultyExtreme},
			},
		},
		{
			Name:           "White noise",
			Model:          ModelWhite,
			ParameterNames: []string{"snr_db"},
			Cases: []Case{
				{Values: []float64{30.0}, Difficulty: DifficultyEasy},
				{Values: []float64{15.0}, Difficulty: DifficultyMedium},
				{Values: []float64{5.0}, Difficulty: DifficultyHard},
				{Values: []float64{0.0}, Difficulty: DifficultyExtreme},
			},
		},
		{
			Name:           "Impulse noise",
			Model:          ModelImpulse,
			ParameterNames: []string{"probability", "amplitude"},
			Cases: []Case{
				{Values: []float64{0.01, 0.5}, Difficulty: DifficultyMedium},
				{Values: []float64{0.02, 0.8}, Difficulty: DifficultyHard},
				{Values: []float64{0.05, 1.0}, Difficulty: DifficultyExtreme},
			},
		},
		{
			Name:           "Reverberation",
			Model:          ModelReverb,
			ParameterNames: []string{"delay", "decay", "num_echos"},
			Cases: []Case{
				{Values: []float64{0.1, 0.7, 2}, Difficulty: DifficultyMedium},
				{Values: []float64{0.5, 0.3, 5}, Difficulty: DifficultyExtreme},
			},
		},
		{
			Name:           "Tonal noise",
			Model:          ModelTonal,
			ParameterNames: []string{"freq", "amplitude"},
			Cases: []Case{
				{Values: []float64{1000.0, 0.05}, Difficulty: DifficultyEasy},
				{Values: []float64{2000.0, 0.1}, Difficulty: DifficultyMedium},
				{Values: []float64{4000.0, 0.2}, Difficulty: DifficultyHard},
				{Values: []float64{8000.0, 0.3}, Difficulty: DifficultyExtreme},
			},
		},
		{
			Name:           "AC hum",
			Model:          ModelHum,
			ParameterNames: []string{"base_freq", "amplitude", "num_harmonics"},
			Cases: []Case{
				{Values: []float64{50.0, 0.05, 2}, Difficulty: DifficultyEasy},
				{Values: []float64{50.0, 0.1, 3}, Difficulty: DifficultyMedium},
				{Values: []float64{60.0, 0.2, 4}, Difficulty: DifficultyHard},
				{Values: []float64{50.0, 0.3, 5}, Difficulty: DifficultyExtreme},
			},
		},
	}
}

// FromConfig converts the configured catalogue. An empty slice yields the
// default catalogue. Arity is not checked here; Expand reports it.
func FromConfig(defs []config.NoiseDefinition) ([]Definition, error) {
	if len(defs) == 0 {
		return DefaultCatalogue(), nil
	}
	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		def := Definition{
			Name:           d.Name,
			Model:          Model(strings.ToLower(strings.TrimSpace(d.Model))),
			ParameterNames: append([]string(nil), d.Parameters...),
		}
		if len(def.ParameterNames) == 0 {
			def.ParameterNames, _ = ParameterNames(def.Model)
		}
		for i, c := range d.Cases {
			diff, err := ParseDifficulty(c.Difficulty)
			if err != nil {
				return nil, &ConfigError{Definition: d.Name, Case: i, Err: err}
			}
			def.Cases = append(def.Cases, Case{Values: append([]float64(nil), c.Values...), Difficulty: diff})
		}
		out = append(out, def)
	}
	return out, nil
}
