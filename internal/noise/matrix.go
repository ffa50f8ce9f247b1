package noise

import (
	"fmt"
	"strconv"
	"strings"
)

// ConfigError reports a catalogue authoring bug. Case is -1 when the problem
// concerns the definition as a whole.
type ConfigError struct {
	Definition string
	Case       int
	Err        error
}

func (e *ConfigError) Error() string {
	if e.Case < 0 {
		return fmt.Sprintf("noise definition %q: %v", e.Definition, e.Err)
	}
	return fmt.Sprintf("noise definition %q case %d: %v", e.Definition, e.Case, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Parameter is one bound name/value pair, kept in declaration order.
type Parameter struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// TestCase is one fully bound transform invocation.
type TestCase struct {
	Index       int         `json:"index"`
	Name        string      `json:"name"`
	Model       Model       `json:"model"`
	Parameters  []Parameter `json:"parameters"`
	ParamString string      `json:"params"`
	Difficulty  Difficulty  `json:"difficulty"`
	Params      Params      `json:"-"`
}

// DisplayName combines the definition name and its bound parameters.
func (tc TestCase) DisplayName() string {
	return tc.Name + " (" + tc.ParamString + ")"
}

// Expand flattens defs into test cases in definition-then-case order. It
// fails on the first arity mismatch, unknown model or out-of-domain value.
func Expand(defs []Definition) ([]TestCase, error) {
	var out []TestCase
	for _, def := range defs {
		if _, ok := binders[def.Model]; !ok {
			return nil, &ConfigError{Definition: def.Name, Case: -1, Err: fmt.Errorf("unknown noise model %q", def.Model)}
		}
		for ci, c := range def.Cases {
			if len(c.Values) != len(def.ParameterNames) {
				return nil, &ConfigError{
					Definition: def.Name,
					Case:       ci,
					Err:        fmt.Errorf("got %d values for %d parameters %v", len(c.Values), len(def.ParameterNames), def.ParameterNames),
				}
			}
			params, err := Bind(def.Model, def.ParameterNames, c.Values)
			if err != nil {
				return nil, &ConfigError{Definition: def.Name, Case: ci, Err: err}
			}
			bound := make([]Parameter, len(c.Values))
			parts := make([]string, len(c.Values))
			for i, v := range c.Values {
				bound[i] = Parameter{Name: def.ParameterNames[i], Value: v}
				parts[i] = def.ParameterNames[i] + "=" + strconv.FormatFloat(v, 'g', -1, 64)
			}
			out = append(out, TestCase{
				Index:       len(out),
				Name:        def.Name,
				Model:       def.Model,
				Parameters:  bound,
				ParamString: strings.Join(parts, ", "),
				Difficulty:  c.Difficulty,
				Params:      params,
			})
		}
	}
	return out, nil
}
