package engine

import (
	"encoding/json"
	"time"

	"github.com/loqalabs/codecbench/internal/noise"
	"github.com/loqalabs/codecbench/internal/similarity"
)

// Record is the outcome of one decode attempt: either a scored decode or an
// error, never both.
type Record struct {
	Decoded    string
	Similarity float64
	Success    bool
	Err        string
}

func scored(expected, decoded string) Record {
	sim := similarity.Score(expected, decoded)
	return Record{Decoded: decoded, Similarity: sim, Success: similarity.Succeeded(sim)}
}

// failed never yields an empty Err, which would read back as a scored record.
func failed(err error) Record {
	msg := err.Error()
	if msg == "" {
		msg = "unknown error"
	}
	return Record{Err: msg}
}

// Failed reports whether the record carries an error instead of a score.
func (r Record) Failed() bool { return r.Err != "" }

type recordJSON struct {
	Decoded    *string  `json:"decoded,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
	Success    *bool    `json:"success,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(recordJSON{Error: r.Err})
	}
	return json.Marshal(recordJSON{Decoded: &r.Decoded, Similarity: &r.Similarity, Success: &r.Success})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{Err: raw.Error}
	if raw.Decoded != nil {
		r.Decoded = *raw.Decoded
	}
	if raw.Similarity != nil {
		r.Similarity = *raw.Similarity
	}
	if raw.Success != nil {
		r.Success = *raw.Success
	}
	return nil
}

// CaseResult tags a record with the test case that produced it.
type CaseResult struct {
	TestCase noise.TestCase `json:"test_case"`
	Record   Record         `json:"record"`
}

// Trial is one payload's clean decode plus every noise case, in matrix order.
type Trial struct {
	Index    int          `json:"index"`
	Original string       `json:"original"`
	Clean    Record       `json:"clean"`
	Cases    []CaseResult `json:"noises"`
}

// Attempts is the number of evaluations the trial contributes to its group.
func (t Trial) Attempts() int { return 1 + len(t.Cases) }

// Successes counts successful records in the trial.
func (t Trial) Successes() int {
	n := 0
	if t.Clean.Success {
		n++
	}
	for _, c := range t.Cases {
		if c.Record.Success {
			n++
		}
	}
	return n
}

// GroupResult aggregates every trial of one payload length.
type GroupResult struct {
	Length          int     `json:"length"`
	TotalTests      int     `json:"total_tests"`
	SuccessfulTests int     `json:"successful_tests"`
	SuccessRate     float64 `json:"success_rate"`
	Trials          []Trial `json:"details"`
}

// Aggregate sums trials into a group result. The sums do not depend on trial
// order.
func Aggregate(length int, trials []Trial) GroupResult {
	g := GroupResult{Length: length, Trials: trials}
	for _, t := range trials {
		g.TotalTests += t.Attempts()
		g.SuccessfulTests += t.Successes()
	}
	if g.TotalTests > 0 {
		g.SuccessRate = float64(g.SuccessfulTests) / float64(g.TotalTests)
	}
	return g
}

// Results holds every group that finished aggregation.
type Results struct {
	RunID       string        `json:"run_id"`
	Seed        uint64        `json:"seed"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	CaseCount   int           `json:"case_count"`
	Interrupted bool          `json:"interrupted"`
	Groups      []GroupResult `json:"groups"`
}

// Group returns the first completed group with the given payload length.
func (r *Results) Group(length int) (GroupResult, bool) {
	for _, g := range r.Groups {
		if g.Length == length {
			return g, true
		}
	}
	return GroupResult{}, false
}

// Totals sums all completed groups.
func (r *Results) Totals() (total, successful int) {
	for _, g := range r.Groups {
		total += g.TotalTests
		successful += g.SuccessfulTests
	}
	return total, successful
}
