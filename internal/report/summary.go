// Package report renders evaluation results for people and spreadsheets.
package report

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/loqalabs/codecbench/internal/engine"
)

// Summary condenses a run into per-group and per-noise figures.
type Summary struct {
	RunID       string         `json:"run_id"`
	Seed        uint64         `json:"seed"`
	Interrupted bool           `json:"interrupted"`
	CaseCount   int            `json:"case_count"`
	TotalTests  int            `json:"total_tests"`
	Successful  int            `json:"successful_tests"`
	SuccessRate float64        `json:"success_rate"`
	Groups      []GroupSummary `json:"groups"`
	Noises      []NoiseSummary `json:"noises"`
}

type GroupSummary struct {
	Length           int     `json:"length"`
	Payloads         int     `json:"payloads"`
	TotalTests       int     `json:"total_tests"`
	SuccessfulTests  int     `json:"successful_tests"`
	SuccessRate      float64 `json:"success_rate"`
	Errors           int     `json:"errors"`
	CleanSuccesses   int     `json:"clean_successes"`
	MeanSimilarity   float64 `json:"mean_similarity"`
	MedianSimilarity float64 `json:"median_similarity"`
	P10Similarity    float64 `json:"p10_similarity"`
}

// NoiseSummary covers one test case across every completed group.
type NoiseSummary struct {
	Index          int     `json:"index"`
	Name           string  `json:"name"`
	Params         string  `json:"params"`
	Difficulty     string  `json:"difficulty"`
	Attempts       int     `json:"attempts"`
	Successes      int     `json:"successes"`
	Errors         int     `json:"errors"`
	SuccessRate    float64 `json:"success_rate"`
	MeanSimilarity float64 `json:"mean_similarity"`
}

// Summarize walks completed groups only. Similarity statistics ignore
// records that carry an error.
func Summarize(res *engine.Results) Summary {
	sum := Summary{
		RunID:       res.RunID,
		Seed:        res.Seed,
		Interrupted: res.Interrupted,
		CaseCount:   res.CaseCount,
	}
	sum.TotalTests, sum.Successful = res.Totals()
	sum.SuccessRate = rate(sum.Successful, sum.TotalTests)

	noiseIdx := map[int]int{}
	noiseSims := map[int][]float64{}

	for _, g := range res.Groups {
		gs := GroupSummary{
			Length:          g.Length,
			Payloads:        len(g.Trials),
			TotalTests:      g.TotalTests,
			SuccessfulTests: g.SuccessfulTests,
			SuccessRate:     g.SuccessRate,
		}
		var sims []float64
		for _, t := range g.Trials {
			if t.Clean.Failed() {
				gs.Errors++
			} else {
				sims = append(sims, t.Clean.Similarity)
			}
			if t.Clean.Success {
				gs.CleanSuccesses++
			}
			for _, c := range t.Cases {
				i, ok := noiseIdx[c.TestCase.Index]
				if !ok {
					i = len(sum.Noises)
					noiseIdx[c.TestCase.Index] = i
					sum.Noises = append(sum.Noises, NoiseSummary{
						Index:      c.TestCase.Index,
						Name:       c.TestCase.Name,
						Params:     c.TestCase.ParamString,
						Difficulty: c.TestCase.Difficulty.String(),
					})
				}
				ns := &sum.Noises[i]
				ns.Attempts++
				if c.Record.Success {
					ns.Successes++
				}
				if c.Record.Failed() {
					gs.Errors++
					ns.Errors++
					continue
				}
				sims = append(sims, c.Record.Similarity)
				noiseSims[i] = append(noiseSims[i], c.Record.Similarity)
			}
		}
		gs.MeanSimilarity, gs.MedianSimilarity, gs.P10Similarity = describe(sims)
		sum.Groups = append(sum.Groups, gs)
	}

	for i := range sum.Noises {
		ns := &sum.Noises[i]
		ns.SuccessRate = rate(ns.Successes, ns.Attempts)
		ns.MeanSimilarity, _, _ = describe(noiseSims[i])
	}
	return sum
}

func describe(data []float64) (mean, median, p10 float64) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	mean, _ = stats.Mean(data)
	median, _ = stats.Median(data)
	p10, err := stats.PercentileNearestRank(data, 10)
	if err != nil || math.IsNaN(p10) {
		p10 = 0
	}
	return mean, median, p10
}

func rate(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// RateClass buckets a rate the way the console and HTML renderers color it.
func RateClass(r float64) string {
	switch {
	case r >= 0.9:
		return "success"
	case r >= 0.8:
		return "warning"
	case r >= 0.7:
		return "critical"
	default:
		return "danger"
	}
}
