package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/loqalabs/codecbench/internal/engine"
)

// Document is the JSON report: the summary plus every completed group keyed
// by payload length.
type Document struct {
	RunID       string                     `json:"run_id"`
	Seed        uint64                     `json:"seed"`
	StartedAt   time.Time                  `json:"started_at"`
	FinishedAt  time.Time                  `json:"finished_at"`
	Interrupted bool                       `json:"interrupted"`
	Summary     Summary                    `json:"summary"`
	Results     map[int]engine.GroupResult `json:"results"`
}

func NewDocument(res *engine.Results) Document {
	doc := Document{
		RunID:       res.RunID,
		Seed:        res.Seed,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
		Interrupted: res.Interrupted,
		Summary:     Summarize(res),
		Results:     make(map[int]engine.GroupResult, len(res.Groups)),
	}
	for _, g := range res.Groups {
		doc.Results[g.Length] = g
	}
	return doc
}

func WriteJSON(w io.Writer, res *engine.Results) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(res))
}
