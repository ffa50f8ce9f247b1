package protocol

import "time"

// ProgressEvent is the wire form of an evaluation progress notification.
type ProgressEvent struct {
	Kind         string    `json:"kind"`
	RunID        string    `json:"run_id"`
	Timestamp    time.Time `json:"timestamp"`
	Group        int       `json:"group,omitempty"`
	PayloadIndex int       `json:"payload_index"`
	CaseIndex    int       `json:"case_index"`
	Noise        string    `json:"noise,omitempty"`
	Params       string    `json:"params,omitempty"`
	Difficulty   string    `json:"difficulty,omitempty"`
	Decoded      string    `json:"decoded,omitempty"`
	Similarity   float64   `json:"similarity,omitempty"`
	Success      bool      `json:"success,omitempty"`
	Error        string    `json:"error,omitempty"`
	Total        int       `json:"total_tests,omitempty"`
	Successful   int       `json:"successful_tests,omitempty"`
	SuccessRate  float64   `json:"success_rate,omitempty"`
	Interrupted  bool      `json:"interrupted,omitempty"`
}

const (
	// SubjectProgressPrefix is followed by ".<kind>".
	SubjectProgressPrefix = "codecbench.progress"
)
