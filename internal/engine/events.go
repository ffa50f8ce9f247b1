package engine

import (
	"time"

	"github.com/loqalabs/codecbench/internal/noise"
)

type EventKind string

const (
	EventRunStarted     EventKind = "run_started"
	EventGroupStarted   EventKind = "group_started"
	EventRecord         EventKind = "record"
	EventTrialCompleted EventKind = "trial_completed"
	EventGroupCompleted EventKind = "group_completed"
	EventRunCompleted   EventKind = "run_completed"
	EventRunInterrupted EventKind = "run_interrupted"
)

// CleanCase is the CaseIndex of the clean-channel record.
const CleanCase = -1

// Event is a progress notification. Fields irrelevant to Kind are zero.
type Event struct {
	Kind         EventKind
	RunID        string
	Time         time.Time
	Group        int
	PayloadIndex int
	CaseIndex    int
	Original     string
	TestCase     *noise.TestCase
	Record       *Record
	Trial        *Trial
	GroupResult  *GroupResult
	Results      *Results
}

// Observer receives events synchronously from the evaluation flow, in
// evaluation order. Implementations must not block for long.
type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
