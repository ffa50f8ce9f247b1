package resultstore

import (
	"context"
	"log/slog"

	"github.com/loqalabs/codecbench/internal/engine"
)

// Observer persists engine progress. Write failures are logged and never
// interrupt the evaluation.
func (s *Store) Observer(ctx context.Context) engine.Observer {
	return engine.ObserverFunc(func(ev engine.Event) {
		if s.disabled() {
			return
		}
		var err error
		switch ev.Kind {
		case engine.EventRunStarted:
			err = s.BeginRun(ctx, ev.RunID, ev.Results.Seed, ev.Results.CaseCount)
		case engine.EventRecord:
			err = s.AppendRecord(ctx, rowFromEvent(ev))
		case engine.EventGroupCompleted:
			err = s.CompleteGroup(ctx, ev.RunID, *ev.GroupResult)
		case engine.EventRunCompleted:
			err = s.FinishRun(ctx, ev.RunID, false)
		case engine.EventRunInterrupted:
			// ctx is usually cancelled by now
			err = s.FinishRun(context.WithoutCancel(ctx), ev.RunID, true)
		}
		if err != nil {
			s.log.Warn("failed to persist progress",
				slog.String("event", string(ev.Kind)),
				slog.String("error", err.Error()))
		}
	})
}

func rowFromEvent(ev engine.Event) RecordRow {
	row := RecordRow{
		RunID:        ev.RunID,
		GroupLength:  ev.Group,
		PayloadIndex: ev.PayloadIndex,
		CaseIndex:    ev.CaseIndex,
		Noise:        "clean",
		Difficulty:   "none",
		Original:     ev.Original,
		CreatedAt:    ev.Time,
	}
	if ev.TestCase != nil {
		row.Noise = ev.TestCase.Name
		row.Params = ev.TestCase.ParamString
		row.Difficulty = ev.TestCase.Difficulty.String()
	}
	if ev.Record != nil {
		row.Decoded = ev.Record.Decoded
		row.Similarity = ev.Record.Similarity
		row.Success = ev.Record.Success
		row.Error = ev.Record.Err
	}
	return row
}
