package engine

import (
	"log/slog"
)

// LogObserver writes progress through slog. In verbose mode every record is
// logged; otherwise one line per payload and per group.
func LogObserver(log *slog.Logger, verbose bool) Observer {
	log = log.With(slog.String("component", "progress"))
	return ObserverFunc(func(ev Event) {
		switch ev.Kind {
		case EventGroupStarted:
			log.Info("testing group", slog.Int("length", ev.Group))
		case EventRecord:
			if !verbose {
				return
			}
			name, params := "clean", ""
			if ev.TestCase != nil {
				name, params = ev.TestCase.Name, ev.TestCase.ParamString
			}
			attrs := []any{
				slog.Int("group", ev.Group),
				slog.Int("payload", ev.PayloadIndex+1),
				slog.String("noise", name),
				slog.String("params", params),
			}
			if ev.Record.Failed() {
				log.Warn("decode failed", append(attrs, slog.String("error", ev.Record.Err))...)
				return
			}
			log.Info("decoded", append(attrs, slog.Float64("similarity", ev.Record.Similarity), slog.Bool("success", ev.Record.Success))...)
		case EventTrialCompleted:
			log.Info("payload evaluated",
				slog.Int("group", ev.Group),
				slog.Int("payload", ev.PayloadIndex+1),
				slog.Int("successful", ev.Trial.Successes()),
				slog.Int("total", ev.Trial.Attempts()))
		case EventGroupCompleted:
			log.Info("group result",
				slog.Int("length", ev.Group),
				slog.Int("successful_tests", ev.GroupResult.SuccessfulTests),
				slog.Int("total_tests", ev.GroupResult.TotalTests),
				slog.Float64("success_rate", ev.GroupResult.SuccessRate))
		}
	})
}
