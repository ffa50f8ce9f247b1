package report

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/loqalabs/codecbench/internal/config"
	"github.com/loqalabs/codecbench/internal/engine"
)

type writerFunc func(io.Writer, *engine.Results) error

// WriteAll renders every report whose path is configured. A failing format
// does not stop the others.
func WriteAll(cfg config.ReportConfig, res *engine.Results, log *slog.Logger) error {
	targets := []struct {
		format string
		path   string
		write  writerFunc
	}{
		{"json", cfg.JSONPath, WriteJSON},
		{"html", cfg.HTMLPath, WriteHTML},
		{"xlsx", cfg.XLSXPath, WriteXLSX},
	}

	var errs []error
	for _, t := range targets {
		if t.path == "" {
			continue
		}
		if err := writeFile(t.path, res, t.write); err != nil {
			errs = append(errs, fmt.Errorf("write %s report: %w", t.format, err))
			continue
		}
		log.Info("report written", slog.String("format", t.format), slog.String("path", t.path))
	}
	return errors.Join(errs...)
}

func writeFile(path string, res *engine.Results, write writerFunc) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f, res)
}

// LogSummary prints the run outcome as structured log lines.
func LogSummary(log *slog.Logger, res *engine.Results) {
	sum := Summarize(res)
	for _, g := range sum.Groups {
		log.Info("group summary",
			slog.Int("length", g.Length),
			slog.Int("total_tests", g.TotalTests),
			slog.Int("successful_tests", g.SuccessfulTests),
			slog.String("success_rate", fmt.Sprintf("%.1f%%", g.SuccessRate*100)),
			slog.String("class", RateClass(g.SuccessRate)),
			slog.Int("errors", g.Errors),
			slog.Float64("median_similarity", g.MedianSimilarity),
		)
	}
	log.Info("run summary",
		slog.String("run_id", sum.RunID),
		slog.Uint64("seed", sum.Seed),
		slog.Bool("interrupted", sum.Interrupted),
		slog.Int("groups", len(sum.Groups)),
		slog.Int("total_tests", sum.TotalTests),
		slog.Int("successful_tests", sum.Successful),
		slog.String("success_rate", fmt.Sprintf("%.1f%%", sum.SuccessRate*100)),
	)
}
