package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"time"
	"unicode/utf8"

	"github.com/loqalabs/codecbench/internal/engine"
)

//go:embed report.html.tmpl
var htmlSource string

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct":       func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"rateClass": RateClass,
	"truncate":  truncate,
	"trialRate": func(t engine.Trial) float64 { return rate(t.Successes(), t.Attempts()) },
	"inc":       func(i int) int { return i + 1 },
}).Parse(htmlSource))

type htmlView struct {
	Generated time.Time
	Summary   Summary
	Groups    []engine.GroupResult
}

// WriteHTML renders the standalone HTML report.
func WriteHTML(w io.Writer, res *engine.Results) error {
	view := htmlView{
		Generated: res.FinishedAt,
		Summary:   Summarize(res),
		Groups:    res.Groups,
	}
	if view.Generated.IsZero() {
		view.Generated = time.Now()
	}
	return htmlTemplate.Execute(w, view)
}

const truncateRunes = 300

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= truncateRunes {
		return s
	}
	r := []rune(s)
	return string(r[:truncateRunes]) + "..."
}
