package runner

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/abhisek/tutorbench/internal/judge"
	"github.com/abhisek/tutorbench/internal/ui/components"
	"github.com/abhisek/tutorbench/internal/ui/theme"
)

// Report is what gets printed at the end of an evaluation.
type Report struct {
	Dataset  string
	Results  *Results
	Students int
	Duration time.Duration

	// Optional scores; nil when not requested.
	MSE      *float64
	LocalMSE *float64
	Tutoring map[string]any
}

const reportBarWidth = 40

// RenderReport writes a styled summary of an evaluation to w.
func RenderReport(w io.Writer, rep Report) error {
	var b strings.Builder

	b.WriteString(theme.Title.Render(fmt.Sprintf("Evaluation: %s", rep.Dataset)))
	b.WriteString("\n\n")

	sessions := rep.Results.Sessions()
	failed := len(rep.Results.Errors)

	row := func(label, value string) {
		b.WriteString(theme.Label.Render(label) + theme.Value.Render(value) + "\n")
	}
	row("Students", fmt.Sprintf("%d", rep.Students))
	row("Sessions completed", theme.Good.Render(fmt.Sprintf("%d", sessions)))
	if failed > 0 {
		row("Students with errors", theme.Bad.Render(fmt.Sprintf("%d", failed)))
	} else {
		row("Students with errors", "0")
	}
	row("Duration", rep.Duration.Round(time.Second).String())
	if rep.MSE != nil {
		row("MSE (platform)", fmt.Sprintf("%.4f", *rep.MSE))
	}
	if rep.LocalMSE != nil {
		row("MSE (local)", fmt.Sprintf("%.4f", *rep.LocalMSE))
	}

	if sessions > 0 {
		b.WriteString("\n" + theme.Title.Render("Predicted levels") + "\n")
		dist := rep.Results.Distribution()
		for level := judge.MinLevel; level <= judge.MaxLevel; level++ {
			label := fmt.Sprintf("%d %-11s", level, judge.LabelForLevel(level))
			b.WriteString(components.NewBar(label, dist[level], sessions, reportBarWidth).View() + "\n")
		}
	}

	if len(rep.Tutoring) > 0 {
		b.WriteString("\n" + theme.Title.Render("Tutoring quality") + "\n")
		keys := make([]string, 0, len(rep.Tutoring))
		for k := range rep.Tutoring {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			row(k, fmt.Sprintf("%v", rep.Tutoring[k]))
		}
	}

	if failed > 0 {
		b.WriteString("\n" + theme.Title.Render("Errors") + "\n")
		ids := make([]string, 0, failed)
		for id := range rep.Results.Errors {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			b.WriteString(theme.Bad.Render(id) + "  " + theme.Hint.Render(rep.Results.Errors[id]) + "\n")
		}
	}

	_, err := fmt.Fprintln(w, theme.Card.Render(strings.TrimRight(b.String(), "\n")))
	return err
}
