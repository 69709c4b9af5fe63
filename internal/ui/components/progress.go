package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/tutorbench/internal/ui/theme"
)

// Bar is a labelled horizontal bar with a trailing count.
type Bar struct {
	Label   string
	Count   int
	Percent float64
	Width   int
}

// NewBar creates a bar for count out of total.
func NewBar(label string, count, total, width int) Bar {
	var pct float64
	if total > 0 {
		pct = float64(count) / float64(total)
	}
	return Bar{Label: label, Count: count, Percent: pct, Width: width}
}

// View renders the bar.
func (b Bar) View() string {
	var result string

	if b.Label != "" {
		result += lipgloss.NewStyle().Foreground(theme.Text).Render(b.Label) + "  "
	}

	barWidth := b.Width - lipgloss.Width(result)
	if barWidth < 4 {
		barWidth = 4
	}

	filled := int(float64(barWidth) * b.Percent)
	filled = min(max(filled, 0), barWidth)
	empty := barWidth - filled

	result += lipgloss.NewStyle().
		Foreground(theme.Secondary).
		Render(strings.Repeat("█", filled))
	result += lipgloss.NewStyle().
		Foreground(theme.Border).
		Render(strings.Repeat("░", empty))

	result += lipgloss.NewStyle().
		Foreground(theme.TextDim).
		Render(fmt.Sprintf("  %d (%d%%)", b.Count, int(b.Percent*100+0.5)))

	return result
}
