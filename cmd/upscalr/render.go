package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/loykin/upscalr/internal/batch"
)

var (
	colorTitle  = lipgloss.Color("#7C3AED")
	colorOK     = lipgloss.Color("#10B981")
	colorWarn   = lipgloss.Color("#F59E0B")
	colorError  = lipgloss.Color("#EF4444")
	colorMuted  = lipgloss.Color("#9CA3AF")
	colorBorder = lipgloss.Color("#374151")

	titleStyle = lipgloss.NewStyle().Foreground(colorTitle).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(colorOK)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn)
	errorStyle = lipgloss.NewStyle().Foreground(colorError)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	labelStyle = lipgloss.NewStyle().Width(11)
	summaryBox = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1)
)

// maxListedFailures caps the failure list; the rest is counted.
const maxListedFailures = 10

func renderSummary(w io.Writer, s batch.Summary) {
	row := func(label string, style lipgloss.Style, value any) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), style.Render(fmt.Sprint(value)))
	}
	rows := []string{
		titleStyle.Render("Batch summary"),
		row("jobs", lipgloss.NewStyle(), s.Total),
		row("succeeded", okStyle, s.Succeeded),
		row("failed", errorStyle, s.Failed),
		row("cancelled", warnStyle, s.Cancelled),
		row("wall", mutedStyle, s.Wall.Round(time.Millisecond)),
		row("p50", mutedStyle, s.P50.Round(time.Millisecond)),
		row("p95", mutedStyle, s.P95.Round(time.Millisecond)),
		row("p99", mutedStyle, s.P99.Round(time.Millisecond)),
		row("max", mutedStyle, s.Max.Round(time.Millisecond)),
	}
	for i, f := range s.Failures {
		if i == maxListedFailures {
			rows = append(rows, mutedStyle.Render(fmt.Sprintf("... and %d more", len(s.Failures)-i)))
			break
		}
		rows = append(rows, errorStyle.Render(fmt.Sprintf("x %s: %s", filepath.Base(f.Input), f.Error)))
	}
	_, _ = fmt.Fprintln(w, summaryBox.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}
