package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// renderDiagnostics renders the worker counters overlay.
func (m Model) renderDiagnostics() string {
	s := m.worker
	var b strings.Builder

	b.WriteString(m.theme.Title.Render(" ═══ Diagnostics ═══ "))
	b.WriteString("\n\n")

	b.WriteString(m.theme.Dim.Render("Uptime: "))
	b.WriteString(m.theme.Text.Render(s.Uptime))
	b.WriteString("\n\n")

	b.WriteString(m.theme.Accent.Render("Runtime"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Memory: %s\n", humanize.IBytes(s.MemoryBytes)))
	b.WriteString(fmt.Sprintf("  Goroutines: %d\n", s.Goroutines))
	b.WriteString("\n")

	b.WriteString(m.theme.Accent.Render("Source (" + s.Source + ")"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Polls: %s\n", humanize.Comma(s.Cycles)))
	b.WriteString(fmt.Sprintf("  Snapshots: %s / Misses: %s\n", humanize.Comma(s.Snapshots), humanize.Comma(s.SourceMisses)))
	if s.IncompleteSnapshot > 0 {
		b.WriteString(m.theme.Warning.Render(fmt.Sprintf("  Incomplete: %d", s.IncompleteSnapshot)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.theme.Accent.Render("Recording"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Recorded: %s\n", humanize.Comma(s.Records)))
	if !s.LastRecordAt.IsZero() {
		b.WriteString(fmt.Sprintf("  Last: %s (%s)\n", s.LastRecordTrack, humanize.RelTime(s.LastRecordAt, m.now(), "ago", "from now")))
	}
	if s.Credited && s.CurrentTrack != "" {
		b.WriteString(fmt.Sprintf("  Current play counted: %s\n", s.CurrentTrack))
	}
	if s.SinkFailures > 0 {
		b.WriteString(m.theme.Error.Render(fmt.Sprintf("  Failed writes: %d", s.SinkFailures)))
		b.WriteString("\n")
	}
	if s.RecoveredPanics > 0 {
		b.WriteString(m.theme.Error.Render(fmt.Sprintf("  Recovered panics: %d", s.RecoveredPanics)))
		b.WriteString("\n")
	}
	if s.LastError != "" && m.now().Sub(s.LastErrorAt) < 5*time.Minute {
		b.WriteString(m.theme.Error.Render("  Last error: " + s.LastError))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.Dim.Render("Press d to close"))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(1, 2).
		Width(48).
		Render(b.String())

	if m.width <= 0 || m.height <= 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Right, lipgloss.Top, box)
}
