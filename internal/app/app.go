// Package app is the terminal dashboard behind playlog -watch.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/playlog/playlog/internal/store"
	"github.com/playlog/playlog/internal/ui"
	"github.com/playlog/playlog/internal/worker"
)

const (
	DefaultLimit   = 15
	DefaultRefresh = 2 * time.Second

	// title, totals, now playing, status, footer
	chromeLines = 6
)

// Store is the read side of the plays database.
type Store interface {
	RecentPlays(ctx context.Context, limit int) ([]store.Play, error)
	CountPlays(ctx context.Context) (int64, error)
}

// StatsProvider exposes worker counters when the worker runs in-process.
type StatsProvider interface {
	Stats() worker.Stats
}

type Options struct {
	Theme   ui.Theme
	Limit   int
	Refresh time.Duration
	Stats   StatsProvider
	Now     func() time.Time
}

type Model struct {
	store   Store
	stats   StatsProvider
	theme   ui.Theme
	limit   int
	refresh time.Duration
	now     func() time.Time

	plays     []store.Play
	total     int64
	worker    *worker.Stats
	loaded    bool
	status    string
	errorMsg  string
	selection int
	width     int
	height    int

	filter          *FilterState
	filtering       bool
	showHelp        bool
	showDiagnostics bool
}

func New(st Store, opts Options) Model {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Refresh <= 0 {
		opts.Refresh = DefaultRefresh
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Theme.Name == "" {
		opts.Theme = ui.Default()
	}
	return Model{
		store:   st,
		stats:   opts.Stats,
		theme:   opts.Theme,
		limit:   opts.Limit,
		refresh: opts.Refresh,
		now:     opts.Now,
		status:  "Loading…",
		filter:  NewFilterState(),
	}
}

type playsMsg struct {
	plays  []store.Play
	total  int64
	worker *worker.Stats
	err    error
}

type tickMsg time.Time

type clearErrorMsg struct{}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), m.tickCmd())
}

func (m Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		msg := playsMsg{}
		if m.stats != nil {
			s := m.stats.Stats()
			msg.worker = &s
		}
		plays, err := m.store.RecentPlays(ctx, m.limit)
		if err != nil {
			msg.err = err
			return msg
		}
		total, err := m.store.CountPlays(ctx)
		if err != nil {
			msg.err = err
			return msg
		}
		msg.plays = plays
		msg.total = total
		return msg
	}
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) clearErrorCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return clearErrorMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.loadCmd(), m.tickCmd())
	case clearErrorMsg:
		m.errorMsg = ""
		return m, nil
	case playsMsg:
		if msg.worker != nil {
			m.worker = msg.worker
		}
		if msg.err != nil {
			m.errorMsg = "Refresh failed: " + msg.err.Error()
			return m, m.clearErrorCmd()
		}
		m.plays = msg.plays
		m.total = msg.total
		m.loaded = true
		m.filter.SetPlays(m.plays)
		m.selection = clamp(m.selection, 0, max(len(m.visiblePlays())-1, 0))
		m.status = "Updated " + m.now().Format("15:04:05")
		return m, nil
	case tea.KeyMsg:
		if m.filtering {
			return m.handleFilterKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "?":
		m.showHelp = !m.showHelp
	case "d":
		if m.worker != nil {
			m.showDiagnostics = !m.showDiagnostics
		}
	case "r":
		m.status = "Refreshing…"
		return m, m.loadCmd()
	case "/":
		m.filtering = true
		m.selection = 0
	case "esc":
		m.filter.Reset()
		m.selection = 0
	case "j", "down":
		if m.selection < len(m.visiblePlays())-1 {
			m.selection++
		}
	case "k", "up":
		if m.selection > 0 {
			m.selection--
		}
	}
	return m, nil
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.filter.Reset()
		m.filtering = false
	case tea.KeyEnter:
		m.filtering = false
	case tea.KeyBackspace:
		m.filter.Backspace()
	case tea.KeyRunes, tea.KeySpace:
		for _, r := range msg.Runes {
			m.filter.InsertChar(r)
		}
	}
	m.selection = 0
	return m, nil
}

// visiblePlays returns the plays shown in the list, narrowed by the filter.
func (m Model) visiblePlays() []store.Play {
	if m.filter.Input() == "" {
		return m.plays
	}
	return m.filter.Matches()
}

func (m Model) View() string {
	if m.showHelp {
		return m.renderHelp()
	}
	if m.showDiagnostics && m.worker != nil {
		return m.renderDiagnostics()
	}

	var b strings.Builder
	b.WriteString(m.theme.Title.Render("playlog ▸ Recent plays"))
	b.WriteString("  ")
	b.WriteString(m.theme.Dim.Render(fmt.Sprintf("%s plays recorded", humanize.Comma(m.total))))
	b.WriteString("\n")
	if np := m.renderNowPlaying(); np != "" {
		b.WriteString(np + "\n")
	}
	if m.filtering || m.filter.Input() != "" {
		b.WriteString(m.theme.Accent.Render("/ " + m.filter.Input()))
		b.WriteString("\n")
	}
	b.WriteString(m.renderPlays())

	status := m.theme.Dim.Render(m.status)
	if m.errorMsg != "" {
		status = m.theme.Error.Render(m.errorMsg)
	}
	footer := m.theme.Dim.Render("q quit · r refresh · / filter · ? help")
	if m.worker != nil {
		footer = m.theme.Dim.Render("q quit · r refresh · / filter · d diagnostics · ? help")
	}
	return lipgloss.JoinVertical(lipgloss.Left, b.String(), status, footer)
}

func (m Model) renderNowPlaying() string {
	if m.worker == nil {
		return ""
	}
	if m.worker.CurrentTrack == "" {
		return m.theme.Dim.Render("Nothing playing on " + m.worker.Source)
	}
	return m.theme.Accent.Render("♪ "+m.worker.CurrentTrack) + m.theme.Dim.Render(" on "+m.worker.Source)
}

func (m Model) renderPlays() string {
	if !m.loaded {
		return m.theme.Dim.Render("Loading plays…") + "\n"
	}
	plays := m.visiblePlays()
	if len(plays) == 0 {
		if m.filter.Input() != "" {
			return m.theme.Dim.Render("No plays match") + "\n"
		}
		return m.theme.Dim.Render("No plays recorded yet") + "\n"
	}

	rows := len(plays)
	if m.height > 0 {
		rows = min(rows, max(m.height-chromeLines, 1))
	}
	start := 0
	if m.selection >= rows {
		start = m.selection - rows + 1
	}

	now := m.now()
	var b strings.Builder
	for i := start; i < start+rows && i < len(plays); i++ {
		p := plays[i]
		prefix := "  "
		style := m.theme.Text
		if i == m.selection {
			prefix = "⏵ "
			style = m.theme.Highlight
		}
		when := humanize.RelTime(p.PlayedAt, now, "ago", "from now")
		line := prefix + style.Render(p.TrackName)
		if len(p.Artists) > 0 {
			line += m.theme.Text.Render(" - " + strings.Join(p.Artists, ", "))
		}
		if p.Album != "" {
			line += m.theme.Dim.Render(" (" + p.Album + ")")
		}
		line += "  " + m.theme.Dim.Render(when)
		b.WriteString(m.truncate(line) + "\n")
	}
	return b.String()
}

func (m Model) truncate(line string) string {
	if m.width <= 0 {
		return line
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(line)
}

func (m Model) renderHelp() string {
	lines := []string{
		m.theme.Title.Render("Help"),
		"",
		m.theme.Accent.Render("Global"),
		"  ?       : Toggle help",
		"  q       : Quit",
		"  r       : Refresh now",
		"  d       : Worker diagnostics",
		"",
		m.theme.Accent.Render("Plays"),
		"  j / k   : Move selection down / up",
		"  /       : Fuzzy filter by track, artist or album",
		"  esc     : Clear filter",
	}
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
