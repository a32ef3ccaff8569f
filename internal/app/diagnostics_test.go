package app

import (
	"strings"
	"testing"
	"time"

	"github.com/playlog/playlog/internal/worker"
)

func TestRenderDiagnostics(t *testing.T) {
	stats := worker.Stats{
		Source:          "mpv",
		Uptime:          "1h2m3s",
		Cycles:          12345,
		Snapshots:       12000,
		SourceMisses:    345,
		Records:         42,
		SinkFailures:    2,
		LastRecordAt:    testNow.Add(-3 * time.Minute),
		LastRecordTrack: "Money",
		CurrentTrack:    "Money",
		Credited:        true,
		LastError:       "database is locked",
		LastErrorAt:     testNow.Add(-time.Minute),
		Goroutines:      9,
		MemoryBytes:     3 << 20,
	}
	m := loaded(t, newTestModel(&fakeStore{}, fakeStats{stats}))
	m.showDiagnostics = true

	view := m.View()
	for _, want := range []string{
		"Source (mpv)",
		"Uptime:",
		"1h2m3s",
		"Polls: 12,345",
		"Misses: 345",
		"Recorded: 42",
		"Money (3 minutes ago)",
		"Current play counted: Money",
		"Failed writes: 2",
		"Last error: database is locked",
		"3.0 MiB",
		"Goroutines: 9",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("diagnostics missing %q\n%s", want, view)
		}
	}
}

func TestDiagnosticsHidesStaleError(t *testing.T) {
	stats := worker.Stats{Source: "mpv", LastError: "old failure", LastErrorAt: testNow.Add(-time.Hour)}
	m := loaded(t, newTestModel(&fakeStore{}, fakeStats{stats}))
	m.showDiagnostics = true
	if strings.Contains(m.View(), "old failure") {
		t.Error("stale error should not be shown")
	}
}
