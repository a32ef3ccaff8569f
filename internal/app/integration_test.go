package app

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"github.com/playlog/playlog/internal/store"
	"github.com/playlog/playlog/internal/worker"
)

// TestInteractiveSession drives the dashboard through a real program loop.
func TestInteractiveSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping interactive test in short mode")
	}

	st := &fakeStore{plays: testPlays()}
	m := newTestModel(st, fakeStats{worker.Stats{Source: "mpris", CurrentTrack: "Money"}})
	m.refresh = 50 * time.Millisecond
	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(120, 40))

	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("Come Together"))
	}, teatest.WithDuration(2*time.Second))

	// A play recorded while the dashboard is open shows up on the next tick.
	st.mu.Lock()
	st.plays = append([]store.Play{{ID: 4, TrackName: "Heroes", Artists: []string{"David Bowie"}, PlayedAt: testNow}}, st.plays...)
	st.mu.Unlock()

	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("Heroes"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))

	final, ok := tm.FinalModel(t).(Model)
	if !ok {
		t.Fatalf("final model has type %T", tm.FinalModel(t))
	}
	if final.total != 4 || final.selection != 1 {
		t.Errorf("final model: total=%d selection=%d", final.total, final.selection)
	}
}
