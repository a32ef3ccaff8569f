package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playlog/playlog/internal/playback"
)

func snap(name string, progress int64) playback.Snapshot {
	return playback.Snapshot{
		TrackName:  playback.String(name),
		Artists:    []string{"Artist"},
		Album:      playback.String("Album"),
		ProgressMs: playback.Int64(progress),
	}
}

func noProgress(name string) playback.Snapshot {
	s := snap(name, 0)
	s.ProgressMs = nil
	return s
}

// step runs one cycle the way the worker does: decide, persist when told
// to (always successfully here), update.
func step(d *Detector, s playback.Snapshot) bool {
	record := d.ShouldRecord(s)
	d.Update(s, record)
	return record
}

func TestScenarioFreshTrackReachesThreshold(t *testing.T) {
	d := New()
	var got []bool
	for _, p := range []int64{10, 100, 30000} {
		got = append(got, step(d, snap("Song", p)))
	}
	assert.Equal(t, []bool{false, false, true}, got)
}

func TestScenarioAlreadyCredited(t *testing.T) {
	d := New()
	step(d, snap("Song", 10))
	require.True(t, step(d, snap("Song", 30000)))

	assert.False(t, step(d, snap("Song", 31000)))
	assert.True(t, d.State().RecordedCurrentTrack)
}

func TestScenarioRewindClearsCredit(t *testing.T) {
	d := New()
	step(d, snap("Song", 10))
	require.True(t, step(d, snap("Song", 30000)))
	require.False(t, step(d, snap("Song", 31000)))

	assert.False(t, step(d, snap("Song", 29000)))
	assert.False(t, d.State().RecordedCurrentTrack, "rewind should clear credit")

	assert.True(t, step(d, snap("Song", 30000)))
}

func TestScenarioStalledOnCreditedTrack(t *testing.T) {
	d := New()
	step(d, snap("Song", 10))
	require.True(t, step(d, snap("Song", 30000)))

	var got []bool
	for _, p := range []int64{33000, 34000, 34000} {
		got = append(got, step(d, snap("Song", p)))
	}
	assert.Equal(t, []bool{false, false, false}, got)
	assert.True(t, d.State().RecordedCurrentTrack)
}

func TestScenarioFirstSnapshotWithoutProgress(t *testing.T) {
	d := New()
	s := noProgress("Song")

	assert.False(t, step(d, s))

	st := d.State()
	require.NotNil(t, st.Previous)
	assert.Nil(t, st.Previous.ProgressMs)
	assert.Equal(t, "Song", st.Previous.Name())
	assert.False(t, st.RecordedCurrentTrack)
}

func TestFirstSnapshotPastThreshold(t *testing.T) {
	tests := []struct {
		name     string
		progress int64
		want     bool
	}{
		{"below threshold", 29999, false},
		{"at threshold", 30000, true},
		{"well past threshold", 120000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &State{}
			assert.Equal(t, tt.want, ShouldRecord(st, snap("Song", tt.progress)))
		})
	}
}

func TestShouldRecordHasNoSideEffects(t *testing.T) {
	st := &State{}
	Update(st, snap("Song", 1000), false)
	before := *st.Previous

	ShouldRecord(st, snap("Other", 50000))

	assert.Equal(t, before, *st.Previous)
	assert.False(t, st.RecordedCurrentTrack)
}

func TestIncreasingRunRecordsExactlyOnce(t *testing.T) {
	d := New()
	records := 0
	for p := int64(0); p <= 240000; p += 5000 {
		if step(d, snap("Song", p)) {
			records++
			assert.Equal(t, int64(30000), p, "first record should land on the first poll at or past the threshold")
		}
	}
	assert.Equal(t, 1, records)
}

func TestRewindThenAdvanceRecordsOnceMore(t *testing.T) {
	d := New()
	records := 0
	for _, p := range []int64{0, 20000, 40000, 60000, 5000, 15000, 25000, 35000, 45000, 55000} {
		if step(d, snap("Song", p)) {
			records++
		}
	}
	assert.Equal(t, 2, records)
}

func TestAbsentProgressNeverSignalsOrClearsCredit(t *testing.T) {
	d := New()
	step(d, snap("Song", 10))
	require.True(t, step(d, snap("Song", 40000)))

	assert.False(t, step(d, noProgress("Song")))
	assert.True(t, d.State().RecordedCurrentTrack, "absent progress must not clear credit")

	assert.False(t, step(d, snap("Song", 45000)))
	assert.True(t, d.State().RecordedCurrentTrack)
}

func TestAbsentProgressOnUncreditedTrack(t *testing.T) {
	d := New()
	step(d, snap("Song", 10))

	assert.False(t, step(d, noProgress("Song")))
	// Previous has no progress, so the next poll can't judge either.
	assert.False(t, step(d, snap("Song", 40000)))
	assert.True(t, step(d, snap("Song", 45000)))
}

func TestTrackChangeClearsCredit(t *testing.T) {
	tests := []struct {
		name string
		next playback.Snapshot
	}{
		{"different name", snap("Other", 50000)},
		{"name disappears", func() playback.Snapshot { s := snap("", 50000); s.TrackName = nil; return s }()},
		{"different name without progress", noProgress("Other")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &State{}
			Update(st, snap("Song", 30000), true)
			require.True(t, st.RecordedCurrentTrack)

			Update(st, tt.next, false)
			assert.False(t, st.RecordedCurrentTrack)
		})
	}
}

func TestNewTrackAlreadyPastThresholdRecords(t *testing.T) {
	d := New()
	step(d, snap("Song", 10))
	require.True(t, step(d, snap("Song", 30000)))

	// Poll interval skipped the early part of the next track.
	step(d, snap("Next", 31000))
	assert.True(t, step(d, snap("Next", 36000)))
}

func TestFailedPersistenceStaysEligible(t *testing.T) {
	st := &State{}
	Update(st, snap("Song", 10), false)

	s := snap("Song", 30000)
	require.True(t, ShouldRecord(st, s))
	Update(st, s, false)
	assert.False(t, st.RecordedCurrentTrack)

	s = snap("Song", 35000)
	require.True(t, ShouldRecord(st, s))
	Update(st, s, true)
	assert.True(t, st.RecordedCurrentTrack)
}

func TestUpdateWithoutPersistenceKeepsCredit(t *testing.T) {
	st := &State{}
	Update(st, snap("Song", 30000), true)

	for _, p := range []int64{30000, 31000, 31000, 90000} {
		s := snap("Song", p)
		require.False(t, ShouldRecord(st, s))
		Update(st, s, false)
		assert.True(t, st.RecordedCurrentTrack, "credit lost at %d", p)
	}
}

func TestUpdateCopiesSnapshot(t *testing.T) {
	st := &State{}
	s := snap("Song", 1000)
	Update(st, s, false)

	*s.TrackName = "Changed"
	*s.ProgressMs = 99999
	s.Artists[0] = "Someone Else"

	assert.Equal(t, "Song", st.Previous.Name())
	assert.Equal(t, int64(1000), st.Previous.Progress())
	assert.Equal(t, []string{"Artist"}, st.Previous.Artists)
}

func TestReset(t *testing.T) {
	d := New()
	step(d, snap("Song", 30000))
	require.True(t, d.State().RecordedCurrentTrack)

	d.Reset()
	st := d.State()
	assert.Nil(t, st.Previous)
	assert.False(t, st.RecordedCurrentTrack)

	// Behaves like a first observation again.
	assert.True(t, d.ShouldRecord(snap("Song", 31000)))
}
