package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playlog/playlog/internal/detector"
	"github.com/playlog/playlog/internal/playback"
	"github.com/playlog/playlog/internal/store"
)

type step struct {
	snap playback.Snapshot
	ok   bool
}

type fakeSource struct {
	mu    sync.Mutex
	steps []step
	calls int
	panic bool
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Current(context.Context) (playback.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panic {
		panic("source exploded")
	}
	if len(f.steps) == 0 {
		return playback.Snapshot{}, false
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	return s.snap, s.ok
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSink struct {
	err    error
	plays  []store.Play
	nextID int64
}

func (f *fakeSink) InsertPlay(_ context.Context, name string, artists []string, album string) (store.Play, error) {
	if f.err != nil {
		return store.Play{}, f.err
	}
	f.nextID++
	p := store.Play{ID: f.nextID, TrackName: name, Artists: artists, Album: album, PlayedAt: time.Now()}
	f.plays = append(f.plays, p)
	return p, nil
}

type fakeObserver struct {
	nowPlaying []string
	progress   []int64
	recorded   []int64
	triggers   []int64
}

func (f *fakeObserver) NowPlaying(_ context.Context, snap playback.Snapshot) {
	f.nowPlaying = append(f.nowPlaying, snap.Name())
}

func (f *fakeObserver) Progress(_ context.Context, snap playback.Snapshot) {
	f.progress = append(f.progress, snap.Progress())
}

func (f *fakeObserver) Recorded(_ context.Context, p store.Play, snap playback.Snapshot) {
	f.recorded = append(f.recorded, p.ID)
	f.triggers = append(f.triggers, snap.Progress())
}

func full(name string, progress int64) step {
	return step{ok: true, snap: playback.Snapshot{
		TrackName:  playback.String(name),
		Artists:    []string{"Artist"},
		Album:      playback.String("Album"),
		ProgressMs: playback.Int64(progress),
	}}
}

func miss() step { return step{} }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWorker(src *fakeSource, sink Sink, obs ...Observer) (*Worker, *detector.Detector) {
	det := detector.New()
	w := New(src, sink, Options{Logger: quietLogger(), Detector: det, Observers: obs})
	return w, det
}

func TestPollOnceRecordsAtThreshold(t *testing.T) {
	src := &fakeSource{steps: []step{full("Song", 10), full("Song", 100), full("Song", 30000), full("Song", 31000)}}
	sink := &fakeSink{}
	w, _ := newWorker(src, sink)
	ctx := context.Background()

	var got []bool
	for range 4 {
		_, ok := w.PollOnce(ctx)
		got = append(got, ok)
	}

	assert.Equal(t, []bool{false, false, true, false}, got)
	require.Len(t, sink.plays, 1)
	assert.Equal(t, "Song", sink.plays[0].TrackName)
	assert.Equal(t, []string{"Artist"}, sink.plays[0].Artists)
	assert.Equal(t, "Album", sink.plays[0].Album)
}

func TestPollOnceSourceMissLeavesStateUntouched(t *testing.T) {
	src := &fakeSource{steps: []step{full("Song", 31000), miss(), full("Song", 32000)}}
	sink := &fakeSink{}
	w, det := newWorker(src, sink)
	ctx := context.Background()

	_, ok := w.PollOnce(ctx)
	require.True(t, ok)
	before := det.State()

	_, ok = w.PollOnce(ctx)
	assert.False(t, ok)
	assert.Equal(t, before, det.State())

	_, ok = w.PollOnce(ctx)
	assert.False(t, ok, "credit survives a failed fetch")
	assert.Len(t, sink.plays, 1)

	st := w.Stats()
	assert.Equal(t, int64(3), st.Cycles)
	assert.Equal(t, int64(1), st.SourceMisses)
	assert.Equal(t, int64(2), st.Snapshots)
}

func TestPollOnceIncompleteSnapshotDoesNotPersist(t *testing.T) {
	incomplete := step{ok: true, snap: playback.Snapshot{
		TrackName:  playback.String("Song"),
		ProgressMs: playback.Int64(40000),
	}}
	src := &fakeSource{steps: []step{incomplete, full("Song", 41000)}}
	sink := &fakeSink{}
	w, det := newWorker(src, sink)
	ctx := context.Background()

	_, ok := w.PollOnce(ctx)
	assert.False(t, ok)
	assert.Empty(t, sink.plays)
	st := det.State()
	require.NotNil(t, st.Previous)
	assert.False(t, st.RecordedCurrentTrack)

	// Still eligible once the data arrives.
	_, ok = w.PollOnce(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(1), w.Stats().IncompleteSnapshot)
}

func TestPollOnceSinkFailureRetriesNextCycle(t *testing.T) {
	src := &fakeSource{steps: []step{full("Song", 30000), full("Song", 35000)}}
	sink := &fakeSink{err: errors.New("disk full")}
	w, det := newWorker(src, sink)
	ctx := context.Background()

	_, ok := w.PollOnce(ctx)
	assert.False(t, ok)
	assert.False(t, det.State().RecordedCurrentTrack)

	sink.err = nil
	p, ok := w.PollOnce(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(1), p.ID)

	st := w.Stats()
	assert.Equal(t, int64(1), st.SinkFailures)
	assert.Equal(t, int64(1), st.Records)
	assert.Equal(t, "disk full", st.LastError)
}

func TestPollOnceUpdatesPreviousEveryCycle(t *testing.T) {
	src := &fakeSource{steps: []step{full("A", 1000), full("B", 2000)}}
	w, det := newWorker(src, &fakeSink{})
	ctx := context.Background()

	w.PollOnce(ctx)
	assert.Equal(t, "A", det.State().Previous.Name())
	w.PollOnce(ctx)
	assert.Equal(t, "B", det.State().Previous.Name())
}

func TestObserversSeeTrackChangesAndRecords(t *testing.T) {
	src := &fakeSource{steps: []step{full("A", 1000), full("A", 30000), miss(), full("A", 31000), full("B", 500)}}
	obs := &fakeObserver{}
	w, _ := newWorker(src, &fakeSink{}, obs)
	ctx := context.Background()

	for range 5 {
		w.PollOnce(ctx)
	}

	assert.Equal(t, []string{"A", "B"}, obs.nowPlaying)
	assert.Equal(t, []int64{1000, 30000, 31000, 500}, obs.progress, "a miss is not reported")
	assert.Equal(t, []int64{1}, obs.recorded)
	assert.Equal(t, []int64{30000}, obs.triggers, "recorded play carries its snapshot")
}

func TestStatsTrackCredit(t *testing.T) {
	src := &fakeSource{steps: []step{full("A", 1000), full("A", 30000), full("B", 100)}}
	w, _ := newWorker(src, &fakeSink{})
	ctx := context.Background()

	w.PollOnce(ctx)
	assert.False(t, w.Stats().Credited)

	w.PollOnce(ctx)
	assert.True(t, w.Stats().Credited)

	w.PollOnce(ctx)
	assert.False(t, w.Stats().Credited, "a new track starts uncredited")
}

func TestRunRecoversPanicsAndStopsOnCancel(t *testing.T) {
	src := &fakeSource{panic: true}
	w := New(src, &fakeSink{}, Options{Logger: quietLogger(), Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return src.callCount() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, w.Stats().RecoveredPanics, int64(3))
}

func TestNewDefaults(t *testing.T) {
	w := New(&fakeSource{}, &fakeSink{}, Options{})
	assert.Equal(t, DefaultInterval, w.interval)
	assert.NotNil(t, w.det)
	assert.Equal(t, "fake", w.Stats().Source)
}
