// Package worker drives the play detector with live snapshots on a fixed
// cadence and hands recorded plays to the store and any observers.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/playlog/playlog/internal/detector"
	"github.com/playlog/playlog/internal/playback"
	"github.com/playlog/playlog/internal/store"
)

// DefaultInterval is the delay between poll cycles.
const DefaultInterval = 5 * time.Second

// Sink persists a play. store.Store implements it.
type Sink interface {
	InsertPlay(ctx context.Context, name string, artists []string, album string) (store.Play, error)
}

// Observer is told about playback changes and recorded plays. Observers
// never influence detection; they run after the detector has advanced.
type Observer interface {
	// NowPlaying fires once per new complete track.
	NowPlaying(ctx context.Context, snap playback.Snapshot)
	// Progress fires for every snapshot the source returns.
	Progress(ctx context.Context, snap playback.Snapshot)
	// Recorded fires after a play is stored, with the snapshot that
	// triggered it.
	Recorded(ctx context.Context, play store.Play, snap playback.Snapshot)
}

type Options struct {
	Interval  time.Duration
	Logger    *slog.Logger
	Observers []Observer
	// Detector defaults to a fresh one.
	Detector *detector.Detector
}

// Worker owns one detector and feeds it from one source. PollOnce and Run
// must not be called concurrently; Stats may be called from anywhere.
type Worker struct {
	source    playback.Source
	sink      Sink
	det       *detector.Detector
	interval  time.Duration
	logger    *slog.Logger
	observers []Observer
	stats     *statsRecorder

	announced     bool
	announcedName string
}

func New(source playback.Source, sink Sink, opts Options) *Worker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Detector == nil {
		opts.Detector = detector.New()
	}
	return &Worker{
		source:    source,
		sink:      sink,
		det:       opts.Detector,
		interval:  opts.Interval,
		logger:    opts.Logger.With(slog.String("source", source.Name())),
		observers: opts.Observers,
		stats:     newStatsRecorder(source.Name()),
	}
}

// Stats returns the current counters.
func (w *Worker) Stats() Stats {
	return w.stats.snapshot()
}

// PollOnce runs a single fetch, decide, persist, update cycle and returns
// the play it persisted, if any.
func (w *Worker) PollOnce(ctx context.Context) (store.Play, bool) {
	w.stats.update(func(s *Stats) { s.Cycles++ })

	snap, ok := w.source.Current(ctx)
	if !ok {
		// Not a playback event: detector state stays as it was.
		w.stats.update(func(s *Stats) { s.SourceMisses++ })
		w.logger.Debug("no snapshot")
		return store.Play{}, false
	}
	w.stats.update(func(s *Stats) {
		s.Snapshots++
		s.CurrentTrack = snap.Name()
	})

	var (
		play      store.Play
		persisted bool
	)
	if w.det.ShouldRecord(snap) {
		play, persisted = w.persist(ctx, snap)
	}

	w.det.Update(snap, persisted)
	credited := w.det.State().RecordedCurrentTrack
	w.stats.update(func(s *Stats) { s.Credited = credited })
	w.notify(ctx, snap, play, persisted)
	return play, persisted
}

func (w *Worker) persist(ctx context.Context, snap playback.Snapshot) (store.Play, bool) {
	if !snap.Complete() {
		w.stats.update(func(s *Stats) { s.IncompleteSnapshot++ })
		w.logger.Warn("snapshot incomplete, not recording",
			slog.Bool("has_name", snap.TrackName != nil),
			slog.Bool("has_artists", snap.Artists != nil),
			slog.Bool("has_album", snap.Album != nil))
		return store.Play{}, false
	}

	play, err := w.sink.InsertPlay(ctx, *snap.TrackName, slices.Clone(snap.Artists), *snap.Album)
	if err != nil {
		w.stats.update(func(s *Stats) { s.SinkFailures++ })
		w.stats.recordError(err.Error())
		w.logger.Warn("record play failed", slog.String("track", *snap.TrackName), slog.Any("err", err))
		return store.Play{}, false
	}

	w.stats.update(func(s *Stats) {
		s.Records++
		s.LastRecordAt = play.PlayedAt
		s.LastRecordTrack = play.TrackName
	})
	w.logger.Info("play recorded",
		slog.Int64("id", play.ID),
		slog.String("track", play.TrackName),
		slog.Any("artists", play.Artists),
		slog.String("album", play.Album))
	return play, true
}

func (w *Worker) notify(ctx context.Context, snap playback.Snapshot, play store.Play, persisted bool) {
	if len(w.observers) == 0 {
		return
	}
	if snap.Complete() && (!w.announced || w.announcedName != *snap.TrackName) {
		w.announced = true
		w.announcedName = *snap.TrackName
		for _, o := range w.observers {
			o.NowPlaying(ctx, snap.Clone())
		}
	}
	for _, o := range w.observers {
		o.Progress(ctx, snap.Clone())
	}
	if persisted {
		for _, o := range w.observers {
			o.Recorded(ctx, play, snap.Clone())
		}
	}
}

// Run polls until ctx is cancelled, waiting the configured interval
// between cycles. A failing or panicking cycle is logged and the loop
// carries on.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", slog.Duration("interval", w.interval))
	defer w.logger.Info("worker stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		w.safePoll(ctx)
		timer.Reset(w.interval)
	}
}

func (w *Worker) safePoll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.stats.update(func(s *Stats) { s.RecoveredPanics++ })
			w.stats.recordError(fmt.Sprintf("panic: %v", r))
			w.logger.Error("poll cycle panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	w.PollOnce(ctx)
}
