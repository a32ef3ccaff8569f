package scrobble

import (
	"context"
	"log/slog"
	"time"

	"github.com/playlog/playlog/internal/playback"
	"github.com/playlog/playlog/internal/store"
)

// Observer adapts the manager to the worker's observer hooks. A recorded
// play is held until ShouldScrobble accepts it, then submitted once. The
// worker calls it from its poll loop only, so it keeps no lock.
type Observer struct {
	manager *Manager
	logger  *slog.Logger

	pending *Track
}

func NewObserver(m *Manager, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{manager: m, logger: logger}
}

func (o *Observer) NowPlaying(ctx context.Context, snap playback.Snapshot) {
	o.manager.NowPlaying(ctx, TrackFromSnapshot(snap))
}

// Recorded starts tracking a play toward its scrobble threshold. A track
// the services would refuse is never queued.
func (o *Observer) Recorded(ctx context.Context, play store.Play, snap playback.Snapshot) {
	t := TrackFromRecord(play, snap)
	o.pending = nil
	switch {
	case !t.Submittable():
		o.logger.Debug("play has no artist, not scrobbling", slog.String("track", t.Title))
		return
	case t.DurationMs > 0 && t.Length() <= MinTrackLength:
		o.logger.Debug("track too short to scrobble", slog.String("track", t.Title))
		return
	}
	o.pending = &t
	o.advance(ctx, snap.Progress())
}

// Progress follows the held play. A different track abandons it; a
// snapshot without a name or position changes nothing.
func (o *Observer) Progress(ctx context.Context, snap playback.Snapshot) {
	if o.pending == nil || snap.TrackName == nil {
		return
	}
	if *snap.TrackName != o.pending.Title {
		o.logger.Debug("track changed before scrobble threshold", slog.String("track", o.pending.Title))
		o.pending = nil
		return
	}
	if snap.ProgressMs != nil {
		o.advance(ctx, *snap.ProgressMs)
	}
}

func (o *Observer) advance(ctx context.Context, playedMs int64) {
	if !ShouldScrobble(o.pending.Length(), time.Duration(playedMs)*time.Millisecond) {
		return
	}
	t := *o.pending
	o.pending = nil
	o.manager.Scrobble(ctx, t)
}
