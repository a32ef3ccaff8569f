package scrobble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playlog/playlog/internal/store"
)

const (
	// MaxAttempts drops a queued scrobble after this many failed retries.
	MaxAttempts = 10
	// MaxPendingAge drops queued scrobbles older than this; the services
	// reject old timestamps anyway.
	MaxPendingAge = 14 * 24 * time.Hour

	artistSep = "; "
)

// PendingStore holds queued scrobbles. store.Store implements it.
type PendingStore interface {
	AddPendingScrobble(ctx context.Context, p store.PendingScrobble) error
	PendingScrobbles(ctx context.Context, scrobblerID string) ([]store.PendingScrobble, error)
	DeletePendingScrobble(ctx context.Context, id int64) error
	UpdatePendingScrobbleAttempt(ctx context.Context, id int64, errMsg string) error
	DeleteOldPendingScrobbles(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Queue is one scrobbler's view of the persistent retry queue. A nil
// store makes it a no-op.
type Queue struct {
	store  PendingStore
	id     string
	logger *slog.Logger
}

func NewQueue(s PendingStore, scrobblerID string, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: s, id: scrobblerID, logger: logger}
}

// Add queues a track for a later retry.
func (q *Queue) Add(ctx context.Context, t Track) error {
	if q.store == nil {
		return nil
	}
	return q.store.AddPendingScrobble(ctx, store.PendingScrobble{
		ScrobblerID: q.id,
		Track:       t.Title,
		Artist:      strings.Join(t.Artists, artistSep),
		Album:       t.Album,
		Timestamp:   t.StartedAt,
	})
}

func (q *Queue) Count(ctx context.Context) int {
	if q.store == nil {
		return 0
	}
	pending, err := q.store.PendingScrobbles(ctx, q.id)
	if err != nil {
		q.logger.Warn("count pending scrobbles", slog.String("scrobbler", q.id), slog.Any("err", err))
		return 0
	}
	return len(pending)
}

// Flush submits queued tracks oldest first. Entries that succeed, are
// rejected, or exhaust their attempts are removed. An unauthorized or rate limited
// response stops the flush, since every later entry would fail the same way.
func (q *Queue) Flush(ctx context.Context, submit func(context.Context, Track) error) error {
	if q.store == nil {
		return nil
	}
	if n, err := q.store.DeleteOldPendingScrobbles(ctx, MaxPendingAge); err != nil {
		return fmt.Errorf("prune pending scrobbles: %w", err)
	} else if n > 0 {
		q.logger.Info("dropped expired scrobbles", slog.String("scrobbler", q.id), slog.Int64("count", n))
	}

	pending, err := q.store.PendingScrobbles(ctx, q.id)
	if err != nil {
		return fmt.Errorf("load pending scrobbles: %w", err)
	}

	var failed int
	for _, p := range pending {
		if p.Attempts >= MaxAttempts {
			q.logger.Warn("dropping scrobble after max attempts",
				slog.String("scrobbler", q.id), slog.String("track", p.Track), slog.String("last_error", p.LastError))
			if err := q.store.DeletePendingScrobble(ctx, p.ID); err != nil {
				return err
			}
			continue
		}

		err := submit(ctx, pendingTrack(p))
		if err == nil || errors.Is(err, ErrRejected) {
			if err != nil {
				q.logger.Warn("dropping rejected scrobble",
					slog.String("scrobbler", q.id), slog.String("track", p.Track), slog.Any("err", err))
			}
			if err := q.store.DeletePendingScrobble(ctx, p.ID); err != nil {
				return err
			}
			continue
		}

		failed++
		if uerr := q.store.UpdatePendingScrobbleAttempt(ctx, p.ID, err.Error()); uerr != nil {
			return uerr
		}
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrRateLimited) {
			return fmt.Errorf("%s: %w", q.id, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%s: %d scrobbles still pending", q.id, failed)
	}
	return nil
}

func pendingTrack(p store.PendingScrobble) Track {
	var artists []string
	if p.Artist != "" {
		artists = strings.Split(p.Artist, artistSep)
	}
	return Track{
		Title:     p.Track,
		Artists:   artists,
		Album:     p.Album,
		StartedAt: p.Timestamp,
	}
}
