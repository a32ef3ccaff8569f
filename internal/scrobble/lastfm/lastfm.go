// Package lastfm scrobbles to Last.fm through the lastfm-go client.
package lastfm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shkh/lastfm-go/lastfm"

	"github.com/playlog/playlog/internal/scrobble"
)

// CredentialKey is where an authorized session key is saved.
const CredentialKey = "lastfm_session"

type Config struct {
	APIKey     string
	APISecret  string
	SessionKey string
	// Pending keeps failed scrobbles for retry. Nil disables the queue.
	Pending scrobble.PendingStore
	Logger  *slog.Logger
}

// api is the slice of lastfm-go the scrobbler needs.
type api struct {
	updateNowPlaying func(lastfm.P) error
	scrobble         func(lastfm.P) error
}

func newAPI(key, secret, session string) api {
	c := lastfm.New(key, secret)
	c.SetSession(session)
	return api{
		updateNowPlaying: func(p lastfm.P) error {
			_, err := c.Track.UpdateNowPlaying(p)
			return err
		},
		scrobble: func(p lastfm.P) error {
			_, err := c.Track.Scrobble(p)
			return err
		},
	}
}

// Scrobbler implements scrobble.Scrobbler for Last.fm.
type Scrobbler struct {
	id      string
	enabled bool
	api     api
	queue   *scrobble.Queue
	logger  *slog.Logger
}

func New(id string, cfg Config) *Scrobbler {
	if id == "" {
		id = "lastfm"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scrobbler{
		id:      id,
		enabled: cfg.APIKey != "" && cfg.APISecret != "" && cfg.SessionKey != "",
		api:     newAPI(cfg.APIKey, cfg.APISecret, cfg.SessionKey),
		queue:   scrobble.NewQueue(cfg.Pending, id, cfg.Logger),
		logger:  cfg.Logger,
	}
}

func (s *Scrobbler) ID() string      { return s.id }
func (s *Scrobbler) Name() string    { return "Last.fm" }
func (s *Scrobbler) IsEnabled() bool { return s.enabled }

func (s *Scrobbler) NowPlaying(ctx context.Context, track scrobble.Track) error {
	if !s.enabled {
		return scrobble.ErrNotConfigured
	}
	if err := s.api.updateNowPlaying(params(track, false)); err != nil {
		return fmt.Errorf("lastfm now playing: %w", mapError(err))
	}
	return nil
}

// Scrobble submits a play. Failures, and plays made while not configured,
// go to the retry queue.
func (s *Scrobbler) Scrobble(ctx context.Context, track scrobble.Track) error {
	if !s.enabled {
		return s.queue.Add(ctx, track)
	}
	err := s.submit(ctx, track)
	if err == nil {
		s.logger.Debug("lastfm: scrobbled", slog.String("track", track.Title))
		return nil
	}
	if errors.Is(err, scrobble.ErrRejected) {
		return err
	}
	if qerr := s.queue.Add(ctx, track); qerr != nil {
		return errors.Join(err, qerr)
	}
	return err
}

func (s *Scrobbler) submit(_ context.Context, track scrobble.Track) error {
	if err := s.api.scrobble(params(track, true)); err != nil {
		return fmt.Errorf("lastfm scrobble: %w", mapError(err))
	}
	return nil
}

func (s *Scrobbler) PendingCount(ctx context.Context) int {
	return s.queue.Count(ctx)
}

func (s *Scrobbler) FlushPending(ctx context.Context) error {
	if !s.enabled {
		return scrobble.ErrNotConfigured
	}
	return s.queue.Flush(ctx, s.submit)
}

func params(track scrobble.Track, withTimestamp bool) lastfm.P {
	p := lastfm.P{
		"artist": track.PrimaryArtist(),
		"track":  track.Title,
	}
	if track.Album != "" {
		p["album"] = track.Album
	}
	if track.DurationMs > 0 {
		p["duration"] = int(track.DurationMs / 1000)
	}
	if withTimestamp {
		p["timestamp"] = track.StartedAt.Unix()
	}
	return p
}

// Last.fm API error codes that callers branch on.
const (
	codeInvalidParameters = 6
	codeInvalidSession    = 9
	codeRateLimited       = 29
)

func mapError(err error) error {
	var lfErr *lastfm.LastfmError
	if errors.As(err, &lfErr) {
		switch lfErr.Code {
		case codeInvalidParameters:
			return fmt.Errorf("%w: %v", scrobble.ErrRejected, err)
		case codeInvalidSession:
			return fmt.Errorf("%w: %v", scrobble.ErrUnauthorized, err)
		case codeRateLimited:
			return fmt.Errorf("%w: %v", scrobble.ErrRateLimited, err)
		}
	}
	return err
}
