// Package listenbrainz submits listens to a ListenBrainz server.
package listenbrainz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/playlog/playlog/internal/scrobble"
)

const DefaultBaseURL = "https://api.listenbrainz.org"

type Config struct {
	BaseURL    string
	Token      string
	Pending    scrobble.PendingStore
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Scrobbler implements scrobble.Scrobbler for ListenBrainz.
type Scrobbler struct {
	id      string
	baseURL string
	token   string
	client  *http.Client
	queue   *scrobble.Queue
	logger  *slog.Logger
}

type submission struct {
	ListenType string   `json:"listen_type"`
	Payload    []listen `json:"payload"`
}

type listen struct {
	ListenedAt    int64         `json:"listened_at,omitempty"`
	TrackMetadata trackMetadata `json:"track_metadata"`
}

type trackMetadata struct {
	ArtistName     string         `json:"artist_name"`
	TrackName      string         `json:"track_name"`
	ReleaseName    string         `json:"release_name,omitempty"`
	AdditionalInfo additionalInfo `json:"additional_info"`
}

type additionalInfo struct {
	DurationMs       int64    `json:"duration_ms,omitempty"`
	ArtistNames      []string `json:"artist_names,omitempty"`
	SubmissionClient string   `json:"submission_client"`
}

func New(id string, cfg Config) *Scrobbler {
	if id == "" {
		id = "listenbrainz"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scrobbler{
		id:      id,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  cfg.HTTPClient,
		queue:   scrobble.NewQueue(cfg.Pending, id, cfg.Logger),
		logger:  cfg.Logger,
	}
}

func (s *Scrobbler) ID() string      { return s.id }
func (s *Scrobbler) Name() string    { return "ListenBrainz" }
func (s *Scrobbler) IsEnabled() bool { return s.token != "" }

func (s *Scrobbler) NowPlaying(ctx context.Context, track scrobble.Track) error {
	if !s.IsEnabled() {
		return scrobble.ErrNotConfigured
	}
	return s.send(ctx, "playing_now", track)
}

func (s *Scrobbler) Scrobble(ctx context.Context, track scrobble.Track) error {
	if !s.IsEnabled() {
		return s.queue.Add(ctx, track)
	}
	err := s.submit(ctx, track)
	if err == nil {
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

func (s *Scrobbler) submit(ctx context.Context, track scrobble.Track) error {
	return s.send(ctx, "single", track)
}

func (s *Scrobbler) PendingCount(ctx context.Context) int {
	return s.queue.Count(ctx)
}

func (s *Scrobbler) FlushPending(ctx context.Context) error {
	if !s.IsEnabled() {
		return scrobble.ErrNotConfigured
	}
	return s.queue.Flush(ctx, s.submit)
}

func (s *Scrobbler) send(ctx context.Context, listenType string, track scrobble.Track) error {
	l := listen{TrackMetadata: trackMetadata{
		ArtistName:  track.ArtistCredit(),
		TrackName:   track.Title,
		ReleaseName: track.Album,
		AdditionalInfo: additionalInfo{
			DurationMs:       track.DurationMs,
			ArtistNames:      track.Artists,
			SubmissionClient: "playlog",
		},
	}}
	if listenType != "playing_now" {
		l.ListenedAt = track.StartedAt.Unix()
	}

	body, err := json.Marshal(submission{ListenType: listenType, Payload: []listen{l}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/1/submit-listens", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("listenbrainz %s: %w", listenType, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return scrobble.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return scrobble.ErrRateLimited
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: listenbrainz %s: %s", scrobble.ErrRejected, listenType, resp.Status)
	case resp.StatusCode >= 400:
		return fmt.Errorf("listenbrainz %s: %s", listenType, resp.Status)
	}
	s.logger.Debug("listenbrainz: submitted", slog.String("type", listenType), slog.String("track", track.Title))
	return nil
}
