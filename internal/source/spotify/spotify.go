// Package spotify reads the user's currently playing track from the
// Spotify Web API.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/playlog/playlog/internal/playback"
	"github.com/playlog/playlog/internal/store"
)

const (
	DefaultAPIURL      = "https://api.spotify.com"
	DefaultAccountsURL = "https://accounts.spotify.com"

	// CredentialKey is where the refresh token lives in the credentials table.
	CredentialKey = "spotify_refresh_token"
	// CredentialOriginKey names the configured refresh token that the saved
	// one was rotated from.
	CredentialOriginKey = "spotify_refresh_token_origin"
)

// Credentials persists the refresh token between runs.
// store.Store implements it.
type Credentials interface {
	Credential(ctx context.Context, service string) (string, error)
	SaveCredential(ctx context.Context, service, value string) error
}

type Config struct {
	ClientID     string
	ClientSecret string
	// RefreshToken overrides the one saved in Credentials, unless Spotify
	// has since rotated it and the replacement was saved.
	RefreshToken string
	APIURL       string
	AccountsURL  string
	HTTPClient   *http.Client
	Credentials  Credentials
	Logger       *slog.Logger
}

// Source polls /v1/me/player/currently-playing.
type Source struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	mu          sync.Mutex
	refresh     string
	accessToken string
	expiresAt   time.Time
	now         func() time.Time
}

func New(cfg Config) (*Source, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("spotify client id and secret: %w", playback.ErrInvalidConfig)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.AccountsURL == "" {
		cfg.AccountsURL = DefaultAccountsURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.AccountsURL = strings.TrimRight(cfg.AccountsURL, "/")
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{cfg: cfg, client: client, logger: logger, now: time.Now}, nil
}

func (s *Source) Name() string { return "spotify" }

// Current returns the playing track. Errors are logged and reported as no
// snapshot; an expired or revoked access token is refreshed once per call.
func (s *Source) Current(ctx context.Context) (playback.Snapshot, bool) {
	snap, err := s.currentlyPlaying(ctx)
	if err != nil {
		if playback.IsNotPlaying(err) {
			s.logger.Debug("spotify: nothing playing")
		} else {
			s.logger.Warn("spotify: fetch currently playing", slog.Any("err", err))
		}
		return playback.Snapshot{}, false
	}
	return snap, true
}

// Check verifies the credentials by fetching an access token.
func (s *Source) Check(ctx context.Context) error {
	_, err := s.token(ctx, false)
	return err
}

type currentlyPlaying struct {
	IsPlaying  bool   `json:"is_playing"`
	ProgressMs *int64 `json:"progress_ms"`
	Item       *struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		DurationMs int64  `json:"duration_ms"`
		Artists    []struct {
			Name string `json:"name"`
		} `json:"artists"`
		Album struct {
			Name string `json:"name"`
		} `json:"album"`
	} `json:"item"`
}

func (s *Source) currentlyPlaying(ctx context.Context) (playback.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.APIURL+"/v1/me/player/currently-playing", nil)
	if err != nil {
		return playback.Snapshot{}, err
	}
	resp, err := s.doRequest(req)
	if err != nil {
		return playback.Snapshot{}, mapHTTPError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return playback.Snapshot{}, playback.ErrNotPlaying
	case resp.StatusCode == http.StatusUnauthorized:
		return playback.Snapshot{}, playback.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return playback.Snapshot{}, playback.ErrRateLimited
	case resp.StatusCode >= 500:
		return playback.Snapshot{}, fmt.Errorf("%w: status %d", playback.ErrTemporary, resp.StatusCode)
	case resp.StatusCode >= 400:
		return playback.Snapshot{}, fmt.Errorf("currently playing: status %d", resp.StatusCode)
	}

	var data currentlyPlaying
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return playback.Snapshot{}, fmt.Errorf("decode currently playing: %w", err)
	}
	return toSnapshot(data, s.now()), nil
}

// toSnapshot keeps progress even when there is no track item (ads,
// podcasts), which yields an incomplete snapshot.
func toSnapshot(data currentlyPlaying, at time.Time) playback.Snapshot {
	snap := playback.Snapshot{
		ProgressMs: data.ProgressMs,
		IsPlaying:  data.IsPlaying,
		ObservedAt: at,
	}
	if item := data.Item; item != nil {
		snap.TrackID = item.ID
		snap.TrackName = playback.String(item.Name)
		snap.Album = playback.String(item.Album.Name)
		snap.DurationMs = playback.Int64(item.DurationMs)
		snap.Artists = make([]string, 0, len(item.Artists))
		for _, a := range item.Artists {
			snap.Artists = append(snap.Artists, a.Name)
		}
	}
	return snap
}

func (s *Source) doRequest(req *http.Request) (*http.Response, error) {
	token, err := s.token(req.Context(), false)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		token, err := s.token(req.Context(), true)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return s.client.Do(req)
	}
	return resp, nil
}

// token returns a valid access token, running the refresh-token grant when
// the cached one is missing, about to expire, or force is set.
func (s *Source) token(ctx context.Context, force bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && s.accessToken != "" && s.now().Before(s.expiresAt) {
		return s.accessToken, nil
	}

	refresh, err := s.refreshToken(ctx)
	if err != nil {
		return "", err
	}
	tok, err := requestToken(ctx, s.client, s.cfg, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refresh},
	})
	if err != nil {
		if playback.IsUnauthorized(err) {
			// Look the token up again next time; -auth may have replaced it.
			s.refresh = ""
		}
		return "", err
	}

	s.accessToken = tok.AccessToken
	// Refresh a minute early so a request never races the expiry.
	s.expiresAt = s.now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	if tok.RefreshToken != "" && tok.RefreshToken != refresh {
		s.refresh = tok.RefreshToken
		s.saveRotated(ctx, tok.RefreshToken)
	}
	s.logger.Debug("spotify: access token refreshed", slog.Time("expires_at", s.expiresAt))
	return s.accessToken, nil
}

// refreshToken picks the refresh token for the next grant: the one in use,
// then the configured one, then the saved one. A saved token rotated from
// the configured one wins over it.
func (s *Source) refreshToken(ctx context.Context) (string, error) {
	if s.refresh != "" {
		return s.refresh, nil
	}
	saved, err := s.credential(ctx, CredentialKey)
	if err != nil {
		return "", fmt.Errorf("load refresh token: %w", err)
	}
	switch {
	case s.cfg.RefreshToken != "" && (saved == "" || !s.rotatedFromConfig(ctx)):
		s.refresh = s.cfg.RefreshToken
	case saved != "":
		s.refresh = saved
	default:
		return "", fmt.Errorf("no refresh token, run playlog -auth: %w", playback.ErrUnauthorized)
	}
	return s.refresh, nil
}

func (s *Source) rotatedFromConfig(ctx context.Context) bool {
	origin, err := s.credential(ctx, CredentialOriginKey)
	if err != nil {
		s.logger.Warn("spotify: load refresh token origin", slog.Any("err", err))
		return false
	}
	return origin == s.cfg.RefreshToken
}

func (s *Source) saveRotated(ctx context.Context, refresh string) {
	if s.cfg.Credentials == nil {
		return
	}
	if err := s.cfg.Credentials.SaveCredential(ctx, CredentialKey, refresh); err != nil {
		s.logger.Warn("spotify: save rotated refresh token", slog.Any("err", err))
		return
	}
	if s.cfg.RefreshToken == "" {
		return
	}
	if err := s.cfg.Credentials.SaveCredential(ctx, CredentialOriginKey, s.cfg.RefreshToken); err != nil {
		s.logger.Warn("spotify: save refresh token origin", slog.Any("err", err))
	}
}

// credential returns "" when nothing is saved under key.
func (s *Source) credential(ctx context.Context, key string) (string, error) {
	if s.cfg.Credentials == nil {
		return "", nil
	}
	v, err := s.cfg.Credentials.Credential(ctx, key)
	if store.IsNotFound(err) {
		return "", nil
	}
	return v, err
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

func requestToken(ctx context.Context, client *http.Client, cfg Config, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.AccountsURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)

	resp, err := client.Do(req)
	if err != nil {
		return tokenResponse{}, mapHTTPError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		var e struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return tokenResponse{}, fmt.Errorf("token grant %s %s: %w", e.Error, e.Description, playback.ErrUnauthorized)
	case resp.StatusCode >= 500:
		return tokenResponse{}, fmt.Errorf("%w: token status %d", playback.ErrTemporary, resp.StatusCode)
	case resp.StatusCode >= 400:
		return tokenResponse{}, fmt.Errorf("token status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return tokenResponse{}, fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return tokenResponse{}, errors.New("empty access token")
	}
	return tok, nil
}

func mapHTTPError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", playback.ErrTemporary, err)
	}
	return err
}
