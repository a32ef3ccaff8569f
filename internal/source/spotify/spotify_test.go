package spotify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playlog/playlog/internal/playback"
	"github.com/playlog/playlog/internal/store"
)

type memCredentials struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *memCredentials) Credential(_ context.Context, service string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[service]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (c *memCredentials) SaveCredential(_ context.Context, service, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = map[string]string{}
	}
	c.m[service] = value
	return nil
}

// fakeSpotify serves both the accounts and API endpoints.
type fakeSpotify struct {
	tokenCalls   atomic.Int32
	playingCalls atomic.Int32
	// rejectFirst makes the first API call answer 401.
	rejectFirst atomic.Bool
	status      int
	body        string

	mu sync.Mutex
	// rotateTo, when set, is handed out as a new refresh token and becomes
	// the only one accepted.
	rotateTo string
	valid    string
}

func (f *fakeSpotify) grantRefresh(token string) (rotated string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := f.valid
	if want == "" {
		want = "refresh"
	}
	if token != want {
		return "", false
	}
	if f.rotateTo != "" {
		f.valid = f.rotateTo
	}
	return f.rotateTo, true
}

func (f *fakeSpotify) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "id" || secret != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		r.ParseForm()
		n := f.tokenCalls.Add(1)
		switch r.PostForm.Get("grant_type") {
		case "refresh_token":
			rotated, ok := f.grantRefresh(r.PostForm.Get("refresh_token"))
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			if rotated != "" {
				json.NewEncoder(w).Encode(map[string]any{
					"access_token":  "token-" + string(rune('0'+n)),
					"expires_in":    3600,
					"refresh_token": rotated,
				})
				return
			}
		case "authorization_code":
			if r.PostForm.Get("code") != "the-code" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"access_token": "a", "expires_in": 3600, "refresh_token": "refresh"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-" + string(rune('0'+n)),
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("GET /v1/me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
		f.playingCalls.Add(1)
		if f.rejectFirst.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer token-") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
		}
		io.WriteString(w, f.body)
	})
	return mux
}

const playingBody = `{
	"is_playing": true,
	"progress_ms": 42000,
	"item": {
		"id": "abc",
		"name": "Paranoid Android",
		"duration_ms": 387000,
		"artists": [{"name": "Radiohead"}],
		"album": {"name": "OK Computer"}
	}
}`

func newTestSource(t *testing.T, fake *fakeSpotify, creds Credentials, refresh string) *Source {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	src, err := New(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RefreshToken: refresh,
		APIURL:       srv.URL,
		AccountsURL:  srv.URL,
		Credentials:  creds,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return src
}

func TestCurrentParsesTrack(t *testing.T) {
	fake := &fakeSpotify{body: playingBody}
	src := newTestSource(t, fake, nil, "refresh")

	snap, ok := src.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, "Paranoid Android", snap.Name())
	assert.Equal(t, []string{"Radiohead"}, snap.Artists)
	assert.Equal(t, "OK Computer", snap.AlbumName())
	assert.Equal(t, int64(42000), snap.Progress())
	assert.Equal(t, "abc", snap.TrackID)
	assert.True(t, snap.IsPlaying)
	assert.True(t, snap.Complete())

	// Cached access token is reused.
	_, ok = src.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
}

func TestCurrentNoContentIsNoSnapshot(t *testing.T) {
	fake := &fakeSpotify{status: http.StatusNoContent}
	src := newTestSource(t, fake, nil, "refresh")

	_, ok := src.Current(context.Background())
	assert.False(t, ok)
}

func TestCurrentWithoutItemIsIncomplete(t *testing.T) {
	fake := &fakeSpotify{body: `{"is_playing": true, "progress_ms": 5000, "item": null}`}
	src := newTestSource(t, fake, nil, "refresh")

	snap, ok := src.Current(context.Background())
	require.True(t, ok)
	assert.Nil(t, snap.TrackName)
	assert.Equal(t, int64(5000), snap.Progress())
	assert.False(t, snap.Complete())
}

func TestCurrentReauthenticatesOn401(t *testing.T) {
	fake := &fakeSpotify{body: playingBody}
	fake.rejectFirst.Store(true)
	src := newTestSource(t, fake, nil, "refresh")

	snap, ok := src.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, "Paranoid Android", snap.Name())
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
	assert.Equal(t, int32(2), fake.playingCalls.Load())
}

func TestCurrentServerErrorIsNoSnapshot(t *testing.T) {
	fake := &fakeSpotify{status: http.StatusBadGateway}
	src := newTestSource(t, fake, nil, "refresh")

	_, ok := src.Current(context.Background())
	assert.False(t, ok)

	_, err := src.currentlyPlaying(context.Background())
	assert.True(t, playback.IsTemporary(err))
}

func TestRefreshTokenFromCredentials(t *testing.T) {
	creds := &memCredentials{}
	fake := &fakeSpotify{body: playingBody}
	src := newTestSource(t, fake, creds, "")

	err := src.Check(context.Background())
	assert.True(t, playback.IsUnauthorized(err), "got %v", err)

	require.NoError(t, creds.SaveCredential(context.Background(), CredentialKey, "refresh"))
	require.NoError(t, src.Check(context.Background()))

	_, ok := src.Current(context.Background())
	assert.True(t, ok)
}

func TestRotatedRefreshTokenReplacesConfigured(t *testing.T) {
	creds := &memCredentials{}
	fake := &fakeSpotify{body: playingBody, rotateTo: "refresh-2"}
	src := newTestSource(t, fake, creds, "refresh")
	now := time.Now()
	src.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, src.Check(ctx))
	saved, err := creds.Credential(ctx, CredentialKey)
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", saved)

	// The configured token is now dead; the next grant must use the new one.
	now = now.Add(time.Hour)
	_, ok := src.Current(ctx)
	assert.True(t, ok)

	// After a restart the saved token still wins over the configured one.
	restarted := newTestSource(t, fake, creds, "refresh")
	require.NoError(t, restarted.Check(ctx))

	// A different configured token is a deliberate override.
	overridden := newTestSource(t, fake, creds, "hand-edited")
	assert.True(t, playback.IsUnauthorized(overridden.Check(ctx)))
}

func TestBadRefreshTokenIsUnauthorized(t *testing.T) {
	fake := &fakeSpotify{body: playingBody}
	src := newTestSource(t, fake, nil, "revoked")

	err := src.Check(context.Background())
	assert.True(t, playback.IsUnauthorized(err), "got %v", err)
	_, ok := src.Current(context.Background())
	assert.False(t, ok)
}

func TestTokenRefreshedAfterExpiry(t *testing.T) {
	fake := &fakeSpotify{body: playingBody}
	src := newTestSource(t, fake, nil, "refresh")
	now := time.Now()
	src.now = func() time.Time { return now }

	_, ok := src.Current(context.Background())
	require.True(t, ok)
	now = now.Add(time.Hour)
	_, ok = src.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestNewRequiresClientCredentials(t *testing.T) {
	_, err := New(Config{ClientID: "id"})
	assert.ErrorIs(t, err, playback.ErrInvalidConfig)
}

func TestAuthorizeFlowSavesRefreshToken(t *testing.T) {
	fake := &fakeSpotify{}
	accounts := httptest.NewServer(fake.handler())
	defer accounts.Close()

	// Reserve a free port for the callback listener.
	l := httptest.NewServer(http.NotFoundHandler())
	redirect := "http://" + l.Listener.Addr().String() + "/callback"
	l.Close()

	creds := &memCredentials{}
	cfg := Config{ClientID: "id", ClientSecret: "secret", AccountsURL: accounts.URL, Credentials: creds}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := Authorize(ctx, cfg, redirect, func(authURL string) {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		assert.Equal(t, "/authorize", u.Path)
		assert.Equal(t, Scope, u.Query().Get("scope"))
		state := u.Query().Get("state")

		go func() {
			resp, err := http.Get(redirect + "?code=the-code&state=" + url.QueryEscape(state))
			if err == nil {
				resp.Body.Close()
			}
		}()
	})
	require.NoError(t, err)

	v, err := creds.Credential(ctx, CredentialKey)
	require.NoError(t, err)
	assert.Equal(t, "refresh", v)
}

func TestAuthCallbackRejectsWrongState(t *testing.T) {
	l := httptest.NewServer(http.NotFoundHandler())
	redirect := "http://" + l.Listener.Addr().String() + "/callback"
	l.Close()

	srv, err := StartAuthServer(redirect, "expected")
	require.NoError(t, err)
	defer srv.Shutdown()

	resp, err := http.Get(redirect + "?code=x&state=other")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = srv.Wait(ctx)
	assert.ErrorContains(t, err, "state mismatch")
}
