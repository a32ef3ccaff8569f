package listenbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playlog/playlog/internal/scrobble"
	"github.com/playlog/playlog/internal/store"
)

type fakeServer struct {
	mu       sync.Mutex
	received []submission
	status   int
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/1/submit-listens" || r.Header.Get("Authorization") != "Token tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var sub submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	f.received = append(f.received, sub)
	w.Write([]byte(`{"status":"ok"}`))
}

func (f *fakeServer) setStatus(code int) {
	f.mu.Lock()
	f.status = code
	f.mu.Unlock()
}

var track = scrobble.Track{
	Title:      "Everything In Its Right Place",
	Artists:    []string{"Radiohead"},
	Album:      "Kid A",
	DurationMs: 251000,
	StartedAt:  time.Unix(1700000000, 0),
}

func newTest(t *testing.T, token string) (*Scrobbler, *fakeServer) {
	t.Helper()
	fake := &fakeServer{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "plays.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return New("", Config{BaseURL: srv.URL, Token: token, Pending: st}), fake
}

func TestScrobbleSubmitsSingleListen(t *testing.T) {
	s, fake := newTest(t, "tok")

	require.NoError(t, s.Scrobble(context.Background(), track))

	require.Len(t, fake.received, 1)
	sub := fake.received[0]
	assert.Equal(t, "single", sub.ListenType)
	require.Len(t, sub.Payload, 1)
	l := sub.Payload[0]
	assert.Equal(t, int64(1700000000), l.ListenedAt)
	assert.Equal(t, "Radiohead", l.TrackMetadata.ArtistName)
	assert.Equal(t, "Everything In Its Right Place", l.TrackMetadata.TrackName)
	assert.Equal(t, "Kid A", l.TrackMetadata.ReleaseName)
	assert.Equal(t, int64(251000), l.TrackMetadata.AdditionalInfo.DurationMs)
	assert.Equal(t, "playlog", l.TrackMetadata.AdditionalInfo.SubmissionClient)
}

func TestNowPlayingOmitsTimestamp(t *testing.T) {
	s, fake := newTest(t, "tok")

	require.NoError(t, s.NowPlaying(context.Background(), track))

	require.Len(t, fake.received, 1)
	assert.Equal(t, "playing_now", fake.received[0].ListenType)
	assert.Zero(t, fake.received[0].Payload[0].ListenedAt)
}

func TestUnauthorizedIsQueued(t *testing.T) {
	s, _ := newTest(t, "wrong")
	ctx := context.Background()

	err := s.Scrobble(ctx, track)
	assert.True(t, errors.Is(err, scrobble.ErrUnauthorized), "got %v", err)
	assert.Equal(t, 1, s.PendingCount(ctx))
}

func TestFlushRetriesQueuedListens(t *testing.T) {
	s, fake := newTest(t, "tok")
	ctx := context.Background()

	fake.setStatus(http.StatusServiceUnavailable)
	require.Error(t, s.Scrobble(ctx, track))
	assert.Equal(t, 1, s.PendingCount(ctx))

	fake.setStatus(0)
	require.NoError(t, s.FlushPending(ctx))
	assert.Equal(t, 0, s.PendingCount(ctx))
	require.Len(t, fake.received, 1)
	assert.Equal(t, int64(1700000000), fake.received[0].Payload[0].ListenedAt)
}

func TestDisabledWithoutToken(t *testing.T) {
	s, _ := newTest(t, "")
	assert.False(t, s.IsEnabled())
	assert.ErrorIs(t, s.NowPlaying(context.Background(), track), scrobble.ErrNotConfigured)
}

func TestBadRequestIsDropped(t *testing.T) {
	s, fake := newTest(t, "tok")
	ctx := context.Background()

	fake.setStatus(http.StatusBadRequest)
	err := s.Scrobble(ctx, track)
	assert.ErrorIs(t, err, scrobble.ErrRejected)
	assert.Equal(t, 0, s.PendingCount(ctx))

	fake.setStatus(http.StatusServiceUnavailable)
	require.Error(t, s.Scrobble(ctx, track))
	require.Equal(t, 1, s.PendingCount(ctx))

	fake.setStatus(http.StatusBadRequest)
	require.NoError(t, s.FlushPending(ctx))
	assert.Equal(t, 0, s.PendingCount(ctx), "a listen the server refuses is not retried")
}
