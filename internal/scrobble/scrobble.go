// Package scrobble mirrors recorded plays to external listening-history
// services.
package scrobble

import (
	"errors"
	"strings"
	"time"

	"github.com/playlog/playlog/internal/playback"
	"github.com/playlog/playlog/internal/store"
)

var (
	ErrNotConfigured = errors.New("scrobbling not configured")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
	// ErrRejected marks a submission the service will never accept, such
	// as one missing its artist. It is dropped rather than retried.
	ErrRejected = errors.New("rejected by service")
)

const (
	// MinTrackLength is the shortest track the services accept.
	MinTrackLength = 30 * time.Second
	// ScrobbleAfter submits a long track once this much has been heard.
	ScrobbleAfter = 4 * time.Minute
)

// ShouldScrobble applies the Last.fm submission rule: a track longer than
// MinTrackLength counts once half of it, or ScrobbleAfter, has been heard.
// An unknown length (zero) only satisfies the ScrobbleAfter rule.
func ShouldScrobble(length, played time.Duration) bool {
	if length > 0 && length <= MinTrackLength {
		return false
	}
	if played >= ScrobbleAfter {
		return true
	}
	return length > 0 && played >= length/2
}

// Track is what scrobblers submit.
type Track struct {
	Title      string
	Artists    []string
	Album      string
	DurationMs int64
	StartedAt  time.Time
}

// PrimaryArtist is the first credited artist, for services that accept
// only one.
func (t Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// ArtistCredit joins all artists for display.
func (t Track) ArtistCredit() string {
	return strings.Join(t.Artists, ", ")
}

// Submittable reports whether the services would accept t.
func (t Track) Submittable() bool {
	return t.Title != "" && t.PrimaryArtist() != ""
}

// Length is the track duration, zero when unknown.
func (t Track) Length() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// TrackFromRecord builds the scrobble for a recorded play. Metadata comes
// from the stored row; the start time and length come from the snapshot
// that triggered it, since PlayedAt is when the row was written.
func TrackFromRecord(p store.Play, snap playback.Snapshot) Track {
	t := TrackFromSnapshot(snap)
	t.Title = p.TrackName
	t.Artists = append([]string(nil), p.Artists...)
	t.Album = p.Album
	if snap.ObservedAt.IsZero() && !p.PlayedAt.IsZero() {
		t.StartedAt = p.PlayedAt.Add(-time.Duration(snap.Progress()) * time.Millisecond)
	}
	return t
}

// TrackFromSnapshot builds a now-playing track. StartedAt is estimated
// from the reported progress.
func TrackFromSnapshot(s playback.Snapshot) Track {
	t := Track{
		Title:   s.Name(),
		Artists: append([]string(nil), s.Artists...),
		Album:   s.AlbumName(),
	}
	if s.DurationMs != nil {
		t.DurationMs = *s.DurationMs
	}
	at := s.ObservedAt
	if at.IsZero() {
		at = time.Now()
	}
	t.StartedAt = at.Add(-time.Duration(s.Progress()) * time.Millisecond)
	return t
}
