// Package playback defines what one poll of a "now playing" feed looks like
// and the capability that produces it.
package playback

import (
	"context"
	"slices"
	"time"
)

// Snapshot is one poll's view of what is playing. Nil fields mean the
// source did not report that value. Artists is absent when nil; an empty
// non-nil slice is a present, empty list.
type Snapshot struct {
	TrackName  *string
	Artists    []string
	Album      *string
	ProgressMs *int64

	// Informational only; never used for play detection.
	TrackID    string
	DurationMs *int64
	IsPlaying  bool
	ObservedAt time.Time
}

// Source yields the latest snapshot, or false when nothing is available.
// Implementations swallow their own transport and auth failures (logging
// them) and re-authenticate transparently.
type Source interface {
	Name() string
	Current(ctx context.Context) (Snapshot, bool)
}

// Complete reports whether the snapshot carries everything a play record
// needs: track name, artists and album.
func (s Snapshot) Complete() bool {
	return s.TrackName != nil && s.Artists != nil && s.Album != nil
}

// SameTrack compares track identity by name only. Two absent names are
// the same track.
func (s Snapshot) SameTrack(other Snapshot) bool {
	switch {
	case s.TrackName == nil && other.TrackName == nil:
		return true
	case s.TrackName == nil || other.TrackName == nil:
		return false
	default:
		return *s.TrackName == *other.TrackName
	}
}

// Name returns the track name or "" when absent.
func (s Snapshot) Name() string {
	if s.TrackName == nil {
		return ""
	}
	return *s.TrackName
}

// AlbumName returns the album or "" when absent.
func (s Snapshot) AlbumName() string {
	if s.Album == nil {
		return ""
	}
	return *s.Album
}

// Progress returns the progress in ms or 0 when absent.
func (s Snapshot) Progress() int64 {
	if s.ProgressMs == nil {
		return 0
	}
	return *s.ProgressMs
}

// Clone returns a deep copy so a stored snapshot can't be mutated through
// the caller's pointers or slices.
func (s Snapshot) Clone() Snapshot {
	c := s
	if s.TrackName != nil {
		c.TrackName = String(*s.TrackName)
	}
	if s.Album != nil {
		c.Album = String(*s.Album)
	}
	if s.ProgressMs != nil {
		c.ProgressMs = Int64(*s.ProgressMs)
	}
	if s.DurationMs != nil {
		c.DurationMs = Int64(*s.DurationMs)
	}
	if s.Artists != nil {
		c.Artists = slices.Clone(s.Artists)
	}
	return c
}

// String returns a pointer to v.
func String(v string) *string { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
