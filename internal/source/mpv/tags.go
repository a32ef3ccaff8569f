package mpv

import (
	"os"
	"strings"

	"github.com/dhowden/tag"

	"github.com/playlog/playlog/internal/playback"
)

type fileTags struct {
	title  string
	artist string
	album  string
}

func (t fileTags) fill(snap *playback.Snapshot) {
	if snap.TrackName == nil && t.title != "" {
		snap.TrackName = playback.String(t.title)
	}
	if snap.Artists == nil && t.artist != "" {
		snap.Artists = splitArtists(t.artist)
	}
	if snap.Album == nil && t.album != "" {
		snap.Album = playback.String(t.album)
	}
}

// tagCache remembers the tags of the last file so a track is read from
// disk once, not on every poll.
type tagCache struct {
	path string
	tags fileTags
	ok   bool
}

func (c *tagCache) lookup(path string) (fileTags, bool) {
	path = strings.TrimPrefix(path, "file://")
	if c.path == path {
		return c.tags, c.ok
	}
	c.path = path
	c.tags, c.ok = readTags(path)
	return c.tags, c.ok
}

func readTags(path string) (fileTags, bool) {
	f, err := os.Open(path)
	if err != nil {
		return fileTags{}, false
	}
	defer f.Close()
	meta, err := tag.ReadFrom(f)
	if err != nil {
		return fileTags{}, false
	}
	artist := meta.Artist()
	if artist == "" {
		artist = meta.AlbumArtist()
	}
	return fileTags{
		title:  strings.TrimSpace(meta.Title()),
		artist: strings.TrimSpace(artist),
		album:  strings.TrimSpace(meta.Album()),
	}, true
}
