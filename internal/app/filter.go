package app

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/playlog/playlog/internal/store"
)

// FilterState narrows the plays list with a fuzzy query.
type FilterState struct {
	input   string
	plays   []store.Play
	matches []fuzzy.Match
}

func NewFilterState() *FilterState {
	return &FilterState{}
}

// Reset clears the query.
func (f *FilterState) Reset() {
	f.input = ""
	f.matches = nil
}

// SetPlays replaces the searched plays and re-runs the query.
func (f *FilterState) SetPlays(plays []store.Play) {
	f.plays = plays
	f.updateMatches()
}

// SetInput sets the query and updates matches.
func (f *FilterState) SetInput(input string) {
	f.input = input
	f.updateMatches()
}

func (f *FilterState) Input() string {
	return f.input
}

// InsertChar appends a character to the query.
func (f *FilterState) InsertChar(ch rune) {
	f.input += string(ch)
	f.updateMatches()
}

// Backspace removes the last character of the query.
func (f *FilterState) Backspace() {
	if f.input == "" {
		return
	}
	r := []rune(f.input)
	f.input = string(r[:len(r)-1])
	f.updateMatches()
}

// Matches returns the matching plays, best match first.
func (f *FilterState) Matches() []store.Play {
	out := make([]store.Play, 0, len(f.matches))
	for _, m := range f.matches {
		out = append(out, f.plays[m.Index])
	}
	return out
}

func (f *FilterState) updateMatches() {
	if f.input == "" {
		f.matches = nil
		return
	}
	f.matches = fuzzy.FindFrom(f.input, searchable(f.plays))
}

// searchable adapts plays to fuzzy.Source.
type searchable []store.Play

func (s searchable) Len() int { return len(s) }

func (s searchable) String(i int) string {
	p := s[i]
	return p.TrackName + " " + strings.Join(p.Artists, " ") + " " + p.Album
}
