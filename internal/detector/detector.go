// Package detector decides, from a sequence of noisy "now playing"
// snapshots, when a track has been listened to long enough to count as a
// play, and remembers whether the current play has already been recorded.
//
// The functions are not safe for concurrent use. One State belongs to one
// listener and is driven by a single goroutine.
package detector

import "github.com/playlog/playlog/internal/playback"

// RecordThresholdMs is the elapsed playback a track needs before it counts.
const RecordThresholdMs int64 = 30000

// State is the detector's memory between polls.
type State struct {
	// Previous is the last snapshot observed, nil before the first poll.
	Previous *playback.Snapshot
	// RecordedCurrentTrack is true once the current contiguous play of
	// Previous's track has produced a persisted record.
	RecordedCurrentTrack bool
}

// ShouldRecord reports whether snap should trigger a persistence attempt.
// It only reads state.
func ShouldRecord(state *State, snap playback.Snapshot) bool {
	if state.Previous == nil {
		// Started mid-track, possibly already past the threshold.
		return snap.ProgressMs != nil && *snap.ProgressMs >= RecordThresholdMs
	}

	cur, prev := snap.ProgressMs, state.Previous.ProgressMs
	if cur == nil || prev == nil {
		return false
	}
	return *cur > *prev && !state.RecordedCurrentTrack && *cur >= RecordThresholdMs
}

// Update moves state forward to snap and folds in the outcome of this
// cycle's persistence attempt. Call it exactly once per snapshot, with
// wasPersisted false when no attempt was made.
func Update(state *State, snap playback.Snapshot, wasPersisted bool) {
	if prev := state.Previous; prev != nil {
		switch {
		case !snap.SameTrack(*prev):
			state.RecordedCurrentTrack = false
		case state.RecordedCurrentTrack && snap.ProgressMs != nil:
			// An absent position never clears credit; a rewind below the
			// last observed position does.
			state.RecordedCurrentTrack = prev.Progress() <= *snap.ProgressMs
		}
	}

	next := snap.Clone()
	state.Previous = &next

	if !state.RecordedCurrentTrack {
		state.RecordedCurrentTrack = wasPersisted
	}
}

// Detector owns the State for one listener.
type Detector struct {
	state State
}

// New returns a detector that has seen nothing yet.
func New() *Detector {
	return &Detector{}
}

func (d *Detector) ShouldRecord(snap playback.Snapshot) bool {
	return ShouldRecord(&d.state, snap)
}

func (d *Detector) Update(snap playback.Snapshot, wasPersisted bool) {
	Update(&d.state, snap, wasPersisted)
}

// State returns a copy of the current state.
func (d *Detector) State() State {
	s := d.state
	if s.Previous != nil {
		p := s.Previous.Clone()
		s.Previous = &p
	}
	return s
}

// Reset forgets everything, as if no snapshot had ever been seen. The
// worker never calls it, since a source outage must not clear credit; it
// is for embedders that switch sources behind one detector.
func (d *Detector) Reset() {
	d.state = State{}
}
