package worker

import (
	"runtime"
	"sync"
	"time"
)

// Stats is a point-in-time view of the worker's counters.
type Stats struct {
	Source             string    `json:"source"`
	StartedAt          time.Time `json:"started_at"`
	Uptime             string    `json:"uptime"`
	Cycles             int64     `json:"cycles"`
	Snapshots          int64     `json:"snapshots"`
	SourceMisses       int64     `json:"source_misses"`
	Records            int64     `json:"records"`
	SinkFailures       int64     `json:"sink_failures"`
	IncompleteSnapshot int64     `json:"incomplete_snapshots"`
	RecoveredPanics    int64     `json:"recovered_panics"`
	CurrentTrack       string    `json:"current_track,omitempty"`
	Credited           bool      `json:"credited"`
	LastRecordAt       time.Time `json:"last_record_at,omitzero"`
	LastRecordTrack    string    `json:"last_record_track,omitempty"`
	LastError          string    `json:"last_error,omitempty"`
	LastErrorAt        time.Time `json:"last_error_at,omitzero"`
	Goroutines         int       `json:"goroutines"`
	MemoryBytes        uint64    `json:"memory_bytes"`
}

// statsRecorder is written by the poll loop and read by the query
// service, so every access takes the lock.
type statsRecorder struct {
	mu sync.Mutex
	s  Stats
}

func newStatsRecorder(source string) *statsRecorder {
	return &statsRecorder{s: Stats{Source: source, StartedAt: time.Now()}}
}

func (r *statsRecorder) update(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.s)
	r.mu.Unlock()
}

func (r *statsRecorder) recordError(msg string) {
	r.update(func(s *Stats) {
		s.LastError = msg
		s.LastErrorAt = time.Now()
	})
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	s := r.s
	r.mu.Unlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	s.MemoryBytes = m.Alloc
	s.Goroutines = runtime.NumGoroutine()
	s.Uptime = time.Since(s.StartedAt).Round(time.Second).String()
	return s
}
