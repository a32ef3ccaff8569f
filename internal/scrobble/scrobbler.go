package scrobble

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Scrobbler is the interface implemented by all scrobbling backends.
type Scrobbler interface {
	// ID returns a unique identifier for this scrobbler instance.
	ID() string
	Name() string
	// IsEnabled returns true if this scrobbler is configured and ready.
	IsEnabled() bool

	NowPlaying(ctx context.Context, track Track) error
	// Scrobble submits a play, queueing it when submission fails.
	Scrobble(ctx context.Context, track Track) error

	PendingCount(ctx context.Context) int
	// FlushPending attempts to submit queued scrobbles.
	FlushPending(ctx context.Context) error
}

// sendTimeout bounds a background submission that outlives the poll
// cycle that triggered it.
const sendTimeout = 15 * time.Second

// Manager coordinates multiple scrobblers, fanning out events to all enabled backends.
type Manager struct {
	mu         sync.RWMutex
	scrobblers []Scrobbler
	wg         sync.WaitGroup
	logger     *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

func (m *Manager) Register(s Scrobbler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scrobblers = append(m.scrobblers, s)
}

// Scrobblers returns all registered scrobblers.
func (m *Manager) Scrobblers() []Scrobbler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Scrobbler, len(m.scrobblers))
	copy(result, m.scrobblers)
	return result
}

func (m *Manager) EnabledCount() int {
	count := 0
	for _, s := range m.Scrobblers() {
		if s.IsEnabled() {
			count++
		}
	}
	return count
}

// NowPlaying reports the current track to all enabled scrobblers without
// waiting for them.
func (m *Manager) NowPlaying(ctx context.Context, track Track) {
	for _, s := range m.Scrobblers() {
		if !s.IsEnabled() {
			continue
		}
		m.goSend(ctx, s, "now playing", func(ctx context.Context) error {
			return s.NowPlaying(ctx, track)
		})
	}
}

// Scrobble reports a play to every scrobbler. Disabled ones queue it.
func (m *Manager) Scrobble(ctx context.Context, track Track) {
	for _, s := range m.Scrobblers() {
		m.goSend(ctx, s, "scrobble", func(ctx context.Context) error {
			return s.Scrobble(ctx, track)
		})
	}
}

func (m *Manager) goSend(ctx context.Context, s Scrobbler, what string, send func(context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			m.logger.Warn("scrobbler "+what+" failed", slog.String("scrobbler", s.ID()), slog.Any("err", err))
		}
	}()
}

// Wait blocks until all in-flight scrobble operations complete or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FlushPending flushes pending scrobbles for all enabled scrobblers.
func (m *Manager) FlushPending(ctx context.Context) error {
	var errs []error
	for _, s := range m.Scrobblers() {
		if !s.IsEnabled() {
			continue
		}
		if err := s.FlushPending(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) TotalPendingCount(ctx context.Context) int {
	total := 0
	for _, s := range m.Scrobblers() {
		total += s.PendingCount(ctx)
	}
	return total
}

// DefaultFlushInterval is how often queued scrobbles are retried.
const DefaultFlushInterval = 5 * time.Minute

// Run retries queued scrobbles every interval until ctx is cancelled, then
// waits briefly for in-flight submissions.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.flush(ctx)
	for {
		select {
		case <-ctx.Done():
			waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.Wait(waitCtx); err != nil {
				m.logger.Warn("scrobbles still in flight at shutdown", slog.Any("err", err))
			}
			return nil
		case <-ticker.C:
			m.flush(ctx)
		}
	}
}

func (m *Manager) flush(ctx context.Context) {
	if err := m.FlushPending(ctx); err != nil {
		m.logger.Warn("flush pending scrobbles", slog.Any("err", err))
	}
}
