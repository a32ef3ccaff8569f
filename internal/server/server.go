// Package server exposes recorded plays over a read-only JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/playlog/playlog/internal/store"
	"github.com/playlog/playlog/internal/worker"
)

const (
	DefaultAddr = "127.0.0.1:8888"

	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// Store is the read side of the plays database.
type Store interface {
	PlayByID(ctx context.Context, id int64) (store.Play, error)
	PlaysByName(ctx context.Context, name string) ([]store.Play, error)
	RecentPlays(ctx context.Context, limit int) ([]store.Play, error)
	CountPlays(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// StatusProvider reports the poll loop's counters. *worker.Worker
// implements it.
type StatusProvider interface {
	Stats() worker.Stats
}

type Options struct {
	Addr   string
	Logger *slog.Logger
	// Status is optional; without it /api/status reports only the play count.
	Status StatusProvider
}

type Server struct {
	store  Store
	status StatusProvider
	logger *slog.Logger
	http   *http.Server
}

func New(st Store, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{store: st, status: opts.Status, logger: opts.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/song/{song}", s.handleSong)
	mux.HandleFunc("GET /api/id/{id}", s.handleID)
	mux.HandleFunc("GET /api/recent", s.handleRecent)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           logMiddleware(mux, opts.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	s.logger.Info("query service listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown query service: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", slog.Any("err", err))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleSong(w http.ResponseWriter, r *http.Request) {
	plays, err := s.store.PlaysByName(r.Context(), r.PathValue("song"))
	if err != nil {
		s.internalError(w, "lookup plays by name", err)
		return
	}
	writeJSON(w, http.StatusOK, plays)
}

func (s *Server) handleID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	play, err := s.store.PlayByID(r.Context(), id)
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "play not found")
		return
	}
	if err != nil {
		s.internalError(w, "lookup play", err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxRecentLimit)
	}
	plays, err := s.store.RecentPlays(r.Context(), limit)
	if err != nil {
		s.internalError(w, "lookup recent plays", err)
		return
	}
	writeJSON(w, http.StatusOK, plays)
}

type statusResponse struct {
	TotalPlays int64         `json:"total_plays"`
	Worker     *worker.Stats `json:"worker,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	total, err := s.store.CountPlays(r.Context())
	if err != nil {
		s.internalError(w, "count plays", err)
		return
	}
	resp := statusResponse{TotalPlays: total}
	if s.status != nil {
		st := s.status.Stats()
		resp.Worker = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op, slog.Any("err", err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
