// Package mpv reads what a running mpv instance is playing over its JSON
// IPC socket (mpv --input-ipc-server=PATH).
package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/playlog/playlog/internal/playback"
)

var errPropertyUnavailable = errors.New("property unavailable")

type Options struct {
	IPCPath string
	// Timeout bounds one request/reply exchange.
	Timeout time.Duration
	// ReadTags fills missing artist and album from the file's tags when
	// mpv is playing a local file.
	ReadTags bool
	Logger   *slog.Logger
	Dial     func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Source queries mpv on demand. It redials after any broken exchange.
type Source struct {
	opts Options

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID int64
	rng    *rand.Rand
	tags   tagCache
	now    func() time.Time
}

// DefaultIPCPath is where mpv is expected to listen when none is configured.
func DefaultIPCPath() string {
	return filepath.Join(os.TempDir(), "mpv.sock")
}

func New(opts Options) *Source {
	if opts.IPCPath == "" {
		opts.IPCPath = DefaultIPCPath()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{Timeout: 2 * time.Second}).DialContext
	}
	return &Source{
		opts: opts,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		now:  time.Now,
	}
}

func (s *Source) Name() string { return "mpv" }

// Current returns mpv's current file, or false when mpv is idle or
// unreachable.
func (s *Source) Current(ctx context.Context) (playback.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.current(ctx)
	if err != nil {
		if errors.Is(err, playback.ErrNotPlaying) {
			s.opts.Logger.Debug("mpv: idle")
		} else {
			s.opts.Logger.Warn("mpv: query playback", slog.String("ipc_path", s.opts.IPCPath), slog.Any("err", err))
			s.closeLocked()
		}
		return playback.Snapshot{}, false
	}
	return snap, true
}

// Check dials mpv and asks for its version.
func (s *Source) Check(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var version string
	if err := s.getProperty(ctx, "mpv-version", &version); err != nil {
		s.closeLocked()
		return err
	}
	return nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Source) closeLocked() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn, s.reader = nil, nil
	return err
}

func (s *Source) current(ctx context.Context) (playback.Snapshot, error) {
	var path string
	if err := s.getProperty(ctx, "path", &path); err != nil {
		if errors.Is(err, errPropertyUnavailable) {
			return playback.Snapshot{}, playback.ErrNotPlaying
		}
		return playback.Snapshot{}, err
	}

	snap := playback.Snapshot{ObservedAt: s.now()}

	var metadata map[string]any
	if err := s.optionalProperty(ctx, "metadata", &metadata); err != nil {
		return playback.Snapshot{}, err
	}
	var title string
	if err := s.optionalProperty(ctx, "media-title", &title); err != nil {
		return playback.Snapshot{}, err
	}
	var pos, duration *float64
	if err := s.optionalProperty(ctx, "time-pos", &pos); err != nil {
		return playback.Snapshot{}, err
	}
	if err := s.optionalProperty(ctx, "duration", &duration); err != nil {
		return playback.Snapshot{}, err
	}
	var paused bool
	if err := s.optionalProperty(ctx, "pause", &paused); err != nil {
		return playback.Snapshot{}, err
	}

	applyMetadata(&snap, metadata)
	if s.opts.ReadTags && isLocalFile(path) && !snap.Complete() {
		if t, ok := s.tags.lookup(path); ok {
			t.fill(&snap)
		} else {
			s.opts.Logger.Debug("mpv: no readable tags", slog.String("path", path))
		}
	}
	if snap.TrackName == nil && title != "" {
		snap.TrackName = playback.String(title)
	}

	snap.TrackID = path
	snap.IsPlaying = !paused
	if pos != nil {
		// time-pos dips slightly below zero right after a file loads.
		snap.ProgressMs = playback.Int64(max(int64(*pos*1000), 0))
	}
	if duration != nil {
		snap.DurationMs = playback.Int64(int64(*duration * 1000))
	}
	return snap, nil
}

// applyMetadata reads title, artist and album from mpv's metadata map,
// whose keys vary in case between container formats.
func applyMetadata(snap *playback.Snapshot, metadata map[string]any) {
	get := func(key string) string {
		for k, v := range metadata {
			if strings.EqualFold(k, key) {
				if s, ok := v.(string); ok {
					return strings.TrimSpace(s)
				}
			}
		}
		return ""
	}
	if v := get("title"); v != "" {
		snap.TrackName = playback.String(v)
	}
	if v := get("artist"); v != "" {
		snap.Artists = splitArtists(v)
	}
	if v := get("album"); v != "" {
		snap.Album = playback.String(v)
	}
}

func splitArtists(v string) []string {
	var out []string
	for _, a := range strings.Split(v, ";") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func isLocalFile(path string) bool {
	if strings.Contains(path, "://") && !strings.HasPrefix(path, "file://") {
		return false
	}
	return true
}

func (s *Source) optionalProperty(ctx context.Context, name string, out any) error {
	err := s.getProperty(ctx, name, out)
	if errors.Is(err, errPropertyUnavailable) {
		return nil
	}
	return err
}

type ipcReply struct {
	RequestID *int64          `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
	Event     string          `json:"event"`
}

// getProperty sends one get_property request and waits for the reply with
// the same request_id, skipping any events mpv interleaves.
func (s *Source) getProperty(ctx context.Context, name string, out any) error {
	if err := s.connect(ctx); err != nil {
		return err
	}

	s.nextID++
	id := s.nextID
	b, err := json.Marshal(map[string]any{
		"command":    []any{"get_property", name},
		"request_id": id,
	})
	if err != nil {
		return err
	}

	deadline := time.Now().Add(s.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	if _, err := s.conn.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		var reply ipcReply
		if err := json.Unmarshal(line, &reply); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		if reply.Event != "" || reply.RequestID == nil || *reply.RequestID != id {
			continue
		}
		switch reply.Error {
		case "success":
		case "property unavailable":
			return fmt.Errorf("%s: %w", name, errPropertyUnavailable)
		default:
			return fmt.Errorf("get_property %s: %s", name, reply.Error)
		}
		if len(reply.Data) == 0 || string(reply.Data) == "null" {
			return fmt.Errorf("%s: %w", name, errPropertyUnavailable)
		}
		if err := json.Unmarshal(reply.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", name, err)
		}
		return nil
	}
}

// connect dials the socket if needed, retrying briefly with jittered
// backoff in case mpv is still starting.
func (s *Source) connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	baseDelay := 50 * time.Millisecond
	maxDelay := 400 * time.Millisecond
	maxRetries := 3

	var err error
	for i := range maxRetries {
		var conn net.Conn
		conn, err = s.opts.Dial(ctx, "unix", s.opts.IPCPath)
		if err == nil {
			s.conn = conn
			s.reader = bufio.NewReader(conn)
			s.opts.Logger.Debug("mpv: connected", slog.String("ipc_path", s.opts.IPCPath), slog.Int("attempt", i+1))
			return nil
		}
		if i == maxRetries-1 {
			break
		}
		delay := min(baseDelay*time.Duration(1<<uint(i)), maxDelay)
		jitter := time.Duration(float64(delay) * 0.2 * s.rng.Float64())
		select {
		case <-ctx.Done():
			return fmt.Errorf("connect mpv ipc: %w", ctx.Err())
		case <-time.After(delay + jitter):
		}
	}
	return fmt.Errorf("connect mpv ipc: %w: %v", playback.ErrUnavailable, err)
}
