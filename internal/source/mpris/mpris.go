// Package mpris reads playback state from a desktop media player that
// implements the MPRIS D-Bus interface.
package mpris

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/playlog/playlog/internal/playback"
)

const (
	busPrefix       = "org.mpris.MediaPlayer2."
	objectPath      = "/org/mpris/MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
)

type Options struct {
	// Player is the bus name suffix, e.g. "spotify" or "vlc". Empty picks
	// the first player that is playing.
	Player string
	Logger *slog.Logger
	// Connect defaults to the session bus.
	Connect func() (*dbus.Conn, error)
}

// Source queries the player's properties on every poll.
type Source struct {
	opts Options
	now  func() time.Time

	mu   sync.Mutex
	conn *dbus.Conn
}

func New(opts Options) *Source {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Connect == nil {
		opts.Connect = func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() }
	}
	return &Source{opts: opts, now: time.Now}
}

func (s *Source) Name() string { return "mpris" }

func (s *Source) Current(ctx context.Context) (playback.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.current(ctx)
	if err != nil {
		if playback.IsNotPlaying(err) {
			s.opts.Logger.Debug("mpris: nothing playing")
		} else {
			s.opts.Logger.Warn("mpris: query player", slog.String("player", s.opts.Player), slog.Any("err", err))
			s.closeLocked()
		}
		return playback.Snapshot{}, false
	}
	return snap, true
}

// Check connects to the session bus and lists the available players.
func (s *Source) Check(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s.players(ctx)
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
	s.conn = nil
	return err
}

func (s *Source) connect() error {
	if s.conn != nil {
		return nil
	}
	conn, err := s.opts.Connect()
	if err != nil {
		return fmt.Errorf("connect session bus: %w: %v", playback.ErrUnavailable, err)
	}
	s.conn = conn
	return nil
}

func (s *Source) players(ctx context.Context) ([]string, error) {
	var names []string
	err := s.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names)
	if err != nil {
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	var players []string
	for _, n := range names {
		if strings.HasPrefix(n, busPrefix) {
			players = append(players, strings.TrimPrefix(n, busPrefix))
		}
	}
	slices.Sort(players)
	return players, nil
}

func (s *Source) current(ctx context.Context) (playback.Snapshot, error) {
	if err := s.connect(); err != nil {
		return playback.Snapshot{}, err
	}

	candidates := []string{s.opts.Player}
	if s.opts.Player == "" {
		var err error
		candidates, err = s.players(ctx)
		if err != nil {
			return playback.Snapshot{}, err
		}
	}

	for _, name := range candidates {
		obj := s.conn.Object(busPrefix+name, objectPath)
		status, err := stringProperty(obj, "PlaybackStatus")
		if err != nil {
			if s.opts.Player != "" {
				return playback.Snapshot{}, fmt.Errorf("%w: %s: %v", playback.ErrNotPlaying, name, err)
			}
			continue
		}
		// Without a configured player only an active one counts.
		if status == "Stopped" || (s.opts.Player == "" && status != "Playing") {
			continue
		}

		v, err := obj.GetProperty(playerInterface + ".Metadata")
		if err != nil {
			return playback.Snapshot{}, fmt.Errorf("read %s metadata: %w", name, err)
		}
		var meta map[string]dbus.Variant
		if err := v.Store(&meta); err != nil {
			return playback.Snapshot{}, fmt.Errorf("decode %s metadata: %w", name, err)
		}

		var position *int64
		if pv, err := obj.GetProperty(playerInterface + ".Position"); err == nil {
			if us, ok := pv.Value().(int64); ok {
				position = &us
			}
		}

		snap := snapshotFromMetadata(meta, status, position)
		snap.ObservedAt = s.now()
		return snap, nil
	}
	return playback.Snapshot{}, playback.ErrNotPlaying
}

func stringProperty(obj dbus.BusObject, prop string) (string, error) {
	v, err := obj.GetProperty(playerInterface + "." + prop)
	if err != nil {
		return "", err
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", errors.New(prop + " is not a string")
	}
	return s, nil
}

// snapshotFromMetadata maps xesam metadata to a snapshot. positionUs is
// the MPRIS Position in microseconds.
func snapshotFromMetadata(meta map[string]dbus.Variant, status string, positionUs *int64) playback.Snapshot {
	snap := playback.Snapshot{IsPlaying: status == "Playing"}

	if v, ok := meta["xesam:title"]; ok {
		if t, ok := v.Value().(string); ok && t != "" {
			snap.TrackName = playback.String(t)
		}
	}
	if v, ok := meta["xesam:artist"]; ok {
		switch a := v.Value().(type) {
		case []string:
			snap.Artists = slices.DeleteFunc(slices.Clone(a), func(s string) bool { return s == "" })
		case string:
			if a != "" {
				snap.Artists = []string{a}
			}
		}
	}
	if v, ok := meta["xesam:album"]; ok {
		if a, ok := v.Value().(string); ok && a != "" {
			snap.Album = playback.String(a)
		}
	}
	if v, ok := meta["mpris:trackid"]; ok {
		switch id := v.Value().(type) {
		case dbus.ObjectPath:
			snap.TrackID = string(id)
		case string:
			snap.TrackID = id
		}
	}
	if v, ok := meta["mpris:length"]; ok {
		switch l := v.Value().(type) {
		case int64:
			snap.DurationMs = playback.Int64(l / 1000)
		case uint64:
			snap.DurationMs = playback.Int64(int64(l / 1000))
		}
	}
	if positionUs != nil {
		snap.ProgressMs = playback.Int64(*positionUs / 1000)
	}
	return snap
}
