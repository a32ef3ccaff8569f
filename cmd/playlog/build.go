package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playlog/playlog/internal/config"
	"github.com/playlog/playlog/internal/notify"
	"github.com/playlog/playlog/internal/playback"
	"github.com/playlog/playlog/internal/scrobble"
	"github.com/playlog/playlog/internal/scrobble/lastfm"
	"github.com/playlog/playlog/internal/scrobble/listenbrainz"
	"github.com/playlog/playlog/internal/source/mpris"
	"github.com/playlog/playlog/internal/source/mpv"
	"github.com/playlog/playlog/internal/source/spotify"
	"github.com/playlog/playlog/internal/store"
	"github.com/playlog/playlog/internal/worker"
)

// buildSource returns the configured playback source and a func that
// releases its connection.
func buildSource(cfg *config.Config, st *store.Store, logger *slog.Logger) (playback.Source, func(), error) {
	logger = logger.With(slog.String("source", cfg.Source.Type))
	switch cfg.Source.Type {
	case "spotify":
		src, err := spotify.New(spotifyConfig(cfg, st, logger))
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil
	case "mpris":
		src := mpris.New(mpris.Options{Player: cfg.Source.MPRIS.Player, Logger: logger})
		return src, func() { src.Close() }, nil
	case "mpv":
		src := mpv.New(mpv.Options{
			IPCPath:  cfg.Source.MPV.IPC,
			Timeout:  cfg.Source.MPV.Timeout(),
			ReadTags: *cfg.Source.MPV.ReadTags,
			Logger:   logger,
		})
		return src, func() { src.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown source type %q: %w", cfg.Source.Type, playback.ErrInvalidConfig)
	}
}

func spotifyConfig(cfg *config.Config, st *store.Store, logger *slog.Logger) spotify.Config {
	sp := cfg.Source.Spotify
	return spotify.Config{
		ClientID:     sp.ClientID,
		ClientSecret: sp.ClientSecret,
		RefreshToken: sp.RefreshToken,
		APIURL:       sp.APIURL,
		AccountsURL:  sp.AccountsURL,
		Credentials:  st,
		Logger:       logger,
	}
}

// buildScrobblers registers every enabled [[scrobblers]] entry. Failed
// submissions queue in st.
func buildScrobblers(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) *scrobble.Manager {
	m := scrobble.NewManager(logger)
	for _, e := range cfg.Scrobblers {
		if !e.Enabled {
			continue
		}
		slogger := logger.With(slog.String("scrobbler", e.ID))
		var s scrobble.Scrobbler
		switch e.Type {
		case "lastfm":
			s = lastfm.New(e.ID, lastfm.Config{
				APIKey:     e.String("api_key"),
				APISecret:  e.String("api_secret"),
				SessionKey: lastfmSession(ctx, e, st),
				Pending:    st,
				Logger:     slogger,
			})
		case "listenbrainz":
			s = listenbrainz.New(e.ID, listenbrainz.Config{
				BaseURL: e.String("base_url"),
				Token:   e.String("token"),
				Pending: st,
				Logger:  slogger,
			})
		default:
			slogger.Warn("unknown scrobbler type", slog.String("type", e.Type))
			continue
		}
		if !s.IsEnabled() {
			slogger.Warn("scrobbler not signed in", slog.String("hint", "run playlog -auth "+e.Type))
		}
		m.Register(s)
	}
	return m
}

// lastfmSession prefers a configured session key over the one saved by
// playlog -auth lastfm.
func lastfmSession(ctx context.Context, e config.ScrobblerEntry, st *store.Store) string {
	if key := e.String("session_key"); key != "" {
		return key
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	key, err := st.Credential(ctx, lastfm.CredentialKey)
	if err != nil {
		return ""
	}
	return key
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) worker.Observer {
	if !cfg.Notify.Enabled {
		return nil
	}
	return notify.NewObserver(notify.New(), logger)
}
