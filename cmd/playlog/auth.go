package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/playlog/playlog/internal/config"
	"github.com/playlog/playlog/internal/errmsg"
	"github.com/playlog/playlog/internal/scrobble/lastfm"
	"github.com/playlog/playlog/internal/source/spotify"
	"github.com/playlog/playlog/internal/store"
)

// runAuth signs in to service and stores the resulting credential.
func runAuth(ctx context.Context, service string, cfg *config.Config, st *store.Store, logger *slog.Logger) error {
	prompt := func(url string) {
		fmt.Println("Open this URL to authorize playlog:")
		fmt.Println()
		fmt.Println("  " + url)
		fmt.Println()
		if err := spotify.OpenBrowser(url); err != nil {
			logger.Debug("open browser", slog.Any("err", err))
		}
	}

	switch service {
	case "spotify":
		sp := cfg.Source.Spotify
		fmt.Println("Waiting for Spotify to redirect back…")
		if err := spotify.Authorize(ctx, spotifyConfig(cfg, st, logger), sp.RedirectURL, prompt); err != nil {
			return errors.New(errmsg.Format(errmsg.OpAuthSpotify, err))
		}
		fmt.Println("Spotify authorized. Refresh token saved.")
		return nil

	case "lastfm":
		entry, ok := lastfmEntry(cfg)
		if !ok {
			return errors.New(errmsg.Format(errmsg.OpAuthLastfm, errors.New("no [[scrobblers]] entry with type = \"lastfm\"")))
		}
		confirm := func() error {
			fmt.Print("Press Enter once you have approved access… ")
			_, err := bufio.NewReader(os.Stdin).ReadString('\n')
			return err
		}
		err := lastfm.Authorize(ctx, entry.String("api_key"), entry.String("api_secret"), st, prompt, confirm)
		if err != nil {
			return errors.New(errmsg.Format(errmsg.OpAuthLastfm, err))
		}
		fmt.Println("Last.fm authorized. Session key saved.")
		if !entry.Enabled {
			fmt.Printf("Note: scrobbler %q is disabled in the config.\n", entry.ID)
		}
		return nil

	default:
		return fmt.Errorf("unknown service %q for -auth (use spotify or lastfm)", service)
	}
}

func lastfmEntry(cfg *config.Config) (config.ScrobblerEntry, bool) {
	for _, e := range cfg.Scrobblers {
		if e.Type == "lastfm" {
			return e, true
		}
	}
	return config.ScrobblerEntry{}, false
}
