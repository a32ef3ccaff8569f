package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/playlog/playlog/internal/config"
	"github.com/playlog/playlog/internal/errmsg"
	"github.com/playlog/playlog/internal/notify"
	"github.com/playlog/playlog/internal/source/mpris"
	"github.com/playlog/playlog/internal/source/mpv"
	"github.com/playlog/playlog/internal/source/spotify"
	"github.com/playlog/playlog/internal/store"
)

// runDoctor checks the setup and returns the process exit code.
func runDoctor(cfgPath string) int {
	fmt.Println("playlog doctor")

	cfg, path, err := config.Load(cfgPath)
	if errors.Is(err, os.ErrNotExist) && path != "" {
		if err := writeExampleConfig(path); err != nil {
			fmt.Println(errmsg.FormatWith(errmsg.OpConfigWrite, path, err))
			return 1
		}
		fmt.Printf("Config file: created example at %s\n", path)
		fmt.Println("Edit it and run playlog -doctor again.")
		return 0
	}
	if err != nil {
		fmt.Printf("Config file (%s): ERROR - %v\n", path, err)
		return 1
	}
	fmt.Printf("Config file: OK (%s)\n", path)

	// Doctor output goes to stdout; only problems are logged.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	failed := false
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		fmt.Printf("Database: ERROR - %v\n", err)
		return 1
	}
	defer st.Close()
	if n, err := st.CountPlays(ctx); err != nil {
		fmt.Printf("Database: ERROR - %v\n", err)
		failed = true
	} else {
		fmt.Printf("Database: OK (%d plays)\n", n)
	}

	if err := checkSource(ctx, cfg, st, logger); err != nil {
		fmt.Printf("Source (%s): ERROR - %s\n", cfg.Source.Type, describeErr(err))
		failed = true
	}

	for _, e := range cfg.Scrobblers {
		switch {
		case !e.Enabled:
			fmt.Printf("Scrobbler %s (%s): disabled\n", e.ID, e.Type)
		case e.Type == "lastfm" && lastfmSession(ctx, e, st) == "":
			fmt.Printf("Scrobbler %s (%s): not signed in (run playlog -auth lastfm)\n", e.ID, e.Type)
		default:
			fmt.Printf("Scrobbler %s (%s): OK\n", e.ID, e.Type)
		}
	}
	if len(cfg.Scrobblers) > 0 && !cfg.Scrobble.Enabled {
		fmt.Println("Scrobbling: off ([scrobble] enabled = false)")
	}

	if cfg.Notify.Enabled {
		if notify.Available(notify.New()) {
			fmt.Println("Notifications: OK")
		} else {
			fmt.Println("Notifications: unavailable (no D-Bus session bus)")
		}
	}
	if cfg.Server.IsEnabled() {
		fmt.Printf("Query service: http://%s\n", cfg.Server.Addr)
	}

	if failed {
		return 1
	}
	return 0
}

func checkSource(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) error {
	switch cfg.Source.Type {
	case "spotify":
		src, err := spotify.New(spotifyConfig(cfg, st, logger))
		if err != nil {
			return err
		}
		if err := src.Check(ctx); err != nil {
			return err
		}
		fmt.Println("Source (spotify): OK")
	case "mpris":
		src := mpris.New(mpris.Options{Player: cfg.Source.MPRIS.Player, Logger: logger})
		defer src.Close()
		players, err := src.Check(ctx)
		if err != nil {
			return err
		}
		if len(players) == 0 {
			fmt.Println("Source (mpris): OK (no players running)")
		} else {
			fmt.Printf("Source (mpris): OK (%s)\n", strings.Join(players, ", "))
		}
	case "mpv":
		src := mpv.New(mpv.Options{
			IPCPath:  cfg.Source.MPV.IPC,
			Timeout:  cfg.Source.MPV.Timeout(),
			ReadTags: *cfg.Source.MPV.ReadTags,
			Logger:   logger,
		})
		defer src.Close()
		if err := src.Check(ctx); err != nil {
			return err
		}
		fmt.Println("Source (mpv): OK")
	}
	return nil
}

func describeErr(err error) string {
	if hint := errmsg.Hint(err); hint != "" {
		return fmt.Sprintf("%v (%s)", err, hint)
	}
	return err.Error()
}

func writeExampleConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// O_EXCL so a config appearing meanwhile is never overwritten.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(config.Example); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
