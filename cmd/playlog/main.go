package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/playlog/playlog/internal/app"
	"github.com/playlog/playlog/internal/config"
	"github.com/playlog/playlog/internal/errmsg"
	"github.com/playlog/playlog/internal/logging"
	"github.com/playlog/playlog/internal/scrobble"
	"github.com/playlog/playlog/internal/server"
	"github.com/playlog/playlog/internal/store"
	"github.com/playlog/playlog/internal/ui"
	"github.com/playlog/playlog/internal/worker"
)

var version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `playlog - records what you listen to

Usage: playlog [options]

Options:
  -config string
        Path to config file (default: ~/.config/playlog/config.toml)
  -version
        Print version and exit

Setup:
  -doctor
        Check configuration, database and player (writes an example
        config when none exists)
  -auth string
        Sign in to a service: spotify or lastfm

Running:
  -once
        Poll the player once and print what happened
  -watch
        Show the live dashboard while recording
  -serve
        Run the HTTP query service (default true)

Examples:
  playlog                      # Record plays and serve them on :8888
  playlog -doctor              # Check setup
  playlog -auth spotify        # Authorize Spotify access
  playlog -watch -serve=false  # Dashboard only

`)
	}

	cfgPath := flag.String("config", "", "")
	showVersion := flag.Bool("version", false, "")
	doctor := flag.Bool("doctor", false, "")
	auth := flag.String("auth", "", "")
	once := flag.Bool("once", false, "")
	watch := flag.Bool("watch", false, "")
	serve := flag.Bool("serve", true, "")
	flag.Parse()

	log.SetFlags(0)

	if *showVersion {
		fmt.Println("playlog", version)
		return
	}
	if *doctor {
		os.Exit(runDoctor(*cfgPath))
	}

	cfg, resolvedPath, err := config.Load(*cfgPath)
	if err != nil {
		msg := errmsg.FormatWith(errmsg.OpConfigLoad, resolvedPath, err)
		if errors.Is(err, os.ErrNotExist) {
			msg += "\nRun playlog -doctor to create an example config."
		}
		log.Fatal(msg)
	}

	// The dashboard owns the terminal, so logs go to a file.
	if *watch {
		cfg.Log.File = true
	}
	logger, logFile, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatal(errmsg.Format(errmsg.OpLogSetup, err))
	}
	defer logFile.Close()
	slog.SetDefault(logger)
	logger.Info("starting playlog", slog.String("version", version), slog.String("config", resolvedPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runCommand(ctx, stop, cfg, logger, *auth, *once, *watch, *serve); err != nil {
		logger.Error("exiting", slog.Any("err", err))
		logFile.Close()
		log.Fatal(err)
	}
}

func runCommand(ctx context.Context, stop context.CancelFunc, cfg *config.Config, logger *slog.Logger, auth string, once, watch, serve bool) error {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpStoreOpen, err))
	}
	defer st.Close()

	switch {
	case auth != "":
		return runAuth(ctx, auth, cfg, st, logger)
	case once:
		return runOnce(ctx, cfg, st, logger)
	default:
		return run(ctx, stop, cfg, st, logger, watch, serve)
	}
}

// run records plays until ctx is cancelled or the dashboard quits.
func run(ctx context.Context, stop context.CancelFunc, cfg *config.Config, st *store.Store, logger *slog.Logger, watch, serve bool) error {
	src, closeSource, err := buildSource(cfg, st, logger)
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpSourceCreate, err))
	}
	defer closeSource()

	manager := buildScrobblers(ctx, cfg, st, logger)
	scrobbling := cfg.Scrobble.Enabled && manager.EnabledCount() > 0
	w := worker.New(src, st, worker.Options{
		Interval:  cfg.PollInterval(),
		Logger:    logger,
		Observers: buildObservers(cfg, manager, scrobbling, logger),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Run(gctx); err != nil {
			return errors.New(errmsg.Format(errmsg.OpPoll, err))
		}
		return nil
	})

	if serve && cfg.Server.IsEnabled() {
		srv := server.New(st, server.Options{Addr: cfg.Server.Addr, Logger: logger, Status: w})
		g.Go(func() error {
			if err := srv.Run(gctx); err != nil {
				return errors.New(errmsg.Format(errmsg.OpServe, err))
			}
			return nil
		})
	}

	if scrobbling {
		logger.Info("scrobbling enabled", slog.Int("scrobblers", manager.EnabledCount()))
		g.Go(func() error { return manager.Run(gctx, cfg.FlushInterval()) })
	}

	if watch {
		g.Go(func() error {
			// Quitting the dashboard stops playlog.
			defer stop()
			model := app.New(st, app.Options{
				Theme:   ui.GetTheme(cfg.UI.Theme, os.Getenv("NO_COLOR") != "" || cfg.UI.NoColor),
				Limit:   cfg.UI.RecentLimit,
				Refresh: time.Duration(cfg.UI.RefreshMs) * time.Millisecond,
				Stats:   w,
			})
			_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(gctx)).Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return errors.New(errmsg.Format(errmsg.OpWatch, err))
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("playlog stopped", slog.Int64("plays_recorded", w.Stats().Records))
	return err
}

// runOnce performs a single poll cycle and reports the outcome.
func runOnce(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) error {
	src, closeSource, err := buildSource(cfg, st, logger)
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpSourceCreate, err))
	}
	defer closeSource()

	manager := buildScrobblers(ctx, cfg, st, logger)
	scrobbling := cfg.Scrobble.Enabled && manager.EnabledCount() > 0
	w := worker.New(src, st, worker.Options{
		Logger:    logger,
		Observers: buildObservers(cfg, manager, scrobbling, logger),
	})

	play, recorded := w.PollOnce(ctx)
	stats := w.Stats()
	switch {
	case recorded:
		fmt.Printf("Recorded #%d: %s\n", play.ID, describePlay(play))
	case stats.CurrentTrack != "":
		fmt.Printf("Playing: %s (not recorded)\n", stats.CurrentTrack)
	default:
		fmt.Printf("Nothing playing on %s\n", src.Name())
	}
	if stats.LastError != "" {
		fmt.Printf("Warning: %s\n", stats.LastError)
	}

	if scrobbling {
		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()
		if err := manager.Wait(waitCtx); err != nil {
			logger.Warn("scrobbles still in flight", slog.Any("err", err))
		}
	}
	return nil
}

func describePlay(p store.Play) string {
	s := p.TrackName
	if len(p.Artists) > 0 {
		s += " - " + strings.Join(p.Artists, ", ")
	}
	if p.Album != "" {
		s += " (" + p.Album + ")"
	}
	return s
}

// buildObservers returns the worker observers enabled by cfg.
func buildObservers(cfg *config.Config, manager *scrobble.Manager, scrobbling bool, logger *slog.Logger) []worker.Observer {
	var observers []worker.Observer
	if scrobbling {
		observers = append(observers, scrobble.NewObserver(manager, logger))
	}
	if n := buildNotifier(cfg, logger); n != nil {
		observers = append(observers, n)
	}
	return observers
}
