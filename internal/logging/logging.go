package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/playlog/playlog/internal/config"
	"github.com/playlog/playlog/internal/paths"
)

// Setup creates the process logger: a text handler on stderr, or on a
// dated file in the state directory when cfg.File is set. The caller
// closes the returned Closer.
func Setup(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if !cfg.File {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nopCloser{}, nil
	}

	path, err := FilePath(time.Now())
	if err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, opts)), f, nil
}

// FilePath is the log file for the given day.
func FilePath(day time.Time) (string, error) {
	path, err := paths.StateFile(fmt.Sprintf("playlog-%s.log", day.Format("20060102")))
	if err != nil {
		return "", fmt.Errorf("state dir: %w", err)
	}
	return path, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
