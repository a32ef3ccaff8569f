// Package store persists recorded plays and the bookkeeping around them
// (pending scrobbles, saved credentials) in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/playlog/playlog/internal/paths"
)

var ErrNotFound = errors.New("store: not found")

// IsNotFound reports whether err means the requested row doesn't exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Store is safe for concurrent use; the worker writes while the query
// service reads.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path. An empty path
// uses the default data location.
func Open(path string) (*Store, error) {
	if path == "" {
		var err error
		path, err = paths.DatabaseFile()
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open plays db: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS song_plays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			song_name TEXT NOT NULL,
			song_artist TEXT NOT NULL,
			song_album TEXT NOT NULL,
			played_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_song_plays_name ON song_plays(song_name);`,
		`CREATE INDEX IF NOT EXISTS idx_song_plays_played_at ON song_plays(played_at);`,
		`CREATE TABLE IF NOT EXISTS pending_scrobbles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scrobbler_id TEXT NOT NULL,
			track TEXT NOT NULL,
			artist TEXT NOT NULL,
			album TEXT,
			timestamp INTEGER NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_scrobbles_scrobbler ON pending_scrobbles(scrobbler_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS credentials (
			service TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
