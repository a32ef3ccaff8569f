package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Play is one recorded listen.
type Play struct {
	ID        int64     `json:"id"`
	TrackName string    `json:"song_name"`
	Artists   []string  `json:"song_artist"`
	Album     string    `json:"song_album"`
	PlayedAt  time.Time `json:"time"`
}

// InsertPlay stores a play and returns it with its assigned ID and time.
func (s *Store) InsertPlay(ctx context.Context, name string, artists []string, album string) (Play, error) {
	if artists == nil {
		artists = []string{}
	}
	artistsJSON, err := json.Marshal(artists)
	if err != nil {
		return Play{}, fmt.Errorf("marshal artists: %w", err)
	}

	playedAt := s.now().UTC().Truncate(time.Millisecond)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO song_plays (song_name, song_artist, song_album, played_at) VALUES (?, ?, ?, ?)`,
		name, string(artistsJSON), album, playedAt.UnixMilli())
	if err != nil {
		return Play{}, fmt.Errorf("insert play: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Play{}, fmt.Errorf("insert play id: %w", err)
	}

	return Play{
		ID:        id,
		TrackName: name,
		Artists:   append([]string(nil), artists...),
		Album:     album,
		PlayedAt:  playedAt,
	}, nil
}

// PlayByID returns the play with the given ID or ErrNotFound.
func (s *Store) PlayByID(ctx context.Context, id int64) (Play, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, song_name, song_artist, song_album, played_at FROM song_plays WHERE id = ?`, id)
	p, err := scanPlay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Play{}, ErrNotFound
	}
	if err != nil {
		return Play{}, fmt.Errorf("load play %d: %w", id, err)
	}
	return p, nil
}

// PlaysByName returns every play of a track with exactly this name,
// oldest first. No match is an empty slice, not an error.
func (s *Store) PlaysByName(ctx context.Context, name string) ([]Play, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, song_name, song_artist, song_album, played_at FROM song_plays
		 WHERE song_name = ? ORDER BY played_at ASC, id ASC`, name)
	if err != nil {
		return nil, fmt.Errorf("query plays by name: %w", err)
	}
	return collectPlays(rows)
}

// RecentPlays returns up to limit plays, newest first.
func (s *Store) RecentPlays(ctx context.Context, limit int) ([]Play, error) {
	if limit <= 0 {
		return []Play{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, song_name, song_artist, song_album, played_at FROM song_plays
		 ORDER BY played_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent plays: %w", err)
	}
	return collectPlays(rows)
}

// CountPlays returns the number of stored plays.
func (s *Store) CountPlays(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM song_plays`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count plays: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlay(row scanner) (Play, error) {
	var (
		p           Play
		artistsJSON string
		playedAt    int64
	)
	if err := row.Scan(&p.ID, &p.TrackName, &artistsJSON, &p.Album, &playedAt); err != nil {
		return Play{}, err
	}
	if err := json.Unmarshal([]byte(artistsJSON), &p.Artists); err != nil {
		return Play{}, fmt.Errorf("decode artists of play %d: %w", p.ID, err)
	}
	if p.Artists == nil {
		p.Artists = []string{}
	}
	p.PlayedAt = time.UnixMilli(playedAt).UTC()
	return p, nil
}

func collectPlays(rows *sql.Rows) ([]Play, error) {
	defer rows.Close()

	plays := []Play{}
	for rows.Next() {
		p, err := scanPlay(rows)
		if err != nil {
			return nil, fmt.Errorf("scan play: %w", err)
		}
		plays = append(plays, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plays: %w", err)
	}
	return plays, nil
}
