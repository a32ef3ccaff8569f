package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PendingScrobble is a scrobble queued for retry by one scrobbler.
type PendingScrobble struct {
	ID          int64
	ScrobblerID string
	Track       string
	Artist      string
	Album       string
	Timestamp   time.Time
	Attempts    int
	LastError   string
	CreatedAt   time.Time
}

// AddPendingScrobble queues a scrobble for later submission.
func (s *Store) AddPendingScrobble(ctx context.Context, p PendingScrobble) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_scrobbles
		(scrobbler_id, track, artist, album, timestamp, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, 0, '', ?)
	`, p.ScrobblerID, p.Track, p.Artist, p.Album, p.Timestamp.Unix(), s.now().Unix())
	if err != nil {
		return fmt.Errorf("queue scrobble: %w", err)
	}
	return nil
}

// PendingScrobbles returns the queued scrobbles of one scrobbler, oldest first.
func (s *Store) PendingScrobbles(ctx context.Context, scrobblerID string) ([]PendingScrobble, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scrobbler_id, track, artist, album, timestamp, attempts, last_error, created_at
		FROM pending_scrobbles
		WHERE scrobbler_id = ?
		ORDER BY created_at ASC, id ASC
	`, scrobblerID)
	if err != nil {
		return nil, fmt.Errorf("query pending scrobbles: %w", err)
	}
	defer rows.Close()

	var pending []PendingScrobble
	for rows.Next() {
		var (
			p                    PendingScrobble
			album, lastError     sql.NullString
			timestamp, createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.ScrobblerID, &p.Track, &p.Artist, &album,
			&timestamp, &p.Attempts, &lastError, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending scrobble: %w", err)
		}
		p.Album = album.String
		p.LastError = lastError.String
		p.Timestamp = time.Unix(timestamp, 0)
		p.CreatedAt = time.Unix(createdAt, 0)
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// DeletePendingScrobble removes a scrobble that has been submitted.
func (s *Store) DeletePendingScrobble(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_scrobbles WHERE id = ?`, id)
	return err
}

// UpdatePendingScrobbleAttempt bumps the attempt count and records the error.
func (s *Store) UpdatePendingScrobbleAttempt(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_scrobbles
		SET attempts = attempts + 1, last_error = ?
		WHERE id = ?
	`, errMsg, id)
	return err
}

// DeleteOldPendingScrobbles drops queued scrobbles older than maxAge and
// returns how many were removed.
func (s *Store) DeleteOldPendingScrobbles(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_scrobbles WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
