package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveCredential stores a secret for service, replacing any previous one.
func (s *Store) SaveCredential(ctx context.Context, service, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (service, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, service, value, s.now().Unix())
	if err != nil {
		return fmt.Errorf("save %s credential: %w", service, err)
	}
	return nil
}

// Credential returns the stored secret for service or ErrNotFound.
func (s *Store) Credential(ctx context.Context, service string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE service = ?`, service).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load %s credential: %w", service, err)
	}
	return value, nil
}

// DeleteCredential forgets the secret for service.
func (s *Store) DeleteCredential(ctx context.Context, service string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE service = ?`, service)
	return err
}
