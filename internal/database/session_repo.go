package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/univo-tech-dev/univo-tech-dev-sub002/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// CreateSession stores a new session row
func (db *DB) CreateSession(ctx context.Context, s *models.StoredSession) error {
	query := `
		INSERT INTO sessions (id, sealed, expires_at, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, query, s.ID, s.Sealed, s.ExpiresAt.UTC(), now, now)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	s.CreatedAt = now
	s.LastSeen = now
	return nil
}

// GetSession returns a session by id
func (db *DB) GetSession(ctx context.Context, id string) (*models.StoredSession, error) {
	var s models.StoredSession
	query := `SELECT id, sealed, expires_at, created_at, last_seen FROM sessions WHERE id = ?`
	err := db.GetContext(ctx, &s, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// TouchSession records that a session was used
func (db *DB) TouchSession(ctx context.Context, id string) error {
	query := `UPDATE sessions SET last_seen = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// DeleteSession removes a session. Deleting an unknown id is not an error.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session that expired before now
func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= ?`
	result, err := db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// CountSessions returns the number of stored sessions
func (db *DB) CountSessions(ctx context.Context) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sessions`)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}
