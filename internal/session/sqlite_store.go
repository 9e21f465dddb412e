package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/database"
	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/email"
	"github.com/univo-tech-dev/univo-tech-dev-sub002/pkg/models"
)

var _ email.SessionStore = (*SQLiteStore)(nil)

// SQLiteStore keeps encoded credentials server-side, encrypted, and hands
// out opaque random ids as tokens
type SQLiteStore struct {
	db     *database.DB
	sealer *sealer
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a store over an already migrated database.
// key must be 32 bytes.
func NewSQLiteStore(db *database.DB, key []byte, ttl time.Duration, logger *slog.Logger) (*SQLiteStore, error) {
	s, err := newSealer(key)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{
		db:     db,
		sealer: s,
		ttl:    ttl,
		logger: logger.With("component", "session_store"),
		now:    time.Now,
	}, nil
}

// Issue stores creds and returns a new session id
func (s *SQLiteStore) Issue(ctx context.Context, creds email.Credentials) (string, error) {
	id := uuid.NewString()

	sealed, err := s.sealer.seal(id, Encode(creds))
	if err != nil {
		return "", err
	}

	row := &models.StoredSession{
		ID:        id,
		Sealed:    sealed,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.db.CreateSession(ctx, row); err != nil {
		return "", err
	}

	return id, nil
}

// Resolve returns the credentials behind a live session id
func (s *SQLiteStore) Resolve(ctx context.Context, token string) (email.Credentials, error) {
	if _, err := uuid.Parse(token); err != nil {
		return email.Credentials{}, email.ErrSessionInvalid
	}

	row, err := s.db.GetSession(ctx, token)
	if errors.Is(err, database.ErrNotFound) {
		return email.Credentials{}, email.ErrSessionInvalid
	}
	if err != nil {
		return email.Credentials{}, err
	}

	if row.Expired(s.now()) {
		if err := s.db.DeleteSession(ctx, token); err != nil {
			s.logger.Warn("failed to delete expired session", "error", err)
		}
		return email.Credentials{}, email.ErrSessionInvalid
	}

	plain, err := s.sealer.open(token, row.Sealed)
	if err != nil {
		// Most likely ENCRYPTION_KEY changed since the session was issued
		s.logger.Warn("failed to open session", "error", err)
		return email.Credentials{}, email.ErrSessionInvalid
	}

	if err := s.db.TouchSession(ctx, token); err != nil {
		s.logger.Debug("failed to touch session", "error", err)
	}

	return Decode(plain)
}

// Revoke deletes a session. Unknown ids are ignored.
func (s *SQLiteStore) Revoke(ctx context.Context, token string) error {
	if _, err := uuid.Parse(token); err != nil {
		return nil
	}
	return s.db.DeleteSession(ctx, token)
}

// Purge deletes expired sessions
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	n, err := s.db.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return n, nil
}

// RunPurger purges expired sessions every interval until ctx is done
func (s *SQLiteStore) RunPurger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Purge(ctx)
			if err != nil {
				s.logger.Error("session purge failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("purged expired sessions", "count", n)
			}
		}
	}
}
