package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/univo-tech-dev/univo-tech-dev-sub002/pkg/models"
)

// SessionStore turns verified credentials into a resumable token and back
type SessionStore interface {
	Issue(ctx context.Context, creds Credentials) (string, error)
	Resolve(ctx context.Context, token string) (Credentials, error)
	Revoke(ctx context.Context, token string) error
}

// LoginResult is returned by a successful VerifyAndFetch
type LoginResult struct {
	Emails   models.Snapshot
	Username string
	Token    string
}

// ResumeResult is returned by a successful ResumeAndFetch
type ResumeResult struct {
	Emails   models.Snapshot
	Username string
}

// Service verifies mailbox credentials and returns the newest headers
type Service struct {
	dialer       *Dialer
	fetcher      *Fetcher
	sessions     SessionStore
	snapshotSize int
	logger       *slog.Logger
}

// NewService creates a new session service
func NewService(dialer *Dialer, fetcher *Fetcher, sessions SessionStore, snapshotSize int, logger *slog.Logger) *Service {
	if snapshotSize <= 0 {
		snapshotSize = DefaultSnapshotSize
	}
	return &Service{
		dialer:       dialer,
		fetcher:      fetcher,
		sessions:     sessions,
		snapshotSize: snapshotSize,
		logger:       logger.With("component", "session_service"),
	}
}

// VerifyAndFetch authenticates with the mail server and, on success, returns
// the snapshot together with a token that ResumeAndFetch accepts.
func (s *Service) VerifyAndFetch(ctx context.Context, username, password string) (*LoginResult, error) {
	creds := NewCredentials(username, password)
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	emails, err := s.snapshot(ctx, creds)
	if err != nil {
		s.logger.Info("login failed", "user", creds, "error", err)
		return nil, err
	}

	token, err := s.sessions.Issue(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	s.logger.Info("login verified", "user", creds, "messages", len(emails))
	return &LoginResult{
		Emails:   emails,
		Username: creds.Username,
		Token:    token,
	}, nil
}

// ResumeAndFetch re-runs the pipeline with the credentials behind token.
// A token the mail server no longer accepts is revoked.
func (s *Service) ResumeAndFetch(ctx context.Context, token string) (*ResumeResult, error) {
	creds, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	emails, err := s.snapshot(ctx, creds)
	if err != nil {
		if errors.Is(err, ErrAuth) {
			s.logger.Info("stored credentials rejected", "user", creds)
			if rerr := s.sessions.Revoke(ctx, token); rerr != nil {
				s.logger.Warn("failed to revoke session", "user", creds, "error", rerr)
			}
		}
		return nil, err
	}

	s.logger.Debug("session resumed", "user", creds, "messages", len(emails))
	return &ResumeResult{
		Emails:   emails,
		Username: creds.Username,
	}, nil
}

// Logout forgets the session behind token
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, token)
}

// snapshot opens a connection for this call only and always closes it
func (s *Service) snapshot(ctx context.Context, creds Credentials) (models.Snapshot, error) {
	start := time.Now()

	conn, err := s.dialer.Open(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debug("close failed", "user", creds, "error", err)
		}
	}()

	ids, err := ListUIDs(ctx, conn)
	if err != nil {
		return nil, err
	}

	emails := s.fetcher.FetchHeaders(ctx, conn, SelectRecent(ids, s.snapshotSize))

	// A cancelled request closes the socket and leaves only sentinels behind
	if ctx.Err() != nil {
		return nil, newError(ErrNetwork, "fetch", ctx.Err())
	}

	s.logger.Debug("snapshot built",
		"user", creds,
		"total", len(ids),
		"returned", len(emails),
		"duration", time.Since(start))
	return emails, nil
}
