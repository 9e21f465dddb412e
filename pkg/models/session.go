package models

import "time"

// StoredSession is a server-side session row
type StoredSession struct {
	ID        string    `db:"id"`         // Opaque id carried by the cookie
	Sealed    string    `db:"sealed"`     // Encrypted credential token
	ExpiresAt time.Time `db:"expires_at"` // Session is rejected after this instant
	CreatedAt time.Time `db:"created_at"`
	LastSeen  time.Time `db:"last_seen"`
}

// Expired reports whether the session is no longer valid at now
func (s *StoredSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
