package session

import (
	"context"

	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/email"
)

// CookieStore keeps no server state: the token is the encoded credentials
type CookieStore struct{}

// NewCookieStore creates a stateless store
func NewCookieStore() *CookieStore {
	return &CookieStore{}
}

// Issue encodes creds into a token
func (CookieStore) Issue(_ context.Context, creds email.Credentials) (string, error) {
	return Encode(creds), nil
}

// Resolve decodes a token
func (CookieStore) Resolve(_ context.Context, token string) (email.Credentials, error) {
	return Decode(token)
}

// Revoke is a no-op: clearing the cookie is all there is to do
func (CookieStore) Revoke(context.Context, string) error {
	return nil
}

var _ email.SessionStore = CookieStore{}
