package email

import (
	"log/slog"
	"strings"
)

// Credentials is a mailbox login. The password never leaves this struct
// except through the session codec.
type Credentials struct {
	Username string
	Password string
}

// NewCredentials normalizes the username: the server authenticates by
// local account name, so any @domain suffix is dropped.
func NewCredentials(username, password string) Credentials {
	return Credentials{
		Username: NormalizeUsername(username),
		Password: password,
	}
}

// NormalizeUsername trims spaces and strips everything from the first '@'
func NormalizeUsername(username string) string {
	username = strings.TrimSpace(username)
	if i := strings.IndexByte(username, '@'); i >= 0 {
		username = username[:i]
	}
	return username
}

// Valid reports whether the credentials can be used and stored
func (c Credentials) Valid() bool {
	return c.Validate() == nil
}

// Validate requires both parts and a username that fits the session token
// format, which splits on the first ':'
func (c Credentials) Validate() error {
	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	if strings.ContainsRune(c.Username, ':') {
		return ErrInvalidUsername
	}
	return nil
}

// LogValue keeps the password out of structured logs
func (c Credentials) LogValue() slog.Value {
	return slog.StringValue(c.Username)
}

// String keeps the password out of fmt output
func (c Credentials) String() string {
	return c.Username
}
