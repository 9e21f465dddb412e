package session

import (
	"encoding/base64"
	"strings"

	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/email"
)

// Encode packs credentials into a token: base64 of "username:password".
// A username containing ':' does not survive Decode; Credentials.Validate
// rejects those before a token is issued.
func Encode(creds email.Credentials) string {
	return base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.Password))
}

// Decode unpacks a token produced by Encode. The token is split on the
// first ':' only, so passwords may contain ':'.
func Decode(token string) (email.Credentials, error) {
	if token == "" {
		return email.Credentials{}, email.ErrSessionInvalid
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return email.Credentials{}, email.ErrSessionInvalid
	}

	username, password, ok := strings.Cut(string(raw), ":")
	if !ok || username == "" || password == "" {
		return email.Credentials{}, email.ErrSessionInvalid
	}

	return email.Credentials{Username: username, Password: password}, nil
}
