package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/emersion/go-imap/v2"
)

// Failure kinds. Match them with errors.Is.
var (
	ErrConfig             = errors.New("mail server not configured")
	ErrAuth               = errors.New("authentication rejected")
	ErrNetwork            = errors.New("mail server unreachable")
	ErrProtocol           = errors.New("unexpected mail server response")
	ErrSessionInvalid     = errors.New("session invalid")
	ErrMissingCredentials = errors.New("username and password are required")
	ErrInvalidUsername    = errors.New("username must not contain ':'")
)

// Error is a failure of one step of the mailbox pipeline
type Error struct {
	Kind   error  // One of the Err* sentinels
	Op     string // "dial", "login", "select", "search", ...
	Detail string // Server rejection text, if any
	Err    error  // Underlying cause
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil && e.Detail == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the failure kind
func (e *Error) Is(target error) bool { return target == e.Kind }

func newError(kind error, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Err: err}
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		e.Detail = imapErr.Text
	}
	return e
}

// classify maps a command failure to a failure kind. Only a server status
// response becomes fallback: transport failures become ErrNetwork and
// anything else is ErrProtocol.
func classify(op string, err error, fallback error) *Error {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return newError(fallback, op, err)
	}
	if isNetworkError(err) {
		return newError(ErrNetwork, op, err)
	}
	return newError(ErrProtocol, op, err)
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, net.ErrClosed) {
		return true
	}
	// Connection dropped before the tagged reply
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Detail returns the server rejection text attached to err, if any
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return ""
}
