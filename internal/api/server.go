package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/email"
	"github.com/univo-tech-dev/univo-tech-dev-sub002/pkg/models"
)

// Mailbox is the session service the HTTP layer drives
type Mailbox interface {
	VerifyAndFetch(ctx context.Context, username, password string) (*email.LoginResult, error)
	ResumeAndFetch(ctx context.Context, token string) (*email.ResumeResult, error)
	Logout(ctx context.Context, token string) error
}

// Options configures the session cookie
type Options struct {
	CookieName   string
	CookieSecure bool
	SessionTTL   time.Duration
}

// Server serves the mailbox login API
type Server struct {
	mailbox Mailbox
	opts    Options
	logger  *slog.Logger
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(mailbox Mailbox, opts Options, logger *slog.Logger) *Server {
	if opts.CookieName == "" {
		opts.CookieName = "session_imap"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}

	s := &Server{
		mailbox: mailbox,
		opts:    opts,
		logger:  logger.With("component", "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/imap", s.handleLogin)
	mux.HandleFunc("GET /api/auth/imap", s.handleResume)
	mux.HandleFunc("DELETE /api/auth/imap", s.handleLogout)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.handler = s.recoverer(s.requestLogger(mux))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type loginRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	StarredUIDs []uint32 `json:"starredUids,omitempty"`
}

type loginResponse struct {
	Emails models.Snapshot `json:"emails"`
}

type resumeResponse struct {
	Emails   models.Snapshot `json:"emails"`
	Username string          `json:"username"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&payload); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	if payload.Username == "" || payload.Password == "" {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: email.ErrMissingCredentials.Error()})
		return
	}

	res, err := s.mailbox.VerifyAndFetch(r.Context(), payload.Username, payload.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	emails := nonNil(res.Emails)
	emails.MarkStarred(payload.StarredUIDs)

	s.setSessionCookie(w, res.Token)
	s.respondJSON(w, http.StatusOK, loginResponse{Emails: emails})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(s.opts.CookieName)
	if err != nil || cookie.Value == "" {
		s.respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "not logged in"})
		return
	}

	res, err := s.mailbox.ResumeAndFetch(r.Context(), cookie.Value)
	if err != nil {
		// The stored login is unusable: drop it. Transient failures keep it.
		if errors.Is(err, email.ErrSessionInvalid) || errors.Is(err, email.ErrAuth) {
			s.clearSessionCookie(w)
		}
		s.respondError(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, resumeResponse{
		Emails:   nonNil(res.Emails),
		Username: res.Username,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(s.opts.CookieName); err == nil {
		if err := s.mailbox.Logout(r.Context(), cookie.Value); err != nil {
			logFrom(r.Context(), s.logger).Warn("failed to revoke session", "error", err)
		}
	}
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.opts.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := logFrom(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Info("request rejected", "status", status, "error", err)
	}
	s.respondJSON(w, status, errorResponse{Error: messageFor(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, email.ErrMissingCredentials), errors.Is(err, email.ErrInvalidUsername):
		return http.StatusBadRequest
	case errors.Is(err, email.ErrAuth), errors.Is(err, email.ErrSessionInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, email.ErrNetwork):
		return http.StatusServiceUnavailable
	case errors.Is(err, email.ErrProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the text shown to the client. Server rejection text
// is passed through; internal failures are not described.
func messageFor(err error) string {
	if detail := email.Detail(err); detail != "" {
		return detail
	}
	var e *email.Error
	if errors.As(err, &e) {
		return e.Kind.Error()
	}
	if errors.Is(err, email.ErrSessionInvalid) || errors.Is(err, email.ErrMissingCredentials) ||
		errors.Is(err, email.ErrInvalidUsername) {
		return err.Error()
	}
	return "internal server error"
}

func nonNil(s models.Snapshot) models.Snapshot {
	if s == nil {
		return models.Snapshot{}
	}
	return s
}
