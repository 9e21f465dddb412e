package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Session store kinds
const (
	SessionStoreCookie = "cookie"
	SessionStoreSQLite = "sqlite"
)

// Config application configuration
type Config struct {
	// HTTP
	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8080"`
	CookieName   string `env:"COOKIE_NAME" envDefault:"session_imap"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"false"`

	// Institution mail server
	IMAPHost          string        `env:"IMAP_HOST"` // e.g., imap.metu.edu.tr
	IMAPPort          int           `env:"IMAP_PORT" envDefault:"993"`
	IMAPServerName    string        `env:"IMAP_SERVER_NAME"` // TLS SNI, defaults to IMAPHost
	IMAPTLSSkipVerify bool          `env:"IMAP_TLS_SKIP_VERIFY" envDefault:"true"`
	IMAPAuthTimeout   time.Duration `env:"IMAP_AUTH_TIMEOUT" envDefault:"20s"`
	IMAPLogoutTimeout time.Duration `env:"IMAP_LOGOUT_TIMEOUT" envDefault:"2s"`
	IMAPDebug         bool          `env:"IMAP_DEBUG" envDefault:"false"`
	SnapshotSize      int           `env:"MAILBOX_SNAPSHOT_SIZE" envDefault:"20"`

	// Sessions
	SessionStore  string        `env:"SESSION_STORE" envDefault:"cookie"` // "cookie" or "sqlite"
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	DatabasePath  string        `env:"DATABASE_PATH" envDefault:"./data/sessions.db"`
	EncryptionKey string        `env:"ENCRYPTION_KEY"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// IMAPAddr returns host:port of the mail server
func (c *Config) IMAPAddr() string {
	return net.JoinHostPort(c.IMAPHost, strconv.Itoa(c.IMAPPort))
}

// TLSServerName returns the name pinned in the TLS handshake
func (c *Config) TLSServerName() string {
	if c.IMAPServerName != "" {
		return c.IMAPServerName
	}
	return c.IMAPHost
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse reads the environment without validating, for callers that fill
// in missing values themselves
func Parse() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks values env tags cannot express
func (c *Config) Validate() error {
	if c.IMAPHost == "" {
		return fmt.Errorf("IMAP_HOST is required")
	}
	if c.IMAPPort <= 0 || c.IMAPPort > 65535 {
		return fmt.Errorf("IMAP_PORT must be between 1 and 65535, got %d", c.IMAPPort)
	}
	if c.SnapshotSize <= 0 {
		return fmt.Errorf("MAILBOX_SNAPSHOT_SIZE must be positive, got %d", c.SnapshotSize)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}

	switch c.SessionStore {
	case SessionStoreCookie:
	case SessionStoreSQLite:
		// Validate encryption key length (32 bytes for AES-256)
		if len(c.EncryptionKey) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.EncryptionKey))
		}
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreCookie, SessionStoreSQLite, c.SessionStore)
	}

	return nil
}
