package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// DialerConfig configuration for IMAP connections
type DialerConfig struct {
	Server        string // host:port
	ServerName    string // Name pinned in the TLS handshake
	SkipVerify    bool   // Accept the server's chain without verification
	AuthTimeout   time.Duration
	LogoutTimeout time.Duration
	Debug         bool // Trace protocol traffic at debug level, LOGIN redacted
}

// Dialer opens one authenticated INBOX connection per operation
type Dialer struct {
	config DialerConfig
	logger *slog.Logger
}

// NewDialer creates a new dialer
func NewDialer(cfg DialerConfig, logger *slog.Logger) *Dialer {
	if cfg.AuthTimeout == 0 {
		cfg.AuthTimeout = 20 * time.Second
	}
	if cfg.LogoutTimeout == 0 {
		cfg.LogoutTimeout = 2 * time.Second
	}
	return &Dialer{
		config: cfg,
		logger: logger.With("component", "imap", "server", cfg.Server),
	}
}

// Conn is an authenticated connection with INBOX selected. It belongs to a
// single request and must be closed by it.
type Conn struct {
	client  *imapclient.Client
	mailbox *imap.SelectData
	logger  *slog.Logger

	logoutTimeout time.Duration
	stopWatch     func() bool
	closeOnce     sync.Once
	closeErr      error
}

// Open connects, authenticates and selects INBOX. On any failure every
// resource acquired so far is released before returning.
func (d *Dialer) Open(ctx context.Context, creds Credentials) (*Conn, error) {
	host, _, err := net.SplitHostPort(d.config.Server)
	if err != nil || host == "" {
		return nil, newError(ErrConfig, "dial", err)
	}

	logger := d.logger.With("user", creds)
	logger.Debug("connecting to IMAP server")

	deadline := time.Now().Add(d.config.AuthTimeout)
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config:    d.tlsConfig(host),
	}
	raw, err := dialer.DialContext(dialCtx, "tcp", d.config.Server)
	if err != nil {
		return nil, newError(ErrNetwork, "dial", err)
	}

	var trace *debugWriter
	options := &imapclient.Options{}
	if d.config.Debug {
		trace = newDebugWriter(logger)
		options.DebugWriter = trace
	}
	client := imapclient.New(raw, options)

	conn := &Conn{
		client:        client,
		logger:        logger,
		logoutTimeout: d.config.LogoutTimeout,
	}
	// Cancelling the request closes the socket so blocked commands return
	conn.stopWatch = context.AfterFunc(ctx, func() {
		raw.Close()
	})
	// The client manages read deadlines itself, so the auth deadline is
	// enforced by closing the socket
	authTimer := time.AfterFunc(time.Until(deadline), func() {
		raw.Close()
	})
	abort := func() {
		authTimer.Stop()
		conn.stopWatch()
		client.Close()
	}

	if err := client.WaitGreeting(); err != nil {
		abort()
		return nil, d.timeoutOr(ctx, deadline, classify("greeting", err, ErrProtocol))
	}

	if err := client.Login(creds.Username, creds.Password).Wait(); err != nil {
		abort()
		return nil, d.timeoutOr(ctx, deadline, classify("login", err, ErrAuth))
	}

	if !authTimer.Stop() {
		abort()
		return nil, newError(ErrNetwork, "login", fmt.Errorf("timed out after %s", d.config.AuthTimeout))
	}

	trace.reveal()

	mbox, err := client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		conn.Close()
		return nil, classify("select", err, ErrProtocol)
	}
	conn.mailbox = mbox

	logger.Debug("INBOX selected", "messages", mbox.NumMessages)
	return conn, nil
}

func (d *Dialer) tlsConfig(host string) *tls.Config {
	serverName := d.config.ServerName
	if serverName == "" {
		serverName = host
	}
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: d.config.SkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
}

// timeoutOr reports a failure caused by the auth deadline or by request
// cancellation as a network failure, whatever the client surfaced.
func (d *Dialer) timeoutOr(ctx context.Context, deadline time.Time, err *Error) *Error {
	if ctx.Err() != nil {
		return newError(ErrNetwork, err.Op, ctx.Err())
	}
	if !time.Now().Before(deadline) {
		return newError(ErrNetwork, err.Op, fmt.Errorf("timed out after %s: %w", d.config.AuthTimeout, err.Err))
	}
	return err
}

// NumMessages returns the message count reported by SELECT
func (c *Conn) NumMessages() uint32 {
	if c.mailbox == nil {
		return 0
	}
	return c.mailbox.NumMessages
}

// Close logs out, waiting at most the logout timeout, then closes the
// socket. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.stopWatch()

		done := make(chan error, 1)
		go func() {
			done <- c.client.Logout().Wait()
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, net.ErrClosed) {
				c.closeErr = fmt.Errorf("failed to logout: %w", err)
			}
		case <-time.After(c.logoutTimeout):
			c.logger.Warn("logout timed out, closing connection")
		}

		c.client.Close()
		c.logger.Debug("connection closed")
	})
	return c.closeErr
}
