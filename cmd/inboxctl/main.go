// Command inboxctl logs in to the institution's mail server and prints the
// newest INBOX headers. It exercises the same pipeline as the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/config"
	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/email"
	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/formatter"
	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/logging"
	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/session"
)

var errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func run() error {
	var (
		username = flag.String("user", "", "mailbox username, optionally with @domain")
		server   = flag.String("server", "", "IMAP server host:port (overrides IMAP_HOST/IMAP_PORT)")
		limit    = flag.Int("n", 0, "number of messages to show (overrides MAILBOX_SNAPSHOT_SIZE)")
		debug    = flag.Bool("debug", false, "log IMAP traffic after authentication")
		timeout  = flag.Duration("timeout", time.Minute, "overall timeout")
	)
	flag.Parse()

	cfg, err := config.Parse()
	if err != nil {
		return err
	}
	if *debug {
		cfg.IMAPDebug = true
		cfg.LogLevel = "debug"
	}
	if *limit > 0 {
		cfg.SnapshotSize = *limit
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	var password string
	fields := []huh.Field{}
	if *username == "" {
		fields = append(fields, huh.NewInput().
			Title("Username").
			Description("Institution account, e.g. e2250001 or e2250001@metu.edu.tr").
			Value(username).
			Validate(required("Username")))
	}
	fields = append(fields, huh.NewInput().
		Title("Password").
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Validate(required("Password")))

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	switch {
	case *server != "":
		if err := setServer(cfg, *server); err != nil {
			return err
		}
	case cfg.IMAPHost == "":
		domain := email.DomainOf(*username)
		if domain == "" {
			return errors.New("no server configured: set IMAP_HOST, pass -server or log in as user@domain")
		}
		addr, err := email.NewDiscoverer().Discover(ctx, domain)
		if err != nil {
			return err
		}
		logger.Info("discovered IMAP server", "server", addr)
		if err := setServer(cfg, addr); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.IMAPTLSSkipVerify {
		logger.Warn("IMAP server certificate will not be verified", "server_name", cfg.TLSServerName())
	}

	dialer := email.NewDialer(email.DialerConfig{
		Server:        cfg.IMAPAddr(),
		ServerName:    cfg.TLSServerName(),
		SkipVerify:    cfg.IMAPTLSSkipVerify,
		AuthTimeout:   cfg.IMAPAuthTimeout,
		LogoutTimeout: cfg.IMAPLogoutTimeout,
		Debug:         cfg.IMAPDebug,
	}, logger)
	service := email.NewService(dialer, email.NewFetcher(logger), session.NewCookieStore(), cfg.SnapshotSize, logger)

	res, err := service.VerifyAndFetch(ctx, *username, password)
	if err != nil {
		return describe(err)
	}

	fmt.Print(formatter.NewTerminalFormatter(terminalWidth()).FormatSnapshot(res.Username, res.Emails))
	return nil
}

func setServer(cfg *config.Config, addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid server port %q", port)
	}
	cfg.IMAPHost = host
	cfg.IMAPPort = p
	return nil
}

// describe turns a pipeline failure into a message for the operator
func describe(err error) error {
	switch {
	case errors.Is(err, email.ErrAuth):
		return fmt.Errorf("login rejected by the mail server: %w", err)
	case errors.Is(err, email.ErrNetwork):
		return fmt.Errorf("mail server unreachable (check host, port and firewall): %w", err)
	case errors.Is(err, email.ErrProtocol):
		return fmt.Errorf("mail server answered unexpectedly: %w", err)
	default:
		return err
	}
}

func required(name string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func terminalWidth() int {
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols > 20 {
		return cols
	}
	return 80
}
