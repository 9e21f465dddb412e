package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/api"
	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/config"
	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/database"
	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/email"
	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/logging"
	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/session"
)

const purgeInterval = time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mailbox gateway", "imap", cfg.IMAPAddr(), "session_store", cfg.SessionStore)

	if cfg.IMAPTLSSkipVerify {
		logger.Warn("IMAP server certificate will not be verified", "server_name", cfg.TLSServerName())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session store
	var sessions email.SessionStore = session.NewCookieStore()
	if cfg.SessionStore == config.SessionStoreSQLite {
		db, err := database.New(cfg.DatabasePath)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrations completed")

		store, err := session.NewSQLiteStore(db, []byte(cfg.EncryptionKey), cfg.SessionTTL, logger)
		if err != nil {
			logger.Error("failed to create session store", "error", err)
			os.Exit(1)
		}
		go store.RunPurger(ctx, purgeInterval)
		sessions = store
	}

	// Create components
	dialer := email.NewDialer(email.DialerConfig{
		Server:        cfg.IMAPAddr(),
		ServerName:    cfg.TLSServerName(),
		SkipVerify:    cfg.IMAPTLSSkipVerify,
		AuthTimeout:   cfg.IMAPAuthTimeout,
		LogoutTimeout: cfg.IMAPLogoutTimeout,
		Debug:         cfg.IMAPDebug,
	}, logger)
	service := email.NewService(dialer, email.NewFetcher(logger), sessions, cfg.SnapshotSize, logger)

	apiServer := api.NewServer(service, api.Options{
		CookieName:   cfg.CookieName,
		CookieSecure: cfg.CookieSecure,
		SessionTTL:   cfg.SessionTTL,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for a shutdown signal or a listener failure
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
