package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tendant/listings-idm/idm"
	"github.com/tendant/listings-idm/internal/config"
	"github.com/tendant/listings-idm/internal/notification"
	"github.com/tendant/listings-idm/pkg/auth"
	"github.com/tendant/listings-idm/pkg/repository/memory"
	"github.com/tendant/listings-idm/pkg/repository/mongodb"
	"github.com/tendant/listings-idm/pkg/repository/postgres"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	store, err := openStore(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s account store: %w", cfg.StoreDriver, err)
	}
	defer store.close()

	var mailer auth.Mailer
	if cfg.SMTP.Enabled() {
		mailer = notification.NewEmailService(notification.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		})
		logger.Info("email service enabled", "host", cfg.SMTP.Host)
	} else {
		mailer = notification.NewLogMailer(logger)
		logger.Warn("SMTP_HOST not set, password reset emails will not be delivered")
	}

	accounts, err := idm.New(idm.Config{
		Store:                store.accounts,
		Mailer:               mailer,
		JWTSecret:            cfg.JWTSecret,
		JWTIssuer:            cfg.JWTIssuer,
		SessionTTL:           cfg.SessionTTL,
		ResetTokenTTL:        cfg.ResetTokenTTL,
		AppName:              cfg.AppName,
		AppBaseURL:           cfg.AppBaseURL,
		BlockDisposableEmail: cfg.BlockDisposableEmail,
		PasswordPolicy:       &cfg.PasswordPolicy,
		AllowedOrigins:       cfg.CORS.AllowedOrigins,
		SecurityHeaders:      &cfg.SecurityHeaders,
		MaxRequestBodySize:   cfg.MaxRequestBodySize,
		HealthCheck:          store.ping,
		Logger:               logger,
	})
	if err != nil {
		return fmt.Errorf("initialize accounts: %w", err)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           accounts.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Stop on interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, server, logger, cfg.ShutdownTimeout)
}

// serve runs server until ctx is done, then shuts it down gracefully. A
// listen failure is returned instead of exiting so callers' defers run.
func serve(ctx context.Context, server *http.Server, logger *slog.Logger, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

type accountStore struct {
	accounts auth.AccountStore
	ping     func(ctx context.Context) error
	close    func()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*accountStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := postgres.NewDB(ctx, cfg.DatabaseURL())
		if err != nil {
			return nil, err
		}
		if err := postgres.ApplyMigrations(db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("connected to database", "host", cfg.DBHost, "name", cfg.DBName)
		return &accountStore{
			accounts: postgres.NewAccountsRepository(db),
			ping:     db.PingContext,
			close:    func() { db.Close() },
		}, nil

	case config.StoreDriverMongo:
		client, err := mongodb.NewClient(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		repo := mongodb.NewAccountsRepository(client.Database(cfg.MongoDatabase).Collection(mongodb.AccountsCollection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		logger.Info("connected to mongodb", "database", cfg.MongoDatabase)
		return &accountStore{
			accounts: repo,
			ping:     func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := client.Disconnect(ctx); err != nil {
					logger.Error("mongodb disconnect error", "error", err)
				}
			},
		}, nil

	case config.StoreDriverMemory:
		logger.Warn("using in-memory account store, accounts are lost on restart")
		return &accountStore{
			accounts: memory.NewAccountsRepository(),
			close:    func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
