// Package idm provides the listings account library: signup, login with
// optional TOTP step-up, password reset by email, MFA management and profile
// updates.
//
// Basic usage:
//
//	db, _ := postgres.NewDB(ctx, "postgres://localhost/listings?sslmode=disable")
//	_ = postgres.ApplyMigrations(db)
//
//	accounts, err := idm.New(idm.Config{
//	    Store:     postgres.NewAccountsRepository(db),
//	    Mailer:    notification.NewLogMailer(slog.Default()),
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	http.ListenAndServe(":8080", accounts.Handler())
package idm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/listings-idm/internal/config"
	httpserver "github.com/tendant/listings-idm/internal/http"
	"github.com/tendant/listings-idm/internal/http/middleware"
	"github.com/tendant/listings-idm/pkg/auth"
	"github.com/tendant/listings-idm/pkg/domain"
)

// Config holds the configuration for the IDM library.
type Config struct {
	// Store persists accounts (required).
	Store auth.AccountStore

	// Mailer delivers password reset emails (required).
	Mailer auth.Mailer

	// JWTSecret is the secret key for signing session tokens (required, min 32 chars).
	JWTSecret string

	// JWTIssuer is the issuer claim in session tokens (default: "listings-idm").
	JWTIssuer string

	// SessionTTL is the lifetime of session tokens (default: 1 hour).
	SessionTTL time.Duration

	// ResetTokenTTL is the lifetime of password reset tokens (default: 1 hour).
	ResetTokenTTL time.Duration

	// AppName labels authenticator entries and email subjects (default: "Listings").
	AppName string

	// AppBaseURL is the client origin reset links point at (default: "http://localhost:5173").
	AppBaseURL string

	BlockDisposableEmail bool

	// PasswordPolicy adds complexity rules on top of the length limits (optional).
	PasswordPolicy *config.PasswordPolicyConfig

	// AllowedOrigins enables CORS for the listed browser origins (optional).
	AllowedOrigins []string

	// SecurityHeaders overrides the default response security headers (optional).
	SecurityHeaders *config.SecurityHeadersConfig

	// MaxRequestBodySize caps request bodies in bytes (default: 1 MiB).
	MaxRequestBodySize int64

	// HealthCheck is run by GET /health (optional).
	HealthCheck func(ctx context.Context) error

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger
}

// IDM is the main identity management instance.
type IDM struct {
	config  Config
	service *auth.Service
	handler http.Handler
}

// New creates a new IDM instance with the given configuration.
func New(cfg Config) (*IDM, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	var policy *auth.PasswordPolicy
	if cfg.PasswordPolicy != nil {
		policy = auth.NewPasswordPolicy(*cfg.PasswordPolicy)
	}

	service := auth.NewService(auth.Config{
		AppName: cfg.AppName,
		BaseURL: cfg.AppBaseURL,
		Session: auth.SessionConfig{
			Secret: []byte(cfg.JWTSecret),
			Issuer: cfg.JWTIssuer,
			TTL:    cfg.SessionTTL,
		},
		ResetTokenTTL:        cfg.ResetTokenTTL,
		BlockDisposableEmail: cfg.BlockDisposableEmail,
	}, auth.Dependencies{
		Accounts: cfg.Store,
		Mailer:   cfg.Mailer,
		Policy:   policy,
		Logger:   cfg.Logger,
	})

	handler := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:             cfg.Logger,
		Service:            service,
		SecurityHeaders:    *cfg.SecurityHeaders,
		CORS:               config.CORSConfig{AllowedOrigins: cfg.AllowedOrigins},
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		HealthCheck:        cfg.HealthCheck,
	})

	return &IDM{
		config:  cfg,
		service: service,
		handler: handler,
	}, nil
}

// Handler returns the HTTP API:
//
//	GET   /health
//	POST  /api/signup
//	POST  /api/login
//	POST  /api/forgotpassword
//	PUT   /api/resetPassword/{token}
//	PUT   /api/resetpassword/{token}
//	GET   /api/me                  (protected)
//	PATCH /api/me                  (protected)
//	GET   /api/mfa/status          (protected)
//	POST  /api/mfa/setup-init      (protected)
//	POST  /api/mfa/setup-complete  (protected)
//	POST  /api/mfa/disable         (protected)
func (i *IDM) Handler() http.Handler {
	return i.handler
}

// Service returns the account service for callers that skip HTTP.
func (i *IDM) Service() *auth.Service {
	return i.service
}

// AuthMiddleware returns middleware that validates session tokens.
// Use this to protect your own routes:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(accounts.AuthMiddleware())
//	    r.Post("/listings", createListing)
//	})
func (i *IDM) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(i.service, i.config.Logger)
}

// GetAccountID extracts the account ID from a request.
// Use after AuthMiddleware.
func GetAccountID(r *http.Request) (uuid.UUID, bool) {
	return middleware.GetAccountID(r.Context())
}

// GetAccount returns the authenticated account's public view.
// Use after AuthMiddleware.
func GetAccount(r *http.Request) (*domain.PublicAccount, bool) {
	account, ok := middleware.GetAccount(r.Context())
	if !ok {
		return nil, false
	}
	return account.Public(), true
}

func validateConfig(cfg *Config) error {
	if cfg.Store == nil {
		return errors.New("idm: Store is required")
	}
	if cfg.Mailer == nil {
		return errors.New("idm: Mailer is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("idm: JWTSecret is required")
	}
	if len(cfg.JWTSecret) < config.MinJWTSecretLength {
		return errors.New("idm: JWTSecret must be at least 32 characters")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "listings-idm"
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = auth.DefaultSessionTTL
	}
	if cfg.ResetTokenTTL == 0 {
		cfg.ResetTokenTTL = auth.DefaultResetTokenTTL
	}
	if cfg.AppName == "" {
		cfg.AppName = "Listings"
	}
	if cfg.AppBaseURL == "" {
		cfg.AppBaseURL = "http://localhost:5173"
	}
	if cfg.SecurityHeaders == nil {
		cfg.SecurityHeaders = &config.SecurityHeadersConfig{
			Enabled:            true,
			CSP:                "default-src 'none'; frame-ancestors 'none'",
			FrameOptions:       "DENY",
			ContentTypeOptions: "nosniff",
			XSSProtection:      "0",
			ReferrerPolicy:     "no-referrer",
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}
