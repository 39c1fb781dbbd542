package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tendant/listings-idm/internal/config"
	"github.com/tendant/listings-idm/internal/http/features/me"
	"github.com/tendant/listings-idm/internal/http/features/mfa"
	"github.com/tendant/listings-idm/internal/http/features/password"
	"github.com/tendant/listings-idm/internal/http/middleware"
	"github.com/tendant/listings-idm/internal/httputil"
	"github.com/tendant/listings-idm/pkg/auth"
)

// DefaultMaxRequestBodySize applies when RouterConfig leaves the limit unset.
const DefaultMaxRequestBodySize = 1 << 20

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger             *slog.Logger
	Service            *auth.Service
	SecurityHeaders    config.SecurityHeadersConfig
	CORS               config.CORSConfig
	MaxRequestBodySize int64

	// HealthCheck reports whether the account store is reachable. Optional.
	HealthCheck func(ctx context.Context) error
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = DefaultMaxRequestBodySize
	}

	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBodySize))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.HealthCheck(ctx); err != nil {
				cfg.Logger.ErrorContext(r.Context(), "health check failed", "error", err)
				httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	passwordHandler := password.NewHandler(cfg.Logger, cfg.Service)
	mfaHandler := mfa.NewHandler(cfg.Logger, cfg.Service)
	meHandler := me.NewHandler(cfg.Logger, cfg.Service)

	r.Route("/api", func(r chi.Router) {
		passwordHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Service, cfg.Logger))
			mfaHandler.RegisterRoutes(r)
			meHandler.RegisterRoutes(r)
		})
	})

	return r
}
