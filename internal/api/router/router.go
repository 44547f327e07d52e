package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/payment-sms-relay/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/payment-sms-relay/internal/http/middleware"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	IngestHandler   http.Handler
	StatusHandler   http.Handler
	SettingsHandler *handlers.SettingsHandler
	MetricsHandler  http.Handler
	AdminAuthSecret string

	// Per-IP token bucket on the ingest endpoint; zero disables it.
	IngestRateLimit float64
	IngestRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handlers.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.StatusHandler != nil {
		r.Method(http.MethodGet, "/status", cfg.StatusHandler)
	}
	if cfg.IngestHandler != nil {
		r.With(httpmiddleware.RateLimit(cfg.IngestRateLimit, cfg.IngestRateBurst)).
			Method(http.MethodPost, "/ingest/sms", cfg.IngestHandler)
	}
	if cfg.SettingsHandler != nil {
		r.Group(func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/settings", cfg.SettingsHandler.Get)
			admin.Put("/settings", cfg.SettingsHandler.Put)
		})
	}

	return r
}
