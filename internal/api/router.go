package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/metrics"
)

// RouterConfig configures the HTTP surface.
type RouterConfig struct {
	CronSecret     string
	AllowedOrigins []string
	Limiter        Limiter // nil disables rate limiting
	RateLimit      int
	RequestTimeout time.Duration
}

// NewRouter mounts every endpoint on a chi router.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(metrics.Middleware)
	r.Use(RequestLogger(logger))

	auth := NewAuthorizer(cfg.CronSecret, logger)

	r.Route("/api", func(r chi.Router) {
		// Scheduler trigger and ops endpoints
		r.Group(func(r chi.Router) {
			r.Use(auth.Require)
			r.Get("/push-cron", h.RunChecks)
			r.Get("/push-health-check", h.Health)
		})
		r.Head("/push-cron", h.ProbeChecks)

		r.Get("/settings/inventory-threshold", h.GetThreshold)
		r.Post("/settings/inventory-threshold", h.SetThreshold)
		r.Post("/send-push", h.SendNow)

		// Browser endpoints
		r.Group(func(r chi.Router) {
			r.Use(cors.New(cors.Options{
				AllowedOrigins: cfg.AllowedOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders: []string{"Content-Type"},
				MaxAge:         300,
			}).Handler)
			r.Use(RateLimitMiddleware(cfg.Limiter, cfg.RateLimit, logger, IPKeyFunc))

			r.Get("/push-public-key", h.PublicKey)
			r.Post("/push-subscribe", h.Subscribe)
			r.Post("/push-unsubscribe", h.Unsubscribe)
			r.Options("/push-subscribe", preflight)
			r.Options("/push-unsubscribe", preflight)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	return r
}

// preflight gives chi a route for OPTIONS so the CORS middleware runs.
func preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
