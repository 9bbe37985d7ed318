package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/agora-protocol/relay/internal/api/middleware"
	"github.com/agora-protocol/relay/internal/config"
	"github.com/agora-protocol/relay/internal/handlers"
	"github.com/agora-protocol/relay/internal/relay"
	"github.com/agora-protocol/relay/internal/store"
)

// bodyOverhead covers the envelope fields, keys and metadata around a payload.
const bodyOverhead = 16 * 1024

// NewRouter creates and configures the HTTP router. redisStore may be nil.
func NewRouter(logger zerolog.Logger, cfg *config.Config, rl *relay.Relay, redisStore *store.RedisStore) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(int64(cfg.MaxPayloadBytes + bodyOverhead)))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
		Whitelist:        cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.AutoBlockEnabled,
	})
	r.Use(limiter.Middleware)

	// CORS - allow all origins (agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(rl, redisStore, logger)
	auth := middleware.NewAuthMiddleware(rl)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/", h.Root)
		r.Get("/stats", h.Stats)
		r.Post("/register", h.Register)
		r.Delete("/disconnect", h.Disconnect)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)

			r.Post("/send", h.Send)
			r.Get("/peers", h.Peers)
			r.Get("/messages", h.Messages)
		})
	})

	return r
}
