package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kultrip/story-travel/internal/middleware"
	"github.com/kultrip/story-travel/pkg/logger"
)

// RouterConfig collects the handlers and policies mounted by NewRouter.
type RouterConfig struct {
	Health    *HealthHandler
	Sessions  *SessionHandler
	Messages  *MessageHandler
	Stream    *StreamHandler
	Websocket *WebsocketHandler
	Stories   *StoryHandler
	// Events is optional; the history endpoint is only mounted when the
	// durable event log is enabled.
	Events *EventHandler

	Issuer            *middleware.TokenIssuer
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	Logger            *logger.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Knowledge base
		r.Get("/destinations", cfg.Stories.Destinations)
		r.Get("/destinations/{name}/stories", cfg.Stories.Stories)
		r.Get("/stories/{title}/destination", cfg.Stories.Destination)

		r.Post("/sessions", cfg.Sessions.Create)

		// Everything below requires the token issued with the session.
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(middleware.SessionAuth(cfg.Issuer))
			r.Use(middleware.SessionRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			r.Get("/", cfg.Sessions.Get)
			r.Delete("/", cfg.Sessions.Delete)
			r.Post("/reset", cfg.Sessions.Restart)

			r.Post("/messages", cfg.Messages.Send)
			r.Post("/suggestions", cfg.Messages.Suggest)

			r.Get("/stream", cfg.Stream.Stream)
			r.Get("/ws", cfg.Websocket.Handle)

			if cfg.Events != nil {
				r.Get("/events", cfg.Events.List)
			}
		})
	})

	return r
}
