package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vaisu-bhut/GeniQ/internal/api/handlers"
	"github.com/vaisu-bhut/GeniQ/internal/api/middleware"
	"github.com/vaisu-bhut/GeniQ/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	apiKeyHeader := cfg.Auth.APIKeyHeader
	if apiKeyHeader == "" {
		apiKeyHeader = middleware.DefaultAPIKeyHeader
	}
	apiKeys := middleware.NewAPIKeyAuth(cfg.Auth.APIKeys, apiKeyHeader)

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", apiKeyHeader},
		ExposedHeaders:   []string{"X-Request-Id", "X-Run-Id", "X-Trace-Id", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(apiKeys.Middleware)

	// Health & info
	r.Get("/health", h.Health)
	r.Get("/version", versionHandler(cfg))
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/generate", func(r chi.Router) {
			r.Post("/tabular", h.GenerateTabular)
			r.Post("/qa", h.GenerateQA)
		})

		r.Post("/guardrails/check", h.CheckGuardrails)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Get("/{runId}", h.GetRun)
		})

		r.Route("/feedback", func(r chi.Router) {
			r.Post("/", h.SubmitFeedback)
			r.Get("/report", h.FeedbackReport)
		})
	})

	return r
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{
			"version": cfg.Server.Version,
			"service": "geniq",
		})
	}
}
