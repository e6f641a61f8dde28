package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/angeloszaimis/ai-gateway/internal/middleware"
)

func setupRouter(a *app) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if a.cfg.RateLimit.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Telemetry)
	r.Use(middleware.AccessLog(a.log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", a.monitor.Handler())
	r.Get("/metrics", a.collector.Handler())

	requireAuth := middleware.RequireAuth(a.auth)
	rateLimit := middleware.RateLimit(middleware.RateLimitConfig{
		Burst:           a.cfg.RateLimit.Burst,
		RefillPerMinute: a.cfg.RateLimit.RefillPerMinute,
		TrustProxy:      a.cfg.RateLimit.TrustProxy,
	})

	r.Route("/api/ai", func(r chi.Router) {
		r.With(requireAuth).Post("/generate", a.ai.Generate)
		r.With(requireAuth).Get("/breakers", a.ai.Breakers)
		r.With(rateLimit).Post("/analyze-error", a.ai.AnalyzeError)
	})

	return r
}
