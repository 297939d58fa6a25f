// Package http exposes the search service over HTTP: public search,
// suggest and click tracking, plus admin-only index management.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketloom/search-service/pkg/health"
	"github.com/marketloom/search-service/pkg/middleware"

	"github.com/marketloom/search-service/internal/service"
)

// NewRouter creates a chi router with all search service routes registered.
func NewRouter(
	svc *service.Service,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Identity())
	r.Use(middleware.Tracing("search"))
	r.Use(middleware.PrometheusMetrics("search"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// Search API endpoints
	h := NewSearchHandler(svc, logger)

	r.Route("/api/v1/search", func(r chi.Router) {
		r.Get("/", h.Search)
		r.Get("/suggest", h.Suggest)
		r.Post("/track/click", h.TrackClick)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.Post("/index", h.IndexProduct)
			r.Post("/bulk", h.BulkIndex)
			r.Delete("/{id}", h.DeleteProduct)
			r.Post("/reindex", h.Reindex)
		})
	})

	return r
}
