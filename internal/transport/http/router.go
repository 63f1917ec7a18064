package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ZackGrogan/SDEA/internal/infrastructure"
	"github.com/ZackGrogan/SDEA/internal/middleware"
)

// RouterConfig collects the dependencies the router wires together.
type RouterConfig struct {
	Retrieve       *RetrieveHandler
	Metrics        *infrastructure.Metrics
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// NewRouter builds the service's route tree with the standard middleware
// chain.
func NewRouter(cfg RouterConfig) chi.Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Compress(5))

	r.Get("/healthz", NewHealthHandler().HealthCheck)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout, cfg.Logger))
		api.Post("/retrieve", cfg.Retrieve.Retrieve)
		api.Post("/jobs", cfg.Retrieve.SubmitJob)
		api.Get("/jobs/{jobID}", cfg.Retrieve.JobStatus)
	})

	return r
}
