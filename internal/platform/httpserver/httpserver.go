package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/changeuikim/vercel-kayce/internal/platform/metrics"
	"github.com/changeuikim/vercel-kayce/internal/platform/middleware"
)

// New builds an HTTP server with sane defaults for this project.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter applies the shared middleware chain, exposes /healthz and the
// Prometheus /metrics endpoint from gatherer, and mounts every module.
func NewRouter(logger *slog.Logger, httpMetrics *metrics.HTTP, gatherer prometheus.Gatherer, modules ...Registrar) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware)
	}
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}
