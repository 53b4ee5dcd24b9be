package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/changeuikim/vercel-kayce/internal/app"
	"github.com/changeuikim/vercel-kayce/internal/platform/config"
	"github.com/changeuikim/vercel-kayce/internal/platform/httpserver"
	"github.com/changeuikim/vercel-kayce/internal/platform/logger"
	"github.com/changeuikim/vercel-kayce/internal/platform/metrics"
	"github.com/changeuikim/vercel-kayce/internal/user/handler"
	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
	"github.com/changeuikim/vercel-kayce/pkg/platform/httputil"
)

// main wires configuration, storage and the user service, exposes the HTTP
// router, and keeps the server lifecycle small.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logger.New("text", "info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Format, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := app.New(startCtx, &cfg, log, prometheus.DefaultRegisterer)
	cancel()
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	router := httpserver.NewRouter(log,
		metrics.New(prometheus.DefaultRegisterer),
		prometheus.DefaultGatherer,
		handler.New(a.Users, log),
		readiness{app: a},
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	go func() {
		log.Info("starting user service",
			"addr", cfg.Server.Addr,
			"driver", cfg.Database.Driver,
			"production", cfg.Server.Production,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// readiness answers /readyz from the backends the app holds.
type readiness struct {
	app *app.App
}

func (rd readiness) Register(r chi.Router) {
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rd.app.Health(ctx); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeStoreTimeout, "backend not ready"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
