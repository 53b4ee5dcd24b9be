// Package app wires the user service from configuration. The HTTP server and
// the userctl CLI share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/changeuikim/vercel-kayce/internal/identity"
	"github.com/changeuikim/vercel-kayce/internal/platform/config"
	"github.com/changeuikim/vercel-kayce/internal/platform/database"
	"github.com/changeuikim/vercel-kayce/internal/platform/redis"
	"github.com/changeuikim/vercel-kayce/internal/user/metrics"
	"github.com/changeuikim/vercel-kayce/internal/user/publisher"
	"github.com/changeuikim/vercel-kayce/internal/user/service"
	"github.com/changeuikim/vercel-kayce/internal/user/store"
)

// App holds the wired service and the resources it owns.
type App struct {
	Users *service.Service
	DB    *sql.DB

	redis *redis.Client
	kafka *publisher.Kafka
}

// New opens the database, bootstraps the schema and builds the user service.
// Redis and Kafka are attached only when configured.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	db, dialect, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	a := &App{DB: db}

	if err := store.Bootstrap(ctx, db, dialect); err != nil {
		a.Close()
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithHasher(identity.NewHasher(cfg.Identity.Pepper)),
		service.WithMaxTake(cfg.Query.MaxTake),
		service.WithMaxFilterDepth(cfg.Query.MaxFilterDepth),
		service.WithProductionMode(cfg.Server.Production),
	}
	if reg != nil {
		opts = append(opts, service.WithMetrics(metrics.New(reg)))
	}
	if cfg.Identity.TokenKey != "" {
		opts = append(opts, service.WithTokenParser(identity.NewTokenParser(cfg.Identity.TokenKey, cfg.Identity.TokenIssuer)))
	}

	a.redis, err = redis.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.redis != nil {
		opts = append(opts, service.WithCountCache(store.NewRedisCountCache(a.redis.Client, cfg.Redis.CountTTL)))
		logger.Info("count cache enabled", "ttl", cfg.Redis.CountTTL.String())
	}

	if len(cfg.Kafka.Brokers) > 0 {
		a.kafka, err = publisher.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, publisher.WithLogger(logger))
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.kafka.EnsureTopic(ctx, 1, 1); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure topic %s: %w", cfg.Kafka.Topic, err)
		}
		opts = append(opts, service.WithPublisher(a.kafka))
		logger.Info("event publishing enabled", "topic", cfg.Kafka.Topic)
	}

	st := store.NewSQLStore(db, dialect)
	a.Users = service.New(st, store.NewSQLTx(db, dialect, cfg.Database.TxTimeout), opts...)
	return a, nil
}

// Health pings every attached backend.
func (a *App) Health(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases every resource New opened.
func (a *App) Close() {
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
