package service

import (
	"context"
	"log/slog"

	"github.com/changeuikim/vercel-kayce/internal/query"
	"github.com/changeuikim/vercel-kayce/internal/user/metrics"
)

// cachedReader answers Count from the CountCache when it can. Cache failures
// degrade to a store read.
type cachedReader struct {
	Store
	cache   CountCache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func (r *cachedReader) Count(ctx context.Context, where query.Predicate) (int, error) {
	key, err := r.cache.Key(ctx, where.String())
	if err != nil {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "count cache key failed", "error", err)
		}
		r.metrics.IncCountCacheMiss()
		return r.Store.Count(ctx, where)
	}
	n, ok, err := r.cache.Get(ctx, key)
	if err != nil && r.logger != nil {
		r.logger.WarnContext(ctx, "count cache read failed", "error", err)
	}
	if ok && err == nil {
		r.metrics.IncCountCacheHit()
		return n, nil
	}
	r.metrics.IncCountCacheMiss()

	n, err = r.Store.Count(ctx, where)
	if err != nil {
		return 0, err
	}
	if err := r.cache.Set(ctx, key, n); err != nil && r.logger != nil {
		r.logger.WarnContext(ctx, "count cache write failed", "error", err)
	}
	return n, nil
}
