// Package cache keeps the read caches honest after writes commit.
package cache

import (
	"context"

	cachesvc "parking-booking/pkg/cache"
	"parking-booking/pkg/metrics"

	"go.uber.org/zap"
)

// Coordinator removes stale cache entries. It is best effort: failures are
// logged and counted, never returned, because the store is the source of
// truth and entries expire on their own.
type Coordinator struct {
	svc cachesvc.Service
	log *zap.Logger
}

func NewCoordinator(svc cachesvc.Service, log *zap.Logger) *Coordinator {
	return &Coordinator{
		svc: svc,
		log: log.With(zap.String("component", "cache_invalidation")),
	}
}

func (c *Coordinator) Invalidate(ctx context.Context, keys Keys) {
	if c == nil || c.svc == nil {
		return
	}

	if len(keys.Exact) > 0 {
		if err := c.svc.Remove(ctx, keys.Exact...); err != nil {
			metrics.CacheInvalidationFailures.Add(float64(len(keys.Exact)))
			c.log.Warn("Failed to remove cache keys",
				zap.Error(err),
				zap.Strings("keys", keys.Exact),
			)
		}
	}

	for _, pattern := range keys.Patterns {
		if _, err := c.svc.RemoveByPattern(ctx, pattern); err != nil {
			metrics.CacheInvalidationFailures.Inc()
			c.log.Warn("Failed to remove cache pattern",
				zap.Error(err),
				zap.String("pattern", pattern),
			)
		}
	}
}
