package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
	"github.com/alem-hub/flow-engine/pkg/logger"
)

// SnapshotCache implements service.SnapshotCache. Snapshots are immutable,
// so entries are never invalidated, only expired.
type SnapshotCache struct {
	cache *Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewSnapshotCache creates a SnapshotCache. ttl <= 0 uses TTLSnapshotCache.
func NewSnapshotCache(cache *Cache, ttl time.Duration, log *logger.Logger) *SnapshotCache {
	if ttl <= 0 {
		ttl = TTLSnapshotCache
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SnapshotCache{cache: cache, ttl: ttl, log: log}
}

// Get returns a cached snapshot. Redis failures are treated as a miss.
func (c *SnapshotCache) Get(ctx context.Context, id string) (*snapshot.FlowSnapshot, bool) {
	var s snapshot.FlowSnapshot
	if err := c.cache.Get(ctx, SnapshotKey(id), &s); err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.log.Warn("snapshot cache read failed", logger.SnapshotID(id), logger.Err(err))
		}
		return nil, false
	}
	return &s, true
}

// Set stores the snapshot.
func (c *SnapshotCache) Set(ctx context.Context, s *snapshot.FlowSnapshot) error {
	return c.cache.Set(ctx, SnapshotKey(s.ID), s, c.ttl)
}
