package redis

import (
	"context"
	"time"
)

// DailyGuard lets a notification fire at most once per subject per UTC day.
type DailyGuard struct {
	cache *Cache
}

// NewDailyGuard creates a DailyGuard.
func NewDailyGuard(cache *Cache) *DailyGuard {
	return &DailyGuard{cache: cache}
}

// First reports whether this is the first call for kind and subject on the day of at.
func (g *DailyGuard) First(ctx context.Context, kind, subject string, at time.Time) (bool, error) {
	day := at.UTC().Format(time.DateOnly)
	return g.cache.SetNX(ctx, OnceKey(kind, subject, day), at.Unix(), TTLDailyGuard)
}
