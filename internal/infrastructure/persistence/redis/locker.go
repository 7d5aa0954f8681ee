package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when the lock could not be taken before ctx ended.
var ErrLockTimeout = errors.New("lock: acquire timed out")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AssignmentLocker implements service.Locker with SET NX PX.
// Interactions on one assignment are serialized across worker processes.
type AssignmentLocker struct {
	client *redis.Client
	ttl    time.Duration
	poll   time.Duration
}

// NewAssignmentLocker creates a locker. ttl <= 0 uses TTLDistributedLock.
func NewAssignmentLocker(cache *Cache, ttl time.Duration) *AssignmentLocker {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}
	return &AssignmentLocker{client: cache.Client(), ttl: ttl, poll: 25 * time.Millisecond}
}

// Lock implements service.Locker.
func (l *AssignmentLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := LockKey(key)

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
			}
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be cancelled; release regardless.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			_ = releaseScript.Run(rctx, l.client, []string{redisKey}, token).Err()
		})
	}, nil
}
