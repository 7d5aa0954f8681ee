package redis

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheWithClient(client), mr
}

func TestCache_SetGet(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))
	var got map[string]int
	require.NoError(t, cache.Get(ctx, "k", &got))
	assert.Equal(t, 1, got["a"])
	assert.Equal(t, time.Minute, mr.TTL("k"))

	assert.ErrorIs(t, cache.Get(ctx, "missing", &got), ErrCacheMiss)
	assert.ErrorIs(t, cache.Set(ctx, "", 1, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, cache.Set(ctx, "k", nil, 0), ErrCacheNilValue)
}

func TestSnapshotCache_RoundTrip(t *testing.T) {
	cache, mr := newTestCache(t)
	sc := NewSnapshotCache(cache, 0, nil)
	ctx := context.Background()

	_, ok := sc.Get(ctx, "snap-1")
	assert.False(t, ok)

	snap := &snapshot.FlowSnapshot{
		ID:    "snap-1",
		Title: "Welcome",
		Steps: []snapshot.StepSnapshot{{
			ID:    "ss1",
			Order: 1,
			Components: []snapshot.ComponentSnapshot{{
				ID: "sc1", Order: 1, IsRequired: true, Type: content.TypeArticle, TypeVersion: 1,
				Data: json.RawMessage(`{"estimatedReadTime":2}`),
			}},
		}},
	}
	require.NoError(t, sc.Set(ctx, snap))
	assert.Equal(t, TTLSnapshotCache, mr.TTL(SnapshotKey("snap-1")))

	got, ok := sc.Get(ctx, "snap-1")
	require.True(t, ok)
	assert.Equal(t, "Welcome", got.Title)
	require.Len(t, got.Steps, 1)
	assert.JSONEq(t, `{"estimatedReadTime":2}`, string(got.Steps[0].Components[0].Data))

	mr.Set(SnapshotKey("broken"), "{not json")
	_, ok = sc.Get(ctx, "broken")
	assert.False(t, ok)
}

func TestAssignmentLocker_Serializes(t *testing.T) {
	cache, _ := newTestCache(t)
	locker := NewAssignmentLocker(cache, time.Second)
	locker.poll = time.Millisecond
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "asg-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
}

func TestAssignmentLocker_TimeoutAndForeignRelease(t *testing.T) {
	cache, mr := newTestCache(t)
	locker := NewAssignmentLocker(cache, time.Minute)
	locker.poll = time.Millisecond

	unlock, err := locker.Lock(context.Background(), "asg-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "asg-1")
	require.ErrorIs(t, err, ErrLockTimeout)

	// Lock expired and was taken by someone else: our release must not delete it.
	mr.Set(LockKey("asg-1"), "someone-else")
	unlock()
	got, err := mr.Get(LockKey("asg-1"))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestDailyGuard_OncePerDay(t *testing.T) {
	cache, _ := newTestCache(t)
	guard := NewDailyGuard(cache)
	ctx := context.Background()
	day := time.Date(2025, 3, 17, 8, 0, 0, 0, time.UTC)

	first, err := guard.First(ctx, "overdue", "asg-1", day)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := guard.First(ctx, "overdue", "asg-1", day.Add(10*time.Hour))
	require.NoError(t, err)
	assert.False(t, again)

	other, err := guard.First(ctx, "at_risk", "asg-1", day)
	require.NoError(t, err)
	assert.True(t, other)

	next, err := guard.First(ctx, "overdue", "asg-1", day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, next)
}
