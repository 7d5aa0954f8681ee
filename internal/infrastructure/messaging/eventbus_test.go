package messaging

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func overdueEvent(id string) shared.Event {
	return shared.NewDeadlineEvent(shared.EventAssignmentOverdue, id, "u1", t0, 0, t0)
}

func TestInMemoryEventBus_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	defer bus.Close()

	var typed, all []string
	require.NoError(t, bus.Subscribe(shared.EventAssignmentOverdue, func(e shared.Event) error {
		typed = append(typed, e.AggregateID())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, string(e.EventType()))
		return errors.New("ignored")
	}))
	require.NoError(t, bus.Subscribe(shared.EventAssignmentOverdue, func(shared.Event) error {
		panic("boom")
	}))

	require.NoError(t, bus.Publish(overdueEvent("asg-1")))
	require.NoError(t, bus.Publish(shared.NewDeadlineEvent(shared.EventAssignmentAtRisk, "asg-2", "u1", t0, 1, t0)))

	assert.Equal(t, []string{"asg-1"}, typed)
	assert.Equal(t, []string{"assignment.overdue", "assignment.at_risk"}, all)
}

func TestInMemoryEventBus_AsyncAndClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var (
		mu   sync.Mutex
		seen int
	)
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		seen++
		mu.Unlock()
		return nil
	}))
	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(overdueEvent("asg-1")))
	}
	require.NoError(t, bus.Close())

	mu.Lock()
	assert.Equal(t, 10, seen)
	mu.Unlock()

	assert.ErrorIs(t, bus.Publish(overdueEvent("asg-1")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventAssignmentOverdue, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}

func TestRedisEventBus_FansOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newBus := func(id string) *RedisEventBus {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		bus, err := NewRedisEventBus(RedisEventBusConfig{
			Client:     NewGoRedisClient(client),
			InstanceID: id,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = bus.Close() })
		return bus
	}
	a, b := newBus("a"), newBus("b")

	local := make(chan shared.Event, 4)
	remote := make(chan shared.Event, 4)
	require.NoError(t, a.SubscribeAll(func(e shared.Event) error { local <- e; return nil }))
	require.NoError(t, b.SubscribeAll(func(e shared.Event) error { remote <- e; return nil }))

	require.NoError(t, a.Publish(overdueEvent("asg-7")))

	select {
	case e := <-local:
		assert.Equal(t, "asg-7", e.AggregateID())
	case <-time.After(2 * time.Second):
		t.Fatal("local handler not called")
	}

	select {
	case e := <-remote:
		assert.Equal(t, shared.EventAssignmentOverdue, e.EventType())
		assert.Equal(t, "asg-7", e.AggregateID())
		assert.Equal(t, "u1", e.Payload()["user_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("remote handler not called")
	}

	// The publisher must not receive its own event twice.
	select {
	case <-local:
		t.Fatal("own event replayed")
	case <-time.After(100 * time.Millisecond):
	}
}
