package keylock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLock_SerializesSameKey(t *testing.T) {
	kl := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := kl.Lock("assignment-1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, kl.Len())
}

func TestKeyLock_UnlockIsIdempotent(t *testing.T) {
	kl := New()
	unlock := kl.Lock("a")
	unlock()
	unlock()

	assert.Equal(t, 0, kl.Len())
	// key is usable again
	kl.Lock("a")()
}

func TestKeyLock_IndependentKeys(t *testing.T) {
	kl := New()
	ua := kl.Lock("a")
	ub := kl.Lock("b")
	assert.Equal(t, 2, kl.Len())
	ua()
	ub()
	assert.Equal(t, 0, kl.Len())
}

func TestKeyLock_WaiterGivesUpOnCancel(t *testing.T) {
	kl := New()
	unlock := kl.Lock("a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := kl.LockContext(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, kl.Len())

	unlock()
	assert.Equal(t, 0, kl.Len())

	unlock2, err := kl.LockContext(context.Background(), "a")
	require.NoError(t, err)
	unlock2()
}
