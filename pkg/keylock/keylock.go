// Package keylock provides an in-process mutex keyed by string.
// Entries are reference counted and removed once nobody holds or waits for them.
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// KeyLock serializes callers that share the same key.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New creates an empty KeyLock.
func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*entry)}
}

// Lock blocks until the key is free and returns the matching unlock func.
func (k *KeyLock) Lock(key string) (unlock func()) {
	unlock, _ = k.LockContext(context.Background(), key)
	return unlock
}

// LockContext waits for the key until ctx is done. On cancellation the
// caller never holds the key and ctx.Err() is returned.
func (k *KeyLock) LockContext(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.release(key, e)
		})
	}, nil
}

func (k *KeyLock) release(key string, e *entry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// Len reports how many keys are currently tracked.
func (k *KeyLock) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
