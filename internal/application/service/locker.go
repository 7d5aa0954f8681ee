package service

import (
	"context"

	"github.com/alem-hub/flow-engine/pkg/keylock"
)

// LocalLocker is an in-process Locker used when Redis is disabled.
type LocalLocker struct {
	locks *keylock.KeyLock
}

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: keylock.New()}
}

// Lock implements Locker.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	return l.locks.LockContext(ctx, key)
}
