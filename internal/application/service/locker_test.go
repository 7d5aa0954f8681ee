package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_WaitRespectsContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "assignment:a1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = l.Lock(ctx, "assignment:a1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	other, err := l.Lock(context.Background(), "assignment:a2")
	require.NoError(t, err)
	other()

	unlock()
	again, err := l.Lock(context.Background(), "assignment:a1")
	require.NoError(t, err)
	again()
}

func TestLocalLocker_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocalLocker().Lock(ctx, "assignment:a1")
	assert.ErrorIs(t, err, context.Canceled)
}
