// Copyright 2026 Peter Edge
//
// All rights reserved.

package tjctllock

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bufdev/tjctl/internal/pkg/backoff"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	t.Parallel()
	testLocker(t, NewLocalLocker())
}

func TestRedisLocker(t *testing.T) {
	t.Parallel()
	addr := os.Getenv("TJCTL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TJCTL_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	locker := NewRedisLocker(client, "tjctl-test:"+uuid.NewString()+":", time.Minute)
	t.Cleanup(func() {
		require.NoError(t, locker.Close())
	})
	testLocker(t, locker)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	locker := NewLocalLocker()
	lock, err := locker.TryLock(ctx, "brokerage")
	require.NoError(t, err)
	unlockErrC := make(chan error, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		unlockErrC <- lock.Unlock(ctx)
	}()
	acquired, err := Acquire(
		ctx,
		locker,
		"brokerage",
		backoff.Policy{MaxAttempts: 100, InitialDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond},
	)
	require.NoError(t, <-unlockErrC)
	require.NoError(t, err)
	require.NoError(t, acquired.Unlock(ctx))
}

func TestAcquireGivesUp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	locker := NewLocalLocker()
	_, err := locker.TryLock(ctx, "brokerage")
	require.NoError(t, err)
	_, err = Acquire(ctx, locker, "brokerage", backoff.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond})
	require.ErrorIs(t, err, ErrLockNotAcquired)
}

func testLocker(t *testing.T, locker Locker) {
	ctx := context.Background()
	lock, err := locker.TryLock(ctx, "brokerage")
	require.NoError(t, err)
	_, err = locker.TryLock(ctx, "brokerage")
	require.ErrorIs(t, err, ErrLockNotAcquired)
	require.True(t, strings.Contains(err.Error(), "brokerage"))
	// Other keys are independent.
	other, err := locker.TryLock(ctx, "ira")
	require.NoError(t, err)
	require.NoError(t, other.Unlock(ctx))

	require.NoError(t, lock.Unlock(ctx))
	require.Error(t, lock.Unlock(ctx))
	lock, err = locker.TryLock(ctx, "brokerage")
	require.NoError(t, err)
	require.NoError(t, lock.Unlock(ctx))
}
