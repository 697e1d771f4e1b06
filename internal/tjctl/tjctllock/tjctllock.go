// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tjctllock serializes imports of the same account.
//
// Two imports of one account must not interleave their reads of the
// execution history with their replacement of derived trades. A process-local
// Locker covers a single tjctl process; a Redis Locker covers several
// processes sharing one database.
package tjctllock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bufdev/tjctl/internal/pkg/backoff"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the default expiry of a Redis lock.
const DefaultTTL = 5 * time.Minute

// ErrLockNotAcquired is returned when a lock is held by someone else.
var ErrLockNotAcquired = errors.New("lock not acquired")

// DefaultPolicy is the default retry policy for Acquire.
var DefaultPolicy = backoff.Policy{
	MaxAttempts:  10,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

// Locker acquires named locks.
type Locker interface {
	// TryLock acquires the lock for key without waiting.
	//
	// Returns an error that satisfies errors.Is(err, ErrLockNotAcquired) if the lock is held.
	TryLock(ctx context.Context, key string) (Lock, error)
	// Close releases resources held by the Locker.
	Close() error
}

// Lock is a held lock.
type Lock interface {
	// Unlock releases the lock. Unlocking a lock twice is an error.
	Unlock(ctx context.Context) error
}

// Acquire acquires the lock for key, retrying with backoff while it is held elsewhere.
func Acquire(ctx context.Context, locker Locker, key string, policy backoff.Policy) (Lock, error) {
	return backoff.Retry(
		ctx,
		policy,
		func(ctx context.Context, _ int) (Lock, bool, error) {
			lock, err := locker.TryLock(ctx, key)
			if err != nil {
				return nil, errors.Is(err, ErrLockNotAcquired), err
			}
			return lock, false, nil
		},
	)
}

// NewLocalLocker returns a new Locker for locks within this process.
func NewLocalLocker() Locker {
	return &localLocker{
		held: make(map[string]struct{}),
	}
}

// NewRedisLocker returns a new Locker backed by Redis.
//
// Keys are prefixed with prefix. Locks expire after ttl if they are not
// released, so a crashed process does not block imports forever. If ttl is
// not positive, DefaultTTL is used.
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration) Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// *** PRIVATE ***

type localLocker struct {
	lock sync.Mutex
	held map[string]struct{}
}

func (l *localLocker) TryLock(_ context.Context, key string) (Lock, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
	}
	l.held[key] = struct{}{}
	return &localLock{locker: l, key: key}, nil
}

func (*localLocker) Close() error {
	return nil
}

type localLock struct {
	locker   *localLocker
	key      string
	unlocked bool
}

func (l *localLock) Unlock(context.Context) error {
	l.locker.lock.Lock()
	defer l.locker.lock.Unlock()
	if l.unlocked {
		return fmt.Errorf("lock %s already released", l.key)
	}
	l.unlocked = true
	delete(l.locker.held, l.key)
	return nil
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

type redisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func (r *redisLocker) TryLock(ctx context.Context, key string) (Lock, error) {
	redisKey := r.prefix + key
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
	}
	return &redisLock{client: r.client, key: redisKey, token: token}, nil
}

func (r *redisLocker) Close() error {
	return r.client.Close()
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (r *redisLock) Unlock(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Int64()
	if err != nil {
		return fmt.Errorf("redis eval failed: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("lock %s expired or was taken over before release", r.key)
	}
	return nil
}
