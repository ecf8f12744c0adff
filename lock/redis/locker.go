package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/getpup/migration-orchestrator/lock"
	goredis "github.com/redis/go-redis/v9"
)

// Locker implements lock.Locker on top of Redis using redislock.
// Obtain never retries, so contention surfaces immediately as lock.ErrNotAcquired.
type Locker struct {
	client *redislock.Client
	owner  string
}

var _ lock.Locker = (*Locker)(nil)

// New creates a Locker using rdb. owner is stored as lock metadata so that
// operators can see which process holds a tenant.
func New(rdb goredis.UniversalClient, owner string) *Locker {
	return &Locker{
		client: redislock.New(rdb),
		owner:  owner,
	}
}

// Acquire obtains a lease on key for ttl.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	held, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{Metadata: l.owner})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, lock.ErrNotAcquired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	return &lease{lock: held}, nil
}

type lease struct {
	lock *redislock.Lock
}

func (le *lease) Key() string   { return le.lock.Key() }
func (le *lease) Owner() string { return le.lock.Token() }

func (le *lease) Refresh(ctx context.Context, ttl time.Duration) error {
	err := le.lock.Refresh(ctx, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return lock.ErrLeaseLost
	}
	if err != nil {
		return fmt.Errorf("failed to refresh lock %s: %w", le.lock.Key(), err)
	}
	return nil
}

func (le *lease) Release(ctx context.Context) error {
	err := le.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return lock.ErrLeaseLost
	}
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", le.lock.Key(), err)
	}
	return nil
}
