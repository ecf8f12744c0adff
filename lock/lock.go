// Package lock provides lease-based mutual exclusion for tenant migrations.
//
// A lease has an owner and an expiry. The holder extends it with Refresh while
// work is in progress; if the holder dies the lease expires and another
// process may acquire it. Acquisition never waits: contention is reported as
// ErrNotAcquired so callers can fail fast.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotAcquired indicates the key is currently leased by another owner.
	ErrNotAcquired = errors.New("lock not acquired")

	// ErrLeaseLost indicates the lease expired or was taken over before it
	// could be refreshed or released.
	ErrLeaseLost = errors.New("lease lost")
)

// Locker acquires leases on keys.
// Implementations must be safe for concurrent use.
type Locker interface {
	// Acquire obtains a lease on key for ttl.
	// Returns ErrNotAcquired if another owner holds an unexpired lease.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	// Key returns the leased key.
	Key() string

	// Owner returns the unique owner token of this lease.
	Owner() string

	// Refresh extends the lease by ttl from now.
	// Returns ErrLeaseLost if the lease is no longer held.
	Refresh(ctx context.Context, ttl time.Duration) error

	// Release gives the lease up. Releasing a lost lease returns ErrLeaseLost.
	Release(ctx context.Context) error
}

// TenantKey returns the lock key used for a tenant's migrations.
func TenantKey(tenantID string) string {
	return "tenant-migration:" + tenantID
}
