package memory

import (
	"context"
	"sync"
	"time"

	"github.com/getpup/migration-orchestrator/lock"
	"github.com/google/uuid"
)

// Locker is an in-process implementation of lock.Locker for tests and
// single-instance deployments.
type Locker struct {
	mu     sync.Mutex
	leases map[string]entry
	now    func() time.Time
}

type entry struct {
	owner     string
	expiresAt time.Time
}

var _ lock.Locker = (*Locker)(nil)

// New creates an empty Locker using the wall clock.
func New() *Locker {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty Locker that reads time from now.
func NewWithClock(now func() time.Time) *Locker {
	return &Locker{
		leases: make(map[string]entry),
		now:    now,
	}
}

// Acquire obtains a lease on key unless another owner holds an unexpired one.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if current, ok := l.leases[key]; ok && now.Before(current.expiresAt) {
		return nil, lock.ErrNotAcquired
	}

	owner := uuid.New().String()
	l.leases[key] = entry{owner: owner, expiresAt: now.Add(ttl)}

	return &lease{locker: l, key: key, owner: owner}, nil
}

// Held reports whether key is currently leased.
func (l *Locker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.leases[key]
	return ok && l.now().Before(current.expiresAt)
}

type lease struct {
	locker *Locker
	key    string
	owner  string
}

func (le *lease) Key() string   { return le.key }
func (le *lease) Owner() string { return le.owner }

func (le *lease) Refresh(ctx context.Context, ttl time.Duration) error {
	l := le.locker
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	current, ok := l.leases[le.key]
	if !ok || current.owner != le.owner || !now.Before(current.expiresAt) {
		return lock.ErrLeaseLost
	}

	current.expiresAt = now.Add(ttl)
	l.leases[le.key] = current
	return nil
}

func (le *lease) Release(ctx context.Context) error {
	l := le.locker
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.leases[le.key]
	if !ok || current.owner != le.owner {
		return lock.ErrLeaseLost
	}

	delete(l.leases, le.key)
	return nil
}
