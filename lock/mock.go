package lock

import (
	"context"
	"sync"
	"time"
)

// MockLocker is a configurable mock implementation of Locker for testing.
type MockLocker struct {
	mu sync.Mutex

	// AcquireFunc is called by Acquire if set.
	// By default Acquire returns a new MockLease.
	AcquireFunc func(ctx context.Context, key string, ttl time.Duration) (Lease, error)

	// Call tracking
	AcquireCalls []AcquireCall
	Leases       []*MockLease
}

// AcquireCall records the parameters of a single Acquire call.
type AcquireCall struct {
	Key string
	TTL time.Duration
}

// NewMockLocker creates a new MockLocker.
func NewMockLocker() *MockLocker {
	return &MockLocker{}
}

// Acquire implements Locker.
func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	m.mu.Lock()
	m.AcquireCalls = append(m.AcquireCalls, AcquireCall{Key: key, TTL: ttl})
	m.mu.Unlock()

	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, key, ttl)
	}

	lease := &MockLease{LeaseKey: key, LeaseOwner: "mock-owner"}
	m.mu.Lock()
	m.Leases = append(m.Leases, lease)
	m.mu.Unlock()
	return lease, nil
}

// MockLease is a configurable mock implementation of Lease for testing.
type MockLease struct {
	mu sync.Mutex

	LeaseKey   string
	LeaseOwner string

	// RefreshFunc is called by Refresh if set.
	RefreshFunc func(ctx context.Context, ttl time.Duration) error

	// ReleaseFunc is called by Release if set.
	ReleaseFunc func(ctx context.Context) error

	RefreshCalls int
	ReleaseCalls int
}

// Key implements Lease.
func (l *MockLease) Key() string { return l.LeaseKey }

// Owner implements Lease.
func (l *MockLease) Owner() string { return l.LeaseOwner }

// Refresh implements Lease.
func (l *MockLease) Refresh(ctx context.Context, ttl time.Duration) error {
	l.mu.Lock()
	l.RefreshCalls++
	l.mu.Unlock()

	if l.RefreshFunc != nil {
		return l.RefreshFunc(ctx, ttl)
	}
	return nil
}

// Release implements Lease.
func (l *MockLease) Release(ctx context.Context) error {
	l.mu.Lock()
	l.ReleaseCalls++
	l.mu.Unlock()

	if l.ReleaseFunc != nil {
		return l.ReleaseFunc(ctx)
	}
	return nil
}

// Refreshes returns the number of Refresh calls so far.
func (l *MockLease) Refreshes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.RefreshCalls
}

// Releases returns the number of Release calls so far.
func (l *MockLease) Releases() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ReleaseCalls
}
