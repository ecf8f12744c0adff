package tenant

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/getpup/migration-orchestrator"
)

// Entry is a tenant together with its connection target.
type Entry struct {
	Tenant orchestrator.Tenant
	Target orchestrator.ConnectionTarget
}

// Static is an in-memory Directory. It is used by tests and by deployments
// that list their tenants in configuration.
type Static struct {
	mu      sync.RWMutex
	entries map[orchestrator.TenantID]Entry
}

var _ Directory = (*Static)(nil)

// NewStatic creates a Static directory holding entries.
func NewStatic(entries ...Entry) *Static {
	s := &Static{entries: make(map[orchestrator.TenantID]Entry, len(entries))}
	for _, e := range entries {
		s.entries[e.Tenant.ID] = e
	}
	return s
}

// Put adds or replaces a tenant.
func (s *Static) Put(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Tenant.ID] = e
}

// ListTenants returns the active tenants ordered by id.
func (s *Static) ListTenants(ctx context.Context) ([]orchestrator.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]orchestrator.Tenant, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Tenant.Active {
			tenants = append(tenants, e.Tenant)
		}
	}
	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].ID < tenants[j].ID
	})
	return tenants, nil
}

// Resolve implements Directory.
func (s *Static) Resolve(ctx context.Context, id orchestrator.TenantID) (orchestrator.Tenant, orchestrator.ConnectionTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || !e.Tenant.Active {
		return orchestrator.Tenant{}, orchestrator.ConnectionTarget{}, fmt.Errorf("%w: %s", orchestrator.ErrTenantNotFound, id)
	}
	return e.Tenant, e.Target, nil
}
