package tenant

import (
	"context"
	"fmt"
	"sync"

	"github.com/getpup/migration-orchestrator"
)

// MockDirectory is a configurable mock implementation of Directory for testing.
// Unset functions fall back to Tenants.
type MockDirectory struct {
	mu sync.Mutex

	ListTenantsFunc func(ctx context.Context) ([]orchestrator.Tenant, error)
	ResolveFunc     func(ctx context.Context, id orchestrator.TenantID) (orchestrator.Tenant, orchestrator.ConnectionTarget, error)

	// Tenants backs the default behavior. Every tenant resolves to a target
	// whose Database is the tenant id.
	Tenants []orchestrator.Tenant

	// Call tracking
	ListTenantsCalls int
	ResolveCalls     []orchestrator.TenantID
}

var _ Directory = (*MockDirectory)(nil)

// NewMockDirectory creates a new MockDirectory with the given tenants.
func NewMockDirectory(tenants ...orchestrator.Tenant) *MockDirectory {
	return &MockDirectory{Tenants: tenants}
}

// ListTenants implements Directory.
func (m *MockDirectory) ListTenants(ctx context.Context) ([]orchestrator.Tenant, error) {
	m.mu.Lock()
	m.ListTenantsCalls++
	m.mu.Unlock()

	if m.ListTenantsFunc != nil {
		return m.ListTenantsFunc(ctx)
	}

	var tenants []orchestrator.Tenant
	for _, t := range m.Tenants {
		if t.Active {
			tenants = append(tenants, t)
		}
	}
	return tenants, nil
}

// Resolve implements Directory.
func (m *MockDirectory) Resolve(ctx context.Context, id orchestrator.TenantID) (orchestrator.Tenant, orchestrator.ConnectionTarget, error) {
	m.mu.Lock()
	m.ResolveCalls = append(m.ResolveCalls, id)
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, id)
	}

	for _, t := range m.Tenants {
		if t.ID == id && t.Active {
			return t, orchestrator.ConnectionTarget{DSN: "mock://" + string(id), Database: string(id)}, nil
		}
	}
	return orchestrator.Tenant{}, orchestrator.ConnectionTarget{}, fmt.Errorf("%w: %s", orchestrator.ErrTenantNotFound, id)
}
