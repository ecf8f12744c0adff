// Package tenant resolves tenants and their database connection targets.
package tenant

import (
	"context"

	"github.com/getpup/migration-orchestrator"
)

// Directory is the source of truth for tenants.
// Only active tenants are listed or resolved.
type Directory interface {
	// ListTenants returns every active tenant.
	ListTenants(ctx context.Context) ([]orchestrator.Tenant, error)

	// Resolve returns an active tenant and how to reach its database.
	// Returns orchestrator.ErrTenantNotFound if the tenant is unknown or inactive.
	Resolve(ctx context.Context, id orchestrator.TenantID) (orchestrator.Tenant, orchestrator.ConnectionTarget, error)
}
