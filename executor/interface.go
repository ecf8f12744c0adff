package executor

import (
	"context"

	"github.com/getpup/migration-orchestrator"
)

// Runner executes engine calls for one tenant and records their history.
// This interface allows for mock implementations in tests.
type Runner interface {
	// ApplyModules applies every module in order. A failing module does not
	// stop the remaining ones. Returns one result per module and the first
	// failure.
	ApplyModules(ctx context.Context, tenantID orchestrator.TenantID, target orchestrator.ConnectionTarget, modules []string) ([]orchestrator.ModuleResult, error)

	// Revert undoes one migration and returns the migration current afterwards.
	Revert(ctx context.Context, tenantID orchestrator.TenantID, target orchestrator.ConnectionTarget, module, migration string) (string, error)
}
