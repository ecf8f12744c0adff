package orchestrator_test

import (
	"context"
	"fmt"
	"log"

	rootpkg "github.com/getpup/migration-orchestrator"
	enginememory "github.com/getpup/migration-orchestrator/engine/memory"
	"github.com/getpup/migration-orchestrator/pkg/orchestrator"
	"github.com/getpup/migration-orchestrator/tenant"
)

// Example_inMemory wires an orchestrator entirely in memory and migrates
// two tenants.
func Example_inMemory() {
	tenants := tenant.NewStatic(
		tenant.Entry{
			Tenant: rootpkg.Tenant{ID: "acme", Name: "Acme", Active: true},
			Target: rootpkg.ConnectionTarget{Database: "acme"},
		},
		tenant.Entry{
			Tenant: rootpkg.Tenant{ID: "globex", Name: "Globex", Active: true},
			Target: rootpkg.ConnectionTarget{Database: "globex"},
		},
	)

	engine := enginememory.New().
		Add("core", "1_accounts", "CREATE TABLE accounts (id BIGINT);").
		Add("core", "2_invoices", "CREATE TABLE invoices (id BIGINT);")

	svc, err := orchestrator.New(
		orchestrator.WithTenantDirectory(tenants),
		orchestrator.WithEngine(engine),
		orchestrator.WithMetricsEnabled(false),
	)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	report, err := svc.ApplyToAllTenants(context.Background())
	if err != nil {
		log.Fatalf("Failed to migrate fleet: %v", err)
	}

	for _, row := range report.Tenants {
		fmt.Println(row.TenantID, row.Status, row.Applied)
	}
	// Output:
	// acme completed [1_accounts 2_invoices]
	// globex completed [1_accounts 2_invoices]
}
