package orchestrator

import (
	"fmt"
	"strings"
	"time"
)

// Tenant describes a tenant as reported by the tenant directory.
type Tenant struct {
	ID   TenantID
	Name string
	Code string

	// Modules lists the modules the tenant subscribes to.
	// An empty list means the tenant has access to every module.
	Modules []string

	Active bool
}

// HasModule reports whether the tenant subscribes to module.
func (t Tenant) HasModule(module string) bool {
	if len(t.Modules) == 0 {
		return true
	}
	for _, m := range t.Modules {
		if strings.EqualFold(m, module) {
			return true
		}
	}
	return false
}

// ConnectionTarget is how the migration engine reaches a tenant's database.
// It is resolved on demand and never persisted by the orchestrator.
type ConnectionTarget struct {
	DSN      string
	Database string
}

// ModuleResult is the outcome of migrating one module of one tenant.
type ModuleResult struct {
	Module  string
	Applied []string
	Error   string
}

// ApplyResult is the outcome of ApplyToTenant.
type ApplyResult struct {
	TenantID TenantID
	Modules  []ModuleResult
}

// Applied returns every migration applied across all modules, in order.
func (r ApplyResult) Applied() []string {
	var applied []string
	for _, m := range r.Modules {
		applied = append(applied, m.Applied...)
	}
	return applied
}

// TenantReport is one row of a FleetReport.
type TenantReport struct {
	TenantID     TenantID
	TenantName   string
	Status       ScheduleStatus
	Applied      []string
	ErrorCode    ErrorCode
	ErrorMessage string
}

// FleetReport is the outcome of ApplyToAllTenants. It always contains one
// row per enumerated tenant, whatever the individual outcomes.
type FleetReport struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Tenants     []TenantReport
}

// Failed returns the rows whose status is failed.
func (r FleetReport) Failed() []TenantReport {
	var failed []TenantReport
	for _, t := range r.Tenants {
		if t.Status == ScheduleStatusFailed {
			failed = append(failed, t)
		}
	}
	return failed
}

// Err returns an error wrapping ErrPartialFailure when any tenant failed.
func (r FleetReport) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d tenants failed", ErrPartialFailure, len(failed), len(r.Tenants))
}

// RollbackResult is the outcome of RollbackMigration.
type RollbackResult struct {
	TenantID  TenantID
	Module    string
	Migration string

	// PreviousMigration is the migration that is current after the rollback.
	// Empty when the module has no applied migrations left.
	PreviousMigration string
}

// ModuleMigrations lists the pending migrations of one module.
type ModuleMigrations struct {
	Module     string
	Migrations []string
}

// TenantMigrationStatus is the pending-migration view of one tenant.
type TenantMigrationStatus struct {
	TenantID   TenantID
	TenantName string
	TenantCode string
	Pending    []ModuleMigrations
	HasPending bool

	// Error is set when the status could not be computed for this tenant.
	Error string
}

// ScriptPreview is the read-only view of a migration's script.
type ScriptPreview struct {
	TenantID          TenantID
	Module            string
	Migration         string
	Script            string
	AffectedTables    []string
	EstimatedDuration time.Duration
}
