package orchestrator

import "context"

// Orchestrator applies, rolls back and schedules schema migrations across a
// fleet of tenant databases. At most one apply or rollback runs against a
// tenant at any time; a concurrent request fails fast with ErrAlreadyRunning.
type Orchestrator interface {
	// ApplyToTenant applies every pending migration of the modules selected by
	// module to a single tenant. One history record is written per module.
	//
	// Returns:
	// - ErrTenantNotFound if the tenant is unknown or inactive
	// - ErrModuleNotEnabled if a named module is not enabled for the tenant
	// - ErrAlreadyRunning if the tenant is locked by another migration
	// - an *EngineError if any module failed; the result is still complete
	ApplyToTenant(ctx context.Context, tenantID TenantID, module Scope) (ApplyResult, error)

	// ApplyToAllTenants applies all default modules to every active tenant,
	// bounded by Settings.MaxConcurrency. A tenant failure never aborts the
	// run. The returned error is non-nil only when the tenant list itself
	// could not be read; use FleetReport.Err for per-tenant failures.
	ApplyToAllTenants(ctx context.Context) (FleetReport, error)

	// RollbackMigration reverts a single applied migration of one module.
	RollbackMigration(ctx context.Context, tenantID TenantID, migration, module string) (RollbackResult, error)

	// ScheduleMigration records a pending migration and registers its trigger.
	ScheduleMigration(ctx context.Context, req ScheduleRequest) (ScheduledMigration, error)

	// CancelScheduledMigration cancels a pending scheduled migration.
	// Returns ErrScheduleNotFound or ErrInvalidTransition when not pending.
	CancelScheduledMigration(ctx context.Context, scheduleID string) error

	// ExecuteScheduledMigration runs a scheduled migration. It is the callback
	// invoked by the job scheduler when the trigger fires.
	ExecuteScheduledMigration(ctx context.Context, scheduleID string) error

	// GetMigrationHistory returns a tenant's history, newest first.
	GetMigrationHistory(ctx context.Context, tenantID TenantID) ([]HistoryRecord, error)

	// GetPendingMigrations returns the pending migrations of every active tenant.
	GetPendingMigrations(ctx context.Context) ([]TenantMigrationStatus, error)

	// GetScheduledMigrations returns every non-terminal scheduled migration,
	// ordered by scheduled time.
	GetScheduledMigrations(ctx context.Context) ([]ScheduledMigration, error)

	// GetMigrationScriptPreview returns a migration's script without running it.
	GetMigrationScriptPreview(ctx context.Context, tenantID TenantID, migration, module string) (ScriptPreview, error)

	// GetMigrationSettings returns the stored settings, or DefaultSettings.
	GetMigrationSettings(ctx context.Context) (Settings, error)

	// UpdateMigrationSettings validates and stores new settings.
	UpdateMigrationSettings(ctx context.Context, settings Settings) (Settings, error)

	// OnTenantRegistered applies all default modules to a newly registered
	// tenant when Settings.AutoApplyMigrations is enabled.
	OnTenantRegistered(ctx context.Context, tenantID TenantID) error
}
