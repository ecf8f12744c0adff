package store

import (
	"context"
	"time"

	"github.com/getpup/migration-orchestrator"
)

// ScheduleStore persists scheduled migrations.
// Implementations must be safe for concurrent access from multiple processes.
type ScheduleStore interface {
	// CreateSchedule stores a new scheduled migration.
	// ScheduleID and CreatedAt are generated when empty.
	// Returns ErrScheduleExists if the id is already taken.
	CreateSchedule(ctx context.Context, m orchestrator.ScheduledMigration) (orchestrator.ScheduledMigration, error)

	// GetSchedule returns a scheduled migration by id.
	// Returns orchestrator.ErrScheduleNotFound if it does not exist.
	GetSchedule(ctx context.Context, scheduleID string) (orchestrator.ScheduledMigration, error)

	// SetJobID records the job scheduler's handle for a pending migration.
	// Returns orchestrator.ErrScheduleNotFound if it does not exist.
	SetJobID(ctx context.Context, scheduleID, jobID string) error

	// TransitionSchedule atomically moves a scheduled migration from one status
	// to another. ExecutedAt is set to at on the first transition to running
	// and is never changed afterwards. errMsg is stored only for the failed
	// status.
	//
	// Returns:
	// - orchestrator.ErrScheduleNotFound if it does not exist
	// - orchestrator.ErrInvalidTransition if the current status is not from,
	//   or from -> to is not a legal transition
	TransitionSchedule(ctx context.Context, scheduleID string, from, to orchestrator.ScheduleStatus, errMsg string, at time.Time) (orchestrator.ScheduledMigration, error)

	// ListActiveSchedules returns every pending or running scheduled migration
	// ordered by scheduled time ascending.
	ListActiveSchedules(ctx context.Context) ([]orchestrator.ScheduledMigration, error)
}

// HistoryStore persists the append-only migration audit trail.
type HistoryStore interface {
	// AppendHistory stores a history record. ID and AppliedAt are generated
	// when empty. Records are never updated or deleted.
	AppendHistory(ctx context.Context, rec orchestrator.HistoryRecord) (orchestrator.HistoryRecord, error)

	// ListHistory returns a tenant's records ordered by AppliedAt descending.
	// Returns an empty slice if the tenant has no history.
	ListHistory(ctx context.Context, tenantID orchestrator.TenantID) ([]orchestrator.HistoryRecord, error)
}

// SettingsStore persists the singleton migration settings.
type SettingsStore interface {
	// GetSettings returns the stored settings, or orchestrator.DefaultSettings
	// if none have been saved.
	GetSettings(ctx context.Context) (orchestrator.Settings, error)

	// SaveSettings replaces the stored settings. Last write wins.
	SaveSettings(ctx context.Context, settings orchestrator.Settings) error
}

// Store combines every persistence concern of the orchestrator.
type Store interface {
	ScheduleStore
	HistoryStore
	SettingsStore
}
