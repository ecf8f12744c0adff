package orchestrator

import "time"

// TenantID identifies a tenant whose database is managed independently.
type TenantID string

// Scope selects either every candidate (All) or exactly one named candidate.
// It is used for both module and migration selection so that "everything"
// is always an explicit choice rather than an empty string.
type Scope struct {
	name string
	all  bool
}

// All returns a Scope that selects every candidate.
func All() Scope {
	return Scope{all: true}
}

// Named returns a Scope that selects exactly one candidate.
// An empty name yields the All scope.
func Named(name string) Scope {
	if name == "" {
		return All()
	}
	return Scope{name: name}
}

// IsAll reports whether the scope selects every candidate.
// The zero Scope behaves as All.
func (s Scope) IsAll() bool {
	return s.all || s.name == ""
}

// Name returns the selected name, or an empty string for the All scope.
func (s Scope) Name() string {
	if s.IsAll() {
		return ""
	}
	return s.name
}

// String renders the scope for logs and persistence ("*" for All).
func (s Scope) String() string {
	if s.IsAll() {
		return "*"
	}
	return s.name
}

// MarshalText encodes the scope as its String form.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a scope written by MarshalText.
func (s *Scope) UnmarshalText(text []byte) error {
	*s = ParseScope(string(text))
	return nil
}

// ParseScope is the inverse of Scope.String.
func ParseScope(value string) Scope {
	if value == "" || value == "*" {
		return All()
	}
	return Named(value)
}

// ScheduleStatus represents the lifecycle state of a scheduled migration.
type ScheduleStatus string

const (
	// ScheduleStatusPending indicates the migration is waiting for its trigger time.
	ScheduleStatusPending ScheduleStatus = "pending"

	// ScheduleStatusRunning indicates the trigger fired and the migration is executing.
	ScheduleStatusRunning ScheduleStatus = "running"

	// ScheduleStatusCompleted indicates the migration ran successfully.
	ScheduleStatusCompleted ScheduleStatus = "completed"

	// ScheduleStatusFailed indicates the migration ran and failed.
	ScheduleStatusFailed ScheduleStatus = "failed"

	// ScheduleStatusCancelled indicates the migration was cancelled before it fired.
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s ScheduleStatus) IsTerminal() bool {
	switch s {
	case ScheduleStatusCompleted, ScheduleStatusFailed, ScheduleStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is a legal transition:
// pending -> running | cancelled, running -> completed | failed.
func (s ScheduleStatus) CanTransitionTo(next ScheduleStatus) bool {
	switch s {
	case ScheduleStatusPending:
		return next == ScheduleStatusRunning || next == ScheduleStatusCancelled
	case ScheduleStatusRunning:
		return next == ScheduleStatusCompleted || next == ScheduleStatusFailed
	default:
		return false
	}
}

// ScheduledMigration is a deferred request to apply migrations to one tenant.
type ScheduledMigration struct {
	// ScheduleID is the unique identifier for this record (UUID).
	ScheduleID string

	// TenantID is the tenant the migration targets.
	TenantID TenantID

	// ScheduledTime is when the migration should fire (UTC).
	ScheduledTime time.Time

	// Migration selects the migration to apply, or All for everything pending.
	Migration Scope

	// Module selects the module to migrate, or All for the tenant's default modules.
	Module Scope

	// Status is the current lifecycle state.
	Status ScheduleStatus

	// CreatedBy identifies the actor that requested the schedule.
	CreatedBy string

	// CreatedAt is when the record was created.
	CreatedAt time.Time

	// ExecutedAt is set once, on the transition to running.
	ExecutedAt *time.Time

	// Error holds the failure summary when Status is failed.
	Error string

	// ExternalJobID is the job scheduler's handle for the trigger.
	// It is present while the record is pending.
	ExternalJobID string
}

// Operation distinguishes the kind of engine call a history record describes.
type Operation string

const (
	// OperationApply records an engine Apply call.
	OperationApply Operation = "apply"

	// OperationRollback records an engine Revert call.
	OperationRollback Operation = "rollback"
)

// Outcome is the result of a single engine call.
type Outcome string

const (
	// OutcomeSuccess indicates the engine call completed without error.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailure indicates the engine call returned an error.
	OutcomeFailure Outcome = "failure"
)

// HistoryRecord is an immutable audit entry for one engine invocation.
type HistoryRecord struct {
	ID            string
	TenantID      TenantID
	ModuleName    string
	MigrationName string
	Operation     Operation
	AppliedAt     time.Time
	Outcome       Outcome
	ErrorMessage  string
	DurationMs    int64
}

// ScheduleRequest holds the parameters of a ScheduleMigration call.
type ScheduleRequest struct {
	TenantID TenantID

	// ScheduledTime is when to fire. The zero value selects the next
	// occurrence of Settings.DefaultScheduleTime.
	ScheduledTime time.Time

	Migration Scope
	Module    Scope
	CreatedBy string
}
