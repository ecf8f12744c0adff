package orchestrator

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by an orchestrator operation matches
// exactly one of these with errors.Is, or none for internal failures.
var (
	// ErrNotFound indicates the tenant, schedule or migration does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the operation lost a race or hit an illegal state.
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates the request itself is invalid.
	ErrValidation = errors.New("validation failed")

	// ErrEngineFailure indicates the migration engine rejected or failed the work.
	ErrEngineFailure = errors.New("engine failure")

	// ErrPartialFailure indicates a fleet-wide operation failed for some tenants.
	ErrPartialFailure = errors.New("partial failure")
)

var (
	// ErrTenantNotFound indicates the tenant is unknown or inactive.
	ErrTenantNotFound = fmt.Errorf("tenant %w", ErrNotFound)

	// ErrScheduleNotFound indicates no scheduled migration has the given id.
	ErrScheduleNotFound = fmt.Errorf("scheduled migration %w", ErrNotFound)

	// ErrAlreadyRunning indicates another migration holds the tenant's lock.
	ErrAlreadyRunning = fmt.Errorf("%w: a migration is already running for this tenant", ErrConflict)

	// ErrInvalidTransition indicates a scheduled migration is not in the state
	// the requested transition starts from.
	ErrInvalidTransition = fmt.Errorf("%w: invalid schedule status transition", ErrConflict)

	// ErrScheduledInPast indicates the requested trigger time has already passed.
	ErrScheduledInPast = fmt.Errorf("%w: scheduled time is in the past", ErrValidation)

	// ErrSchedulingDisabled indicates scheduled migrations are turned off in settings.
	ErrSchedulingDisabled = fmt.Errorf("%w: scheduled migrations are disabled", ErrValidation)

	// ErrModuleNotEnabled indicates the tenant is not subscribed to the named module.
	ErrModuleNotEnabled = fmt.Errorf("%w: module is not enabled for tenant", ErrValidation)

	// ErrInvalidSettings indicates a settings update violates its constraints.
	ErrInvalidSettings = fmt.Errorf("%w: invalid migration settings", ErrValidation)
)

// EngineError describes a failed migration engine call.
// It matches ErrEngineFailure and the underlying engine error.
type EngineError struct {
	TenantID  TenantID
	Module    string
	Migration string
	Operation Operation
	Err       error
}

func (e *EngineError) Error() string {
	if e.Migration != "" {
		return fmt.Sprintf("%s %s/%s for tenant %s: %v", e.Operation, e.Module, e.Migration, e.TenantID, e.Err)
	}
	return fmt.Sprintf("%s %s for tenant %s: %v", e.Operation, e.Module, e.TenantID, e.Err)
}

func (e *EngineError) Unwrap() []error {
	return []error{ErrEngineFailure, e.Err}
}

// ErrorCode is the tagged error code exposed by administrative surfaces.
type ErrorCode string

const (
	CodeOK             ErrorCode = "OK"
	CodeNotFound       ErrorCode = "NotFound"
	CodeConflict       ErrorCode = "Conflict"
	CodeValidation     ErrorCode = "Validation"
	CodeEngineFailure  ErrorCode = "EngineFailure"
	CodePartialFailure ErrorCode = "PartialFailure"
	CodeInternal       ErrorCode = "Internal"
)

// CodeOf maps err to its ErrorCode.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrEngineFailure):
		return CodeEngineFailure
	case errors.Is(err, ErrPartialFailure):
		return CodePartialFailure
	default:
		return CodeInternal
	}
}
