package store

import (
	"fmt"

	"github.com/getpup/migration-orchestrator"
)

var (
	// ErrScheduleExists indicates a scheduled migration with the same id already exists.
	ErrScheduleExists = fmt.Errorf("%w: scheduled migration already exists", orchestrator.ErrConflict)
)

// CheckTransition returns orchestrator.ErrInvalidTransition when the stored
// status does not match from, or when from -> to is not a legal transition.
// Store implementations share it so that they agree on the state machine.
func CheckTransition(current, from, to orchestrator.ScheduleStatus) error {
	if current != from {
		return fmt.Errorf("%w: status is %s, expected %s", orchestrator.ErrInvalidTransition, current, from)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", orchestrator.ErrInvalidTransition, from, to)
	}
	return nil
}
