package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/notify"
)

// ScheduleMigration implements orchestrator.Orchestrator.
//
// The record is created pending, then the trigger is registered and its job
// id stored. If either step fails the record is cancelled, so no pending
// record is left without a trigger.
func (c *Coordinator) ScheduleMigration(ctx context.Context, req orchestrator.ScheduleRequest) (orchestrator.ScheduledMigration, error) {
	settings, err := c.settings(ctx)
	if err != nil {
		return orchestrator.ScheduledMigration{}, err
	}
	if !settings.EnableScheduledMigrations {
		return orchestrator.ScheduledMigration{}, orchestrator.ErrSchedulingDisabled
	}

	t, _, err := c.config.Tenants.Resolve(ctx, req.TenantID)
	if err != nil {
		return orchestrator.ScheduledMigration{}, err
	}
	if _, err := resolveModules(t, req.Module, settings); err != nil {
		return orchestrator.ScheduledMigration{}, err
	}

	now := c.config.Now()
	at := req.ScheduledTime
	if at.IsZero() {
		if at, err = settings.NextDefaultScheduleTime(now); err != nil {
			return orchestrator.ScheduledMigration{}, err
		}
	} else if !at.After(now) {
		return orchestrator.ScheduledMigration{}, fmt.Errorf("%w: %s", orchestrator.ErrScheduledInPast, at.UTC().Format("2006-01-02T15:04:05Z"))
	}

	m, err := c.config.Store.CreateSchedule(ctx, orchestrator.ScheduledMigration{
		TenantID:      req.TenantID,
		ScheduledTime: at.UTC(),
		Migration:     req.Migration,
		Module:        req.Module,
		Status:        orchestrator.ScheduleStatusPending,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now.UTC(),
	})
	if err != nil {
		return orchestrator.ScheduledMigration{}, fmt.Errorf("failed to create scheduled migration: %w", err)
	}
	c.config.Metrics.IncScheduleTransitions(string(orchestrator.ScheduleStatusPending))

	jobID, err := c.config.Scheduler.ScheduleAt(ctx, m.ScheduledTime, m.ScheduleID)
	if err != nil {
		c.abandon(ctx, m.ScheduleID, "")
		return orchestrator.ScheduledMigration{}, fmt.Errorf("failed to register scheduled migration: %w", err)
	}

	if err := c.config.Store.SetJobID(ctx, m.ScheduleID, jobID); err != nil {
		c.abandon(ctx, m.ScheduleID, jobID)
		return orchestrator.ScheduledMigration{}, fmt.Errorf("failed to store job id: %w", err)
	}
	m.ExternalJobID = jobID

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "migration scheduled", "scheduleID", m.ScheduleID, "tenantID", m.TenantID, "at", m.ScheduledTime, "jobID", jobID)
	}
	return m, nil
}

// abandon cancels a schedule whose trigger could not be set up.
func (c *Coordinator) abandon(ctx context.Context, scheduleID, jobID string) {
	ctx = context.WithoutCancel(ctx)

	if jobID != "" {
		if _, err := c.config.Scheduler.Cancel(ctx, jobID); err != nil && c.config.Logger != nil {
			c.config.Logger.Error(ctx, "failed to cancel orphaned job", "scheduleID", scheduleID, "jobID", jobID, "error", err)
		}
	}

	_, err := c.config.Store.TransitionSchedule(ctx, scheduleID, orchestrator.ScheduleStatusPending, orchestrator.ScheduleStatusCancelled, "", c.config.Now())
	if err != nil {
		if c.config.Logger != nil {
			c.config.Logger.Error(ctx, "failed to cancel unscheduled migration", "scheduleID", scheduleID, "error", err)
		}
		return
	}
	c.config.Metrics.IncScheduleTransitions(string(orchestrator.ScheduleStatusCancelled))
}

// CancelScheduledMigration implements orchestrator.Orchestrator.
// The status transition happens first; a trigger that fires afterwards
// finds the record cancelled and does nothing.
func (c *Coordinator) CancelScheduledMigration(ctx context.Context, scheduleID string) error {
	m, err := c.config.Store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if m.Status != orchestrator.ScheduleStatusPending {
		return fmt.Errorf("%w: schedule %s is %s", orchestrator.ErrInvalidTransition, scheduleID, m.Status)
	}

	if _, err := c.config.Store.TransitionSchedule(ctx, scheduleID, orchestrator.ScheduleStatusPending, orchestrator.ScheduleStatusCancelled, "", c.config.Now()); err != nil {
		return err
	}
	c.config.Metrics.IncScheduleTransitions(string(orchestrator.ScheduleStatusCancelled))

	if m.ExternalJobID != "" {
		if _, err := c.config.Scheduler.Cancel(ctx, m.ExternalJobID); err != nil && c.config.Logger != nil {
			c.config.Logger.Error(ctx, "failed to cancel scheduled job", "scheduleID", scheduleID, "jobID", m.ExternalJobID, "error", err)
		}
	}

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "scheduled migration cancelled", "scheduleID", scheduleID, "tenantID", m.TenantID)
	}
	return nil
}

// ExecuteScheduledMigration implements orchestrator.Orchestrator.
//
// A trigger for a record that is no longer pending is ignored. Otherwise the
// record moves to running, the migration runs under the configured timeout
// and the record ends completed or failed. Lock contention is a failure.
func (c *Coordinator) ExecuteScheduledMigration(ctx context.Context, scheduleID string) error {
	m, err := c.config.Store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if m.Status != orchestrator.ScheduleStatusPending {
		if c.config.Logger != nil {
			c.config.Logger.Info(ctx, "ignoring trigger for non-pending schedule", "scheduleID", scheduleID, "status", m.Status)
		}
		return nil
	}

	m, err = c.config.Store.TransitionSchedule(ctx, scheduleID, orchestrator.ScheduleStatusPending, orchestrator.ScheduleStatusRunning, "", c.config.Now())
	if errors.Is(err, orchestrator.ErrInvalidTransition) {
		if c.config.Logger != nil {
			c.config.Logger.Info(ctx, "schedule changed before it could start", "scheduleID", scheduleID)
		}
		return nil
	}
	if err != nil {
		return err
	}
	c.config.Metrics.IncScheduleTransitions(string(orchestrator.ScheduleStatusRunning))

	result, runErr := c.runScheduled(ctx, m)

	final := orchestrator.ScheduleStatusCompleted
	errMsg := ""
	if runErr != nil {
		final = orchestrator.ScheduleStatusFailed
		errMsg = runErr.Error()
	}

	if _, err := c.config.Store.TransitionSchedule(context.WithoutCancel(ctx), scheduleID, orchestrator.ScheduleStatusRunning, final, errMsg, c.config.Now()); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to finish scheduled migration: %w", err))
	}
	c.config.Metrics.IncScheduleTransitions(string(final))

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "scheduled migration finished", "scheduleID", scheduleID, "tenantID", m.TenantID, "status", final)
	}

	if settings, err := c.settings(ctx); err == nil {
		event := notify.Event{
			Kind:       notify.KindCompleted,
			TenantID:   m.TenantID,
			ScheduleID: scheduleID,
			Applied:    result.Applied(),
		}
		if runErr != nil {
			event.Kind = notify.KindFailed
			event.Error = errMsg
		}
		c.notify(ctx, settings, event)
	}

	return runErr
}

func (c *Coordinator) runScheduled(ctx context.Context, m orchestrator.ScheduledMigration) (orchestrator.ApplyResult, error) {
	settings, err := c.settings(ctx)
	if err != nil {
		return orchestrator.ApplyResult{TenantID: m.TenantID}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, settings.MigrationTimeout())
	defer cancel()

	result, err := c.applyToTenant(runCtx, settings, m.TenantID, m.Module)
	if err != nil || m.Migration.IsAll() {
		return result, err
	}

	return result, c.verifyApplied(runCtx, m.TenantID, result, m.Migration.Name())
}

// verifyApplied checks that a requested migration is no longer pending in
// any of the modules that ran.
func (c *Coordinator) verifyApplied(ctx context.Context, tenantID orchestrator.TenantID, result orchestrator.ApplyResult, migration string) error {
	if slices.Contains(result.Applied(), migration) {
		return nil
	}

	_, target, err := c.config.Tenants.Resolve(ctx, tenantID)
	if err != nil {
		return err
	}

	for _, mr := range result.Modules {
		pending, err := c.config.Engine.PendingFor(ctx, target, mr.Module)
		if err != nil {
			return fmt.Errorf("failed to verify migration %s: %w", migration, err)
		}
		if slices.Contains(pending, migration) {
			return &orchestrator.EngineError{
				TenantID:  tenantID,
				Module:    mr.Module,
				Migration: migration,
				Operation: orchestrator.OperationApply,
				Err:       errors.New("migration is still pending after apply"),
			}
		}
	}
	return nil
}

// GetScheduledMigrations implements orchestrator.Orchestrator.
func (c *Coordinator) GetScheduledMigrations(ctx context.Context) ([]orchestrator.ScheduledMigration, error) {
	schedules, err := c.config.Store.ListActiveSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled migrations: %w", err)
	}
	return schedules, nil
}

// ResumeOverdueSchedules registers a fresh trigger, due now, for every pending
// schedule whose time passed more than grace ago. Such a schedule lost its
// trigger, for example when a worker died after claiming it. A trigger that
// still fires later finds the record no longer pending and does nothing.
// Returns the number of schedules resumed.
func (c *Coordinator) ResumeOverdueSchedules(ctx context.Context, grace time.Duration) (int, error) {
	schedules, err := c.config.Store.ListActiveSchedules(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list scheduled migrations: %w", err)
	}

	now := c.config.Now()
	cutoff := now.Add(-grace)
	resumed := 0
	for _, m := range schedules {
		if m.Status != orchestrator.ScheduleStatusPending || !m.ScheduledTime.Before(cutoff) {
			continue
		}

		jobID, err := c.config.Scheduler.ScheduleAt(ctx, now, m.ScheduleID)
		if err != nil {
			return resumed, fmt.Errorf("failed to register overdue schedule %s: %w", m.ScheduleID, err)
		}
		if err := c.config.Store.SetJobID(ctx, m.ScheduleID, jobID); err != nil {
			return resumed, fmt.Errorf("failed to store job id: %w", err)
		}
		resumed++

		if c.config.Logger != nil {
			c.config.Logger.Info(ctx, "overdue schedule resumed", "scheduleID", m.ScheduleID, "tenantID", m.TenantID, "scheduledTime", m.ScheduledTime, "jobID", jobID)
		}
	}
	return resumed, nil
}
