package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/engine"
	"github.com/getpup/migration-orchestrator/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scheduleRequest(tenantID orchestrator.TenantID) orchestrator.ScheduleRequest {
	return orchestrator.ScheduleRequest{
		TenantID:      tenantID,
		ScheduledTime: testNow.Add(time.Hour),
		Migration:     orchestrator.All(),
		Module:        orchestrator.Named("core"),
		CreatedBy:     "ops@example.com",
	}
}

func TestScheduleMigration_CreatesPendingRecordWithTrigger(t *testing.T) {
	f := newFixture(t, "t1")
	ctx := context.Background()

	m, err := f.c.ScheduleMigration(ctx, scheduleRequest("t1"))
	require.NoError(t, err)

	assert.NotEmpty(t, m.ScheduleID)
	assert.Equal(t, orchestrator.ScheduleStatusPending, m.Status)
	assert.Equal(t, "job-1", m.ExternalJobID)
	assert.Equal(t, testNow, m.CreatedAt)
	assert.Nil(t, m.ExecutedAt)

	require.Len(t, f.scheduler.ScheduleAtCalls, 1)
	assert.Equal(t, testNow.Add(time.Hour), f.scheduler.ScheduleAtCalls[0].At)
	assert.Equal(t, m.ScheduleID, f.scheduler.ScheduleAtCalls[0].Payload)

	stored, err := f.store.GetSchedule(ctx, m.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, "job-1", stored.ExternalJobID)

	active, err := f.c.GetScheduledMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, m.ScheduleID, active[0].ScheduleID)

	assert.Empty(t, f.engine.Applied("t1", "core"), "nothing runs until the trigger fires")
}

func TestScheduleMigration_DefaultTime(t *testing.T) {
	f := newFixture(t, "t1")
	req := scheduleRequest("t1")
	req.ScheduledTime = time.Time{}

	m, err := f.c.ScheduleMigration(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), m.ScheduledTime)
}

func TestScheduleMigration_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *fixture, req *orchestrator.ScheduleRequest)
		wantErr error
	}{
		{
			name:    "time in the past",
			mutate:  func(f *fixture, req *orchestrator.ScheduleRequest) { req.ScheduledTime = testNow.Add(-time.Minute) },
			wantErr: orchestrator.ErrScheduledInPast,
		},
		{
			name:    "time equal to now",
			mutate:  func(f *fixture, req *orchestrator.ScheduleRequest) { req.ScheduledTime = testNow },
			wantErr: orchestrator.ErrScheduledInPast,
		},
		{
			name: "scheduling disabled",
			mutate: func(f *fixture, req *orchestrator.ScheduleRequest) {
				settings := orchestrator.DefaultSettings()
				settings.EnableScheduledMigrations = false
				_ = f.store.SaveSettings(context.Background(), settings)
			},
			wantErr: orchestrator.ErrSchedulingDisabled,
		},
		{
			name:    "unknown tenant",
			mutate:  func(f *fixture, req *orchestrator.ScheduleRequest) { req.TenantID = "ghost" },
			wantErr: orchestrator.ErrTenantNotFound,
		},
		{
			name: "module not enabled",
			mutate: func(f *fixture, req *orchestrator.ScheduleRequest) {
				f.addTenant("t2", "billing")
				req.TenantID = "t2"
			},
			wantErr: orchestrator.ErrModuleNotEnabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "t1")
			req := scheduleRequest("t1")
			tt.mutate(f, &req)

			_, err := f.c.ScheduleMigration(context.Background(), req)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.scheduler.ScheduleAtCalls)
			active, listErr := f.c.GetScheduledMigrations(context.Background())
			require.NoError(t, listErr)
			assert.Empty(t, active)
		})
	}
}

func TestScheduleMigration_TriggerFailureCancelsRecord(t *testing.T) {
	f := newFixture(t, "t1")
	f.scheduler.ScheduleAtFunc = func(ctx context.Context, at time.Time, payload string) (string, error) {
		return "", errors.New("redis unavailable")
	}
	ctx := context.Background()

	_, err := f.c.ScheduleMigration(ctx, scheduleRequest("t1"))
	assert.ErrorContains(t, err, "redis unavailable")

	active, err := f.c.GetScheduledMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, active, "no pending record is left without a trigger")
}

func TestCancelScheduledMigration(t *testing.T) {
	f := newFixture(t, "t1")
	ctx := context.Background()
	m, err := f.c.ScheduleMigration(ctx, scheduleRequest("t1"))
	require.NoError(t, err)

	require.NoError(t, f.c.CancelScheduledMigration(ctx, m.ScheduleID))

	stored, err := f.store.GetSchedule(ctx, m.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ScheduleStatusCancelled, stored.Status)
	assert.Equal(t, []string{"job-1"}, f.scheduler.CancelCalls)
	assert.Equal(t, 0, f.scheduler.JobCount())

	err = f.c.CancelScheduledMigration(ctx, m.ScheduleID)
	assert.ErrorIs(t, err, orchestrator.ErrInvalidTransition)
	assert.Equal(t, orchestrator.CodeConflict, orchestrator.CodeOf(err))

	err = f.c.CancelScheduledMigration(ctx, "no-such-schedule")
	assert.Equal(t, orchestrator.CodeNotFound, orchestrator.CodeOf(err))
}

func TestCancelScheduledMigration_OnlyPendingCanBeCancelled(t *testing.T) {
	tests := []struct {
		name   string
		status orchestrator.ScheduleStatus
		// reach drives the schedule to status and calls cancel while it is there.
		reach func(t *testing.T, f *fixture, scheduleID string, cancel func())
	}{
		{
			name:   "completed",
			status: orchestrator.ScheduleStatusCompleted,
			reach: func(t *testing.T, f *fixture, scheduleID string, cancel func()) {
				require.NoError(t, f.c.ExecuteScheduledMigration(context.Background(), scheduleID))
				cancel()
			},
		},
		{
			name:   "failed",
			status: orchestrator.ScheduleStatusFailed,
			reach: func(t *testing.T, f *fixture, scheduleID string, cancel func()) {
				f.engine.Hook = func(ctx context.Context, target orchestrator.ConnectionTarget, module string) error {
					return errors.New("relation \"accounts\" already exists")
				}
				require.Error(t, f.c.ExecuteScheduledMigration(context.Background(), scheduleID))
				cancel()
			},
		},
		{
			name:   "cancelled",
			status: orchestrator.ScheduleStatusCancelled,
			reach: func(t *testing.T, f *fixture, scheduleID string, cancel func()) {
				require.NoError(t, f.c.CancelScheduledMigration(context.Background(), scheduleID))
				cancel()
			},
		},
		{
			name:   "running",
			status: orchestrator.ScheduleStatusRunning,
			reach: func(t *testing.T, f *fixture, scheduleID string, cancel func()) {
				f.engine.Hook = func(ctx context.Context, target orchestrator.ConnectionTarget, module string) error {
					cancel()
					return nil
				}
				require.NoError(t, f.c.ExecuteScheduledMigration(context.Background(), scheduleID))

				stored, err := f.store.GetSchedule(context.Background(), scheduleID)
				require.NoError(t, err)
				assert.Equal(t, orchestrator.ScheduleStatusCompleted, stored.Status, "the running migration finishes")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "t1")
			ctx := context.Background()
			m, err := f.c.ScheduleMigration(ctx, scheduleRequest("t1"))
			require.NoError(t, err)

			attempts := 0
			tt.reach(t, f, m.ScheduleID, func() {
				attempts++
				before, err := f.store.GetSchedule(ctx, m.ScheduleID)
				require.NoError(t, err)
				require.Equal(t, tt.status, before.Status)
				jobCancels := len(f.scheduler.CancelCalls)

				err = f.c.CancelScheduledMigration(ctx, m.ScheduleID)
				assert.ErrorIs(t, err, orchestrator.ErrInvalidTransition)
				assert.Equal(t, orchestrator.CodeConflict, orchestrator.CodeOf(err))

				after, err := f.store.GetSchedule(ctx, m.ScheduleID)
				require.NoError(t, err)
				assert.Equal(t, before, after, "a rejected cancel leaves the record untouched")
				assert.Len(t, f.scheduler.CancelCalls, jobCancels, "a rejected cancel leaves the trigger alone")
			})
			assert.Equal(t, 1, attempts)
		})
	}
}

func TestCancelScheduledMigration_SchedulerErrorIsNotFatal(t *testing.T) {
	f := newFixture(t, "t1")
	f.scheduler.CancelFunc = func(ctx context.Context, jobID string) (bool, error) {
		return false, errors.New("redis unavailable")
	}
	ctx := context.Background()
	m, err := f.c.ScheduleMigration(ctx, scheduleRequest("t1"))
	require.NoError(t, err)

	require.NoError(t, f.c.CancelScheduledMigration(ctx, m.ScheduleID))

	require.NoError(t, f.c.ExecuteScheduledMigration(ctx, m.ScheduleID), "a late trigger is ignored")
	assert.Empty(t, f.engine.Applied("t1", "core"))
}

func TestExecuteScheduledMigration_Completes(t *testing.T) {
	f := newFixture(t, "t1")
	ctx := context.Background()
	m, err := f.c.ScheduleMigration(ctx, scheduleRequest("t1"))
	require.NoError(t, err)

	require.NoError(t, f.c.ExecuteScheduledMigration(ctx, m.ScheduleID))

	stored, err := f.store.GetSchedule(ctx, m.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ScheduleStatusCompleted, stored.Status)
	require.NotNil(t, stored.ExecutedAt)
	assert.Equal(t, testNow, *stored.ExecutedAt, "execution time comes from the coordinator clock")
	assert.Empty(t, stored.Error)

	assert.Equal(t, []string{"1_accounts", "2_invoices"}, f.engine.Applied("t1", "core"))
	assert.Empty(t, f.engine.Applied("t1", "billing"), "only the scheduled module runs")

	events := f.notifier.Received()
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindCompleted, events[0].Kind)
	assert.Equal(t, m.ScheduleID, events[0].ScheduleID)
	assert.Equal(t, []string{"1_accounts", "2_invoices"}, events[0].Applied)

	active, err := f.c.GetScheduledMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestExecuteScheduledMigration_IgnoresNonPending(t *testing.T) {
	f := newFixture(t, "t1")
	ctx := context.Background()
	m, err := f.c.ScheduleMigration(ctx, scheduleRequest("t1"))
	require.NoError(t, err)
	require.NoError(t, f.c.ExecuteScheduledMigration(ctx, m.ScheduleID))

	require.NoError(t, f.c.ExecuteScheduledMigration(ctx, m.ScheduleID))

	history, err := f.c.GetMigrationHistory(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, history, 1, "a duplicate trigger does not run the migration again")
	assert.Len(t, f.notifier.Received(), 1)
}

func TestExecuteScheduledMigration_UnknownSchedule(t *testing.T) {
	f := newFixture(t)

	err := f.c.ExecuteScheduledMigration(context.Background(), "no-such-schedule")

	assert.ErrorIs(t, err, orchestrator.ErrScheduleNotFound)
}

func TestExecuteScheduledMigration_EngineFailureFailsRecord(t *testing.T) {
	f := newFixture(t, "t1")
	f.engine.Hook = func(ctx context.Context, target orchestrator.ConnectionTarget, module string) error {
		return errors.New("syntax error at or near \"TABEL\"")
	}
	ctx := context.Background()
	m, err := f.c.ScheduleMigration(ctx, scheduleRequest("t1"))
	require.NoError(t, err)

	err = f.c.ExecuteScheduledMigration(ctx, m.ScheduleID)
	assert.Equal(t, orchestrator.CodeEngineFailure, orchestrator.CodeOf(err))

	stored, err := f.store.GetSchedule(ctx, m.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ScheduleStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "TABEL")

	events := f.notifier.Received()
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindFailed, events[0].Kind)
	assert.Contains(t, events[0].Error, "TABEL")
}

func TestExecuteScheduledMigration_LockContentionFailsRecord(t *testing.T) {
	f := newFixture(t, "t1")
	ctx := context.Background()
	m, err := f.c.ScheduleMigration(ctx, scheduleRequest("t1"))
	require.NoError(t, err)

	var fireErr error
	err = f.c.config.Guard.Guard(ctx, "t1", func(ctx context.Context) error {
		fireErr = f.c.ExecuteScheduledMigration(ctx, m.ScheduleID)
		return nil
	})
	require.NoError(t, err)

	assert.ErrorIs(t, fireErr, orchestrator.ErrAlreadyRunning)

	stored, err := f.store.GetSchedule(ctx, m.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ScheduleStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "already running")
}

func TestExecuteScheduledMigration_NamedMigrationMustBeApplied(t *testing.T) {
	f := newFixture(t, "t1")
	eng := engine.NewMockEngine()
	eng.PendingForFunc = func(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error) {
		return []string{"3_reports"}, nil
	}
	f.c.config.Engine = eng
	ctx := context.Background()

	req := scheduleRequest("t1")
	req.Migration = orchestrator.Named("3_reports")
	m, err := f.c.ScheduleMigration(ctx, req)
	require.NoError(t, err)

	err = f.c.ExecuteScheduledMigration(ctx, m.ScheduleID)
	assert.Equal(t, orchestrator.CodeEngineFailure, orchestrator.CodeOf(err))

	stored, err := f.store.GetSchedule(ctx, m.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ScheduleStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "3_reports")
}

func TestExecuteScheduledMigration_NamedMigrationApplied(t *testing.T) {
	f := newFixture(t, "t1")
	ctx := context.Background()

	req := scheduleRequest("t1")
	req.Migration = orchestrator.Named("2_invoices")
	m, err := f.c.ScheduleMigration(ctx, req)
	require.NoError(t, err)

	require.NoError(t, f.c.ExecuteScheduledMigration(ctx, m.ScheduleID))

	stored, err := f.store.GetSchedule(ctx, m.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ScheduleStatusCompleted, stored.Status)
}

func TestScheduleStatus_OnlyLegalTransitionsAreStored(t *testing.T) {
	f := newFixture(t, "t1", "t2")
	f.engine.Hook = func(ctx context.Context, target orchestrator.ConnectionTarget, module string) error {
		if target.Database == "t2" {
			return errors.New("boom")
		}
		return nil
	}
	ctx := context.Background()

	completed, err := f.c.ScheduleMigration(ctx, scheduleRequest("t1"))
	require.NoError(t, err)
	failed, err := f.c.ScheduleMigration(ctx, scheduleRequest("t2"))
	require.NoError(t, err)
	cancelled, err := f.c.ScheduleMigration(ctx, scheduleRequest("t1"))
	require.NoError(t, err)

	require.NoError(t, f.c.ExecuteScheduledMigration(ctx, completed.ScheduleID))
	require.Error(t, f.c.ExecuteScheduledMigration(ctx, failed.ScheduleID))
	require.NoError(t, f.c.CancelScheduledMigration(ctx, cancelled.ScheduleID))

	for id, want := range map[string]orchestrator.ScheduleStatus{
		completed.ScheduleID: orchestrator.ScheduleStatusCompleted,
		failed.ScheduleID:    orchestrator.ScheduleStatusFailed,
		cancelled.ScheduleID: orchestrator.ScheduleStatusCancelled,
	} {
		stored, err := f.store.GetSchedule(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, stored.Status)
		assert.True(t, stored.Status.IsTerminal())

		_, err = f.store.TransitionSchedule(ctx, id, orchestrator.ScheduleStatusPending, orchestrator.ScheduleStatusRunning, "", testNow)
		assert.ErrorIs(t, err, orchestrator.ErrInvalidTransition, "terminal records never move")
	}
}

func TestResumeOverdueSchedules(t *testing.T) {
	f := newFixture(t, "t1")
	ctx := context.Background()

	create := func(at time.Time, status orchestrator.ScheduleStatus) orchestrator.ScheduledMigration {
		m, err := f.store.CreateSchedule(ctx, orchestrator.ScheduledMigration{
			TenantID:      "t1",
			ScheduledTime: at,
			Migration:     orchestrator.All(),
			Module:        orchestrator.Named("core"),
			Status:        status,
			CreatedBy:     "ops@example.com",
			CreatedAt:     testNow.Add(-time.Hour),
			ExternalJobID: "lost-job",
		})
		require.NoError(t, err)
		return m
	}

	overdue := create(testNow.Add(-10*time.Minute), orchestrator.ScheduleStatusPending)
	justDue := create(testNow.Add(-30*time.Second), orchestrator.ScheduleStatusPending)
	future := create(testNow.Add(time.Hour), orchestrator.ScheduleStatusPending)
	cancelled := create(testNow.Add(-10*time.Minute), orchestrator.ScheduleStatusCancelled)

	n, err := f.c.ResumeOverdueSchedules(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, f.scheduler.ScheduleAtCalls, 1)
	assert.Equal(t, testNow, f.scheduler.ScheduleAtCalls[0].At)
	assert.Equal(t, overdue.ScheduleID, f.scheduler.ScheduleAtCalls[0].Payload)

	stored, err := f.store.GetSchedule(ctx, overdue.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, "job-1", stored.ExternalJobID)

	for _, id := range []string{justDue.ScheduleID, future.ScheduleID, cancelled.ScheduleID} {
		stored, err := f.store.GetSchedule(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "lost-job", stored.ExternalJobID)
	}

	require.NoError(t, f.c.ExecuteScheduledMigration(ctx, overdue.ScheduleID))
	require.NoError(t, f.c.ExecuteScheduledMigration(ctx, overdue.ScheduleID), "the original trigger is ignored")
	history, err := f.c.GetMigrationHistory(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestResumeOverdueSchedules_SchedulerError(t *testing.T) {
	f := newFixture(t, "t1")
	f.scheduler.ScheduleAtFunc = func(ctx context.Context, at time.Time, payload string) (string, error) {
		return "", errors.New("redis unavailable")
	}
	ctx := context.Background()
	_, err := f.store.CreateSchedule(ctx, orchestrator.ScheduledMigration{
		TenantID:      "t1",
		ScheduledTime: testNow.Add(-time.Hour),
		Migration:     orchestrator.All(),
		Module:        orchestrator.All(),
		Status:        orchestrator.ScheduleStatusPending,
	})
	require.NoError(t, err)

	n, err := f.c.ResumeOverdueSchedules(ctx, time.Minute)

	assert.ErrorContains(t, err, "redis unavailable")
	assert.Zero(t, n)
}
