//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/store"
	pgstore "github.com/getpup/migration-orchestrator/store/postgres"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var executedAt = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

// getTestDB returns a database connection for integration tests.
// It reads the DATABASE_URL environment variable and skips the test if not set.
func getTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

// setupTables recreates the orchestrator tables using the default configuration.
func setupTables(t *testing.T, db *sql.DB) {
	t.Helper()

	config := pgstore.DefaultTableConfig()

	if _, err := db.Exec(pgstore.MigrationDown(config)); err != nil {
		t.Logf("warning: failed to drop tables (may not exist): %v", err)
	}

	if _, err := db.Exec(pgstore.MigrationUp(config)); err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}
}

func newStore(t *testing.T) *pgstore.Store {
	t.Helper()

	db := getTestDB(t)
	t.Cleanup(func() { _ = db.Close() })
	setupTables(t, db)

	return pgstore.New(db)
}

func TestScheduleLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	at := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)

	created, err := s.CreateSchedule(ctx, orchestrator.ScheduledMigration{
		TenantID:      "tenant-1",
		ScheduledTime: at,
		Migration:     orchestrator.Named("20260101_add_orders"),
		Module:        orchestrator.All(),
		CreatedBy:     "admin",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ScheduleID)
	assert.Equal(t, orchestrator.ScheduleStatusPending, created.Status)
	assert.WithinDuration(t, time.Now(), created.CreatedAt, 5*time.Second)

	require.NoError(t, s.SetJobID(ctx, created.ScheduleID, "job-1"))

	got, err := s.GetSchedule(ctx, created.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.ExternalJobID)
	assert.Equal(t, orchestrator.Named("20260101_add_orders"), got.Migration)
	assert.True(t, got.Module.IsAll())
	assert.True(t, at.Equal(got.ScheduledTime))
	assert.Nil(t, got.ExecutedAt)

	running, err := s.TransitionSchedule(ctx, created.ScheduleID, orchestrator.ScheduleStatusPending, orchestrator.ScheduleStatusRunning, "", executedAt)
	require.NoError(t, err)
	require.NotNil(t, running.ExecutedAt)
	assert.True(t, executedAt.Equal(*running.ExecutedAt))

	failed, err := s.TransitionSchedule(ctx, created.ScheduleID, orchestrator.ScheduleStatusRunning, orchestrator.ScheduleStatusFailed, "engine exploded", executedAt)
	require.NoError(t, err)
	assert.Equal(t, "engine exploded", failed.Error)
	require.NotNil(t, failed.ExecutedAt)
	assert.True(t, running.ExecutedAt.Equal(*failed.ExecutedAt))

	_, err = s.TransitionSchedule(ctx, created.ScheduleID, orchestrator.ScheduleStatusPending, orchestrator.ScheduleStatusCancelled, "", executedAt)
	assert.ErrorIs(t, err, orchestrator.ErrInvalidTransition)
}

func TestCreateSchedule_DuplicateID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	m := orchestrator.ScheduledMigration{ScheduleID: "6f1c2c8e-8d7b-4f53-9a39-2f4f3b1f2f10", TenantID: "t", ScheduledTime: time.Now()}
	_, err := s.CreateSchedule(ctx, m)
	require.NoError(t, err)

	_, err = s.CreateSchedule(ctx, m)
	assert.ErrorIs(t, err, store.ErrScheduleExists)
}

func TestTransitionSchedule_ConcurrentCancelAndFire(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	m, err := s.CreateSchedule(ctx, orchestrator.ScheduledMigration{TenantID: "t", ScheduledTime: time.Now().Add(time.Minute)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, to := range []orchestrator.ScheduleStatus{orchestrator.ScheduleStatusRunning, orchestrator.ScheduleStatusCancelled} {
		wg.Add(1)
		go func(i int, to orchestrator.ScheduleStatus) {
			defer wg.Done()
			_, results[i] = s.TransitionSchedule(ctx, m.ScheduleID, orchestrator.ScheduleStatusPending, to, "", executedAt)
		}(i, to)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, orchestrator.ErrConflict)
		}
	}
	assert.Equal(t, 1, successes)
}

func TestListActiveSchedules(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Now().Add(time.Hour)

	second, err := s.CreateSchedule(ctx, orchestrator.ScheduledMigration{TenantID: "a", ScheduledTime: base.Add(time.Hour)})
	require.NoError(t, err)
	first, err := s.CreateSchedule(ctx, orchestrator.ScheduledMigration{TenantID: "b", ScheduledTime: base})
	require.NoError(t, err)
	cancelled, err := s.CreateSchedule(ctx, orchestrator.ScheduledMigration{TenantID: "c", ScheduledTime: base})
	require.NoError(t, err)
	_, err = s.TransitionSchedule(ctx, cancelled.ScheduleID, orchestrator.ScheduleStatusPending, orchestrator.ScheduleStatusCancelled, "", executedAt)
	require.NoError(t, err)

	active, err := s.ListActiveSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, first.ScheduleID, active[0].ScheduleID)
	assert.Equal(t, second.ScheduleID, active[1].ScheduleID)
}

func TestHistory_NewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"old", "newest", "middle"} {
		offset := map[string]time.Duration{"old": 0, "newest": 2 * time.Hour, "middle": time.Hour}[name]
		_, err := s.AppendHistory(ctx, orchestrator.HistoryRecord{
			TenantID:      "tenant-1",
			ModuleName:    "core",
			MigrationName: name,
			Operation:     orchestrator.OperationApply,
			AppliedAt:     base.Add(offset),
			Outcome:       orchestrator.OutcomeSuccess,
			DurationMs:    int64(i),
		})
		require.NoError(t, err)
	}
	_, err := s.AppendHistory(ctx, orchestrator.HistoryRecord{
		TenantID:     "tenant-1",
		ModuleName:   "core",
		Operation:    orchestrator.OperationRollback,
		AppliedAt:    base.Add(2 * time.Hour),
		Outcome:      orchestrator.OutcomeFailure,
		ErrorMessage: "dependents applied",
	})
	require.NoError(t, err)

	history, err := s.ListHistory(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, history, 4)

	assert.Equal(t, orchestrator.OperationRollback, history[0].Operation, "ties resolve newest append first")
	assert.Equal(t, "dependents applied", history[0].ErrorMessage)
	assert.Equal(t, "newest", history[1].MigrationName)
	assert.Equal(t, "middle", history[2].MigrationName)
	assert.Equal(t, "old", history[3].MigrationName)
	assert.Empty(t, history[3].ErrorMessage)

	empty, err := s.ListHistory(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSettings_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.DefaultSettings(), got)

	updated := orchestrator.DefaultSettings()
	updated.MaxConcurrency = 12
	updated.NotificationEmails = []string{"dba@example.com"}
	require.NoError(t, s.SaveSettings(ctx, updated))

	updated.MaxConcurrency = 3
	require.NoError(t, s.SaveSettings(ctx, updated))

	got, err = s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MaxConcurrency)
	assert.Equal(t, []string{"dba@example.com"}, got.NotificationEmails)
}
