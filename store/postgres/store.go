package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/store"
	"github.com/google/uuid"
)

// Store is a PostgreSQL implementation of store.Store.
// It provides persistent storage for scheduled migrations, history and settings.
type Store struct {
	db             *sql.DB
	schedulesTable string
	historyTable   string
	settingsTable  string
}

var _ store.Store = (*Store)(nil)

// New creates a new PostgreSQL store with default table names.
func New(db *sql.DB) *Store {
	config := DefaultTableConfig()
	return NewWithConfig(db, config)
}

// NewWithConfig creates a new PostgreSQL store with custom table names.
func NewWithConfig(db *sql.DB, config TableConfig) *Store {
	return &Store{
		db:             db,
		schedulesTable: config.SchedulesTable,
		historyTable:   config.HistoryTable,
		settingsTable:  config.SettingsTable,
	}
}

const scheduleColumns = `schedule_id, tenant_id, scheduled_time, migration_scope, module_scope, status,
		created_by, created_at, executed_at, error, external_job_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (orchestrator.ScheduledMigration, error) {
	var (
		m          orchestrator.ScheduledMigration
		tenantID   string
		migration  string
		module     string
		status     string
		executedAt sql.NullTime
	)

	err := row.Scan(
		&m.ScheduleID,
		&tenantID,
		&m.ScheduledTime,
		&migration,
		&module,
		&status,
		&m.CreatedBy,
		&m.CreatedAt,
		&executedAt,
		&m.Error,
		&m.ExternalJobID,
	)
	if err != nil {
		return orchestrator.ScheduledMigration{}, err
	}

	m.TenantID = orchestrator.TenantID(tenantID)
	m.Migration = orchestrator.ParseScope(migration)
	m.Module = orchestrator.ParseScope(module)
	m.Status = orchestrator.ScheduleStatus(status)
	m.ScheduledTime = m.ScheduledTime.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	if executedAt.Valid {
		t := executedAt.Time.UTC()
		m.ExecutedAt = &t
	}
	return m, nil
}

// CreateSchedule stores a new scheduled migration.
// Returns store.ErrScheduleExists if the id is already taken.
func (s *Store) CreateSchedule(ctx context.Context, m orchestrator.ScheduledMigration) (orchestrator.ScheduledMigration, error) {
	if m.ScheduleID == "" {
		m.ScheduleID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = orchestrator.ScheduleStatusPending
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (schedule_id, tenant_id, scheduled_time, migration_scope, module_scope, status, created_by, created_at, external_job_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), $9)
		ON CONFLICT (schedule_id) DO NOTHING
		RETURNING created_at
	`, s.schedulesTable)

	var createdAt sql.NullTime
	if !m.CreatedAt.IsZero() {
		createdAt = sql.NullTime{Time: m.CreatedAt, Valid: true}
	}

	err := s.db.QueryRowContext(ctx, query,
		m.ScheduleID,
		string(m.TenantID),
		m.ScheduledTime.UTC(),
		m.Migration.String(),
		m.Module.String(),
		string(m.Status),
		m.CreatedBy,
		createdAt,
		m.ExternalJobID,
	).Scan(&m.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return orchestrator.ScheduledMigration{}, store.ErrScheduleExists
	}
	if err != nil {
		return orchestrator.ScheduledMigration{}, fmt.Errorf("failed to create scheduled migration: %w", err)
	}

	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

// GetSchedule returns a scheduled migration by id.
// Returns orchestrator.ErrScheduleNotFound if it does not exist.
func (s *Store) GetSchedule(ctx context.Context, scheduleID string) (orchestrator.ScheduledMigration, error) {
	if _, err := uuid.Parse(scheduleID); err != nil {
		return orchestrator.ScheduledMigration{}, orchestrator.ErrScheduleNotFound
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE schedule_id = $1
	`, scheduleColumns, s.schedulesTable)

	m, err := scanSchedule(s.db.QueryRowContext(ctx, query, scheduleID))
	if errors.Is(err, sql.ErrNoRows) {
		return orchestrator.ScheduledMigration{}, orchestrator.ErrScheduleNotFound
	}
	if err != nil {
		return orchestrator.ScheduledMigration{}, fmt.Errorf("failed to get scheduled migration: %w", err)
	}

	return m, nil
}

// SetJobID records the job scheduler's handle for a scheduled migration.
// Returns orchestrator.ErrScheduleNotFound if it does not exist.
func (s *Store) SetJobID(ctx context.Context, scheduleID, jobID string) error {
	if _, err := uuid.Parse(scheduleID); err != nil {
		return orchestrator.ErrScheduleNotFound
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET external_job_id = $2
		WHERE schedule_id = $1
	`, s.schedulesTable)

	result, err := s.db.ExecContext(ctx, query, scheduleID, jobID)
	if err != nil {
		return fmt.Errorf("failed to set job id: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return orchestrator.ErrScheduleNotFound
	}

	return nil
}

// TransitionSchedule atomically moves a scheduled migration from one status to
// another with a conditional UPDATE on the current status.
func (s *Store) TransitionSchedule(ctx context.Context, scheduleID string, from, to orchestrator.ScheduleStatus, errMsg string, at time.Time) (orchestrator.ScheduledMigration, error) {
	if !from.CanTransitionTo(to) {
		return orchestrator.ScheduledMigration{}, store.CheckTransition(from, from, to)
	}
	if _, err := uuid.Parse(scheduleID); err != nil {
		return orchestrator.ScheduledMigration{}, orchestrator.ErrScheduleNotFound
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $3,
			executed_at = CASE WHEN $3 = 'running' THEN COALESCE(executed_at, $5) ELSE executed_at END,
			error = CASE WHEN $3 = 'failed' THEN $4 ELSE error END
		WHERE schedule_id = $1 AND status = $2
		RETURNING %s
	`, s.schedulesTable, scheduleColumns)

	m, err := scanSchedule(s.db.QueryRowContext(ctx, query, scheduleID, string(from), string(to), errMsg, at.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := s.GetSchedule(ctx, scheduleID)
		if getErr != nil {
			return orchestrator.ScheduledMigration{}, getErr
		}
		return orchestrator.ScheduledMigration{}, store.CheckTransition(current.Status, from, to)
	}
	if err != nil {
		return orchestrator.ScheduledMigration{}, fmt.Errorf("failed to transition scheduled migration: %w", err)
	}

	return m, nil
}

// ListActiveSchedules returns pending and running migrations ordered by scheduled time.
func (s *Store) ListActiveSchedules(ctx context.Context) (schedules []orchestrator.ScheduledMigration, err error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE status IN ('pending', 'running')
		ORDER BY scheduled_time ASC, created_at ASC
	`, scheduleColumns, s.schedulesTable)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active schedules: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close rows: %w", closeErr)
		}
	}()

	schedules = make([]orchestrator.ScheduledMigration, 0)
	for rows.Next() {
		m, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled migration: %w", err)
		}
		schedules = append(schedules, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled migrations: %w", err)
	}

	return schedules, nil
}

// AppendHistory stores a history record.
func (s *Store) AppendHistory(ctx context.Context, rec orchestrator.HistoryRecord) (orchestrator.HistoryRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, tenant_id, module_name, migration_name, operation, applied_at, outcome, error_message, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.historyTable)

	var errorMessage sql.NullString
	if rec.ErrorMessage != "" {
		errorMessage = sql.NullString{String: rec.ErrorMessage, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.TenantID),
		rec.ModuleName,
		rec.MigrationName,
		string(rec.Operation),
		rec.AppliedAt.UTC(),
		string(rec.Outcome),
		errorMessage,
		rec.DurationMs,
	)
	if err != nil {
		return orchestrator.HistoryRecord{}, fmt.Errorf("failed to append migration history: %w", err)
	}

	return rec, nil
}

// ListHistory returns a tenant's records ordered by AppliedAt descending.
func (s *Store) ListHistory(ctx context.Context, tenantID orchestrator.TenantID) (history []orchestrator.HistoryRecord, err error) {
	query := fmt.Sprintf(`
		SELECT id, tenant_id, module_name, migration_name, operation, applied_at, outcome, error_message, duration_ms
		FROM %s
		WHERE tenant_id = $1
		ORDER BY applied_at DESC, seq DESC
	`, s.historyTable)

	rows, err := s.db.QueryContext(ctx, query, string(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to list migration history: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close rows: %w", closeErr)
		}
	}()

	history = make([]orchestrator.HistoryRecord, 0)
	for rows.Next() {
		var (
			rec          orchestrator.HistoryRecord
			tenant       string
			operation    string
			outcome      string
			errorMessage sql.NullString
		)
		err := rows.Scan(
			&rec.ID,
			&tenant,
			&rec.ModuleName,
			&rec.MigrationName,
			&operation,
			&rec.AppliedAt,
			&outcome,
			&errorMessage,
			&rec.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration history: %w", err)
		}
		rec.TenantID = orchestrator.TenantID(tenant)
		rec.Operation = orchestrator.Operation(operation)
		rec.Outcome = orchestrator.Outcome(outcome)
		rec.ErrorMessage = errorMessage.String
		rec.AppliedAt = rec.AppliedAt.UTC()
		history = append(history, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration history: %w", err)
	}

	return history, nil
}

// GetSettings returns the stored settings, or orchestrator.DefaultSettings.
func (s *Store) GetSettings(ctx context.Context) (orchestrator.Settings, error) {
	query := fmt.Sprintf(`
		SELECT settings
		FROM %s
		WHERE id = 1
	`, s.settingsTable)

	var raw []byte
	err := s.db.QueryRowContext(ctx, query).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return orchestrator.DefaultSettings(), nil
	}
	if err != nil {
		return orchestrator.Settings{}, fmt.Errorf("failed to get migration settings: %w", err)
	}

	settings := orchestrator.DefaultSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return orchestrator.Settings{}, fmt.Errorf("failed to decode migration settings: %w", err)
	}

	return settings, nil
}

// SaveSettings replaces the stored settings.
func (s *Store) SaveSettings(ctx context.Context, settings orchestrator.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode migration settings: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, settings, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = NOW()
	`, s.settingsTable)

	if _, err := s.db.ExecContext(ctx, query, string(raw)); err != nil {
		return fmt.Errorf("failed to save migration settings: %w", err)
	}

	return nil
}
