package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/store"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of store.Store for testing and
// single-process deployments. It provides thread-safe access using a sync.RWMutex.
type Store struct {
	mu        sync.RWMutex
	schedules map[string]orchestrator.ScheduledMigration // scheduleID -> record
	history   map[orchestrator.TenantID][]historyEntry   // tenantID -> records in append order
	settings  *orchestrator.Settings                     // nil until saved
	seq       int64
}

type historyEntry struct {
	seq    int64
	record orchestrator.HistoryRecord
}

var _ store.Store = (*Store)(nil)

// New creates a new in-memory store with initialized maps.
func New() *Store {
	return &Store{
		schedules: make(map[string]orchestrator.ScheduledMigration),
		history:   make(map[orchestrator.TenantID][]historyEntry),
	}
}

// CreateSchedule stores a new scheduled migration.
// Returns store.ErrScheduleExists if the id is already taken.
func (s *Store) CreateSchedule(ctx context.Context, m orchestrator.ScheduledMigration) (orchestrator.ScheduledMigration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ScheduleID == "" {
		m.ScheduleID = uuid.New().String()
	}
	if _, ok := s.schedules[m.ScheduleID]; ok {
		return orchestrator.ScheduledMigration{}, store.ErrScheduleExists
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = orchestrator.ScheduleStatusPending
	}

	s.schedules[m.ScheduleID] = m
	return copySchedule(m), nil
}

// GetSchedule returns a scheduled migration by id.
func (s *Store) GetSchedule(ctx context.Context, scheduleID string) (orchestrator.ScheduledMigration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.schedules[scheduleID]
	if !ok {
		return orchestrator.ScheduledMigration{}, orchestrator.ErrScheduleNotFound
	}
	return copySchedule(m), nil
}

// SetJobID records the job scheduler's handle for a scheduled migration.
func (s *Store) SetJobID(ctx context.Context, scheduleID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.schedules[scheduleID]
	if !ok {
		return orchestrator.ErrScheduleNotFound
	}
	m.ExternalJobID = jobID
	s.schedules[scheduleID] = m
	return nil
}

// TransitionSchedule atomically moves a scheduled migration between statuses.
func (s *Store) TransitionSchedule(ctx context.Context, scheduleID string, from, to orchestrator.ScheduleStatus, errMsg string, at time.Time) (orchestrator.ScheduledMigration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.schedules[scheduleID]
	if !ok {
		return orchestrator.ScheduledMigration{}, orchestrator.ErrScheduleNotFound
	}
	if err := store.CheckTransition(m.Status, from, to); err != nil {
		return orchestrator.ScheduledMigration{}, err
	}

	m.Status = to
	if to == orchestrator.ScheduleStatusRunning && m.ExecutedAt == nil {
		executedAt := at.UTC()
		m.ExecutedAt = &executedAt
	}
	if to == orchestrator.ScheduleStatusFailed {
		m.Error = errMsg
	}

	s.schedules[scheduleID] = m
	return copySchedule(m), nil
}

// ListActiveSchedules returns pending and running migrations ordered by scheduled time.
func (s *Store) ListActiveSchedules(ctx context.Context) ([]orchestrator.ScheduledMigration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]orchestrator.ScheduledMigration, 0)
	for _, m := range s.schedules {
		if !m.Status.IsTerminal() {
			result = append(result, copySchedule(m))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ScheduledTime.Equal(result[j].ScheduledTime) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ScheduledTime.Before(result[j].ScheduledTime)
	})

	return result, nil
}

// AppendHistory stores a history record.
func (s *Store) AppendHistory(ctx context.Context, rec orchestrator.HistoryRecord) (orchestrator.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = time.Now().UTC()
	}

	s.seq++
	s.history[rec.TenantID] = append(s.history[rec.TenantID], historyEntry{seq: s.seq, record: rec})
	return rec, nil
}

// ListHistory returns a tenant's records ordered by AppliedAt descending.
// Records with equal timestamps are returned newest append first.
func (s *Store) ListHistory(ctx context.Context, tenantID orchestrator.TenantID) ([]orchestrator.HistoryRecord, error) {
	s.mu.RLock()
	entries := make([]historyEntry, len(s.history[tenantID]))
	copy(entries, s.history[tenantID])
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.record.AppliedAt.Equal(b.record.AppliedAt) {
			return a.seq > b.seq
		}
		return a.record.AppliedAt.After(b.record.AppliedAt)
	})

	result := make([]orchestrator.HistoryRecord, len(entries))
	for i, e := range entries {
		result[i] = e.record
	}
	return result, nil
}

// GetSettings returns the stored settings, or the defaults.
func (s *Store) GetSettings(ctx context.Context) (orchestrator.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return orchestrator.DefaultSettings(), nil
	}
	return copySettings(*s.settings), nil
}

// SaveSettings replaces the stored settings.
func (s *Store) SaveSettings(ctx context.Context, settings orchestrator.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := copySettings(settings)
	s.settings = &saved
	return nil
}

func copySchedule(m orchestrator.ScheduledMigration) orchestrator.ScheduledMigration {
	if m.ExecutedAt != nil {
		executedAt := *m.ExecutedAt
		m.ExecutedAt = &executedAt
	}
	return m
}

func copySettings(s orchestrator.Settings) orchestrator.Settings {
	s.DefaultModules = append([]string(nil), s.DefaultModules...)
	s.NotificationEmails = append([]string(nil), s.NotificationEmails...)
	return s
}
