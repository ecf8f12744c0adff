package store

import (
	"context"
	"sync"
	"time"

	"github.com/getpup/migration-orchestrator"
)

// MockStore is a configurable mock implementation of Store for use in tests.
// It allows setting up expected return values, tracking method calls, and
// injecting errors for testing error paths.
type MockStore struct {
	mu sync.RWMutex

	// CreateScheduleFunc is called by CreateSchedule if set.
	CreateScheduleFunc func(ctx context.Context, m orchestrator.ScheduledMigration) (orchestrator.ScheduledMigration, error)

	// GetScheduleFunc is called by GetSchedule if set.
	GetScheduleFunc func(ctx context.Context, scheduleID string) (orchestrator.ScheduledMigration, error)

	// SetJobIDFunc is called by SetJobID if set.
	SetJobIDFunc func(ctx context.Context, scheduleID, jobID string) error

	// TransitionScheduleFunc is called by TransitionSchedule if set.
	TransitionScheduleFunc func(ctx context.Context, scheduleID string, from, to orchestrator.ScheduleStatus, errMsg string, at time.Time) (orchestrator.ScheduledMigration, error)

	// ListActiveSchedulesFunc is called by ListActiveSchedules if set.
	ListActiveSchedulesFunc func(ctx context.Context) ([]orchestrator.ScheduledMigration, error)

	// AppendHistoryFunc is called by AppendHistory if set.
	AppendHistoryFunc func(ctx context.Context, rec orchestrator.HistoryRecord) (orchestrator.HistoryRecord, error)

	// ListHistoryFunc is called by ListHistory if set.
	ListHistoryFunc func(ctx context.Context, tenantID orchestrator.TenantID) ([]orchestrator.HistoryRecord, error)

	// GetSettingsFunc is called by GetSettings if set.
	GetSettingsFunc func(ctx context.Context) (orchestrator.Settings, error)

	// SaveSettingsFunc is called by SaveSettings if set.
	SaveSettingsFunc func(ctx context.Context, settings orchestrator.Settings) error

	// Call tracking
	CreateScheduleCalls      []orchestrator.ScheduledMigration
	GetScheduleCalls         []string
	SetJobIDCalls            []SetJobIDCall
	TransitionScheduleCalls  []TransitionScheduleCall
	ListActiveSchedulesCalls int
	AppendHistoryCalls       []orchestrator.HistoryRecord
	ListHistoryCalls         []orchestrator.TenantID
	GetSettingsCalls         int
	SaveSettingsCalls        []orchestrator.Settings
}

// Call tracking structs
type SetJobIDCall struct {
	ScheduleID string
	JobID      string
}

type TransitionScheduleCall struct {
	ScheduleID string
	From       orchestrator.ScheduleStatus
	To         orchestrator.ScheduleStatus
	ErrMsg     string
	At         time.Time
}

// NewMockStore creates a new mock store.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// CreateSchedule implements ScheduleStore.
func (m *MockStore) CreateSchedule(ctx context.Context, sm orchestrator.ScheduledMigration) (orchestrator.ScheduledMigration, error) {
	m.mu.Lock()
	m.CreateScheduleCalls = append(m.CreateScheduleCalls, sm)
	m.mu.Unlock()

	if m.CreateScheduleFunc != nil {
		return m.CreateScheduleFunc(ctx, sm)
	}

	return sm, nil
}

// GetSchedule implements ScheduleStore.
func (m *MockStore) GetSchedule(ctx context.Context, scheduleID string) (orchestrator.ScheduledMigration, error) {
	m.mu.Lock()
	m.GetScheduleCalls = append(m.GetScheduleCalls, scheduleID)
	m.mu.Unlock()

	if m.GetScheduleFunc != nil {
		return m.GetScheduleFunc(ctx, scheduleID)
	}

	return orchestrator.ScheduledMigration{}, orchestrator.ErrScheduleNotFound
}

// SetJobID implements ScheduleStore.
func (m *MockStore) SetJobID(ctx context.Context, scheduleID, jobID string) error {
	m.mu.Lock()
	m.SetJobIDCalls = append(m.SetJobIDCalls, SetJobIDCall{
		ScheduleID: scheduleID,
		JobID:      jobID,
	})
	m.mu.Unlock()

	if m.SetJobIDFunc != nil {
		return m.SetJobIDFunc(ctx, scheduleID, jobID)
	}

	return nil
}

// TransitionSchedule implements ScheduleStore.
func (m *MockStore) TransitionSchedule(ctx context.Context, scheduleID string, from, to orchestrator.ScheduleStatus, errMsg string, at time.Time) (orchestrator.ScheduledMigration, error) {
	m.mu.Lock()
	m.TransitionScheduleCalls = append(m.TransitionScheduleCalls, TransitionScheduleCall{
		ScheduleID: scheduleID,
		From:       from,
		To:         to,
		ErrMsg:     errMsg,
		At:         at,
	})
	m.mu.Unlock()

	if m.TransitionScheduleFunc != nil {
		return m.TransitionScheduleFunc(ctx, scheduleID, from, to, errMsg, at)
	}

	return orchestrator.ScheduledMigration{ScheduleID: scheduleID, Status: to, Error: errMsg}, nil
}

// ListActiveSchedules implements ScheduleStore.
func (m *MockStore) ListActiveSchedules(ctx context.Context) ([]orchestrator.ScheduledMigration, error) {
	m.mu.Lock()
	m.ListActiveSchedulesCalls++
	m.mu.Unlock()

	if m.ListActiveSchedulesFunc != nil {
		return m.ListActiveSchedulesFunc(ctx)
	}

	return []orchestrator.ScheduledMigration{}, nil
}

// AppendHistory implements HistoryStore.
func (m *MockStore) AppendHistory(ctx context.Context, rec orchestrator.HistoryRecord) (orchestrator.HistoryRecord, error) {
	m.mu.Lock()
	m.AppendHistoryCalls = append(m.AppendHistoryCalls, rec)
	m.mu.Unlock()

	if m.AppendHistoryFunc != nil {
		return m.AppendHistoryFunc(ctx, rec)
	}

	return rec, nil
}

// ListHistory implements HistoryStore.
func (m *MockStore) ListHistory(ctx context.Context, tenantID orchestrator.TenantID) ([]orchestrator.HistoryRecord, error) {
	m.mu.Lock()
	m.ListHistoryCalls = append(m.ListHistoryCalls, tenantID)
	m.mu.Unlock()

	if m.ListHistoryFunc != nil {
		return m.ListHistoryFunc(ctx, tenantID)
	}

	return []orchestrator.HistoryRecord{}, nil
}

// GetSettings implements SettingsStore.
func (m *MockStore) GetSettings(ctx context.Context) (orchestrator.Settings, error) {
	m.mu.Lock()
	m.GetSettingsCalls++
	m.mu.Unlock()

	if m.GetSettingsFunc != nil {
		return m.GetSettingsFunc(ctx)
	}

	return orchestrator.DefaultSettings(), nil
}

// SaveSettings implements SettingsStore.
func (m *MockStore) SaveSettings(ctx context.Context, settings orchestrator.Settings) error {
	m.mu.Lock()
	m.SaveSettingsCalls = append(m.SaveSettingsCalls, settings)
	m.mu.Unlock()

	if m.SaveSettingsFunc != nil {
		return m.SaveSettingsFunc(ctx, settings)
	}

	return nil
}

// HistoryCount returns the number of AppendHistory calls so far.
func (m *MockStore) HistoryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.AppendHistoryCalls)
}

// Reset clears all call tracking.
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateScheduleCalls = nil
	m.GetScheduleCalls = nil
	m.SetJobIDCalls = nil
	m.TransitionScheduleCalls = nil
	m.ListActiveSchedulesCalls = 0
	m.AppendHistoryCalls = nil
	m.ListHistoryCalls = nil
	m.GetSettingsCalls = 0
	m.SaveSettingsCalls = nil
}
