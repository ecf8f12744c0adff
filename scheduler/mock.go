package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a configurable mock implementation of JobScheduler for testing.
// Unset functions record the job and succeed.
type MockScheduler struct {
	mu sync.Mutex

	ScheduleAtFunc func(ctx context.Context, at time.Time, payload string) (string, error)
	CancelFunc     func(ctx context.Context, jobID string) (bool, error)

	// Jobs maps job ids to payloads of jobs that are registered and not cancelled.
	Jobs map[string]string

	// Call tracking
	ScheduleAtCalls []ScheduleAtCall
	CancelCalls     []string

	next int
}

// ScheduleAtCall records the parameters of a ScheduleAt call.
type ScheduleAtCall struct {
	At      time.Time
	Payload string
}

var _ JobScheduler = (*MockScheduler)(nil)

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{Jobs: make(map[string]string)}
}

// ScheduleAt implements JobScheduler.
func (m *MockScheduler) ScheduleAt(ctx context.Context, at time.Time, payload string) (string, error) {
	m.mu.Lock()
	m.ScheduleAtCalls = append(m.ScheduleAtCalls, ScheduleAtCall{At: at, Payload: payload})
	m.mu.Unlock()

	if m.ScheduleAtFunc != nil {
		return m.ScheduleAtFunc(ctx, at, payload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	jobID := fmt.Sprintf("job-%d", m.next)
	m.Jobs[jobID] = payload
	return jobID, nil
}

// Cancel implements JobScheduler.
func (m *MockScheduler) Cancel(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	m.CancelCalls = append(m.CancelCalls, jobID)
	m.mu.Unlock()

	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, jobID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Jobs[jobID]
	delete(m.Jobs, jobID)
	return ok, nil
}

// JobCount returns the number of registered, uncancelled jobs.
func (m *MockScheduler) JobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Jobs)
}
