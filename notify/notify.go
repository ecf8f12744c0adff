// Package notify delivers migration outcome notifications.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/getpup/migration-orchestrator"
)

// Kind distinguishes successful and failed outcomes.
type Kind string

const (
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

// Event describes the outcome of a scheduled or fleet-wide migration run.
type Event struct {
	Kind Kind `json:"kind"`

	// TenantID is empty for fleet-wide runs.
	TenantID   orchestrator.TenantID `json:"tenantId,omitempty"`
	ScheduleID string                `json:"scheduleId,omitempty"`

	Applied []string `json:"applied,omitempty"`
	Failed  int      `json:"failed,omitempty"`
	Total   int      `json:"total,omitempty"`
	Error   string   `json:"error,omitempty"`

	Recipients []string  `json:"recipients,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Notifier delivers events to operators.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(ctx context.Context, event Event) error { return nil }

// MockNotifier records events for testing.
type MockNotifier struct {
	mu sync.Mutex

	NotifyFunc func(ctx context.Context, event Event) error
	Events     []Event
}

// NewMockNotifier creates a new MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Notify implements Notifier.
func (m *MockNotifier) Notify(ctx context.Context, event Event) error {
	m.mu.Lock()
	m.Events = append(m.Events, event)
	m.mu.Unlock()

	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, event)
	}
	return nil
}

// Received returns a copy of the recorded events.
func (m *MockNotifier) Received() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.Events...)
}
