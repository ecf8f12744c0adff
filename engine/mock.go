package engine

import (
	"context"
	"sync"

	"github.com/getpup/migration-orchestrator"
)

// MockEngine is a configurable mock implementation of Engine for testing.
// Unset functions succeed with empty results.
type MockEngine struct {
	mu sync.Mutex

	ApplyFunc      func(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error)
	RevertFunc     func(ctx context.Context, target orchestrator.ConnectionTarget, module, migration string) (string, error)
	PreviewFunc    func(ctx context.Context, target orchestrator.ConnectionTarget, module, migration string) (string, error)
	PendingForFunc func(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error)

	// Call tracking
	ApplyCalls      []EngineCall
	RevertCalls     []EngineCall
	PreviewCalls    []EngineCall
	PendingForCalls []EngineCall
}

// EngineCall records the parameters of a single engine call.
type EngineCall struct {
	Target    orchestrator.ConnectionTarget
	Module    string
	Migration string
}

// NewMockEngine creates a new MockEngine.
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

// Apply implements Engine.
func (m *MockEngine) Apply(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error) {
	m.mu.Lock()
	m.ApplyCalls = append(m.ApplyCalls, EngineCall{Target: target, Module: module})
	m.mu.Unlock()

	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, target, module)
	}
	return nil, nil
}

// Revert implements Engine.
func (m *MockEngine) Revert(ctx context.Context, target orchestrator.ConnectionTarget, module, migration string) (string, error) {
	m.mu.Lock()
	m.RevertCalls = append(m.RevertCalls, EngineCall{Target: target, Module: module, Migration: migration})
	m.mu.Unlock()

	if m.RevertFunc != nil {
		return m.RevertFunc(ctx, target, module, migration)
	}
	return "", nil
}

// Preview implements Engine.
func (m *MockEngine) Preview(ctx context.Context, target orchestrator.ConnectionTarget, module, migration string) (string, error) {
	m.mu.Lock()
	m.PreviewCalls = append(m.PreviewCalls, EngineCall{Target: target, Module: module, Migration: migration})
	m.mu.Unlock()

	if m.PreviewFunc != nil {
		return m.PreviewFunc(ctx, target, module, migration)
	}
	return "", nil
}

// PendingFor implements Engine.
func (m *MockEngine) PendingFor(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error) {
	m.mu.Lock()
	m.PendingForCalls = append(m.PendingForCalls, EngineCall{Target: target, Module: module})
	m.mu.Unlock()

	if m.PendingForFunc != nil {
		return m.PendingForFunc(ctx, target, module)
	}
	return nil, nil
}

// ApplyCount returns the number of Apply calls so far.
func (m *MockEngine) ApplyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ApplyCalls)
}

// Reset clears the call history.
func (m *MockEngine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplyCalls = nil
	m.RevertCalls = nil
	m.PreviewCalls = nil
	m.PendingForCalls = nil
}
