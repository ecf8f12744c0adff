package executor

import (
	"context"
	"sync"

	"github.com/getpup/migration-orchestrator"
)

// MockRunner is a mock implementation of Runner for testing.
type MockRunner struct {
	mu sync.Mutex

	ApplyModulesFunc func(ctx context.Context, tenantID orchestrator.TenantID, target orchestrator.ConnectionTarget, modules []string) ([]orchestrator.ModuleResult, error)
	RevertFunc       func(ctx context.Context, tenantID orchestrator.TenantID, target orchestrator.ConnectionTarget, module, migration string) (string, error)

	ApplyModulesCalls []ApplyModulesCall
	RevertCalls       []RevertCall
}

// ApplyModulesCall records the parameters of a single ApplyModules call.
type ApplyModulesCall struct {
	TenantID orchestrator.TenantID
	Target   orchestrator.ConnectionTarget
	Modules  []string
}

// RevertCall records the parameters of a single Revert call.
type RevertCall struct {
	TenantID  orchestrator.TenantID
	Target    orchestrator.ConnectionTarget
	Module    string
	Migration string
}

// NewMockRunner creates a new MockRunner with an empty call history.
func NewMockRunner() *MockRunner {
	return &MockRunner{}
}

// ApplyModules implements the Runner interface.
// Without ApplyModulesFunc every module succeeds with nothing applied.
func (m *MockRunner) ApplyModules(ctx context.Context, tenantID orchestrator.TenantID, target orchestrator.ConnectionTarget, modules []string) ([]orchestrator.ModuleResult, error) {
	m.mu.Lock()
	m.ApplyModulesCalls = append(m.ApplyModulesCalls, ApplyModulesCall{
		TenantID: tenantID,
		Target:   target,
		Modules:  append([]string(nil), modules...),
	})
	m.mu.Unlock()

	if m.ApplyModulesFunc != nil {
		return m.ApplyModulesFunc(ctx, tenantID, target, modules)
	}

	results := make([]orchestrator.ModuleResult, len(modules))
	for i, module := range modules {
		results[i] = orchestrator.ModuleResult{Module: module, Applied: []string{}}
	}
	return results, nil
}

// Revert implements the Runner interface.
func (m *MockRunner) Revert(ctx context.Context, tenantID orchestrator.TenantID, target orchestrator.ConnectionTarget, module, migration string) (string, error) {
	m.mu.Lock()
	m.RevertCalls = append(m.RevertCalls, RevertCall{
		TenantID:  tenantID,
		Target:    target,
		Module:    module,
		Migration: migration,
	})
	m.mu.Unlock()

	if m.RevertFunc != nil {
		return m.RevertFunc(ctx, tenantID, target, module, migration)
	}
	return "", nil
}

// Reset clears the call history.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplyModulesCalls = nil
	m.RevertCalls = nil
}
