package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/engine"
	"github.com/getpup/migration-orchestrator/store"
	"github.com/getpup/migration-orchestrator/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger captures log calls for testing
type mockLogger struct {
	mu    sync.Mutex
	calls []logCall
}

type logCall struct {
	level   string
	message string
	args    []interface{}
}

func newMockLogger() *mockLogger {
	return &mockLogger{}
}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	m.record("debug", msg, args)
}

func (m *mockLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	m.record("info", msg, args)
}

func (m *mockLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	m.record("error", msg, args)
}

func (m *mockLogger) record(level, msg string, args []interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, logCall{level: level, message: msg, args: args})
}

func (m *mockLogger) messages(level string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var msgs []string
	for _, c := range m.calls {
		if c.level == level {
			msgs = append(msgs, c.message)
		}
	}
	return msgs
}

// steppingClock advances by step on every call.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

var target = orchestrator.ConnectionTarget{DSN: "postgres://tenant", Database: "tenant"}

func TestNew_AppliesDefaultClock(t *testing.T) {
	executor := New(Config{})

	assert.NotNil(t, executor.config.Now)
}

func TestNew_PreservesLogger(t *testing.T) {
	logger := newMockLogger()

	executor := New(Config{Logger: logger})

	assert.Equal(t, logger, executor.config.Logger)
}

func TestApplyModules_RecordsOneHistoryRecordPerModule(t *testing.T) {
	eng := engine.NewMockEngine()
	eng.ApplyFunc = func(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error) {
		if module == "core" {
			return []string{"1_a", "2_b"}, nil
		}
		return nil, nil
	}
	history := memory.New()
	clock := &steppingClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: 250 * time.Millisecond}
	executor := New(Config{Engine: eng, History: history, Now: clock.Now})

	results, err := executor.ApplyModules(context.Background(), "t1", target, []string{"core", "billing"})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, []string{"1_a", "2_b"}, results[0].Applied)
	assert.Empty(t, results[1].Applied)
	assert.NotNil(t, results[1].Applied)

	records, err := history.ListHistory(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	core := records[1]
	assert.Equal(t, "core", core.ModuleName)
	assert.Equal(t, "1_a,2_b", core.MigrationName)
	assert.Equal(t, orchestrator.OperationApply, core.Operation)
	assert.Equal(t, orchestrator.OutcomeSuccess, core.Outcome)
	assert.Equal(t, int64(250), core.DurationMs)

	assert.Equal(t, "billing", records[0].ModuleName)
	assert.Equal(t, "", records[0].MigrationName)
}

func TestApplyModules_FailureDoesNotSkipLaterModules(t *testing.T) {
	eng := engine.NewMockEngine()
	boom := errors.New("syntax error at or near TABLE")
	eng.ApplyFunc = func(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error) {
		if module == "core" {
			return []string{"1_a"}, boom
		}
		return []string{"1_x"}, nil
	}
	history := memory.New()
	logger := newMockLogger()
	executor := New(Config{Engine: eng, History: history, Logger: logger})

	results, err := executor.ApplyModules(context.Background(), "t1", target, []string{"core", "billing"})

	require.Error(t, err)
	assert.ErrorIs(t, err, orchestrator.ErrEngineFailure)
	assert.ErrorIs(t, err, boom)

	var engErr *orchestrator.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "core", engErr.Module)

	require.Len(t, results, 2)
	assert.Equal(t, []string{"1_a"}, results[0].Applied, "partial progress is reported")
	assert.Contains(t, results[0].Error, "syntax error")
	assert.Equal(t, []string{"1_x"}, results[1].Applied)
	assert.Empty(t, results[1].Error)

	records, err := history.ListHistory(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, orchestrator.OutcomeFailure, records[1].Outcome)
	assert.Contains(t, records[1].ErrorMessage, "syntax error")

	assert.Contains(t, logger.messages("error"), "engine call failed")
}

func TestApplyModules_SkipsModulesAfterContextEnds(t *testing.T) {
	eng := engine.NewMockEngine()
	ctx, cancel := context.WithCancel(context.Background())
	eng.ApplyFunc = func(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error) {
		cancel()
		return []string{"1_a"}, nil
	}
	history := memory.New()
	executor := New(Config{Engine: eng, History: history})

	results, err := executor.ApplyModules(ctx, "t1", target, []string{"core", "billing"})

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	assert.Empty(t, results[0].Error)
	assert.Contains(t, results[1].Error, "skipped")
	assert.Equal(t, 1, eng.ApplyCount())

	records, err := history.ListHistory(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, records, 1, "history is written even though ctx is cancelled")
}

func TestApplyModules_HistoryFailureIsReported(t *testing.T) {
	eng := engine.NewMockEngine()
	history := store.NewMockStore()
	history.AppendHistoryFunc = func(ctx context.Context, rec orchestrator.HistoryRecord) (orchestrator.HistoryRecord, error) {
		return orchestrator.HistoryRecord{}, errors.New("connection refused")
	}
	executor := New(Config{Engine: eng, History: history})

	_, err := executor.ApplyModules(context.Background(), "t1", target, []string{"core"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record migration history")
	assert.Equal(t, orchestrator.CodeInternal, orchestrator.CodeOf(err))
}

func TestRevert_RecordsRollbackHistory(t *testing.T) {
	eng := engine.NewMockEngine()
	eng.RevertFunc = func(ctx context.Context, target orchestrator.ConnectionTarget, module, migration string) (string, error) {
		return "1_a", nil
	}
	history := memory.New()
	executor := New(Config{Engine: eng, History: history})

	previous, err := executor.Revert(context.Background(), "t1", target, "core", "2_b")
	require.NoError(t, err)
	assert.Equal(t, "1_a", previous)

	records, err := history.ListHistory(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, orchestrator.OperationRollback, records[0].Operation)
	assert.Equal(t, "2_b", records[0].MigrationName)
	assert.Equal(t, orchestrator.OutcomeSuccess, records[0].Outcome)
}

func TestRevert_EngineRejectionIsEngineFailure(t *testing.T) {
	eng := engine.NewMockEngine()
	eng.RevertFunc = func(ctx context.Context, target orchestrator.ConnectionTarget, module, migration string) (string, error) {
		return "", engine.ErrHasDependents
	}
	history := memory.New()
	executor := New(Config{Engine: eng, History: history})

	_, err := executor.Revert(context.Background(), "t1", target, "core", "1_a")

	assert.ErrorIs(t, err, engine.ErrHasDependents)
	assert.Equal(t, orchestrator.CodeEngineFailure, orchestrator.CodeOf(err))

	records, err := history.ListHistory(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, orchestrator.OutcomeFailure, records[0].Outcome)
}
