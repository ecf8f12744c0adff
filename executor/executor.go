package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/engine"
	"github.com/getpup/migration-orchestrator/metrics"
	"github.com/getpup/migration-orchestrator/store"
	"github.com/getpup/pupsourcing/es"
)

// Config configures the migration executor.
type Config struct {
	// Engine executes the schema changes (required).
	Engine engine.Engine

	// History receives one record per engine call (required).
	History store.HistoryStore

	// Metrics is an optional metrics collector.
	Metrics *metrics.Collector

	// Now returns the current time (default: time.Now).
	Now func() time.Time

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Executor runs engine calls and records one history record per call,
// whatever the outcome.
type Executor struct {
	config Config
}

// Compile-time check that Executor implements Runner.
var _ Runner = (*Executor)(nil)

// New creates a new Executor with the given configuration.
func New(cfg Config) *Executor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Executor{
		config: cfg,
	}
}

// ApplyModules implements Runner. Modules not started before ctx ends are
// reported as skipped and produce no history record.
func (e *Executor) ApplyModules(ctx context.Context, tenantID orchestrator.TenantID, target orchestrator.ConnectionTarget, modules []string) ([]orchestrator.ModuleResult, error) {
	results := make([]orchestrator.ModuleResult, 0, len(modules))
	var firstErr error

	for _, module := range modules {
		if ctxErr := ctx.Err(); ctxErr != nil {
			results = append(results, orchestrator.ModuleResult{
				Module: module,
				Error:  fmt.Sprintf("skipped: %v", ctxErr),
			})
			if firstErr == nil {
				firstErr = fmt.Errorf("tenant %s: %w", tenantID, ctxErr)
			}
			continue
		}

		applied, err := e.apply(ctx, tenantID, target, module)
		result := orchestrator.ModuleResult{Module: module, Applied: applied}
		if err != nil {
			result.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		}
		results = append(results, result)
	}

	return results, firstErr
}

func (e *Executor) apply(ctx context.Context, tenantID orchestrator.TenantID, target orchestrator.ConnectionTarget, module string) ([]string, error) {
	started := e.config.Now()
	applied, engineErr := e.config.Engine.Apply(ctx, target, module)
	if applied == nil {
		applied = []string{}
	}

	rec := orchestrator.HistoryRecord{
		TenantID:      tenantID,
		ModuleName:    module,
		MigrationName: strings.Join(applied, ","),
		Operation:     orchestrator.OperationApply,
	}
	err := e.finish(ctx, rec, started, len(applied), engineErr)

	if engineErr == nil && e.config.Logger != nil {
		e.config.Logger.Info(ctx, "module applied", "tenantID", tenantID, "module", module, "applied", len(applied))
	}
	return applied, err
}

// Revert implements Runner.
func (e *Executor) Revert(ctx context.Context, tenantID orchestrator.TenantID, target orchestrator.ConnectionTarget, module, migration string) (string, error) {
	started := e.config.Now()
	previous, engineErr := e.config.Engine.Revert(ctx, target, module, migration)

	rec := orchestrator.HistoryRecord{
		TenantID:      tenantID,
		ModuleName:    module,
		MigrationName: migration,
		Operation:     orchestrator.OperationRollback,
	}
	if err := e.finish(ctx, rec, started, 0, engineErr); err != nil {
		return "", err
	}

	if e.config.Logger != nil {
		e.config.Logger.Info(ctx, "migration rolled back", "tenantID", tenantID, "module", module, "migration", migration, "previous", previous)
	}
	return previous, nil
}

// finish completes rec with the call's outcome, appends it to the history
// and feeds metrics. The record is written even if ctx is already done.
func (e *Executor) finish(ctx context.Context, rec orchestrator.HistoryRecord, started time.Time, applied int, engineErr error) error {
	finished := e.config.Now()
	elapsed := finished.Sub(started)

	rec.AppliedAt = finished
	rec.DurationMs = elapsed.Milliseconds()
	rec.Outcome = orchestrator.OutcomeSuccess
	var err error
	if engineErr != nil {
		rec.Outcome = orchestrator.OutcomeFailure
		rec.ErrorMessage = engineErr.Error()
		err = &orchestrator.EngineError{
			TenantID:  rec.TenantID,
			Module:    rec.ModuleName,
			Migration: rec.MigrationName,
			Operation: rec.Operation,
			Err:       engineErr,
		}
		if e.config.Logger != nil {
			e.config.Logger.Error(ctx, "engine call failed", "tenantID", rec.TenantID, "module", rec.ModuleName, "operation", rec.Operation, "error", engineErr)
		}
	}

	e.config.Metrics.ObserveEngineCall(rec.ModuleName, string(rec.Operation), string(rec.Outcome), applied, elapsed.Seconds())

	if _, histErr := e.config.History.AppendHistory(context.WithoutCancel(ctx), rec); histErr != nil {
		if e.config.Logger != nil {
			e.config.Logger.Error(ctx, "failed to record migration history", "tenantID", rec.TenantID, "module", rec.ModuleName, "error", histErr)
		}
		return errors.Join(err, fmt.Errorf("failed to record migration history: %w", histErr))
	}

	return err
}
