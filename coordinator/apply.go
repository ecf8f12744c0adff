package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/engine"
	"github.com/getpup/migration-orchestrator/notify"
	"golang.org/x/sync/errgroup"
)

// ApplyToTenant implements orchestrator.Orchestrator.
func (c *Coordinator) ApplyToTenant(ctx context.Context, tenantID orchestrator.TenantID, module orchestrator.Scope) (orchestrator.ApplyResult, error) {
	settings, err := c.settings(ctx)
	if err != nil {
		return orchestrator.ApplyResult{TenantID: tenantID}, err
	}
	return c.applyToTenant(ctx, settings, tenantID, module)
}

func (c *Coordinator) applyToTenant(ctx context.Context, settings orchestrator.Settings, tenantID orchestrator.TenantID, module orchestrator.Scope) (orchestrator.ApplyResult, error) {
	result := orchestrator.ApplyResult{TenantID: tenantID}

	t, target, err := c.config.Tenants.Resolve(ctx, tenantID)
	if err != nil {
		return result, err
	}

	modules, err := resolveModules(t, module, settings)
	if err != nil {
		return result, err
	}

	err = c.guard(ctx, tenantID, func(ctx context.Context) error {
		results, err := c.config.Runner.ApplyModules(ctx, tenantID, target, modules)
		result.Modules = results
		return err
	})
	if err != nil {
		if c.config.Logger != nil {
			c.config.Logger.Error(ctx, "tenant migration failed", "tenantID", tenantID, "module", module, "error", err)
		}
		return result, err
	}

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "tenant migrated", "tenantID", tenantID, "modules", len(modules), "applied", len(result.Applied()))
	}
	return result, nil
}

// ApplyToAllTenants implements orchestrator.Orchestrator.
func (c *Coordinator) ApplyToAllTenants(ctx context.Context) (orchestrator.FleetReport, error) {
	report := orchestrator.FleetReport{StartedAt: c.config.Now().UTC()}

	settings, err := c.settings(ctx)
	if err != nil {
		return report, err
	}

	tenants, err := c.config.Tenants.ListTenants(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list tenants: %w", err)
	}

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "fleet migration started", "tenants", len(tenants), "maxConcurrency", settings.MaxConcurrency)
	}

	report.Tenants = make([]orchestrator.TenantReport, len(tenants))

	var g errgroup.Group
	g.SetLimit(settings.MaxConcurrency)
	for i, t := range tenants {
		g.Go(func() error {
			tenantCtx, cancel := context.WithTimeout(ctx, settings.MigrationTimeout())
			defer cancel()

			result, err := c.applyToTenant(tenantCtx, settings, t.ID, orchestrator.All())
			report.Tenants[i] = tenantReport(t, result, err)
			c.config.Metrics.IncFleetTenants(string(report.Tenants[i].Status))
			return nil
		})
	}
	_ = g.Wait()

	report.CompletedAt = c.config.Now().UTC()
	c.config.Metrics.ObserveFleetRunDuration(report.CompletedAt.Sub(report.StartedAt).Seconds())

	failed := len(report.Failed())
	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "fleet migration finished", "tenants", len(tenants), "failed", failed)
	}

	event := notify.Event{Kind: notify.KindCompleted, Failed: failed, Total: len(tenants)}
	if failed > 0 {
		event.Kind = notify.KindFailed
		event.Error = report.Err().Error()
	}
	c.notify(ctx, settings, event)

	return report, nil
}

func tenantReport(t orchestrator.Tenant, result orchestrator.ApplyResult, err error) orchestrator.TenantReport {
	row := orchestrator.TenantReport{
		TenantID:   t.ID,
		TenantName: t.Name,
		Status:     orchestrator.ScheduleStatusCompleted,
		Applied:    result.Applied(),
		ErrorCode:  orchestrator.CodeOK,
	}
	if row.Applied == nil {
		row.Applied = []string{}
	}
	if err != nil {
		row.Status = orchestrator.ScheduleStatusFailed
		row.ErrorCode = orchestrator.CodeOf(err)
		row.ErrorMessage = err.Error()
	}
	return row
}

// RollbackMigration implements orchestrator.Orchestrator.
func (c *Coordinator) RollbackMigration(ctx context.Context, tenantID orchestrator.TenantID, migration, module string) (orchestrator.RollbackResult, error) {
	result := orchestrator.RollbackResult{TenantID: tenantID, Module: module, Migration: migration}

	if migration == "" || module == "" {
		return result, fmt.Errorf("%w: migration and module are required", orchestrator.ErrValidation)
	}

	t, target, err := c.config.Tenants.Resolve(ctx, tenantID)
	if err != nil {
		return result, err
	}
	if !t.HasModule(module) {
		return result, fmt.Errorf("%w: %s for tenant %s", orchestrator.ErrModuleNotEnabled, module, tenantID)
	}

	err = c.guard(ctx, tenantID, func(ctx context.Context) error {
		previous, err := c.config.Runner.Revert(ctx, tenantID, target, module, migration)
		result.PreviousMigration = previous
		return err
	})
	if err != nil {
		return result, err
	}

	return result, nil
}

// GetMigrationScriptPreview implements orchestrator.Orchestrator.
// It takes no lock and writes no history.
func (c *Coordinator) GetMigrationScriptPreview(ctx context.Context, tenantID orchestrator.TenantID, migration, module string) (orchestrator.ScriptPreview, error) {
	preview := orchestrator.ScriptPreview{TenantID: tenantID, Module: module, Migration: migration}

	if migration == "" || module == "" {
		return preview, fmt.Errorf("%w: migration and module are required", orchestrator.ErrValidation)
	}

	_, target, err := c.config.Tenants.Resolve(ctx, tenantID)
	if err != nil {
		return preview, err
	}

	script, err := c.config.Engine.Preview(ctx, target, module, migration)
	if err != nil {
		return preview, fmt.Errorf("failed to preview %s/%s: %w", module, migration, err)
	}

	preview.Script = script
	preview.AffectedTables = engine.AffectedTables(script)
	preview.EstimatedDuration = time.Duration(len(preview.AffectedTables)) * c.config.PreviewDurationPerTable
	return preview, nil
}

// OnTenantRegistered implements orchestrator.Orchestrator.
func (c *Coordinator) OnTenantRegistered(ctx context.Context, tenantID orchestrator.TenantID) error {
	settings, err := c.settings(ctx)
	if err != nil {
		return err
	}

	if !settings.AutoApplyMigrations {
		if c.config.Logger != nil {
			c.config.Logger.Debug(ctx, "auto-apply disabled, skipping new tenant", "tenantID", tenantID)
		}
		return nil
	}

	_, err = c.applyToTenant(ctx, settings, tenantID, orchestrator.All())
	return err
}
