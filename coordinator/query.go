package coordinator

import (
	"context"
	"fmt"

	"github.com/getpup/migration-orchestrator"
	"golang.org/x/sync/errgroup"
)

// GetMigrationHistory implements orchestrator.Orchestrator.
func (c *Coordinator) GetMigrationHistory(ctx context.Context, tenantID orchestrator.TenantID) ([]orchestrator.HistoryRecord, error) {
	records, err := c.config.Store.ListHistory(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration history: %w", err)
	}
	return records, nil
}

// GetPendingMigrations implements orchestrator.Orchestrator.
// It is read-only and takes no locks. A tenant whose status cannot be
// computed gets its Error set; the other rows are unaffected.
func (c *Coordinator) GetPendingMigrations(ctx context.Context) ([]orchestrator.TenantMigrationStatus, error) {
	settings, err := c.settings(ctx)
	if err != nil {
		return nil, err
	}

	tenants, err := c.config.Tenants.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	statuses := make([]orchestrator.TenantMigrationStatus, len(tenants))

	var g errgroup.Group
	g.SetLimit(settings.MaxConcurrency)
	for i, t := range tenants {
		g.Go(func() error {
			statuses[i] = c.pendingFor(ctx, settings, t)
			return nil
		})
	}
	_ = g.Wait()

	return statuses, nil
}

func (c *Coordinator) pendingFor(ctx context.Context, settings orchestrator.Settings, t orchestrator.Tenant) orchestrator.TenantMigrationStatus {
	status := orchestrator.TenantMigrationStatus{
		TenantID:   t.ID,
		TenantName: t.Name,
		TenantCode: t.Code,
		Pending:    []orchestrator.ModuleMigrations{},
	}

	_, target, err := c.config.Tenants.Resolve(ctx, t.ID)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	modules, _ := resolveModules(t, orchestrator.All(), settings)
	for _, module := range modules {
		pending, err := c.config.Engine.PendingFor(ctx, target, module)
		if err != nil {
			status.Error = fmt.Sprintf("module %s: %v", module, err)
			if c.config.Logger != nil {
				c.config.Logger.Error(ctx, "failed to read pending migrations", "tenantID", t.ID, "module", module, "error", err)
			}
			return status
		}
		if len(pending) > 0 {
			status.Pending = append(status.Pending, orchestrator.ModuleMigrations{Module: module, Migrations: pending})
			status.HasPending = true
		}
	}

	return status
}

// GetMigrationSettings implements orchestrator.Orchestrator.
func (c *Coordinator) GetMigrationSettings(ctx context.Context) (orchestrator.Settings, error) {
	return c.settings(ctx)
}

// UpdateMigrationSettings implements orchestrator.Orchestrator.
func (c *Coordinator) UpdateMigrationSettings(ctx context.Context, settings orchestrator.Settings) (orchestrator.Settings, error) {
	if err := settings.Validate(); err != nil {
		return orchestrator.Settings{}, err
	}

	if err := c.config.Store.SaveSettings(ctx, settings); err != nil {
		return orchestrator.Settings{}, fmt.Errorf("failed to save migration settings: %w", err)
	}

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "migration settings updated", "maxConcurrency", settings.MaxConcurrency, "defaultModules", settings.DefaultModules)
	}
	return settings, nil
}
