// Package coordinator implements orchestrator.Orchestrator.
//
// The Coordinator is the only writer of the schedule and history stores. It
// resolves tenants and module scopes, serializes work per tenant through a
// TenantGuard, fans fleet-wide runs out over a bounded worker pool and drives
// the scheduled migration state machine.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/engine"
	"github.com/getpup/migration-orchestrator/executor"
	"github.com/getpup/migration-orchestrator/metrics"
	"github.com/getpup/migration-orchestrator/notify"
	"github.com/getpup/migration-orchestrator/scheduler"
	"github.com/getpup/migration-orchestrator/store"
	"github.com/getpup/migration-orchestrator/tenant"
	"github.com/getpup/pupsourcing/es"
)

// TenantGuard runs work while holding a tenant's exclusive lease.
// lifecycle.Manager is the production implementation.
type TenantGuard interface {
	Guard(ctx context.Context, tenantID orchestrator.TenantID, fn func(ctx context.Context) error) error
}

// Config holds configuration for the Coordinator.
type Config struct {
	// Tenants resolves tenants and connection targets (required).
	Tenants tenant.Directory

	// Engine answers read-only questions: previews and pending lists (required).
	Engine engine.Engine

	// Runner executes apply and rollback calls and records history (required).
	Runner executor.Runner

	// Store persists schedules, history and settings (required).
	Store store.Store

	// Guard serializes work per tenant (required).
	Guard TenantGuard

	// Scheduler registers scheduled migration triggers (required for scheduling).
	Scheduler scheduler.JobScheduler

	// Notifier receives outcome notifications (default: notify.Nop).
	Notifier notify.Notifier

	// PreviewDurationPerTable scales a preview's estimated duration (default: 2s).
	PreviewDurationPerTable time.Duration

	// Metrics is an optional metrics collector.
	Metrics *metrics.Collector

	// Now returns the current time (default: time.Now).
	Now func() time.Time

	// Logger is for observability (optional).
	Logger es.Logger
}

// Coordinator implements orchestrator.Orchestrator.
type Coordinator struct {
	config Config
}

var _ orchestrator.Orchestrator = (*Coordinator)(nil)

// New creates a new Coordinator with the given configuration.
// Applies default values for Notifier, PreviewDurationPerTable and Now if not set.
func New(cfg Config) *Coordinator {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.PreviewDurationPerTable == 0 {
		cfg.PreviewDurationPerTable = 2 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Coordinator{
		config: cfg,
	}
}

// resolveModules expands a module scope for a tenant. A named module must be
// enabled for the tenant; All selects the default modules the tenant has.
func resolveModules(t orchestrator.Tenant, module orchestrator.Scope, settings orchestrator.Settings) ([]string, error) {
	if !module.IsAll() {
		if !t.HasModule(module.Name()) {
			return nil, fmt.Errorf("%w: %s for tenant %s", orchestrator.ErrModuleNotEnabled, module.Name(), t.ID)
		}
		return []string{module.Name()}, nil
	}

	modules := make([]string, 0, len(settings.DefaultModules))
	for _, m := range settings.DefaultModules {
		if t.HasModule(m) {
			modules = append(modules, m)
		}
	}
	return modules, nil
}

// guard runs fn under the tenant's lease and keeps the lock metrics.
func (c *Coordinator) guard(ctx context.Context, tenantID orchestrator.TenantID, fn func(ctx context.Context) error) error {
	err := c.config.Guard.Guard(ctx, tenantID, func(ctx context.Context) error {
		c.config.Metrics.TenantStarted()
		defer c.config.Metrics.TenantFinished()
		return fn(ctx)
	})
	if orchestrator.CodeOf(err) == orchestrator.CodeConflict {
		c.config.Metrics.IncLockConflicts()
	}
	return err
}

func (c *Coordinator) settings(ctx context.Context) (orchestrator.Settings, error) {
	settings, err := c.config.Store.GetSettings(ctx)
	if err != nil {
		return orchestrator.Settings{}, fmt.Errorf("failed to load migration settings: %w", err)
	}
	return settings, nil
}

func (c *Coordinator) notify(ctx context.Context, settings orchestrator.Settings, event notify.Event) {
	if event.Kind == notify.KindCompleted && !settings.NotifyOnMigrationComplete {
		return
	}
	if event.Kind == notify.KindFailed && !settings.NotifyOnMigrationFailure {
		return
	}

	event.Recipients = settings.NotificationEmails
	event.OccurredAt = c.config.Now().UTC()

	if err := c.config.Notifier.Notify(context.WithoutCancel(ctx), event); err != nil && c.config.Logger != nil {
		c.config.Logger.Error(ctx, "failed to send migration notification", "kind", event.Kind, "tenantID", event.TenantID, "error", err)
	}
}
