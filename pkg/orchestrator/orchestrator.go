// Package orchestrator composes a ready-to-use migration orchestrator from
// functional options.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	rootpkg "github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/coordinator"
	"github.com/getpup/migration-orchestrator/engine"
	"github.com/getpup/migration-orchestrator/engine/golangmigrate"
	"github.com/getpup/migration-orchestrator/executor"
	"github.com/getpup/migration-orchestrator/lifecycle"
	"github.com/getpup/migration-orchestrator/lock"
	lockmemory "github.com/getpup/migration-orchestrator/lock/memory"
	lockpostgres "github.com/getpup/migration-orchestrator/lock/postgres"
	"github.com/getpup/migration-orchestrator/metrics"
	"github.com/getpup/migration-orchestrator/notify"
	"github.com/getpup/migration-orchestrator/scheduler"
	"github.com/getpup/migration-orchestrator/store"
	"github.com/getpup/migration-orchestrator/store/memory"
	"github.com/getpup/migration-orchestrator/store/postgres"
	"github.com/getpup/migration-orchestrator/tenant"
	tenantpostgres "github.com/getpup/migration-orchestrator/tenant/postgres"
	"github.com/getpup/pupsourcing/es"
	"golang.org/x/sync/errgroup"
)

// Re-export core types from root package
type (
	// TenantID identifies a tenant.
	TenantID = rootpkg.TenantID

	// Scope selects all modules or migrations, or a single named one.
	Scope = rootpkg.Scope

	// Settings is the stored, mutable orchestrator configuration.
	Settings = rootpkg.Settings

	// ScheduleRequest holds the parameters of a scheduled migration.
	ScheduleRequest = rootpkg.ScheduleRequest
)

// Scheduler registers triggers and delivers them when they fire.
type Scheduler interface {
	scheduler.JobScheduler
	scheduler.Runner
}

// Option configures a Service.
type Option func(*config)

type config struct {
	db                      *sql.DB
	tableConfig             postgres.TableConfig
	tenantsTable            string
	tenantDSNTemplate       string
	tenants                 tenant.Directory
	engine                  engine.Engine
	migrations              fs.FS
	store                   store.Store
	locker                  lock.Locker
	leaseTTL                time.Duration
	scheduler               Scheduler
	notifier                notify.Notifier
	previewDurationPerTable time.Duration
	instance                string
	metricsEnabled          *bool
	sweepInterval           time.Duration
	logger                  es.Logger
}

// Service is a composed orchestrator together with its trigger loop.
type Service struct {
	rootpkg.Orchestrator
	coordinator   *coordinator.Coordinator
	scheduler     Scheduler
	sweepInterval time.Duration
	logger        es.Logger
}

// Run delivers fired triggers to ExecuteScheduledMigration until ctx is
// cancelled. Every process that registers schedules must run it.
//
// Alongside the trigger loop, pending schedules overdue by more than the
// sweep interval get a fresh trigger.
func (s *Service) Run(ctx context.Context) error {
	if s.sweepInterval <= 0 {
		return s.scheduler.Run(ctx, s.ExecuteScheduledMigration)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.scheduler.Run(ctx, s.ExecuteScheduledMigration)
	})
	g.Go(func() error {
		s.sweep(ctx)
		return nil
	})
	return g.Wait()
}

func (s *Service) sweep(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		n, err := s.coordinator.ResumeOverdueSchedules(ctx, s.sweepInterval)
		if err != nil && ctx.Err() == nil && s.logger != nil {
			s.logger.Error(ctx, "overdue schedule sweep failed", "error", err)
		}
		if n > 0 && s.logger != nil {
			s.logger.Info(ctx, "overdue schedules resumed", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// New creates a new Service with the given options.
//
// Required options:
//   - WithTenantDirectory, or WithDatabase plus WithTenantDSNTemplate
//   - WithEngine or WithMigrations
//
// Optional configuration (with defaults):
//   - WithDatabase: PostgreSQL stores and lease lock (default: in-memory)
//   - WithStore: custom store (default: PostgreSQL with WithDatabase, else memory)
//   - WithLocker: custom lease backend (default: PostgreSQL with WithDatabase, else memory)
//   - WithLeaseTTL: tenant lease TTL (default: 30s)
//   - WithScheduler: trigger backend (default: in-process timer)
//   - WithOverdueSweep: how often lost triggers are re-registered (default: 1m)
//   - WithNotifier: outcome notifications (default: none)
//   - WithPreviewDurationPerTable: preview estimate per affected table (default: 2s)
//   - WithInstanceName: metrics instance label (default: "default")
//   - WithMetricsEnabled: enable Prometheus metrics (default: true)
//   - WithTableNames: custom control-plane table names
//   - WithLogger: logger for observability (default: nil)
//
// Example:
//
//	svc, err := orchestrator.New(
//	    orchestrator.WithDatabase(db),
//	    orchestrator.WithTenantDSNTemplate("postgres://migrator@db:5432/{database}"),
//	    orchestrator.WithMigrations(os.DirFS("migrations")),
//	)
//
// Returns an error if any required option is missing.
func New(opts ...Option) (*Service, error) {
	cfg := &config{
		tableConfig:   postgres.DefaultTableConfig(),
		tenantsTable:  "tenants",
		leaseTTL:      30 * time.Second,
		instance:      "default",
		sweepInterval: time.Minute,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.tenants == nil {
		if cfg.db == nil || cfg.tenantDSNTemplate == "" {
			return nil, fmt.Errorf("tenant directory is required: use WithTenantDirectory, or WithDatabase and WithTenantDSNTemplate")
		}
		cfg.tenants = tenantpostgres.New(cfg.db, tenantpostgres.Config{
			Table:       cfg.tenantsTable,
			DSNTemplate: cfg.tenantDSNTemplate,
		})
	}

	if cfg.engine == nil {
		if cfg.migrations == nil {
			return nil, fmt.Errorf("migration engine is required: use WithEngine or WithMigrations")
		}
		cfg.engine = golangmigrate.New(golangmigrate.Config{
			Migrations: cfg.migrations,
			Logger:     cfg.logger,
		})
	}

	if cfg.store == nil {
		if cfg.db != nil {
			cfg.store = postgres.NewWithConfig(cfg.db, cfg.tableConfig)
		} else {
			cfg.store = memory.New()
		}
	}

	if cfg.locker == nil {
		if cfg.db != nil {
			cfg.locker = lockpostgres.NewWithTable(cfg.db, cfg.tableConfig.LocksTable)
		} else {
			cfg.locker = lockmemory.New()
		}
	}

	if cfg.scheduler == nil {
		cfg.scheduler = scheduler.NewTimer(scheduler.TimerConfig{Logger: cfg.logger})
	}

	var collector *metrics.Collector
	if cfg.metricsEnabled == nil || *cfg.metricsEnabled {
		collector = metrics.NewCollector(cfg.instance)
	}

	runner := executor.New(executor.Config{
		Engine:  cfg.engine,
		History: cfg.store,
		Metrics: collector,
		Logger:  cfg.logger,
	})

	guard := lifecycle.New(lifecycle.Config{
		Locker:   cfg.locker,
		LeaseTTL: cfg.leaseTTL,
		Logger:   cfg.logger,
	})

	orch := coordinator.New(coordinator.Config{
		Tenants:                 cfg.tenants,
		Engine:                  cfg.engine,
		Runner:                  runner,
		Store:                   cfg.store,
		Guard:                   guard,
		Scheduler:               cfg.scheduler,
		Notifier:                cfg.notifier,
		PreviewDurationPerTable: cfg.previewDurationPerTable,
		Metrics:                 collector,
		Logger:                  cfg.logger,
	})

	return &Service{
		Orchestrator:  orch,
		coordinator:   orch,
		scheduler:     cfg.scheduler,
		sweepInterval: cfg.sweepInterval,
		logger:        cfg.logger,
	}, nil
}

// WithDatabase sets the master database holding the control-plane tables
// and, unless WithTenantDirectory is given, the tenant directory.
func WithDatabase(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// WithTenantDSNTemplate sets the DSN template of the database-backed tenant
// directory. "{database}" is replaced by the tenant's database name.
func WithTenantDSNTemplate(template string) Option {
	return func(c *config) {
		c.tenantDSNTemplate = template
	}
}

// WithTenantDirectory sets a custom tenant directory.
func WithTenantDirectory(tenants tenant.Directory) Option {
	return func(c *config) {
		c.tenants = tenants
	}
}

// WithEngine sets a custom migration engine.
func WithEngine(e engine.Engine) Option {
	return func(c *config) {
		c.engine = e
	}
}

// WithMigrations uses the golang-migrate engine over migrations, which holds
// one directory per module.
func WithMigrations(migrations fs.FS) Option {
	return func(c *config) {
		c.migrations = migrations
	}
}

// WithStore sets a custom schedule, history and settings store.
func WithStore(s store.Store) Option {
	return func(c *config) {
		c.store = s
	}
}

// WithLocker sets a custom tenant lease backend.
func WithLocker(l lock.Locker) Option {
	return func(c *config) {
		c.locker = l
	}
}

// WithLeaseTTL sets how long a tenant lease survives without a heartbeat.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.leaseTTL = ttl
	}
}

// WithScheduler sets the trigger backend for scheduled migrations.
func WithScheduler(s Scheduler) Option {
	return func(c *config) {
		c.scheduler = s
	}
}

// WithOverdueSweep sets how often Run looks for pending schedules whose
// trigger was lost. A schedule is resumed once it is overdue by more than
// interval. Zero disables the sweep.
func WithOverdueSweep(interval time.Duration) Option {
	return func(c *config) {
		c.sweepInterval = interval
	}
}

// WithNotifier sets where migration outcomes are published.
func WithNotifier(n notify.Notifier) Option {
	return func(c *config) {
		c.notifier = n
	}
}

// WithPreviewDurationPerTable sets the per-table duration used for preview estimates.
func WithPreviewDurationPerTable(d time.Duration) Option {
	return func(c *config) {
		c.previewDurationPerTable = d
	}
}

// WithInstanceName sets the instance label on every metric.
func WithInstanceName(name string) Option {
	return func(c *config) {
		c.instance = name
	}
}

// WithMetricsEnabled enables or disables Prometheus metrics collection.
func WithMetricsEnabled(enabled bool) Option {
	return func(c *config) {
		c.metricsEnabled = &enabled
	}
}

// WithTableNames sets custom control-plane table names. tenantsTable is
// used by the database-backed tenant directory.
func WithTableNames(tables postgres.TableConfig, tenantsTable string) Option {
	return func(c *config) {
		c.tableConfig = tables
		c.tenantsTable = tenantsTable
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger es.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// RunMigrations creates the control-plane and tenant directory tables with
// the default names. It should run once per deployment.
func RunMigrations(db *sql.DB) error {
	return RunMigrationsWithTableNames(db, postgres.DefaultTableConfig(), "tenants")
}

// RunMigrationsWithTableNames creates the tables with custom names.
// Use it together with WithTableNames.
func RunMigrationsWithTableNames(db *sql.DB, tables postgres.TableConfig, tenantsTable string) error {
	if _, err := db.Exec(postgres.MigrationUp(tables)); err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}
	if _, err := db.Exec(tenantpostgres.MigrationUp(tenantsTable)); err != nil {
		return fmt.Errorf("failed to execute tenant directory migration: %w", err)
	}
	return nil
}
