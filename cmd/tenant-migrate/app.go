package main

import (
	"context"
	"database/sql"
	"os"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/config"
	lockmemory "github.com/getpup/migration-orchestrator/lock/memory"
	lockpostgres "github.com/getpup/migration-orchestrator/lock/postgres"
	lockredis "github.com/getpup/migration-orchestrator/lock/redis"
	"github.com/getpup/migration-orchestrator/logging"
	"github.com/getpup/migration-orchestrator/notify"
	svc "github.com/getpup/migration-orchestrator/pkg/orchestrator"
	schedredis "github.com/getpup/migration-orchestrator/scheduler/redis"
	"github.com/getpup/migration-orchestrator/tenant"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// app holds the composed service and the connections it owns.
type app struct {
	cfg    *config.Config
	logger log.FieldLogger
	svc    *svc.Service
	db     *sql.DB
	rdb    *goredis.Client
}

// loadApp reads configuration from the environment and composes the service.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	return newApp(ctx, cfg, logger.WithField("instance", cfg.InstanceName))
}

func newApp(ctx context.Context, cfg *config.Config, logger log.FieldLogger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	esLogger := logging.NewLogrus(logger)

	opts := []svc.Option{
		svc.WithMigrations(os.DirFS(cfg.MigrationsDir)),
		svc.WithLeaseTTL(cfg.LeaseTTL),
		svc.WithOverdueSweep(cfg.ScheduleSweepInterval),
		svc.WithInstanceName(cfg.InstanceName),
		svc.WithLogger(esLogger),
	}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open master database")
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to connect to master database")
		}
		a.db = db
		opts = append(opts,
			svc.WithDatabase(db),
			svc.WithTenantDSNTemplate(cfg.TenantDSNTemplate),
		)
	} else {
		opts = append(opts, svc.WithTenantDirectory(staticTenants(cfg)))
	}

	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			a.Close()
			return nil, errors.Wrap(err, "failed to connect to redis")
		}
		a.rdb = rdb
	}

	switch cfg.LockBackend {
	case "redis":
		opts = append(opts, svc.WithLocker(lockredis.New(a.rdb, cfg.InstanceName)))
	case "postgres":
		opts = append(opts, svc.WithLocker(lockpostgres.New(a.db)))
	default:
		opts = append(opts, svc.WithLocker(lockmemory.New()))
	}

	if cfg.SchedulerBackend == "redis" {
		opts = append(opts, svc.WithScheduler(schedredis.New(a.rdb, schedredis.Config{
			KeyPrefix:    cfg.SchedulerKeyPrefix,
			PollInterval: cfg.SchedulerPollInterval,
			Concurrency:  cfg.SchedulerConcurrency,
			Logger:       esLogger,
		})))
	}

	if cfg.NotifyChannel != "" {
		opts = append(opts, svc.WithNotifier(notify.NewRedis(a.rdb, notify.RedisConfig{
			Channel: cfg.NotifyChannel,
			Logger:  esLogger,
		})))
	}

	service, err := svc.New(opts...)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to create orchestrator")
	}
	a.svc = service

	logger.WithFields(log.Fields{
		"lock":      cfg.LockBackend,
		"scheduler": cfg.SchedulerBackend,
		"database":  a.db != nil,
	}).Debug("orchestrator composed")

	return a, nil
}

// staticTenants builds a directory from STATIC_TENANTS. Each tenant's
// database is named after its id.
func staticTenants(cfg *config.Config) *tenant.Static {
	directory := tenant.NewStatic()
	for _, id := range cfg.StaticTenantIDs() {
		directory.Put(tenant.Entry{
			Tenant: orchestrator.Tenant{ID: orchestrator.TenantID(id), Name: id, Active: true},
			Target: orchestrator.ConnectionTarget{DSN: cfg.TenantDSN(id), Database: id},
		})
	}
	return directory
}

// ready reports whether the owned connections are reachable.
func (a *app) ready(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return errors.Wrap(err, "master database unreachable")
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "redis unreachable")
		}
	}
	return nil
}

// Close releases the owned connections.
func (a *app) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithError(err).Warn("failed to close master database")
		}
	}
}
