// Package golangmigrate implements engine.Engine with golang-migrate.
//
// Each module's migrations live in their own directory of an fs.FS
// (<module>/<version>_<name>.up.sql and .down.sql) and are tracked in a
// per-module version table in the tenant database, so modules advance
// independently.
package golangmigrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/engine"
	"github.com/getpup/pupsourcing/es"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Config configures the golang-migrate engine.
type Config struct {
	// Migrations holds one directory per module (required).
	Migrations fs.FS

	// DriverName is the database/sql driver used to open tenant databases (default: "pgx").
	DriverName string

	// TablePrefix prefixes the per-module version table (default: "schema_migrations_").
	TablePrefix string

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Engine applies migrations with golang-migrate.
type Engine struct {
	config Config
}

var _ engine.Engine = (*Engine)(nil)

var moduleName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// New creates a new Engine with the given configuration.
func New(cfg Config) *Engine {
	if cfg.DriverName == "" {
		cfg.DriverName = "pgx"
	}
	if cfg.TablePrefix == "" {
		cfg.TablePrefix = "schema_migrations_"
	}

	return &Engine{config: cfg}
}

// Apply runs every pending up migration of module.
func (e *Engine) Apply(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error) {
	cat, err := e.catalog(module)
	if err != nil {
		return nil, err
	}

	var applied []string
	err = e.withMigrate(ctx, target, module, func(m *migrate.Migrate) error {
		before, hadVersion, err := currentVersion(m)
		if err != nil {
			return err
		}

		if err := e.run(ctx, m, m.Up); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}

		after, hasVersion, err := currentVersion(m)
		if err != nil {
			return err
		}
		if hasVersion {
			applied = cat.between(before, hadVersion, after)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("migration of %s interrupted: %w", module, ctxErr)
		}
		return nil
	})
	if err != nil {
		return applied, err
	}

	if e.config.Logger != nil {
		e.config.Logger.Info(ctx, "module migrated", "database", target.Database, "module", module, "applied", len(applied))
	}
	return applied, nil
}

// Revert undoes migration, which must be the module's current version.
func (e *Engine) Revert(ctx context.Context, target orchestrator.ConnectionTarget, module, migration string) (string, error) {
	cat, err := e.catalog(module)
	if err != nil {
		return "", err
	}

	file, index, ok := cat.find(migration)
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", engine.ErrMigrationNotFound, module, migration)
	}

	var previous string
	err = e.withMigrate(ctx, target, module, func(m *migrate.Migrate) error {
		current, hasVersion, err := currentVersion(m)
		if err != nil {
			return err
		}
		switch {
		case !hasVersion || current < file.Version:
			return fmt.Errorf("%w: %s/%s", engine.ErrNotApplied, module, file.Name())
		case current > file.Version:
			return fmt.Errorf("%w: %s/%s is not the latest applied migration", engine.ErrHasDependents, module, file.Name())
		}

		if err := e.run(ctx, m, func() error { return m.Steps(-1) }); err != nil {
			return err
		}
		previous = cat.previous(index)
		return nil
	})
	if err != nil {
		return "", err
	}

	return previous, nil
}

// Preview returns the up script of migration. It does not touch the database.
func (e *Engine) Preview(ctx context.Context, target orchestrator.ConnectionTarget, module, migration string) (string, error) {
	if err := validModule(module); err != nil {
		return "", err
	}

	src, err := openSource(e.config.Migrations, module)
	if err != nil {
		return "", err
	}
	defer src.Close()

	cat, err := loadCatalog(src)
	if err != nil {
		return "", err
	}

	file, _, ok := cat.find(migration)
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", engine.ErrMigrationNotFound, module, migration)
	}

	return readScript(src, file.Version)
}

// PendingFor lists migrations newer than the module's current version.
func (e *Engine) PendingFor(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error) {
	cat, err := e.catalog(module)
	if err != nil {
		return nil, err
	}

	var pending []string
	err = e.withMigrate(ctx, target, module, func(m *migrate.Migrate) error {
		current, hasVersion, err := currentVersion(m)
		if err != nil {
			return err
		}
		pending = cat.after(current, hasVersion)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return pending, nil
}

func (e *Engine) catalog(module string) (catalog, error) {
	if err := validModule(module); err != nil {
		return catalog{}, err
	}

	src, err := openSource(e.config.Migrations, module)
	if err != nil {
		return catalog{}, err
	}
	defer src.Close()

	return loadCatalog(src)
}

// withMigrate opens the tenant database and a migrate instance scoped to
// module's version table, and closes both after fn returns.
func (e *Engine) withMigrate(ctx context.Context, target orchestrator.ConnectionTarget, module string, fn func(m *migrate.Migrate) error) error {
	db, err := sql.Open(e.config.DriverName, target.DSN)
	if err != nil {
		return fmt.Errorf("failed to open tenant database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to tenant database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: e.config.TablePrefix + module,
		DatabaseName:    target.Database,
	})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	src, err := openSource(e.config.Migrations, module)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, target.Database, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if e.config.Logger != nil {
		m.Log = &migrateLogger{ctx: ctx, logger: e.config.Logger}
	}

	return fn(m)
}

// run executes step, asking golang-migrate to stop after the current
// migration if ctx is cancelled. Statements already sent are not interrupted.
func (e *Engine) run(ctx context.Context, m *migrate.Migrate, step func() error) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			select {
			case m.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	return step()
}

func currentVersion(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, true, fmt.Errorf("%w at version %d", engine.ErrDirty, version)
	}
	return version, true, nil
}

func validModule(module string) error {
	if !moduleName.MatchString(module) {
		return fmt.Errorf("%w: invalid module name %q", engine.ErrModuleNotFound, module)
	}
	return nil
}

// migrateLogger adapts es.Logger to golang-migrate's Logger interface.
type migrateLogger struct {
	ctx    context.Context
	logger es.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(l.ctx, fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
