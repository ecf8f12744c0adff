// Package postgres implements tenant.Directory on top of the master database.
//
// The master database holds one row per tenant with the tenant's database
// name. Connection targets are built from a DSN template at resolve time, so
// credentials stay in process configuration rather than in the table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/tenant"
)

// DatabasePlaceholder is replaced by the tenant's database name in DSNTemplate.
const DatabasePlaceholder = "{database}"

// Config configures the master-database directory.
type Config struct {
	// Table is the tenants table (default: "tenants").
	Table string

	// DSNTemplate builds a tenant's DSN, e.g.
	// "postgres://migrator:secret@db:5432/{database}?sslmode=disable" (required).
	DSNTemplate string
}

// Directory reads tenants from the master database.
type Directory struct {
	db     *sql.DB
	config Config
}

var _ tenant.Directory = (*Directory)(nil)

// New creates a new Directory with the given configuration.
func New(db *sql.DB, cfg Config) *Directory {
	if cfg.Table == "" {
		cfg.Table = "tenants"
	}

	return &Directory{
		db:     db,
		config: cfg,
	}
}

// MigrationUp returns the SQL to create the tenants table.
func MigrationUp(table string) string {
	return fmt.Sprintf(`-- Create tenants table
CREATE TABLE %[1]s (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    code TEXT NOT NULL DEFAULT '',
    modules TEXT[] NOT NULL DEFAULT '{}',
    database_name TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE
);

-- Index for listing active tenants
CREATE INDEX idx_%[1]s_active ON %[1]s(id) WHERE active;
`, table)
}

// MigrationDown returns the SQL to drop the tenants table.
func MigrationDown(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;\n", table)
}

// ListTenants returns every active tenant ordered by id.
func (d *Directory) ListTenants(ctx context.Context) ([]orchestrator.Tenant, error) {
	query := fmt.Sprintf(`
		SELECT id, name, code, array_to_string(modules, ','), database_name
		FROM %s
		WHERE active
		ORDER BY id
	`, d.config.Table)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]orchestrator.Tenant, 0)
	for rows.Next() {
		t, _, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}

	return tenants, nil
}

// Resolve implements tenant.Directory.
func (d *Directory) Resolve(ctx context.Context, id orchestrator.TenantID) (orchestrator.Tenant, orchestrator.ConnectionTarget, error) {
	query := fmt.Sprintf(`
		SELECT id, name, code, array_to_string(modules, ','), database_name
		FROM %s
		WHERE id = $1 AND active
	`, d.config.Table)

	t, database, err := scanTenant(d.db.QueryRowContext(ctx, query, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return orchestrator.Tenant{}, orchestrator.ConnectionTarget{}, fmt.Errorf("%w: %s", orchestrator.ErrTenantNotFound, id)
	}
	if err != nil {
		return orchestrator.Tenant{}, orchestrator.ConnectionTarget{}, fmt.Errorf("failed to resolve tenant: %w", err)
	}

	return t, d.Target(database), nil
}

// Target builds the connection target of a tenant database.
func (d *Directory) Target(database string) orchestrator.ConnectionTarget {
	return orchestrator.ConnectionTarget{
		DSN:      strings.ReplaceAll(d.config.DSNTemplate, DatabasePlaceholder, database),
		Database: database,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (orchestrator.Tenant, string, error) {
	var (
		id       string
		modules  string
		database string
		t        orchestrator.Tenant
	)

	if err := row.Scan(&id, &t.Name, &t.Code, &modules, &database); err != nil {
		return orchestrator.Tenant{}, "", err
	}

	t.ID = orchestrator.TenantID(id)
	t.Active = true
	if modules != "" {
		t.Modules = strings.Split(modules, ",")
	}
	return t, database, nil
}
