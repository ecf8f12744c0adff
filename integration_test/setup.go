//go:build integration

package integration_test

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/getpup/migration-orchestrator/pkg/orchestrator"
	pgstore "github.com/getpup/migration-orchestrator/store/postgres"
	tenantpostgres "github.com/getpup/migration-orchestrator/tenant/postgres"
	_ "github.com/lib/pq"
)

const tenantsTable = "tenants"

// getTestDB returns a database connection for integration tests.
// It reads the DATABASE_URL environment variable and skips the test if not set.
func getTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

// tenantDSNTemplate points every tenant at the test database, isolated in a
// schema named after the tenant's database.
func tenantDSNTemplate() string {
	dbURL := os.Getenv("DATABASE_URL")
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	return dbURL + sep + "search_path=" + tenantpostgres.DatabasePlaceholder
}

// setupTables recreates the orchestrator tables using the default configuration.
func setupTables(t *testing.T, db *sql.DB) {
	t.Helper()

	teardownTables(t, db)
	if err := orchestrator.RunMigrations(db); err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}
}

// cleanupTables truncates the orchestrator tables to clean up test data.
// Errors are logged but don't fail the test (cleanup is best-effort).
func cleanupTables(t *testing.T, db *sql.DB) {
	t.Helper()

	config := pgstore.DefaultTableConfig()
	for _, table := range []string{config.SchedulesTable, config.HistoryTable, config.LocksTable, config.SettingsTable, tenantsTable} {
		if _, err := db.Exec("TRUNCATE " + table); err != nil {
			t.Logf("warning: failed to truncate %s: %v", table, err)
		}
	}
}

// teardownTables drops the orchestrator tables using the default configuration.
// Errors are logged but don't fail the test.
func teardownTables(t *testing.T, db *sql.DB) {
	t.Helper()

	if _, err := db.Exec(pgstore.MigrationDown(pgstore.DefaultTableConfig())); err != nil {
		t.Logf("warning: failed to drop tables: %v", err)
	}
	if _, err := db.Exec(tenantpostgres.MigrationDown(tenantsTable)); err != nil {
		t.Logf("warning: failed to drop tenants table: %v", err)
	}
}

// createTenant registers a tenant and creates its schema. The schema is
// dropped when the test ends.
func createTenant(t *testing.T, db *sql.DB, id string, modules ...string) {
	t.Helper()

	schema := "tenant_" + id
	if _, err := db.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE; CREATE SCHEMA %s", schema, schema)); err != nil {
		t.Fatalf("failed to create schema %s: %v", schema, err)
	}
	t.Cleanup(func() {
		if _, err := db.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
	})

	_, err := db.Exec(
		"INSERT INTO "+tenantsTable+" (id, name, code, modules, database_name) VALUES ($1, $2, $3, $4, $5)",
		id, strings.ToUpper(id[:1])+id[1:], strings.ToUpper(id), "{"+strings.Join(modules, ",")+"}", schema,
	)
	if err != nil {
		t.Fatalf("failed to register tenant %s: %v", id, err)
	}
}

// tableExists reports whether schema.table exists.
func tableExists(t *testing.T, db *sql.DB, schema, table string) bool {
	t.Helper()

	var name sql.NullString
	if err := db.QueryRow("SELECT to_regclass($1)::text", schema+"."+table).Scan(&name); err != nil {
		t.Fatalf("failed to look up %s.%s: %v", schema, table, err)
	}
	return name.Valid
}
