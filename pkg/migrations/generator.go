package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// validateConfig validates all identifiers interpolated into the generated SQL.
func validateConfig(config *Config) error {
	fields := []struct {
		value, name string
	}{
		{config.SchemaName, "SchemaName"},
		{config.SchedulesTable, "SchedulesTable"},
		{config.HistoryTable, "HistoryTable"},
		{config.SettingsTable, "SettingsTable"},
		{config.LocksTable, "LocksTable"},
		{config.TenantsTable, "TenantsTable"},
	}
	for _, f := range fields {
		if err := validateIdentifier(f.value, f.name); err != nil {
			return err
		}
	}
	return nil
}

// Config configures migration generation for the orchestrator tables.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// SchemaName is the database schema name (PostgreSQL) or database name (MySQL).
	// For SQLite it becomes a table name prefix (e.g., orchestrator_migration_history).
	SchemaName string

	// SchedulesTable stores scheduled migrations and their status
	SchedulesTable string

	// HistoryTable is the append-only migration history
	HistoryTable string

	// SettingsTable holds the single settings row
	SettingsTable string

	// LocksTable holds per-tenant execution leases
	LocksTable string

	// TenantsTable is the tenant directory
	TenantsTable string
}

// DefaultConfig returns the default configuration for orchestrator migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_migration_orchestrator.sql", timestamp),
		SchemaName:     "orchestrator",
		SchedulesTable: "scheduled_migrations",
		HistoryTable:   "migration_history",
		SettingsTable:  "migration_settings",
		LocksTable:     "tenant_locks",
		TenantsTable:   "tenants",
	}
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return generate(config, generatePostgresSQL)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return generate(config, generateMySQLSQL)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return generate(config, generateSQLiteSQL)
}

func generate(config *Config, render func(*Config) string) error {
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(render(config)), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generatePostgresSQL(config *Config) string {
	return fmt.Sprintf(`-- Migration Orchestrator Control-Plane Migration
-- Generated: %[1]s
-- Database: PostgreSQL

CREATE SCHEMA IF NOT EXISTS %[2]s;

-- Scheduled migrations move pending -> running -> completed|failed,
-- or pending -> cancelled. Transitions are compare-and-set on status.
CREATE TABLE IF NOT EXISTS %[2]s.%[3]s (
    schedule_id UUID PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    scheduled_time TIMESTAMPTZ NOT NULL,
    migration_scope TEXT NOT NULL DEFAULT '*',
    module_scope TEXT NOT NULL DEFAULT '*',
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
    created_by TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    executed_at TIMESTAMPTZ,
    error TEXT NOT NULL DEFAULT '',
    external_job_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_%[3]s_active
    ON %[2]s.%[3]s (scheduled_time) WHERE status IN ('pending', 'running');

-- One row per engine call, never updated
CREATE TABLE IF NOT EXISTS %[2]s.%[4]s (
    id UUID PRIMARY KEY,
    seq BIGSERIAL NOT NULL,
    tenant_id TEXT NOT NULL,
    module_name TEXT NOT NULL,
    migration_name TEXT NOT NULL DEFAULT '',
    operation TEXT NOT NULL CHECK (operation IN ('apply', 'rollback')),
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    outcome TEXT NOT NULL CHECK (outcome IN ('success', 'failure')),
    error_message TEXT,
    duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_%[4]s_tenant
    ON %[2]s.%[4]s (tenant_id, applied_at DESC, seq DESC);

-- Singleton settings row
CREATE TABLE IF NOT EXISTS %[2]s.%[5]s (
    id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    settings JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Per-tenant execution leases
CREATE TABLE IF NOT EXISTS %[2]s.%[6]s (
    lock_key TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS %[2]s.%[7]s (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    code TEXT NOT NULL DEFAULT '',
    modules TEXT[] NOT NULL DEFAULT '{}',
    database_name TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_%[7]s_active
    ON %[2]s.%[7]s (id) WHERE active;
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.SchedulesTable,
		config.HistoryTable,
		config.SettingsTable,
		config.LocksTable,
		config.TenantsTable,
	)
}

func generateMySQLSQL(config *Config) string {
	return fmt.Sprintf(`-- Migration Orchestrator Control-Plane Migration
-- Generated: %[1]s
-- Database: MySQL/MariaDB

-- MySQL has no schemas; the orchestrator gets its own database
CREATE DATABASE IF NOT EXISTS %[2]s
    DEFAULT CHARACTER SET utf8mb4
    DEFAULT COLLATE utf8mb4_unicode_ci;

USE %[2]s;

CREATE TABLE IF NOT EXISTS %[3]s (
    schedule_id CHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(255) NOT NULL,
    scheduled_time TIMESTAMP(6) NOT NULL,
    migration_scope VARCHAR(255) NOT NULL DEFAULT '*',
    module_scope VARCHAR(255) NOT NULL DEFAULT '*',
    status ENUM('pending', 'running', 'completed', 'failed', 'cancelled') NOT NULL DEFAULT 'pending',
    created_by VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    executed_at TIMESTAMP(6) NULL,
    error TEXT,
    external_job_id VARCHAR(255) NOT NULL DEFAULT ''
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

CREATE INDEX idx_%[3]s_status
    ON %[3]s (status, scheduled_time);

CREATE TABLE IF NOT EXISTS %[4]s (
    id CHAR(36) PRIMARY KEY,
    seq BIGINT NOT NULL AUTO_INCREMENT UNIQUE,
    tenant_id VARCHAR(255) NOT NULL,
    module_name VARCHAR(255) NOT NULL,
    migration_name TEXT,
    operation ENUM('apply', 'rollback') NOT NULL,
    applied_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    outcome ENUM('success', 'failure') NOT NULL,
    error_message TEXT,
    duration_ms BIGINT NOT NULL DEFAULT 0
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

CREATE INDEX idx_%[4]s_tenant
    ON %[4]s (tenant_id, applied_at DESC, seq DESC);

CREATE TABLE IF NOT EXISTS %[5]s (
    id TINYINT PRIMARY KEY DEFAULT 1,
    settings JSON NOT NULL,
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),

    CHECK (id = 1)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

CREATE TABLE IF NOT EXISTS %[6]s (
    lock_key VARCHAR(255) PRIMARY KEY,
    owner_id VARCHAR(255) NOT NULL,
    expires_at TIMESTAMP(6) NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

CREATE TABLE IF NOT EXISTS %[7]s (
    id VARCHAR(255) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    code VARCHAR(255) NOT NULL DEFAULT '',
    modules TEXT,
    database_name VARCHAR(255) NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

CREATE INDEX idx_%[7]s_active
    ON %[7]s (active, id);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.SchedulesTable,
		config.HistoryTable,
		config.SettingsTable,
		config.LocksTable,
		config.TenantsTable,
	)
}

func generateSQLiteSQL(config *Config) string {
	// SQLite doesn't support schemas, so we use table name prefixes instead
	prefix := config.SchemaName + "_"

	return fmt.Sprintf(`-- Migration Orchestrator Control-Plane Migration
-- Generated: %[1]s
-- Database: SQLite

CREATE TABLE IF NOT EXISTS %[2]s (
    schedule_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    scheduled_time TEXT NOT NULL,
    migration_scope TEXT NOT NULL DEFAULT '*',
    module_scope TEXT NOT NULL DEFAULT '*',
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
    created_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    executed_at TEXT,
    error TEXT NOT NULL DEFAULT '',
    external_job_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_%[2]s_active
    ON %[2]s (scheduled_time) WHERE status IN ('pending', 'running');

CREATE TABLE IF NOT EXISTS %[3]s (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    tenant_id TEXT NOT NULL,
    module_name TEXT NOT NULL,
    migration_name TEXT NOT NULL DEFAULT '',
    operation TEXT NOT NULL CHECK (operation IN ('apply', 'rollback')),
    applied_at TEXT NOT NULL DEFAULT (datetime('now')),
    outcome TEXT NOT NULL CHECK (outcome IN ('success', 'failure')),
    error_message TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_%[3]s_tenant
    ON %[3]s (tenant_id, applied_at DESC, seq DESC);

CREATE TABLE IF NOT EXISTS %[4]s (
    id INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    settings TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS %[5]s (
    lock_key TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    expires_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS %[6]s (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    code TEXT NOT NULL DEFAULT '',
    modules TEXT NOT NULL DEFAULT '',
    database_name TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_%[6]s_active
    ON %[6]s (id) WHERE active = 1;
`,
		time.Now().Format(time.RFC3339),
		prefix+config.SchedulesTable,
		prefix+config.HistoryTable,
		prefix+config.SettingsTable,
		prefix+config.LocksTable,
		prefix+config.TenantsTable,
	)
}
