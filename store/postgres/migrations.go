package postgres

import "fmt"

// TableConfig configures the table names used by the orchestrator.
type TableConfig struct {
	// SchedulesTable is the name of the table storing scheduled migrations.
	SchedulesTable string

	// HistoryTable is the name of the append-only migration history table.
	HistoryTable string

	// SettingsTable is the name of the single-row settings table.
	SettingsTable string

	// LocksTable is the name of the tenant lease table used by lock/postgres.
	LocksTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		SchedulesTable: "scheduled_migrations",
		HistoryTable:   "migration_history",
		SettingsTable:  "migration_settings",
		LocksTable:     "tenant_locks",
	}
}

// MigrationUp returns the SQL to create orchestrator tables.
// It creates the scheduled migrations table with an index on active records,
// the history table with an index on (tenant_id, applied_at DESC),
// the singleton settings table, and the tenant lease table.
func MigrationUp(config TableConfig) string {
	return fmt.Sprintf(`-- Create scheduled migrations table
CREATE TABLE %[1]s (
    schedule_id UUID PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    scheduled_time TIMESTAMPTZ NOT NULL,
    migration_scope TEXT NOT NULL DEFAULT '*',
    module_scope TEXT NOT NULL DEFAULT '*',
    status TEXT NOT NULL DEFAULT 'pending',
    created_by TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    executed_at TIMESTAMPTZ,
    error TEXT NOT NULL DEFAULT '',
    external_job_id TEXT NOT NULL DEFAULT ''
);

-- Index for listing active schedules in trigger order
CREATE INDEX idx_%[1]s_active ON %[1]s(scheduled_time) WHERE status IN ('pending', 'running');

-- Create append-only migration history table
CREATE TABLE %[2]s (
    id UUID PRIMARY KEY,
    seq BIGSERIAL NOT NULL,
    tenant_id TEXT NOT NULL,
    module_name TEXT NOT NULL,
    migration_name TEXT NOT NULL DEFAULT '',
    operation TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    outcome TEXT NOT NULL,
    error_message TEXT,
    duration_ms BIGINT NOT NULL DEFAULT 0
);

-- Index for reading a tenant's history newest first
CREATE INDEX idx_%[2]s_tenant ON %[2]s(tenant_id, applied_at DESC, seq DESC);

-- Create singleton settings table
CREATE TABLE %[3]s (
    id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    settings JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Create tenant lease table
CREATE TABLE %[4]s (
    lock_key TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
`, config.SchedulesTable, config.HistoryTable, config.SettingsTable, config.LocksTable)
}

// MigrationDown returns the SQL to drop orchestrator tables.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`-- Drop tenant lease table
DROP TABLE IF EXISTS %s;

-- Drop settings table
DROP TABLE IF EXISTS %s;

-- Drop migration history table
DROP TABLE IF EXISTS %s;

-- Drop scheduled migrations table
DROP TABLE IF EXISTS %s;
`, config.LocksTable, config.SettingsTable, config.HistoryTable, config.SchedulesTable)
}
