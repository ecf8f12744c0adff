// Package migrations generates SQL migration files for the orchestrator's
// control-plane tables: scheduled migrations, migration history, the
// settings singleton, tenant leases and the tenant directory. PostgreSQL,
// MySQL/MariaDB and SQLite are supported.
package migrations
