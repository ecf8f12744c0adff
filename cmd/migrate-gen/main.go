// Command migrate-gen generates the SQL migration file for the orchestrator's
// control-plane tables.
//
// Usage:
//
//	go run github.com/getpup/migration-orchestrator/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/migration-orchestrator/cmd/migrate-gen -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/getpup/migration-orchestrator/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/getpup/migration-orchestrator/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/getpup/migration-orchestrator/cmd/migrate-gen -adapter sqlite -output migrations
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/migration-orchestrator/pkg/migrations"
)

func main() {
	var (
		adapter        = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder   = flag.String("output", "migrations", "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		schemaName     = flag.String("schema", "orchestrator", "Schema name (PostgreSQL) or database name (MySQL)")
		schedulesTable = flag.String("schedules-table", "scheduled_migrations", "Name of scheduled migrations table")
		historyTable   = flag.String("history-table", "migration_history", "Name of migration history table")
		settingsTable  = flag.String("settings-table", "migration_settings", "Name of settings table")
		locksTable     = flag.String("locks-table", "tenant_locks", "Name of tenant lease table")
		tenantsTable   = flag.String("tenants-table", "tenants", "Name of tenant directory table")
	)

	flag.Parse()

	config := migrations.DefaultConfig()
	config.OutputFolder = *outputFolder
	config.SchemaName = *schemaName
	config.SchedulesTable = *schedulesTable
	config.HistoryTable = *historyTable
	config.SettingsTable = *settingsTable
	config.LocksTable = *locksTable
	config.TenantsTable = *tenantsTable

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	var err error
	switch *adapter {
	case "postgres":
		err = migrations.GeneratePostgres(&config)
	case "mysql":
		err = migrations.GenerateMySQL(&config)
	case "sqlite":
		err = migrations.GenerateSQLite(&config)
	default:
		fmt.Fprintf(os.Stderr, "Error: unsupported adapter '%s'. Supported adapters are: postgres, mysql, sqlite\n", *adapter)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
