// Package engine defines the contract between the orchestrator and the
// component that actually executes schema changes against a tenant database.
package engine

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getpup/migration-orchestrator"
)

// Engine executes migrations for one module of one tenant database.
// Implementations should honour ctx on a best-effort basis: statements that
// have already been sent to the database are allowed to complete.
type Engine interface {
	// Apply applies every pending migration of module, in order, and returns
	// the names of the applied migrations. An empty result is success.
	Apply(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error)

	// Revert undoes a single applied migration and returns the name of the
	// migration that is current afterwards (empty when none is left).
	// Returns ErrNotApplied or ErrHasDependents when the revert is not possible.
	Revert(ctx context.Context, target orchestrator.ConnectionTarget, module, migration string) (string, error)

	// Preview returns the script of a migration without executing it.
	// Returns ErrMigrationNotFound for unknown migrations.
	Preview(ctx context.Context, target orchestrator.ConnectionTarget, module, migration string) (string, error)

	// PendingFor lists the names of migrations not yet applied, in order.
	PendingFor(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error)
}

var (
	// ErrMigrationNotFound indicates the module has no migration with the given name.
	ErrMigrationNotFound = fmt.Errorf("migration %w", orchestrator.ErrNotFound)

	// ErrModuleNotFound indicates the engine has no migrations for the module.
	ErrModuleNotFound = fmt.Errorf("module %w", orchestrator.ErrNotFound)

	// ErrNotApplied indicates a rollback targeted a migration that is not applied.
	ErrNotApplied = fmt.Errorf("%w: migration is not applied", orchestrator.ErrEngineFailure)

	// ErrHasDependents indicates a rollback targeted a migration that later
	// applied migrations depend on.
	ErrHasDependents = fmt.Errorf("%w: later migrations are applied", orchestrator.ErrEngineFailure)

	// ErrDirty indicates a previous run left the database in a partially
	// migrated state that needs manual repair.
	ErrDirty = fmt.Errorf("%w: database is dirty", orchestrator.ErrEngineFailure)
)

var tableStatement = regexp.MustCompile(`(?i)\b(?:CREATE\s+(?:UNLOGGED\s+|TEMP(?:ORARY)?\s+)?TABLE(?:\s+IF\s+NOT\s+EXISTS)?|ALTER\s+TABLE(?:\s+IF\s+EXISTS)?(?:\s+ONLY)?|DROP\s+TABLE(?:\s+IF\s+EXISTS)?|INSERT\s+INTO|UPDATE|DELETE\s+FROM|TRUNCATE(?:\s+TABLE)?|CREATE\s+(?:UNIQUE\s+)?INDEX(?:\s+CONCURRENTLY)?(?:\s+IF\s+NOT\s+EXISTS)?\s+[\w"]+\s+ON)\s+([\w."]+)`)

// Words that can follow UPDATE in clauses such as ON CONFLICT DO UPDATE SET
// or ON UPDATE CASCADE and are never table names.
var notTables = map[string]struct{}{
	"set":      {},
	"cascade":  {},
	"restrict": {},
	"no":       {},
}

// AffectedTables extracts the names of tables touched by the DDL and DML
// statements of script. Names are unquoted, lower-cased and de-duplicated.
func AffectedTables(script string) []string {
	seen := make(map[string]struct{})
	for _, match := range tableStatement.FindAllStringSubmatch(script, -1) {
		name := strings.ToLower(strings.ReplaceAll(match[1], `"`, ""))
		if _, skip := notTables[name]; skip || name == "" {
			continue
		}
		seen[name] = struct{}{}
	}

	tables := make([]string, 0, len(seen))
	for name := range seen {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}
