//go:build integration

package golangmigrate

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTarget(t *testing.T) orchestrator.ConnectionTarget {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS invoices",
		"DROP TABLE IF EXISTS accounts",
		"DROP TABLE IF EXISTS payments",
		"DROP TABLE IF EXISTS schema_migrations_core",
		"DROP TABLE IF EXISTS schema_migrations_billing",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	return orchestrator.ConnectionTarget{DSN: dbURL}
}

func TestApplyRevertRoundTrip(t *testing.T) {
	target := testTarget(t)
	e := New(Config{Migrations: testMigrations()})
	ctx := context.Background()

	pending, err := e.PendingFor(ctx, target, "core")
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	applied, err := e.Apply(ctx, target, "core")
	require.NoError(t, err)
	assert.Equal(t, []string{"1_create_accounts", "2_create_invoices", "10_index_invoices"}, applied)

	applied, err = e.Apply(ctx, target, "core")
	require.NoError(t, err)
	assert.Empty(t, applied, "re-applying is a no-op")

	_, err = e.Revert(ctx, target, "core", "2_create_invoices")
	assert.ErrorIs(t, err, engine.ErrHasDependents)

	previous, err := e.Revert(ctx, target, "core", "10_index_invoices")
	require.NoError(t, err)
	assert.Equal(t, "2_create_invoices", previous)

	pending, err = e.PendingFor(ctx, target, "core")
	require.NoError(t, err)
	assert.Equal(t, []string{"10_index_invoices"}, pending)

	_, err = e.Revert(ctx, target, "core", "10_index_invoices")
	assert.ErrorIs(t, err, engine.ErrNotApplied)

	applied, err = e.Apply(ctx, target, "billing")
	require.NoError(t, err)
	assert.Equal(t, []string{"1_create_payments"}, applied, "modules track versions independently")
}
