//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/getpup/migration-orchestrator/lock"
	lockpg "github.com/getpup/migration-orchestrator/lock/postgres"
	pgstore "github.com/getpup/migration-orchestrator/store/postgres"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	config := pgstore.DefaultTableConfig()
	if _, err := db.Exec(pgstore.MigrationDown(config)); err != nil {
		t.Logf("warning: failed to drop tables (may not exist): %v", err)
	}
	if _, err := db.Exec(pgstore.MigrationUp(config)); err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}

	return db
}

func TestLeaseExclusivity(t *testing.T) {
	l := lockpg.New(getTestDB(t))
	ctx := context.Background()
	key := lock.TenantKey("tenant-1")

	held, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	require.NoError(t, held.Refresh(ctx, time.Minute))
	require.NoError(t, held.Release(ctx))

	again, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, held.Owner(), again.Owner())
	require.NoError(t, again.Release(ctx))
}

func TestExpiredLeaseTakeover(t *testing.T) {
	l := lockpg.New(getTestDB(t))
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", 200*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)

	fresh, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Refresh(ctx, time.Minute), lock.ErrLeaseLost)
	assert.ErrorIs(t, stale.Release(ctx), lock.ErrLeaseLost)
	require.NoError(t, fresh.Release(ctx))
}
