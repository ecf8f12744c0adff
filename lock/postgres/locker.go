package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/getpup/migration-orchestrator/lock"
	"github.com/google/uuid"
)

// Locker implements lock.Locker with a lease table in PostgreSQL.
// A row is (lock_key, owner_id, expires_at); a key can be taken when no row
// exists or the existing row has expired. The table is created by
// store/postgres.MigrationUp.
type Locker struct {
	db    *sql.DB
	table string
}

var _ lock.Locker = (*Locker)(nil)

// New creates a Locker using the default lease table name.
func New(db *sql.DB) *Locker {
	return NewWithTable(db, "tenant_locks")
}

// NewWithTable creates a Locker using a custom lease table name.
func NewWithTable(db *sql.DB, table string) *Locker {
	return &Locker{db: db, table: table}
}

// Acquire obtains a lease on key for ttl, taking over an expired lease.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	owner := uuid.New().String()

	query := fmt.Sprintf(`
		INSERT INTO %s (lock_key, owner_id, expires_at)
		VALUES ($1, $2, NOW() + make_interval(secs => $3))
		ON CONFLICT (lock_key) DO UPDATE
		SET owner_id = EXCLUDED.owner_id, expires_at = EXCLUDED.expires_at
		WHERE %s.expires_at < NOW()
		RETURNING owner_id
	`, l.table, l.table)

	var got string
	err := l.db.QueryRowContext(ctx, query, key, owner, ttl.Seconds()).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lock.ErrNotAcquired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}

	return &lease{locker: l, key: key, owner: got}, nil
}

type lease struct {
	locker *Locker
	key    string
	owner  string
}

func (le *lease) Key() string   { return le.key }
func (le *lease) Owner() string { return le.owner }

func (le *lease) Refresh(ctx context.Context, ttl time.Duration) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET expires_at = NOW() + make_interval(secs => $3)
		WHERE lock_key = $1 AND owner_id = $2 AND expires_at >= NOW()
	`, le.locker.table)

	result, err := le.locker.db.ExecContext(ctx, query, le.key, le.owner, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("failed to refresh lease %s: %w", le.key, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return lock.ErrLeaseLost
	}

	return nil
}

func (le *lease) Release(ctx context.Context) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE lock_key = $1 AND owner_id = $2
	`, le.locker.table)

	result, err := le.locker.db.ExecContext(ctx, query, le.key, le.owner)
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", le.key, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return lock.ErrLeaseLost
	}

	return nil
}
