package lock

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"
)

// PostgresDistributedLockManager uses session level advisory locks. The lock
// belongs to the connection that took it, so each held key pins a *sql.Conn
// until Release.
type PostgresDistributedLockManager struct {
	db *sql.DB

	mu   sync.Mutex
	held map[string]*sql.Conn
}

func NewPostgresDistributedLockManager(db *sql.DB) *PostgresDistributedLockManager {
	return &PostgresDistributedLockManager{
		db:   db,
		held: make(map[string]*sql.Conn),
	}
}

func (l *PostgresDistributedLockManager) TryAcquire(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return false, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to acquire lock connection")
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return false, errors.Wrapf(err, "failed to acquire lock %q", key)
	}
	if !acquired {
		_ = conn.Close()
		return false, nil
	}

	l.held[key] = conn
	return true, nil
}

func (l *PostgresDistributedLockManager) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	conn, ok := l.held[key]
	delete(l.held, key)
	l.mu.Unlock()

	if !ok {
		return nil
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", key); err != nil {
		return errors.Wrapf(err, "failed to release lock %q", key)
	}
	return nil
}
