package lock

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresDistributedLockManager(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mgr := NewPostgresDistributedLockManager(db)
	require.NotNil(t, mgr)
	var _ DistributedLockManager = mgr
}

func TestPostgresDistributedLockManager_TryAcquireAndRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mgr := NewPostgresDistributedLockManager(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT pg_try_advisory_lock\\(hashtext\\(\\$1\\)\\)").
		WithArgs("hexcron:job:war_finisher").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock\\(hashtext\\(\\$1\\)\\)").
		WithArgs("hexcron:job:war_finisher").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := mgr.TryAcquire(ctx, "hexcron:job:war_finisher")
	require.NoError(t, err)
	assert.True(t, ok)

	// Held locally, so the second attempt does not touch the database.
	ok, err = mgr.TryAcquire(ctx, "hexcron:job:war_finisher")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mgr.Release(ctx, "hexcron:job:war_finisher"))
	require.NoError(t, mgr.Release(ctx, "hexcron:job:war_finisher"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDistributedLockManager_TryAcquire_HeldElsewhere(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs("hexcron:job:mission_generator").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := NewPostgresDistributedLockManager(db).TryAcquire(context.Background(), "hexcron:job:mission_generator")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDistributedLockManager_TryAcquire_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnError(sql.ErrConnDone)

	_, err = NewPostgresDistributedLockManager(db).TryAcquire(context.Background(), "k")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to acquire lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDistributedLockManager_Release_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mgr := NewPostgresDistributedLockManager(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WillReturnError(sql.ErrConnDone)

	ok, err := mgr.TryAcquire(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	err = mgr.Release(ctx, "k")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to release lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNopLockManager(t *testing.T) {
	var mgr DistributedLockManager = NopLockManager{}
	ok, err := mgr.TryAcquire(context.Background(), "any")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mgr.Release(context.Background(), "any"))
}
