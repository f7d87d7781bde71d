package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hexpgame/hexcron/custom_errors"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return clk
}

func TestNewLedger(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NotNil(t, NewLedger(db, nil))
}

func TestLedger_Reserve(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	clk := newMockClock()
	ledger := NewLedger(db, clk)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE servers").
		WithArgs(int64(1), int64(60), int64(40), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO server_reservations").
		WithArgs(sqlmock.AnyArg(), int64(1), int64(60), int64(40), int64(0), clk.Now()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r, err := ledger.Reserve(context.Background(), 1, types.Resources{CPU: 60, RAM: 40})
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.ServerID)
	assert.Equal(t, types.Resources{CPU: 60, RAM: 40}, r.Resources)
	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Reserve_Insufficient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewLedger(db, newMockClock())

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE servers").
		WithArgs(int64(1), int64(50), int64(10), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT cpu_available, ram_available, net_available").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"cpu_available", "ram_available", "net_available"}).AddRow(40, 60, 100))
	mock.ExpectRollback()

	_, err = ledger.Reserve(context.Background(), 1, types.Resources{CPU: 50, RAM: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, custom_errors.ErrInsufficientResources))

	var insufficient *custom_errors.InsufficientResourcesError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "cpu", insufficient.Dimension)
	assert.Equal(t, int64(40), insufficient.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Reserve_UnknownServer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewLedger(db, newMockClock())

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE servers").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT cpu_available").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err = ledger.Reserve(context.Background(), 77, types.Resources{CPU: 1})
	assert.True(t, errors.Is(err, custom_errors.ErrServerNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Release(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	clk := newMockClock()
	ledger := NewLedger(db, clk)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE server_reservations").
		WithArgs(id.String(), clk.Now()).
		WillReturnRows(sqlmock.NewRows([]string{"server_id", "cpu", "ram", "net"}).AddRow(1, 60, 40, 0))
	mock.ExpectExec("UPDATE servers").
		WithArgs(int64(1), int64(60), int64(40), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = ledger.Release(context.Background(), &types.Reservation{ID: id, ServerID: 1})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Release_AlreadyReleased(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewLedger(db, newMockClock())
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE server_reservations").
		WithArgs(id.String(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"server_id", "cpu", "ram", "net"}))
	mock.ExpectCommit()

	require.NoError(t, ledger.Release(context.Background(), &types.Reservation{ID: id}))
	require.NoError(t, ledger.Release(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Snapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewLedger(db, newMockClock())
	takenAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT cpu_total").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{
			"cpu_total", "ram_total", "net_total",
			"cpu_available", "ram_available", "net_available",
			"storage_total", "storage_available", "now",
		}).AddRow(100, 100, 100, 40, 60, 100, 500, 200, takenAt))

	snap, err := ledger.Snapshot(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, types.Resources{CPU: 100, RAM: 100, NET: 100}, snap.Total)
	assert.Equal(t, types.Resources{CPU: 40, RAM: 60, NET: 100}, snap.Available)
	assert.Equal(t, int64(200), snap.StorageAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Snapshot_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT cpu_total").WillReturnError(sql.ErrNoRows)

	_, err = NewLedger(db, nil).Snapshot(context.Background(), 3)
	assert.True(t, errors.Is(err, custom_errors.ErrServerNotFound))
}

func TestLedger_AllocateStorage_Insufficient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE servers").
		WithArgs(int64(1), int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT storage_available").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"storage_available"}).AddRow(100))
	mock.ExpectRollback()

	err = NewLedger(db, nil).AllocateStorage(context.Background(), 1, 500)
	assert.True(t, errors.Is(err, custom_errors.ErrInsufficientResources))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_FreeStorage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE servers").
		WithArgs(int64(1), int64(50)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE servers").
		WithArgs(int64(2), int64(50)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ledger := NewLedger(db, nil)
	require.NoError(t, ledger.FreeStorage(context.Background(), 1, 50))
	assert.True(t, errors.Is(ledger.FreeStorage(context.Background(), 2, 50), custom_errors.ErrServerNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
