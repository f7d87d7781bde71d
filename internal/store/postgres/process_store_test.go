package postgres

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/hexpgame/hexcron/custom_errors"
	"github.com/hexpgame/hexcron/internal/process"
	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var processColumnNames = []string{
	"id", "user_id", "server_id", "target_id", "type", "state", "priority", "progress",
	"cpu_requested", "ram_requested", "net_requested",
	"cpu_used", "ram_used", "net_used", "reservation_id", "duration_ms",
	"time_started", "time_paused", "time_completed", "estimated_completion", "cancel_requested_at",
	"fail_requested", "error_message", "payload", "created_at", "updated_at",
}

type processRow struct {
	id          uuid.UUID
	st          state.ProcessState
	reservation *uuid.UUID
	started     time.Time
	due         time.Time
	failReason  any
}

func (r processRow) values() []driver.Value {
	var reservation any
	if r.reservation != nil {
		reservation = r.reservation.String()
	}
	return []driver.Value{
		r.id.String(), int64(10), int64(1), nil, "crack", string(r.st), int64(1), 12.5,
		int64(60), int64(40), int64(0),
		int64(60), int64(40), int64(0), reservation, int64(60000),
		r.started, nil, nil, r.due, nil,
		r.failReason, nil, nil, r.started, r.started,
	}
}

func rowsOf(rows ...processRow) *sqlmock.Rows {
	out := sqlmock.NewRows(processColumnNames)
	for _, r := range rows {
		out.AddRow(r.values()...)
	}
	return out
}

func TestProcessStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewProcessStore(db, NewLedger(db, nil))
	reservation := uuid.New()
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	row := processRow{id: uuid.New(), st: state.Running, reservation: &reservation, started: started, due: started.Add(time.Minute)}

	mock.ExpectQuery("SELECT (.+) FROM processes WHERE id = \\$1").
		WithArgs(row.id.String()).
		WillReturnRows(rowsOf(row))

	p, err := s.Get(context.Background(), row.id)
	require.NoError(t, err)
	assert.Equal(t, row.id, p.ID)
	assert.Equal(t, state.Running, p.State)
	assert.Equal(t, types.ProcessCrack, p.Type)
	assert.Equal(t, types.PriorityNormal, p.Priority)
	assert.Equal(t, time.Minute, p.Duration)
	assert.Equal(t, types.Resources{CPU: 60, RAM: 40}, p.Requested)
	require.NotNil(t, p.ReservationID)
	assert.Equal(t, reservation, *p.ReservationID)
	assert.Nil(t, p.TargetID)
	assert.Nil(t, p.ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessStore_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM processes").WillReturnRows(sqlmock.NewRows(processColumnNames))

	_, err = NewProcessStore(db, nil).Get(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, custom_errors.ErrProcessNotFound))
}

func TestProcessStore_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := &types.Process{ID: uuid.New(), ServerID: 1, Type: types.ProcessScan, State: state.Queued, Duration: time.Second}
	args := make([]driver.Value, len(processColumnNames))
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[0] = p.ID.String()
	args[5] = "QUEUED"

	mock.ExpectExec("INSERT INTO processes").WithArgs(args...).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO processes").WillReturnError(&pq.Error{Code: "23505"})

	s := NewProcessStore(db, nil)
	require.NoError(t, s.Insert(context.Background(), p))

	err = s.Insert(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessStore_Update_CompletesAndReleasesInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	clk := newMockClock()
	s := NewProcessStore(db, NewLedger(db, clk))
	reservation := uuid.New()
	started := clk.Now().Add(-2 * time.Minute)
	row := processRow{id: uuid.New(), st: state.Running, reservation: &reservation, started: started, due: started.Add(time.Minute)}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM processes WHERE id = \\$1 FOR UPDATE").
		WithArgs(row.id.String()).
		WillReturnRows(rowsOf(row))
	mock.ExpectQuery("UPDATE server_reservations").
		WithArgs(reservation.String(), clk.Now()).
		WillReturnRows(sqlmock.NewRows([]string{"server_id", "cpu", "ram", "net"}).AddRow(1, 60, 40, 0))
	mock.ExpectExec("UPDATE servers").
		WithArgs(int64(1), int64(60), int64(40), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE processes").
		WithArgs(row.id.String(), "COMPLETED", float64(100), int64(0), int64(0), int64(0), nil,
			sqlmock.AnyArg(), nil, clk.Now(), sqlmock.AnyArg(), nil, nil, nil, clk.Now()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := s.Update(context.Background(), row.id, func(p *types.Process) (*types.Reservation, error) {
		return process.Apply(p, state.Completed, clk.Now(), "")
	})
	require.NoError(t, err)
	assert.Equal(t, state.Completed, p.State)
	assert.True(t, p.Resources().IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessStore_Update_RejectedTransitionRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	clk := newMockClock()
	s := NewProcessStore(db, NewLedger(db, clk))
	row := processRow{id: uuid.New(), st: state.Completed, started: clk.Now(), due: clk.Now()}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FOR UPDATE").WillReturnRows(rowsOf(row))
	mock.ExpectRollback()

	p, err := s.Update(context.Background(), row.id, func(p *types.Process) (*types.Reservation, error) {
		return process.Apply(p, state.Failed, clk.Now(), "late")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, custom_errors.ErrInvalidStateTransition))
	require.NotNil(t, p)
	assert.Equal(t, state.Completed, p.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessStore_InsertAdmitted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	clk := newMockClock()
	s := NewProcessStore(db, NewLedger(db, clk))
	p := &types.Process{ID: uuid.New(), ServerID: 1, Type: types.ProcessCrack, State: state.Queued,
		Requested: types.Resources{CPU: 60, RAM: 40}, Duration: time.Minute, CreatedAt: clk.Now(), UpdatedAt: clk.Now()}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE servers").
		WithArgs(int64(1), int64(60), int64(40), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO server_reservations").
		WithArgs(sqlmock.AnyArg(), int64(1), int64(60), int64(40), int64(0), clk.Now()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO processes").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.InsertAdmitted(context.Background(), p, process.StartOn(clk.Now())))
	assert.Equal(t, state.Running, p.State)
	require.NotNil(t, p.ReservationID)
	assert.Equal(t, int64(60), p.CPUUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessStore_InsertAdmitted_FailedInsertRollsBackReservation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	clk := newMockClock()
	s := NewProcessStore(db, NewLedger(db, clk))
	p := &types.Process{ID: uuid.New(), ServerID: 1, Type: types.ProcessCrack, State: state.Queued,
		Requested: types.Resources{CPU: 60, RAM: 40}, Duration: time.Minute}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE servers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO server_reservations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO processes").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = s.InsertAdmitted(context.Background(), p, process.StartOn(clk.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessStore_InsertAdmitted_Insufficient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	clk := newMockClock()
	s := NewProcessStore(db, NewLedger(db, clk))
	p := &types.Process{ID: uuid.New(), ServerID: 1, State: state.Queued, Requested: types.Resources{CPU: 50, RAM: 10}}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE servers").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT cpu_available, ram_available, net_available").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"cpu_available", "ram_available", "net_available"}).AddRow(40, 60, 100))
	mock.ExpectRollback()

	err = s.InsertAdmitted(context.Background(), p, process.StartOn(clk.Now()))
	assert.True(t, errors.Is(err, custom_errors.ErrInsufficientResources))
	assert.Equal(t, state.Queued, p.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessStore_Admit_ReservesUnderRowLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	clk := newMockClock()
	s := NewProcessStore(db, NewLedger(db, clk))
	row := processRow{id: uuid.New(), st: state.Queued, started: clk.Now(), due: clk.Now()}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM processes WHERE id = \\$1 FOR UPDATE").
		WithArgs(row.id.String()).
		WillReturnRows(rowsOf(row))
	mock.ExpectExec("UPDATE servers").
		WithArgs(int64(1), int64(60), int64(40), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO server_reservations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE processes").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := s.Admit(context.Background(), row.id, process.StartOn(clk.Now()))
	require.NoError(t, err)
	assert.Equal(t, state.Running, p.State)
	require.NotNil(t, p.ReservationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessStore_Admit_RejectedTransitionRollsBackReservation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	clk := newMockClock()
	s := NewProcessStore(db, NewLedger(db, clk))
	row := processRow{id: uuid.New(), st: state.Cancelled, started: clk.Now(), due: clk.Now()}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FOR UPDATE").WillReturnRows(rowsOf(row))
	mock.ExpectExec("UPDATE servers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO server_reservations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	p, err := s.Admit(context.Background(), row.id, process.StartOn(clk.Now()))
	assert.True(t, errors.Is(err, custom_errors.ErrInvalidStateTransition))
	require.NotNil(t, p)
	assert.Equal(t, state.Cancelled, p.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessStore_FetchDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	row := processRow{id: uuid.New(), st: state.Running, started: now.Add(-time.Hour), due: now.Add(-time.Minute)}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM processes WHERE state = \\$1 AND estimated_completion <= \\$2").
		WithArgs("RUNNING", now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT (.+) FROM processes WHERE state = \\$1 AND estimated_completion <= \\$2 ORDER BY estimated_completion ASC LIMIT \\$3 OFFSET \\$4").
		WithArgs("RUNNING", now, 2, 0).
		WillReturnRows(rowsOf(row))

	page, err := NewProcessStore(db, nil).FetchDue(context.Background(), now, 1, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasNextPage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessStore_FetchQueued(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM processes (.+) ORDER BY priority DESC, created_at ASC").
		WithArgs("QUEUED", 5).
		WillReturnRows(rowsOf(
			processRow{id: uuid.New(), st: state.Queued, started: now, due: now},
			processRow{id: uuid.New(), st: state.Queued, started: now, due: now},
		))

	queued, err := NewProcessStore(db, nil).FetchQueued(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, queued, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessStore_CountByState(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT state, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"state", "count"}).AddRow("RUNNING", 4).AddRow("FAILED", 1))

	counts, err := NewProcessStore(db, nil).CountByState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, counts[state.Running])
	assert.Equal(t, 1, counts[state.Failed])
	assert.Equal(t, 0, counts[state.Queued])
	assert.NoError(t, mock.ExpectationsWereMet())
}
