package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hexpgame/hexcron/custom_errors"
	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
)

const processColumns = `
	id, user_id, server_id, target_id, type, state, priority, progress,
	cpu_requested, ram_requested, net_requested,
	cpu_used, ram_used, net_used, reservation_id, duration_ms,
	time_started, time_paused, time_completed, estimated_completion, cancel_requested_at,
	fail_requested, error_message, payload, created_at, updated_at`

// ProcessStore persists processes in the processes table. Update locks the row
// with SELECT ... FOR UPDATE and releases the reservation through the ledger in
// the same transaction as the state write.
type ProcessStore struct {
	db     *sql.DB
	ledger *Ledger
}

func NewProcessStore(db *sql.DB, ledger *Ledger) *ProcessStore {
	return &ProcessStore{db: db, ledger: ledger}
}

func scanProcess(row scanner) (*types.Process, error) {
	var (
		p             types.Process
		targetID      sql.NullInt64
		reservationID uuid.NullUUID
		durationMS    int64
		started       sql.NullTime
		paused        sql.NullTime
		completed     sql.NullTime
		estimated     sql.NullTime
		cancelAt      sql.NullTime
		failRequested sql.NullString
		errorMessage  sql.NullString
		payload       []byte
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.ServerID, &targetID, &p.Type, &p.State, &p.Priority, &p.Progress,
		&p.Requested.CPU, &p.Requested.RAM, &p.Requested.NET,
		&p.CPUUsed, &p.RAMUsed, &p.NetUsed, &reservationID, &durationMS,
		&started, &paused, &completed, &estimated, &cancelAt,
		&failRequested, &errorMessage, &payload, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if targetID.Valid {
		p.TargetID = &targetID.Int64
	}
	if reservationID.Valid {
		p.ReservationID = &reservationID.UUID
	}
	p.Duration = time.Duration(durationMS) * time.Millisecond
	p.TimeStarted = timePtr(started)
	p.TimePaused = timePtr(paused)
	p.TimeCompleted = timePtr(completed)
	p.EstimatedCompletion = timePtr(estimated)
	p.CancelRequestedAt = timePtr(cancelAt)
	p.FailRequested = stringPtr(failRequested)
	p.ErrorMessage = stringPtr(errorMessage)
	if len(payload) > 0 {
		p.Payload = payload
	}
	return &p, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *ProcessStore) Insert(ctx context.Context, p *types.Process) error {
	return s.insert(ctx, s.db, p)
}

// InsertAdmitted reserves, applies fn and inserts in one transaction, so a
// failed insert rolls the reservation back with it.
func (s *ProcessStore) InsertAdmitted(ctx context.Context, p *types.Process, fn store.AdmitFunc) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		r, err := s.ledger.ReserveTx(ctx, tx, p.ServerID, p.Requested)
		if err != nil {
			return err
		}
		if err := fn(p, r); err != nil {
			return err
		}
		return s.insert(ctx, tx, p)
	})
}

func (s *ProcessStore) insert(ctx context.Context, db execer, p *types.Process) error {
	var payload any
	if len(p.Payload) > 0 {
		payload = []byte(p.Payload)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO processes (`+processColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	`,
		p.ID, p.UserID, p.ServerID, p.TargetID, string(p.Type), p.State, int(p.Priority), p.Progress,
		p.Requested.CPU, p.Requested.RAM, p.Requested.NET,
		p.CPUUsed, p.RAMUsed, p.NetUsed, nullUUID(p.ReservationID), p.Duration.Milliseconds(),
		p.TimeStarted, p.TimePaused, p.TimeCompleted, p.EstimatedCompletion, p.CancelRequestedAt,
		p.FailRequested, p.ErrorMessage, payload, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return errors.Errorf("insert process %s: already exists", p.ID)
	}
	if err != nil {
		return errors.Wrapf(err, "insert process %s", p.ID)
	}
	return nil
}

func (s *ProcessStore) Get(ctx context.Context, id uuid.UUID) (*types.Process, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+processColumns+` FROM processes WHERE id = $1`, id)
	p, err := scanProcess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(custom_errors.ErrProcessNotFound, "process %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get process %s", id)
	}
	return p, nil
}

func (s *ProcessStore) lock(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*types.Process, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+processColumns+` FROM processes WHERE id = $1 FOR UPDATE`, id)
	p, err := scanProcess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(custom_errors.ErrProcessNotFound, "process %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "lock process %s", id)
	}
	return p, nil
}

func (s *ProcessStore) Update(ctx context.Context, id uuid.UUID, fn store.UpdateFunc) (*types.Process, error) {
	var current, next *types.Process
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if current, err = s.lock(ctx, tx, id); err != nil {
			return err
		}

		next = current.Clone()
		release, err := fn(next)
		if err != nil {
			return err
		}
		if release != nil {
			if err := s.ledger.ReleaseTx(ctx, tx, release.ID); err != nil {
				return err
			}
		}
		return s.write(ctx, tx, next)
	})
	if err != nil {
		return current, err
	}
	return next, nil
}

// Admit holds the row lock while the reservation is taken, so a concurrent
// cancel either runs before and fails fn or waits until the process is RUNNING.
func (s *ProcessStore) Admit(ctx context.Context, id uuid.UUID, fn store.AdmitFunc) (*types.Process, error) {
	var current, next *types.Process
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if current, err = s.lock(ctx, tx, id); err != nil {
			return err
		}

		r, err := s.ledger.ReserveTx(ctx, tx, current.ServerID, current.Requested)
		if err != nil {
			return err
		}
		next = current.Clone()
		if err := fn(next, r); err != nil {
			return err
		}
		return s.write(ctx, tx, next)
	})
	if err != nil {
		return current, err
	}
	return next, nil
}

func (s *ProcessStore) write(ctx context.Context, tx *sql.Tx, p *types.Process) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE processes
		SET state = $2,
		    progress = $3,
		    cpu_used = $4,
		    ram_used = $5,
		    net_used = $6,
		    reservation_id = $7,
		    time_started = $8,
		    time_paused = $9,
		    time_completed = $10,
		    estimated_completion = $11,
		    cancel_requested_at = $12,
		    fail_requested = $13,
		    error_message = $14,
		    updated_at = $15
		WHERE id = $1
	`,
		p.ID, p.State, p.Progress, p.CPUUsed, p.RAMUsed, p.NetUsed, nullUUID(p.ReservationID),
		p.TimeStarted, p.TimePaused, p.TimeCompleted, p.EstimatedCompletion, p.CancelRequestedAt,
		p.FailRequested, p.ErrorMessage, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "write process %s", p.ID)
	}
	return nil
}

// page counts the rows matching where and returns one LIMIT/OFFSET page of them.
func (s *ProcessStore) page(ctx context.Context, where, order string, page, pageSize int, args ...any) (*types.PaginationResult[types.Process], error) {
	var totalItems int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processes WHERE `+where, args...).Scan(&totalItems); err != nil {
		return nil, errors.Wrap(err, "count processes")
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM processes WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		processColumns, where, order, n+1, n+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, pageSize, types.Offset(page, pageSize))...)
	if err != nil {
		return nil, errors.Wrap(err, "query processes")
	}
	defer rows.Close()

	items := make([]types.Process, 0)
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan process")
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate processes")
	}
	return types.NewPaginationResult(items, totalItems, page, pageSize), nil
}

func (s *ProcessStore) FetchDue(ctx context.Context, now time.Time, page, pageSize int) (*types.PaginationResult[types.Process], error) {
	return s.page(ctx, `state = $1 AND estimated_completion <= $2`, `estimated_completion ASC`,
		page, pageSize, state.Running, now)
}

func (s *ProcessStore) FetchStale(ctx context.Context, st state.ProcessState, before time.Time, page, pageSize int) (*types.PaginationResult[types.Process], error) {
	return s.page(ctx, `state = $1 AND updated_at < $2`, `updated_at ASC`,
		page, pageSize, st, before)
}

func (s *ProcessStore) FetchQueued(ctx context.Context, limit int) ([]types.Process, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+processColumns+`
		FROM processes
		WHERE state = $1
		ORDER BY priority DESC, created_at ASC
		LIMIT $2
	`, state.Queued, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query queued processes")
	}
	defer rows.Close()

	var out []types.Process
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan queued process")
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *ProcessStore) CountByState(ctx context.Context) (map[state.ProcessState]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state, COUNT(*) AS count
		FROM processes
		GROUP BY state
	`)
	if err != nil {
		return nil, errors.Wrap(err, "count processes by state")
	}
	defer rows.Close()

	result := make(map[state.ProcessState]int)
	for rows.Next() {
		var st state.ProcessState
		var count int
		if err := rows.Scan(&st, &count); err != nil {
			return nil, err
		}
		result[st] = count
	}

	for _, st := range state.AllProcessStates {
		if _, ok := result[st]; !ok {
			result[st] = 0
		}
	}
	return result, rows.Err()
}
