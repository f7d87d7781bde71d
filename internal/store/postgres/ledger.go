package postgres

import (
	"context"
	"database/sql"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hexpgame/hexcron/custom_errors"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
)

// Ledger keeps server capacity in the servers table and every outstanding
// reservation in server_reservations. The conditional UPDATE is what makes a
// reservation linearizable per server: Postgres serialises writers on the row.
type Ledger struct {
	db    *sql.DB
	clock clock.Clock
}

func NewLedger(db *sql.DB, clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.New()
	}
	return &Ledger{db: db, clock: clk}
}

func (l *Ledger) Reserve(ctx context.Context, serverID int64, req types.Resources) (*types.Reservation, error) {
	var reservation *types.Reservation
	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		var err error
		reservation, err = l.ReserveTx(ctx, tx, serverID, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// ReserveTx takes the amounts inside the caller's transaction. A rollback of
// that transaction gives them back.
func (l *Ledger) ReserveTx(ctx context.Context, tx *sql.Tx, serverID int64, req types.Resources) (*types.Reservation, error) {
	if req.IsNegative() {
		return nil, errors.Errorf("reserve on server %d: negative amounts %+v", serverID, req)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE servers
		SET cpu_available = cpu_available - $2,
		    ram_available = ram_available - $3,
		    net_available = net_available - $4
		WHERE id = $1
		  AND cpu_available >= $2
		  AND ram_available >= $3
		  AND net_available >= $4
	`, serverID, req.CPU, req.RAM, req.NET)
	if err != nil {
		return nil, errors.Wrapf(err, "reserve on server %d", serverID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "reserve rows affected")
	}
	if affected == 0 {
		return nil, l.explainShortfall(ctx, tx, serverID, req)
	}

	r := &types.Reservation{
		ID:        uuid.New(),
		ServerID:  serverID,
		Resources: req,
		CreatedAt: l.clock.Now(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO server_reservations (id, server_id, cpu, ram, net, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, serverID, req.CPU, req.RAM, req.NET, r.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "record reservation")
	}
	return r, nil
}

func (l *Ledger) explainShortfall(ctx context.Context, tx *sql.Tx, serverID int64, req types.Resources) error {
	var available types.Resources
	err := tx.QueryRowContext(ctx, `
		SELECT cpu_available, ram_available, net_available
		FROM servers
		WHERE id = $1
	`, serverID).Scan(&available.CPU, &available.RAM, &available.NET)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(custom_errors.ErrServerNotFound, "server %d", serverID)
	}
	if err != nil {
		return errors.Wrapf(err, "read capacity of server %d", serverID)
	}
	dim, requested, avail, short := available.Shortfall(req)
	if !short {
		// Capacity changed between the two statements; report the request as a whole.
		return custom_errors.NewInsufficientResources(serverID, "cpu", req.CPU, available.CPU)
	}
	return custom_errors.NewInsufficientResources(serverID, dim, requested, avail)
}

func (l *Ledger) Release(ctx context.Context, r *types.Reservation) error {
	if r == nil {
		return nil
	}
	return withTx(ctx, l.db, func(tx *sql.Tx) error {
		return l.ReleaseTx(ctx, tx, r.ID)
	})
}

// ReleaseTx marks the reservation released and gives its amounts back, inside
// the caller's transaction. A reservation that is already released is skipped.
func (l *Ledger) ReleaseTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	var serverID int64
	var held types.Resources
	err := tx.QueryRowContext(ctx, `
		UPDATE server_reservations
		SET released_at = $2
		WHERE id = $1 AND released_at IS NULL
		RETURNING server_id, cpu, ram, net
	`, id, l.clock.Now()).Scan(&serverID, &held.CPU, &held.RAM, &held.NET)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "release reservation %s", id)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE servers
		SET cpu_available = cpu_available + $2,
		    ram_available = ram_available + $3,
		    net_available = net_available + $4
		WHERE id = $1
	`, serverID, held.CPU, held.RAM, held.NET)
	if err != nil {
		return errors.Wrapf(err, "give back reservation %s to server %d", id, serverID)
	}
	return nil
}

func (l *Ledger) Snapshot(ctx context.Context, serverID int64) (*types.ServerCapacity, error) {
	c := &types.ServerCapacity{ServerID: serverID}
	err := l.db.QueryRowContext(ctx, `
		SELECT cpu_total, ram_total, net_total,
		       cpu_available, ram_available, net_available,
		       storage_total, storage_available, now()
		FROM servers
		WHERE id = $1
	`, serverID).Scan(
		&c.Total.CPU, &c.Total.RAM, &c.Total.NET,
		&c.Available.CPU, &c.Available.RAM, &c.Available.NET,
		&c.StorageTotal, &c.StorageAvailable, &c.TakenAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(custom_errors.ErrServerNotFound, "server %d", serverID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot server %d", serverID)
	}
	return c, nil
}

func (l *Ledger) AllocateStorage(ctx context.Context, serverID int64, amount int64) error {
	if amount < 0 {
		return errors.Errorf("allocate storage on server %d: negative amount %d", serverID, amount)
	}
	return withTx(ctx, l.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE servers
			SET storage_available = storage_available - $2
			WHERE id = $1 AND storage_available >= $2
		`, serverID, amount)
		if err != nil {
			return errors.Wrapf(err, "allocate storage on server %d", serverID)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			return nil
		}

		var available int64
		err = tx.QueryRowContext(ctx, `SELECT storage_available FROM servers WHERE id = $1`, serverID).Scan(&available)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(custom_errors.ErrServerNotFound, "server %d", serverID)
		}
		if err != nil {
			return errors.Wrapf(err, "read storage of server %d", serverID)
		}
		return custom_errors.NewInsufficientResources(serverID, "storage", amount, available)
	})
}

func (l *Ledger) FreeStorage(ctx context.Context, serverID int64, amount int64) error {
	if amount < 0 {
		return errors.Errorf("free storage on server %d: negative amount %d", serverID, amount)
	}
	res, err := l.db.ExecContext(ctx, `
		UPDATE servers
		SET storage_available = LEAST(storage_total, storage_available + $2)
		WHERE id = $1
	`, serverID, amount)
	if err != nil {
		return errors.Wrapf(err, "free storage on server %d", serverID)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return errors.Wrapf(custom_errors.ErrServerNotFound, "server %d", serverID)
	}
	return nil
}
