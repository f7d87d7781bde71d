package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
)

const safenetNPC = "safenet"

// SafenetStore implements store.SafenetStore over the safenet and npc_reports tables.
type SafenetStore struct {
	db *sql.DB
}

func NewSafenetStore(db *sql.DB) *SafenetStore {
	return &SafenetStore{db: db}
}

func (s *SafenetStore) DeleteExpiredSafenet(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM safenet WHERE ends_at < $1`, now)
	if err != nil {
		return 0, errors.Wrap(err, "delete expired safenet entries")
	}
	return res.RowsAffected()
}

func (s *SafenetStore) ListSafenet(ctx context.Context) ([]types.SafenetEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ip, reason, ends_at FROM safenet ORDER BY ends_at`)
	if err != nil {
		return nil, errors.Wrap(err, "list safenet entries")
	}
	defer rows.Close()

	var out []types.SafenetEntry
	for rows.Next() {
		var e types.SafenetEntry
		if err := rows.Scan(&e.IP, &e.Reason, &e.EndsAt); err != nil {
			return nil, errors.Wrap(err, "scan safenet entry")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SafenetStore) ReplaceSafenetReport(ctx context.Context, body string, at time.Time) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM npc_reports WHERE npc = $1`, safenetNPC); err != nil {
			return errors.Wrap(err, "remove previous safenet report")
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO npc_reports (npc, title, body, created_at)
			VALUES ($1, 'Fwd to FBI', $2, $3)
		`, safenetNPC, body, at)
		if err != nil {
			return errors.Wrap(err, "write safenet report")
		}
		return nil
	})
}
