package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// UserStore expires player sessions and premium subscriptions.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (r *UserStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users_online WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, errors.Wrap(err, "delete expired sessions")
	}
	return result.RowsAffected()
}

func (r *UserStore) ExpiredPremiumUsers(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM users_premium WHERE premium_until < $1`, now)
	if err != nil {
		return nil, errors.Wrap(err, "list expired premium users")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UserStore) RevokePremium(ctx context.Context, userID int64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE users SET premium = FALSE WHERE id = $1`, userID)
		if err != nil {
			return errors.Wrapf(err, "clear premium flag of user %d", userID)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return errors.Errorf("no user %d found to revoke", userID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users_premium WHERE user_id = $1`, userID); err != nil {
			return errors.Wrapf(err, "delete premium row of user %d", userID)
		}
		return nil
	})
}
