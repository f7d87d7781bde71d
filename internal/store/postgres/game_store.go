package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/hexpgame/hexcron/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// GameStore reads and maintains the round, mission and clan war tables.
// It implements store.RoundFinisher, store.MissionStore and store.WarStore.
type GameStore struct {
	db *sql.DB
}

func NewGameStore(db *sql.DB) *GameStore {
	return &GameStore{db: db}
}

func (s *GameStore) CurrentRound(ctx context.Context) (*types.Round, error) {
	var (
		r      types.Round
		endsAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status = 1, started_at, ends_at
		FROM round
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&r.ID, &r.Active, &r.StartedAt, &endsAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &types.Round{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read current round")
	}
	r.EndsAt = timePtr(endsAt)
	return &r, nil
}

func (s *GameStore) FinishRound(ctx context.Context, round types.Round, now time.Time) (*types.Round, error) {
	var next *types.Round
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE round SET status = 0, ends_at = $2
			WHERE id = $1 AND status = 1
		`, round.ID, now)
		if err != nil {
			return errors.Wrapf(err, "close round %d", round.ID)
		}
		closed, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "close round rows affected")
		}
		if closed == 0 {
			return nil
		}

		steps := []struct {
			what  string
			query string
			args  []any
		}{
			{"archive user stats", `
				INSERT INTO users_stats_history (round_id, user_id, money_earned, hack_count, ddos_count, archived_at)
				SELECT $1, user_id, money_earned, hack_count, ddos_count, $2 FROM users_stats
			`, []any{round.ID, now}},
			{"archive clan stats", `
				INSERT INTO clan_stats_history (round_id, clan_id, won, lost, archived_at)
				SELECT $1, clan_id, won, lost, $2 FROM clan_stats
			`, []any{round.ID, now}},
			{"reset user stats", `UPDATE users_stats SET money_earned = 0, hack_count = 0, ddos_count = 0`, nil},
			{"reset clan stats", `UPDATE clan_stats SET won = 0, lost = 0`, nil},
			{"clear clan wars", `DELETE FROM clan_wars`, nil},
			{"clear missions", `DELETE FROM missions`, nil},
		}
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step.query, step.args...); err != nil {
				return errors.Wrapf(err, "%s of round %d", step.what, round.ID)
			}
		}

		next = &types.Round{Active: true, StartedAt: now}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO round (status, started_at) VALUES (1, $1) RETURNING id
		`, now).Scan(&next.ID)
		if err != nil {
			return errors.Wrap(err, "open next round")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (s *GameStore) DeleteCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM missions WHERE status = 'completed'`)
	if err != nil {
		return 0, errors.Wrap(err, "delete completed missions")
	}
	return res.RowsAffected()
}

func (s *GameStore) CountAvailable(ctx context.Context) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT level, COUNT(*)
		FROM missions
		WHERE status = 'available'
		GROUP BY level
	`)
	if err != nil {
		return nil, errors.Wrap(err, "count available missions")
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var level, n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, err
		}
		counts[level] = n
	}
	return counts, rows.Err()
}

// Generate picks n random NPC servers as mission targets for the level.
func (s *GameStore) Generate(ctx context.Context, level, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO missions (level, target_server_id, status, created_at)
		SELECT $1, id, 'available', now()
		FROM servers
		WHERE npc = TRUE
		ORDER BY random()
		LIMIT $2
	`, level, n)
	if err != nil {
		return 0, errors.Wrapf(err, "generate %d level %d missions", n, level)
	}
	written, err := res.RowsAffected()
	return int(written), err
}

func (s *GameStore) PurgeAttacksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clan_attacks WHERE attacked_at < $1`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "purge clan attacks")
	}
	return res.RowsAffected()
}

func (s *GameStore) ListAttacks(ctx context.Context) ([]types.ClanAttack, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, attacker_id, attacker_clan, victim_id, victim_clan, server_attack, attacked_at
		FROM clan_attacks
		ORDER BY attacked_at ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "list clan attacks")
	}
	defer rows.Close()

	var attacks []types.ClanAttack
	for rows.Next() {
		var a types.ClanAttack
		if err := rows.Scan(&a.ID, &a.AttackerID, &a.AttackerClan, &a.VictimID, &a.VictimClan, &a.ServerAttack, &a.AttackedAt); err != nil {
			return nil, errors.Wrap(err, "scan clan attack")
		}
		attacks = append(attacks, a)
	}
	return attacks, rows.Err()
}

// StartWar relies on the unique index over (clan1, clan2) of clan_wars to refuse
// a second open war for the same pair.
func (s *GameStore) StartWar(ctx context.Context, pair types.ClanPair, startedAt, endsAt time.Time) (bool, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clan_wars (clan1, clan2, score1, score2, bounty, started_at, ends_at)
		VALUES ($1, $2, 0, 0, 0, $3, $4)
	`, pair.Low, pair.High, startedAt, endsAt)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "start war %d vs %d", pair.Low, pair.High)
	}
	return true, nil
}

func (s *GameStore) DueWars(ctx context.Context, now time.Time) ([]types.War, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, clan1, clan2, score1, score2, bounty, started_at, ends_at
		FROM clan_wars
		WHERE ends_at <= $1
		ORDER BY ends_at ASC
	`, now)
	if err != nil {
		return nil, errors.Wrap(err, "list due wars")
	}
	defer rows.Close()

	var wars []types.War
	for rows.Next() {
		var w types.War
		if err := rows.Scan(&w.ID, &w.Clan1, &w.Clan2, &w.Score1, &w.Score2, &w.Bounty, &w.StartedAt, &w.EndsAt); err != nil {
			return nil, errors.Wrap(err, "scan war")
		}
		wars = append(wars, w)
	}
	return wars, rows.Err()
}

func (s *GameStore) ArchiveWar(ctx context.Context, war types.War, winner, loser int64) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO clan_wars_history (war_id, clan1, clan2, winner, score1, score2, bounty, started_at, ended_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, war.ID, war.Clan1, war.Clan2, winner, war.Score1, war.Score2, war.Bounty, war.StartedAt, war.EndsAt)
		if err != nil {
			return errors.Wrapf(err, "archive war %d", war.ID)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE clan_stats
			SET won = won + CASE WHEN clan_id = $1 THEN 1 ELSE 0 END,
			    lost = lost + CASE WHEN clan_id = $2 THEN 1 ELSE 0 END
			WHERE clan_id = ANY($3)
		`, winner, loser, pq.Array([]int64{winner, loser}))
		if err != nil {
			return errors.Wrapf(err, "update clan stats for war %d", war.ID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM clan_wars WHERE id = $1`, war.ID); err != nil {
			return errors.Wrapf(err, "close war %d", war.ID)
		}
		return nil
	})
}
