package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameStore_ImplementsStores(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewGameStore(db)
	var _ store.RoundFinisher = s
	var _ store.MissionStore = s
	var _ store.WarStore = s
}

func TestGameStore_CurrentRound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	ends := started.Add(30 * 24 * time.Hour)
	columns := []string{"id", "active", "started_at", "ends_at"}
	mock.ExpectQuery("SELECT id, status = 1, started_at, ends_at FROM round").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(4, true, started, ends))
	mock.ExpectQuery("FROM round").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(5, true, started, nil))
	mock.ExpectQuery("FROM round").
		WillReturnRows(sqlmock.NewRows(columns))

	s := NewGameStore(db)
	round, err := s.CurrentRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), round.ID)
	assert.True(t, round.Active)
	require.NotNil(t, round.EndsAt)
	assert.Equal(t, ends, *round.EndsAt)

	round, err = s.CurrentRound(context.Background())
	require.NoError(t, err)
	assert.Nil(t, round.EndsAt)

	round, err = s.CurrentRound(context.Background())
	require.NoError(t, err)
	assert.False(t, round.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGameStore_FinishRound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	round := types.Round{ID: 4, Active: true}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE round SET status = 0").
		WithArgs(int64(4), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO users_stats_history").
		WithArgs(int64(4), now).
		WillReturnResult(sqlmock.NewResult(0, 120))
	mock.ExpectExec("INSERT INTO clan_stats_history").
		WithArgs(int64(4), now).
		WillReturnResult(sqlmock.NewResult(0, 8))
	mock.ExpectExec("UPDATE users_stats SET").WillReturnResult(sqlmock.NewResult(0, 120))
	mock.ExpectExec("UPDATE clan_stats SET won = 0").WillReturnResult(sqlmock.NewResult(0, 8))
	mock.ExpectExec("DELETE FROM clan_wars").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM missions").WillReturnResult(sqlmock.NewResult(0, 90))
	mock.ExpectQuery("INSERT INTO round").
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectCommit()

	next, err := NewGameStore(db).FinishRound(context.Background(), round, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, int64(5), next.ID)
	assert.True(t, next.Active)
	assert.Nil(t, next.EndsAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGameStore_FinishRound_AlreadyClosed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE round SET status = 0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	next, err := NewGameStore(db).FinishRound(context.Background(), types.Round{ID: 4}, time.Now())
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGameStore_FinishRound_FailedStepRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE round SET status = 0").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO users_stats_history").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	next, err := NewGameStore(db).FinishRound(context.Background(), types.Round{ID: 4}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive user stats of round 4")
	assert.Nil(t, next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGameStore_Missions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM missions").WillReturnResult(sqlmock.NewResult(0, 6))
	mock.ExpectQuery("SELECT level, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"level", "count"}).AddRow(1, 45).AddRow(3, 25))
	mock.ExpectExec("INSERT INTO missions").
		WithArgs(1, 5).
		WillReturnResult(sqlmock.NewResult(0, 5))

	s := NewGameStore(db)
	ctx := context.Background()

	deleted, err := s.DeleteCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), deleted)

	counts, err := s.CountAvailable(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 45, 3: 25}, counts)

	written, err := s.Generate(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, written)

	written, err = s.Generate(ctx, 2, 0)
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGameStore_StartWar(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	pair := types.NewClanPair(9, 2)

	mock.ExpectExec("INSERT INTO clan_wars").
		WithArgs(int64(2), int64(9), start, end).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO clan_wars").
		WillReturnError(&pq.Error{Code: "23505"})

	s := NewGameStore(db)
	started, err := s.StartWar(context.Background(), pair, start, end)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = s.StartWar(context.Background(), pair, start, end)
	require.NoError(t, err)
	assert.False(t, started)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGameStore_DueWarsAndArchive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	start := now.Add(-48 * time.Hour)

	mock.ExpectQuery("FROM clan_wars WHERE ends_at <= \\$1").
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "clan1", "clan2", "score1", "score2", "bounty", "started_at", "ends_at"}).
			AddRow(11, 2, 9, 300, 120, 50, start, now))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO clan_wars_history").
		WithArgs(int64(11), int64(2), int64(9), int64(2), int64(300), int64(120), int64(50), start, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE clan_stats").
		WithArgs(int64(2), int64(9), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM clan_wars WHERE id = \\$1").
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := NewGameStore(db)
	wars, err := s.DueWars(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, wars, 1)

	winner, loser := wars[0].Winner()
	require.NoError(t, s.ArchiveWar(context.Background(), wars[0], winner, loser))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGameStore_Attacks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-72 * time.Hour)

	mock.ExpectExec("DELETE FROM clan_attacks").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery("FROM clan_attacks").
		WillReturnRows(sqlmock.NewRows([]string{"id", "attacker_id", "attacker_clan", "victim_id", "victim_clan", "server_attack", "attacked_at"}).
			AddRow(1, 100, 2, 200, 9, false, now).
			AddRow(2, 201, 9, 100, 2, true, now))

	s := NewGameStore(db)
	purged, err := s.PurgeAttacksBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)

	attacks, err := s.ListAttacks(context.Background())
	require.NoError(t, err)
	require.Len(t, attacks, 2)
	assert.True(t, attacks[1].ServerAttack)
	assert.Equal(t, int64(9), attacks[0].VictimClan)
	assert.NoError(t, mock.ExpectationsWereMet())
}
