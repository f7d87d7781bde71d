package store

import (
	"context"
	"time"

	"github.com/hexpgame/hexcron/types"
)

// RoundStore answers whether the game round is running.
type RoundStore interface {
	CurrentRound(ctx context.Context) (*types.Round, error)
}

// RoundFinisher closes a round that reached its end date.
type RoundFinisher interface {
	RoundStore

	// FinishRound archives the round's user and clan statistics, resets them,
	// clears open wars and missions, closes the round and opens the next one,
	// all in one transaction. It returns nil when the round was already closed.
	FinishRound(ctx context.Context, round types.Round, now time.Time) (*types.Round, error)
}

// SafenetStore maintains the SafeNet watch list and the report its NPC holds.
type SafenetStore interface {
	// DeleteExpiredSafenet removes entries whose end time is before now.
	DeleteExpiredSafenet(ctx context.Context, now time.Time) (int64, error)

	ListSafenet(ctx context.Context) ([]types.SafenetEntry, error)

	// ReplaceSafenetReport swaps the NPC's previous report for body.
	ReplaceSafenetReport(ctx context.Context, body string, at time.Time) error
}

// MissionStore is the narrow data access the mission generator needs.
type MissionStore interface {
	// DeleteCompleted removes missions that players already finished.
	DeleteCompleted(ctx context.Context) (int64, error)

	// CountAvailable returns the number of open missions per level.
	CountAvailable(ctx context.Context) (map[int]int, error)

	// Generate creates n open missions for the level and returns how many were written.
	Generate(ctx context.Context, level, n int) (int, error)
}

// WarStore backs the war detector and the war finisher.
type WarStore interface {
	// PurgeAttacksBefore drops attack records older than cutoff.
	PurgeAttacksBefore(ctx context.Context, cutoff time.Time) (int64, error)

	ListAttacks(ctx context.Context) ([]types.ClanAttack, error)

	// StartWar opens a war between the pair. It returns false when one is already open.
	StartWar(ctx context.Context, pair types.ClanPair, startedAt, endsAt time.Time) (bool, error)

	// DueWars returns open wars whose end date is <= now.
	DueWars(ctx context.Context, now time.Time) ([]types.War, error)

	// ArchiveWar records the result, updates clan stats and closes the war in one transaction.
	ArchiveWar(ctx context.Context, war types.War, winner, loser int64) error
}
