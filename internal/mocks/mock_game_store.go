package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/hexpgame/hexcron/types"
)

// MockGameStore is a mock implementation of store.RoundFinisher, store.MissionStore
// and store.WarStore for testing.
type MockGameStore struct {
	CurrentRoundFunc       func(ctx context.Context) (*types.Round, error)
	DeleteCompletedFunc    func(ctx context.Context) (int64, error)
	CountAvailableFunc     func(ctx context.Context) (map[int]int, error)
	GenerateFunc           func(ctx context.Context, level, n int) (int, error)
	PurgeAttacksBeforeFunc func(ctx context.Context, cutoff time.Time) (int64, error)
	ListAttacksFunc        func(ctx context.Context) ([]types.ClanAttack, error)
	StartWarFunc           func(ctx context.Context, pair types.ClanPair, startedAt, endsAt time.Time) (bool, error)
	DueWarsFunc            func(ctx context.Context, now time.Time) ([]types.War, error)
	ArchiveWarFunc         func(ctx context.Context, war types.War, winner, loser int64) error
	FinishRoundFunc        func(ctx context.Context, round types.Round, now time.Time) (*types.Round, error)

	mu        sync.Mutex
	Generated map[int]int
	Started   []types.ClanPair
	Archived  []int64
	Finished  []int64
}

func (m *MockGameStore) CurrentRound(ctx context.Context) (*types.Round, error) {
	if m.CurrentRoundFunc != nil {
		return m.CurrentRoundFunc(ctx)
	}
	return &types.Round{ID: 1, Active: true}, nil
}

func (m *MockGameStore) DeleteCompleted(ctx context.Context) (int64, error) {
	if m.DeleteCompletedFunc != nil {
		return m.DeleteCompletedFunc(ctx)
	}
	return 0, nil
}

func (m *MockGameStore) CountAvailable(ctx context.Context) (map[int]int, error) {
	if m.CountAvailableFunc != nil {
		return m.CountAvailableFunc(ctx)
	}
	return map[int]int{}, nil
}

func (m *MockGameStore) Generate(ctx context.Context, level, n int) (int, error) {
	m.mu.Lock()
	if m.Generated == nil {
		m.Generated = make(map[int]int)
	}
	m.Generated[level] += n
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, level, n)
	}
	return n, nil
}

func (m *MockGameStore) PurgeAttacksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.PurgeAttacksBeforeFunc != nil {
		return m.PurgeAttacksBeforeFunc(ctx, cutoff)
	}
	return 0, nil
}

func (m *MockGameStore) ListAttacks(ctx context.Context) ([]types.ClanAttack, error) {
	if m.ListAttacksFunc != nil {
		return m.ListAttacksFunc(ctx)
	}
	return nil, nil
}

func (m *MockGameStore) StartWar(ctx context.Context, pair types.ClanPair, startedAt, endsAt time.Time) (bool, error) {
	if m.StartWarFunc != nil {
		ok, err := m.StartWarFunc(ctx, pair, startedAt, endsAt)
		if ok && err == nil {
			m.mu.Lock()
			m.Started = append(m.Started, pair)
			m.mu.Unlock()
		}
		return ok, err
	}
	m.mu.Lock()
	m.Started = append(m.Started, pair)
	m.mu.Unlock()
	return true, nil
}

func (m *MockGameStore) DueWars(ctx context.Context, now time.Time) ([]types.War, error) {
	if m.DueWarsFunc != nil {
		return m.DueWarsFunc(ctx, now)
	}
	return nil, nil
}

func (m *MockGameStore) ArchiveWar(ctx context.Context, war types.War, winner, loser int64) error {
	if m.ArchiveWarFunc != nil {
		if err := m.ArchiveWarFunc(ctx, war, winner, loser); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Archived = append(m.Archived, war.ID)
	m.mu.Unlock()
	return nil
}

func (m *MockGameStore) FinishRound(ctx context.Context, round types.Round, now time.Time) (*types.Round, error) {
	if m.FinishRoundFunc != nil {
		next, err := m.FinishRoundFunc(ctx, round, now)
		if next == nil || err != nil {
			return next, err
		}
	}
	m.mu.Lock()
	m.Finished = append(m.Finished, round.ID)
	m.mu.Unlock()
	return &types.Round{ID: round.ID + 1, Active: true, StartedAt: now}, nil
}
