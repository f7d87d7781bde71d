package mocks

import (
	"context"
	"time"
)

// MockUserStore is a mock implementation of store.SessionStore and store.PremiumStore for testing.
type MockUserStore struct {
	DeleteExpiredFunc       func(ctx context.Context, now time.Time) (int64, error)
	ExpiredPremiumUsersFunc func(ctx context.Context, now time.Time) ([]int64, error)
	RevokePremiumFunc       func(ctx context.Context, userID int64) error
}

func (m *MockUserStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, now)
	}
	return 0, nil
}

func (m *MockUserStore) ExpiredPremiumUsers(ctx context.Context, now time.Time) ([]int64, error) {
	if m.ExpiredPremiumUsersFunc != nil {
		return m.ExpiredPremiumUsersFunc(ctx, now)
	}
	return nil, nil
}

func (m *MockUserStore) RevokePremium(ctx context.Context, userID int64) error {
	if m.RevokePremiumFunc != nil {
		return m.RevokePremiumFunc(ctx, userID)
	}
	return nil
}
