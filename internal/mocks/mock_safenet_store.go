package mocks

import (
	"context"
	"time"

	"github.com/hexpgame/hexcron/types"
)

// MockSafenetStore is a mock implementation of store.SafenetStore for testing.
type MockSafenetStore struct {
	DeleteExpiredSafenetFunc func(ctx context.Context, now time.Time) (int64, error)
	ListSafenetFunc          func(ctx context.Context) ([]types.SafenetEntry, error)
	ReplaceSafenetReportFunc func(ctx context.Context, body string, at time.Time) error

	Reports []string
}

func (m *MockSafenetStore) DeleteExpiredSafenet(ctx context.Context, now time.Time) (int64, error) {
	if m.DeleteExpiredSafenetFunc != nil {
		return m.DeleteExpiredSafenetFunc(ctx, now)
	}
	return 0, nil
}

func (m *MockSafenetStore) ListSafenet(ctx context.Context) ([]types.SafenetEntry, error) {
	if m.ListSafenetFunc != nil {
		return m.ListSafenetFunc(ctx)
	}
	return nil, nil
}

func (m *MockSafenetStore) ReplaceSafenetReport(ctx context.Context, body string, at time.Time) error {
	if m.ReplaceSafenetReportFunc != nil {
		if err := m.ReplaceSafenetReportFunc(ctx, body, at); err != nil {
			return err
		}
	}
	m.Reports = append(m.Reports, body)
	return nil
}
