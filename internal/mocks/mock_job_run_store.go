package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/types"
)

// MockJobRunStore is a mock implementation of store.JobRunStore for testing.
// Every call is also counted so tests can wait for the result processor.
type MockJobRunStore struct {
	AddOrUpdateFunc                 func(ctx context.Context, name, expression, instance string, nextRunAt time.Time) (int64, error)
	UpdateJobRunTimesFunc           func(ctx context.Context, name string, lastRunAt, nextRunAt time.Time) error
	MarkSuccessFunc                 func(ctx context.Context, name string, summary types.Summary) error
	MarkFailureFunc                 func(ctx context.Context, name string, status state.JobRunStatus, errMsg string) error
	MarkSkippedFunc                 func(ctx context.Context, name string) error
	GetAllFunc                      func(ctx context.Context, page int, pageSize int, status state.JobRunStatus) (*types.PaginationResult[types.JobRun], error)
	CountAllJobsGroupedByStatusFunc func(ctx context.Context) (map[state.JobRunStatus]int, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockJobRunStore) count(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

// Calls returns how many times method was invoked.
func (m *MockJobRunStore) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockJobRunStore) AddOrUpdate(ctx context.Context, name, expression, instance string, nextRunAt time.Time) (int64, error) {
	m.count("AddOrUpdate")
	if m.AddOrUpdateFunc != nil {
		return m.AddOrUpdateFunc(ctx, name, expression, instance, nextRunAt)
	}
	return 1, nil
}

func (m *MockJobRunStore) UpdateJobRunTimes(ctx context.Context, name string, lastRunAt, nextRunAt time.Time) error {
	m.count("UpdateJobRunTimes")
	if m.UpdateJobRunTimesFunc != nil {
		return m.UpdateJobRunTimesFunc(ctx, name, lastRunAt, nextRunAt)
	}
	return nil
}

func (m *MockJobRunStore) MarkSuccess(ctx context.Context, name string, summary types.Summary) error {
	m.count("MarkSuccess")
	if m.MarkSuccessFunc != nil {
		return m.MarkSuccessFunc(ctx, name, summary)
	}
	return nil
}

func (m *MockJobRunStore) MarkFailure(ctx context.Context, name string, status state.JobRunStatus, errMsg string) error {
	m.count("MarkFailure")
	if m.MarkFailureFunc != nil {
		return m.MarkFailureFunc(ctx, name, status, errMsg)
	}
	return nil
}

func (m *MockJobRunStore) MarkSkipped(ctx context.Context, name string) error {
	m.count("MarkSkipped")
	if m.MarkSkippedFunc != nil {
		return m.MarkSkippedFunc(ctx, name)
	}
	return nil
}

func (m *MockJobRunStore) GetAll(ctx context.Context, page int, pageSize int, status state.JobRunStatus) (*types.PaginationResult[types.JobRun], error) {
	m.count("GetAll")
	if m.GetAllFunc != nil {
		return m.GetAllFunc(ctx, page, pageSize, status)
	}
	return types.NewPaginationResult([]types.JobRun{}, 0, page, pageSize), nil
}

func (m *MockJobRunStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobRunStatus]int, error) {
	m.count("CountAllJobsGroupedByStatus")
	if m.CountAllJobsGroupedByStatusFunc != nil {
		return m.CountAllJobsGroupedByStatusFunc(ctx)
	}
	return map[state.JobRunStatus]int{}, nil
}
