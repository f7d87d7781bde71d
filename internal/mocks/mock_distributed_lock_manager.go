package mocks

import "context"

// MockDistributedLockManager is a mock implementation of lock.DistributedLockManager for testing.
type MockDistributedLockManager struct {
	TryAcquireFunc func(ctx context.Context, key string) (bool, error)
	ReleaseFunc    func(ctx context.Context, key string) error
}

func (m *MockDistributedLockManager) TryAcquire(ctx context.Context, key string) (bool, error) {
	if m.TryAcquireFunc != nil {
		return m.TryAcquireFunc(ctx, key)
	}
	return true, nil
}

func (m *MockDistributedLockManager) Release(ctx context.Context, key string) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, key)
	}
	return nil
}
