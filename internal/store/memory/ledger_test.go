package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/hexpgame/hexcron/custom_errors"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() *Ledger {
	l := NewLedger(clock.NewMock())
	l.AddServer(1, types.Resources{CPU: 100, RAM: 100, NET: 100}, 1000)
	return l
}

func TestLedger_ReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	a, err := l.Reserve(ctx, 1, types.Resources{CPU: 60, RAM: 40})
	require.NoError(t, err)

	snap, err := l.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.Resources{CPU: 40, RAM: 60, NET: 100}, snap.Available)

	_, err = l.Reserve(ctx, 1, types.Resources{CPU: 50, RAM: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, custom_errors.ErrInsufficientResources))

	var insufficient *custom_errors.InsufficientResourcesError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "cpu", insufficient.Dimension)
	assert.Equal(t, int64(40), insufficient.Available)

	snap, err = l.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.Resources{CPU: 40, RAM: 60, NET: 100}, snap.Available)

	require.NoError(t, l.Release(ctx, a))
	snap, err = l.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, snap.Total, snap.Available)
	assert.Equal(t, 0, l.Outstanding())
}

func TestLedger_ReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	r, err := l.Reserve(ctx, 1, types.Resources{CPU: 10, RAM: 10, NET: 10})
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx, r))
	require.NoError(t, l.Release(ctx, r))
	require.NoError(t, l.Release(ctx, nil))

	snap, err := l.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.Resources{CPU: 100, RAM: 100, NET: 100}, snap.Available)
}

func TestLedger_UnknownServer(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	_, err := l.Reserve(ctx, 42, types.Resources{CPU: 1})
	assert.True(t, errors.Is(err, custom_errors.ErrServerNotFound))

	_, err = l.Snapshot(ctx, 42)
	assert.True(t, errors.Is(err, custom_errors.ErrServerNotFound))
}

func TestLedger_RejectsNegativeAmounts(t *testing.T) {
	_, err := newTestLedger().Reserve(context.Background(), 1, types.Resources{CPU: -1})
	assert.Error(t, err)
}

func TestLedger_ConcurrentReservationsNeverOversubscribe(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	const attempts = 50
	var wg sync.WaitGroup
	var granted, rejected atomic.Int64

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reserve(ctx, 1, types.Resources{CPU: 30, RAM: 5})
			if err == nil {
				granted.Add(1)
				return
			}
			if errors.Is(err, custom_errors.ErrInsufficientResources) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), granted.Load())
	assert.Equal(t, int64(attempts-3), rejected.Load())

	snap, err := l.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), snap.Available.CPU)
	assert.Equal(t, types.Resources{CPU: 90, RAM: 15}, snap.Reserved())
}

func TestLedger_TwoRacersOneWinner(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil)
	l.AddServer(9, types.Resources{CPU: 10, RAM: 10, NET: 10}, 0)

	start := make(chan struct{})
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			_, err := l.Reserve(ctx, 9, types.Resources{CPU: 8, RAM: 8, NET: 8})
			errs <- err
		}()
	}
	close(start)

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			assert.True(t, errors.Is(err, custom_errors.ErrInsufficientResources))
			failures++
		}
	}
	assert.Equal(t, 1, failures)
}

func TestLedger_Storage(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	require.NoError(t, l.AllocateStorage(ctx, 1, 600))
	err := l.AllocateStorage(ctx, 1, 500)
	assert.True(t, errors.Is(err, custom_errors.ErrInsufficientResources))

	require.NoError(t, l.FreeStorage(ctx, 1, 2000))
	snap, err := l.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), snap.StorageAvailable)
}
