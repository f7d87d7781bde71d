// Package memory holds in-process implementations of the store interfaces. They
// back unit tests and single-node deployments that do not need durability.
package memory

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hexpgame/hexcron/custom_errors"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
)

type account struct {
	mu               sync.Mutex
	total            types.Resources
	available        types.Resources
	storageTotal     int64
	storageAvailable int64
}

// Ledger keeps one mutex per server so reservations on different servers never
// contend, while reservations on the same server are linearizable.
type Ledger struct {
	clock clock.Clock

	mu       sync.RWMutex
	accounts map[int64]*account

	tokensMu    sync.Mutex
	outstanding map[uuid.UUID]types.Reservation
}

func NewLedger(clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.New()
	}
	return &Ledger{
		clock:       clk,
		accounts:    make(map[int64]*account),
		outstanding: make(map[uuid.UUID]types.Reservation),
	}
}

// AddServer registers a server with everything available. Adding an existing
// server replaces its budget.
func (l *Ledger) AddServer(serverID int64, total types.Resources, storage int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[serverID] = &account{
		total:            total,
		available:        total,
		storageTotal:     storage,
		storageAvailable: storage,
	}
}

func (l *Ledger) account(serverID int64) (*account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[serverID]
	if !ok {
		return nil, errors.Wrapf(custom_errors.ErrServerNotFound, "server %d", serverID)
	}
	return acc, nil
}

func (l *Ledger) Reserve(ctx context.Context, serverID int64, req types.Resources) (*types.Reservation, error) {
	if req.IsNegative() {
		return nil, errors.Errorf("reserve on server %d: negative amounts %+v", serverID, req)
	}
	acc, err := l.account(serverID)
	if err != nil {
		return nil, err
	}

	acc.mu.Lock()
	if dim, requested, available, short := acc.available.Shortfall(req); short {
		acc.mu.Unlock()
		return nil, custom_errors.NewInsufficientResources(serverID, dim, requested, available)
	}
	acc.available = acc.available.Sub(req)
	acc.mu.Unlock()

	r := types.Reservation{
		ID:        uuid.New(),
		ServerID:  serverID,
		Resources: req,
		CreatedAt: l.clock.Now(),
	}
	l.tokensMu.Lock()
	l.outstanding[r.ID] = r
	l.tokensMu.Unlock()

	return &r, nil
}

func (l *Ledger) Release(ctx context.Context, r *types.Reservation) error {
	if r == nil {
		return nil
	}

	// The outstanding entry is the token. Whoever deletes it gives the amounts back.
	l.tokensMu.Lock()
	held, ok := l.outstanding[r.ID]
	delete(l.outstanding, r.ID)
	l.tokensMu.Unlock()
	if !ok {
		return nil
	}

	acc, err := l.account(held.ServerID)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	acc.available = acc.available.Add(held.Resources)
	acc.mu.Unlock()
	return nil
}

func (l *Ledger) Snapshot(ctx context.Context, serverID int64) (*types.ServerCapacity, error) {
	acc, err := l.account(serverID)
	if err != nil {
		return nil, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return &types.ServerCapacity{
		ServerID:         serverID,
		Total:            acc.total,
		Available:        acc.available,
		StorageTotal:     acc.storageTotal,
		StorageAvailable: acc.storageAvailable,
		TakenAt:          l.clock.Now(),
	}, nil
}

func (l *Ledger) AllocateStorage(ctx context.Context, serverID int64, amount int64) error {
	if amount < 0 {
		return errors.Errorf("allocate storage on server %d: negative amount %d", serverID, amount)
	}
	acc, err := l.account(serverID)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if amount > acc.storageAvailable {
		return custom_errors.NewInsufficientResources(serverID, "storage", amount, acc.storageAvailable)
	}
	acc.storageAvailable -= amount
	return nil
}

func (l *Ledger) FreeStorage(ctx context.Context, serverID int64, amount int64) error {
	if amount < 0 {
		return errors.Errorf("free storage on server %d: negative amount %d", serverID, amount)
	}
	acc, err := l.account(serverID)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.storageAvailable += amount
	if acc.storageAvailable > acc.storageTotal {
		acc.storageAvailable = acc.storageTotal
	}
	return nil
}

// Outstanding reports how many reservations have not been released yet.
func (l *Ledger) Outstanding() int {
	l.tokensMu.Lock()
	defer l.tokensMu.Unlock()
	return len(l.outstanding)
}
