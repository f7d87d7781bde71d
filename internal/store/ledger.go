package store

import (
	"context"

	"github.com/hexpgame/hexcron/types"
)

// ResourceLedger is the single writer of per-server available capacity.
type ResourceLedger interface {
	// Reserve atomically checks every dimension and takes the requested amounts.
	// It returns an error matching custom_errors.ErrInsufficientResources when any
	// dimension falls short, in which case nothing is taken.
	Reserve(ctx context.Context, serverID int64, req types.Resources) (*types.Reservation, error)

	// Release returns the reserved amounts. Releasing the same token again is a no-op.
	Release(ctx context.Context, r *types.Reservation) error

	// Snapshot returns a consistent view of total and available capacity.
	Snapshot(ctx context.Context, serverID int64) (*types.ServerCapacity, error)

	// AllocateStorage takes storage that is not given back when processes finish.
	AllocateStorage(ctx context.Context, serverID int64, amount int64) error

	// FreeStorage gives storage back, e.g. when a file is deleted.
	FreeStorage(ctx context.Context, serverID int64, amount int64) error
}
