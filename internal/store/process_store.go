package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/types"
)

// UpdateFunc mutates a locked copy of a process. A non-nil reservation is released
// through the ledger in the same unit of work as the record write. Returning an
// error aborts the update and leaves the stored record unchanged.
type UpdateFunc func(p *types.Process) (release *types.Reservation, err error)

// AdmitFunc starts p on a reservation the store has just taken for it. Returning
// an error aborts the admission: the reservation is given back and nothing is written.
type AdmitFunc func(p *types.Process, r *types.Reservation) error

// ProcessStore persists process records. Every state change goes through Update.
type ProcessStore interface {
	// Insert stores a new record. The caller has already applied its initial transition.
	Insert(ctx context.Context, p *types.Process) error

	// InsertAdmitted reserves p.Requested on p.ServerID, applies fn and stores p
	// in one unit of work. A failed insert never leaves the reservation behind.
	InsertAdmitted(ctx context.Context, p *types.Process, fn AdmitFunc) error

	// Admit locks a stored process, reserves its requested resources and applies
	// fn in one unit of work. On error the current record is returned unchanged.
	Admit(ctx context.Context, id uuid.UUID, fn AdmitFunc) (*types.Process, error)

	// Get returns the record or an error matching custom_errors.ErrProcessNotFound.
	Get(ctx context.Context, id uuid.UUID) (*types.Process, error)

	// Update serialises writers on a single process and applies fn to the current record.
	Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) (*types.Process, error)

	// FetchDue pages through RUNNING processes whose estimated completion is <= now,
	// oldest first.
	FetchDue(ctx context.Context, now time.Time, page, pageSize int) (*types.PaginationResult[types.Process], error)

	// FetchStale pages through processes in st whose updated_at is older than before.
	FetchStale(ctx context.Context, st state.ProcessState, before time.Time, page, pageSize int) (*types.PaginationResult[types.Process], error)

	// FetchQueued returns up to limit QUEUED processes, highest priority then oldest first.
	FetchQueued(ctx context.Context, limit int) ([]types.Process, error)

	// CountByState reports how many records are in each state.
	CountByState(ctx context.Context) (map[state.ProcessState]int, error)
}
