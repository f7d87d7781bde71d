package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/hexpgame/hexcron/custom_errors"
	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
)

type record struct {
	mu   sync.Mutex
	proc *types.Process
}

// ProcessStore keeps processes in a map. A per-record mutex serialises
// transitions on one process and is held while the ledger release runs, so the
// state write and the release are observed together.
type ProcessStore struct {
	ledger store.ResourceLedger

	mu      sync.RWMutex
	records map[uuid.UUID]*record
}

func NewProcessStore(ledger store.ResourceLedger) *ProcessStore {
	return &ProcessStore{
		ledger:  ledger,
		records: make(map[uuid.UUID]*record),
	}
}

func (s *ProcessStore) Insert(ctx context.Context, p *types.Process) error {
	if p == nil {
		return errors.New("insert process: nil record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[p.ID]; exists {
		return errors.Errorf("insert process %s: already exists", p.ID)
	}
	s.records[p.ID] = &record{proc: p.Clone()}
	return nil
}

// InsertAdmitted holds the map lock across reserve, fn and insert so a
// duplicate id is caught before the ledger is touched.
func (s *ProcessStore) InsertAdmitted(ctx context.Context, p *types.Process, fn store.AdmitFunc) error {
	if p == nil {
		return errors.New("insert process: nil record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[p.ID]; exists {
		return errors.Errorf("insert process %s: already exists", p.ID)
	}

	r, err := s.ledger.Reserve(ctx, p.ServerID, p.Requested)
	if err != nil {
		return err
	}
	if err := fn(p, r); err != nil {
		return s.giveBack(ctx, r, err)
	}
	s.records[p.ID] = &record{proc: p.Clone()}
	return nil
}

func (s *ProcessStore) Admit(ctx context.Context, id uuid.UUID, fn store.AdmitFunc) (*types.Process, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	r, err := s.ledger.Reserve(ctx, rec.proc.ServerID, rec.proc.Requested)
	if err != nil {
		return rec.proc.Clone(), err
	}
	next := rec.proc.Clone()
	if err := fn(next, r); err != nil {
		return rec.proc.Clone(), s.giveBack(ctx, r, err)
	}
	rec.proc = next
	return next.Clone(), nil
}

// giveBack releases r after an aborted admission. The release runs even when
// ctx is already done, otherwise the reservation would never come back.
func (s *ProcessStore) giveBack(ctx context.Context, r *types.Reservation, cause error) error {
	if err := s.ledger.Release(context.WithoutCancel(ctx), r); err != nil {
		return multierror.Append(cause, errors.Wrapf(err, "give back reservation %s", r.ID))
	}
	return cause
}

func (s *ProcessStore) lookup(id uuid.UUID) (*record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, errors.Wrapf(custom_errors.ErrProcessNotFound, "process %s", id)
	}
	return rec, nil
}

func (s *ProcessStore) Get(ctx context.Context, id uuid.UUID) (*types.Process, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.proc.Clone(), nil
}

func (s *ProcessStore) Update(ctx context.Context, id uuid.UUID, fn store.UpdateFunc) (*types.Process, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	next := rec.proc.Clone()
	release, err := fn(next)
	if err != nil {
		return rec.proc.Clone(), err
	}
	if release != nil {
		if err := s.ledger.Release(ctx, release); err != nil {
			return rec.proc.Clone(), errors.Wrapf(err, "release reservation of process %s", id)
		}
	}
	rec.proc = next
	return next.Clone(), nil
}

// snapshot copies every record under its own lock, filtered by keep.
func (s *ProcessStore) snapshot(keep func(p *types.Process) bool) []types.Process {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	out := make([]types.Process, 0)
	for _, rec := range recs {
		rec.mu.Lock()
		if keep(rec.proc) {
			out = append(out, *rec.proc.Clone())
		}
		rec.mu.Unlock()
	}
	return out
}

func paginate(items []types.Process, page, pageSize int) *types.PaginationResult[types.Process] {
	total := len(items)
	offset := types.Offset(page, pageSize)
	if offset > total {
		offset = total
	}
	end := offset + pageSize
	if pageSize <= 0 || end > total {
		end = total
	}
	return types.NewPaginationResult(items[offset:end], total, page, pageSize)
}

func (s *ProcessStore) FetchDue(ctx context.Context, now time.Time, page, pageSize int) (*types.PaginationResult[types.Process], error) {
	due := s.snapshot(func(p *types.Process) bool {
		return p.State == state.Running && p.EstimatedCompletion != nil && !p.EstimatedCompletion.After(now)
	})
	sort.Slice(due, func(i, j int) bool {
		return due[i].EstimatedCompletion.Before(*due[j].EstimatedCompletion)
	})
	return paginate(due, page, pageSize), nil
}

func (s *ProcessStore) FetchStale(ctx context.Context, st state.ProcessState, before time.Time, page, pageSize int) (*types.PaginationResult[types.Process], error) {
	stale := s.snapshot(func(p *types.Process) bool {
		return p.State == st && p.UpdatedAt.Before(before)
	})
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].UpdatedAt.Before(stale[j].UpdatedAt)
	})
	return paginate(stale, page, pageSize), nil
}

func (s *ProcessStore) FetchQueued(ctx context.Context, limit int) ([]types.Process, error) {
	queued := s.snapshot(func(p *types.Process) bool {
		return p.State == state.Queued
	})
	sort.Slice(queued, func(i, j int) bool {
		if queued[i].Priority != queued[j].Priority {
			return queued[i].Priority > queued[j].Priority
		}
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})
	if limit > 0 && len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

func (s *ProcessStore) CountByState(ctx context.Context) (map[state.ProcessState]int, error) {
	counts := make(map[state.ProcessState]int, len(state.AllProcessStates))
	for _, st := range state.AllProcessStates {
		counts[st] = 0
	}
	for _, p := range s.snapshot(func(*types.Process) bool { return true }) {
		counts[p.State]++
	}
	return counts, nil
}
