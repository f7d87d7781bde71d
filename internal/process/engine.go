package process

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hexpgame/hexcron/custom_errors"
	"github.com/hexpgame/hexcron/internal/message_broaker"
	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CreateRequest is what the API layer hands over when a player starts an action.
type CreateRequest struct {
	UserID    int64
	ServerID  int64
	TargetID  *int64
	Type      types.ProcessType
	Priority  types.Priority
	Resources types.Resources
	Duration  time.Duration
	Payload   json.RawMessage
}

func (r CreateRequest) validate() error {
	v := &custom_errors.ValidationError{}
	if !r.Type.Valid() {
		v.Addf("unknown process type %q", r.Type)
	}
	if r.Resources.IsNegative() {
		v.Addf("resources must not be negative: %+v", r.Resources)
	}
	if r.Duration <= 0 {
		v.Addf("duration must be positive, got %s", r.Duration)
	}
	if r.Priority < types.PriorityLow || r.Priority > types.PriorityHigh {
		v.Addf("unknown priority %d", r.Priority)
	}
	return v.ErrOrNil()
}

// Engine is the only component that changes a process's state. It owns the
// transition contract and coordinates with the ledger on admission and release.
type Engine struct {
	store    store.ProcessStore
	ledger   store.ResourceLedger
	clock    clock.Clock
	logger   *zap.Logger
	notifier message_broaker.Notifier
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func WithNotifier(n message_broaker.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

func NewEngine(processStore store.ProcessStore, ledger store.ResourceLedger, opts ...Option) *Engine {
	e := &Engine{
		store:    processStore,
		ledger:   ledger,
		clock:    clock.New(),
		logger:   zap.NewNop(),
		notifier: message_broaker.NopNotifier{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) newRecord(req CreateRequest, now time.Time) *types.Process {
	return &types.Process{
		ID:        uuid.New(),
		UserID:    req.UserID,
		ServerID:  req.ServerID,
		TargetID:  req.TargetID,
		Type:      req.Type,
		Priority:  req.Priority,
		State:     state.Queued,
		Requested: req.Resources,
		Duration:  req.Duration,
		Payload:   req.Payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Create reserves the requested resources and stores the process already
// RUNNING, in one unit of work of the store. When the server cannot cover the
// request nothing is stored and the ledger error is returned as is.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*types.Process, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	p := e.newRecord(req, now)
	if err := e.store.InsertAdmitted(ctx, p, StartOn(now)); err != nil {
		if isAdmissionRejection(err) {
			e.logger.Info("process admission rejected",
				zap.Int64("server_id", req.ServerID),
				zap.String("type", string(req.Type)),
				zap.Error(err))
			return nil, err
		}
		return nil, errors.Wrap(err, "store process")
	}

	e.publish(ctx, p)
	return p, nil
}

// Enqueue stores the process QUEUED without touching the ledger. The queue
// admitter starts it once the server has room.
func (e *Engine) Enqueue(ctx context.Context, req CreateRequest) (*types.Process, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := e.ledger.Snapshot(ctx, req.ServerID); err != nil {
		return nil, err
	}

	p := e.newRecord(req, e.clock.Now())
	if err := e.store.Insert(ctx, p); err != nil {
		return nil, errors.Wrap(err, "store process")
	}
	e.publish(ctx, p)
	return p, nil
}

// Admit reserves resources for a QUEUED process and starts it. When the server
// is still short the process stays QUEUED and the ledger error is returned.
func (e *Engine) Admit(ctx context.Context, id uuid.UUID) (*types.Process, error) {
	current, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.State != state.Queued {
		return current, custom_errors.NewInvalidStateTransition(current.State.String(), state.Running.String())
	}

	p, err := e.store.Admit(ctx, id, StartOn(e.clock.Now()))
	if err != nil {
		// Lost a race with a cancel or another admitter.
		e.logRejected(id, state.Running, err)
		return p, err
	}

	e.publish(ctx, p)
	return p, nil
}

// Cancel stops a QUEUED process immediately and asks a RUNNING one to wind down.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) (*types.Process, error) {
	now := e.clock.Now()
	var requested state.ProcessState
	p, err := e.store.Update(ctx, id, func(p *types.Process) (*types.Reservation, error) {
		requested = state.Cancelling
		if p.State == state.Queued {
			requested = state.Cancelled
		}
		if p.State == state.Running {
			p.Progress = ComputeProgress(p, now)
		}
		return Apply(p, requested, now, "")
	})
	return e.finish(ctx, id, requested, p, err)
}

// AcknowledgeCancel finalises a CANCELLING process once its side effects are done,
// or when the cancellation reaper gives up waiting.
func (e *Engine) AcknowledgeCancel(ctx context.Context, id uuid.UUID) (*types.Process, error) {
	return e.transition(ctx, id, state.Cancelled, "")
}

// Complete ends a RUNNING process successfully and returns its resources.
func (e *Engine) Complete(ctx context.Context, id uuid.UUID) (*types.Process, error) {
	return e.transition(ctx, id, state.Completed, "")
}

// Fail ends a RUNNING process with an error and returns its resources.
func (e *Engine) Fail(ctx context.Context, id uuid.UUID, reason string) (*types.Process, error) {
	return e.transition(ctx, id, state.Failed, reason)
}

// Finalize ends a due RUNNING process. The outcome is decided on the locked
// record: a recorded failure signal fails it, otherwise policy may fail it with
// a reason, otherwise it completes. A nil policy always completes.
func (e *Engine) Finalize(ctx context.Context, id uuid.UUID, policy func(types.Process) (bool, string)) (*types.Process, error) {
	now := e.clock.Now()
	to := state.Completed
	p, err := e.store.Update(ctx, id, func(p *types.Process) (*types.Reservation, error) {
		to = state.Completed
		reason := ""
		switch {
		case p.FailRequested != nil:
			to = state.Failed
		case policy != nil:
			if ok, why := policy(*p); !ok {
				to, reason = state.Failed, why
			}
		}
		p.Progress = ComputeProgress(p, now)
		return Apply(p, to, now, reason)
	})
	return e.finish(ctx, id, to, p, err)
}

// MarkFailed records an external failure signal on a RUNNING process. The
// process keeps running until the sweeper picks it up.
func (e *Engine) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*types.Process, error) {
	now := e.clock.Now()
	return e.store.Update(ctx, id, func(p *types.Process) (*types.Reservation, error) {
		if p.State != state.Running {
			return nil, custom_errors.NewInvalidStateTransition(p.State.String(), state.Failed.String())
		}
		msg := reason
		p.FailRequested = &msg
		p.UpdatedAt = now
		return nil, nil
	})
}

// Get returns the process with progress recomputed for the current time.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*types.Process, error) {
	p, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Progress = ComputeProgress(p, e.clock.Now())
	return p, nil
}

// Tick persists recomputed progress of a RUNNING process. Other states are returned untouched.
func (e *Engine) Tick(ctx context.Context, id uuid.UUID) (*types.Process, error) {
	now := e.clock.Now()
	return e.store.Update(ctx, id, func(p *types.Process) (*types.Reservation, error) {
		if p.State != state.Running {
			return nil, nil
		}
		p.Progress = ComputeProgress(p, now)
		p.UpdatedAt = now
		return nil, nil
	})
}

// Snapshot exposes the ledger view of a server for status reporting.
func (e *Engine) Snapshot(ctx context.Context, serverID int64) (*types.ServerCapacity, error) {
	return e.ledger.Snapshot(ctx, serverID)
}

func (e *Engine) transition(ctx context.Context, id uuid.UUID, to state.ProcessState, reason string) (*types.Process, error) {
	now := e.clock.Now()
	p, err := e.store.Update(ctx, id, func(p *types.Process) (*types.Reservation, error) {
		p.Progress = ComputeProgress(p, now)
		return Apply(p, to, now, reason)
	})
	return e.finish(ctx, id, to, p, err)
}

func (e *Engine) finish(ctx context.Context, id uuid.UUID, to state.ProcessState, p *types.Process, err error) (*types.Process, error) {
	if err != nil {
		e.logRejected(id, to, err)
		return p, err
	}
	e.publish(ctx, p)
	return p, nil
}

func (e *Engine) logRejected(id uuid.UUID, to state.ProcessState, err error) {
	if errors.Is(err, custom_errors.ErrInvalidStateTransition) {
		e.logger.Warn("process transition rejected",
			zap.String("process_id", id.String()),
			zap.String("to", to.String()),
			zap.Error(err))
	}
}

func isAdmissionRejection(err error) bool {
	return errors.Is(err, custom_errors.ErrInsufficientResources) || errors.Is(err, custom_errors.ErrServerNotFound)
}

func (e *Engine) publish(ctx context.Context, p *types.Process) {
	event := message_broaker.Event{
		Type:       message_broaker.EventProcessTransition,
		Subject:    p.ID.String(),
		State:      p.State.String(),
		OccurredAt: p.UpdatedAt,
		Data: map[string]any{
			"user_id":   p.UserID,
			"server_id": p.ServerID,
			"type":      string(p.Type),
		},
	}
	if err := e.notifier.Notify(ctx, event); err != nil {
		e.logger.Warn("process event not delivered",
			zap.String("process_id", p.ID.String()),
			zap.Error(err))
	}
}
