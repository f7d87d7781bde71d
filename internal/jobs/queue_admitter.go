package jobs

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/hexpgame/hexcron/custom_errors"
	"github.com/hexpgame/hexcron/internal/constants"
	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
)

// QueueAdmitter starts QUEUED processes, highest priority and oldest first,
// as long as their server can cover them.
type QueueAdmitter struct {
	processes store.ProcessStore
	engine    ProcessEngine
	batch     int
}

func NewQueueAdmitter(processes store.ProcessStore, engine ProcessEngine, batch int) *QueueAdmitter {
	if batch <= 0 {
		batch = constants.DefaultAdmitBatch
	}
	return &QueueAdmitter{processes: processes, engine: engine, batch: batch}
}

func (a *QueueAdmitter) Execute(ctx context.Context, jc scheduler.JobContext) (types.Summary, error) {
	summary := types.Summary{"queued": 0, "admitted": 0, "waiting": 0, "skipped": 0}

	queued, err := a.processes.FetchQueued(ctx, a.batch)
	if err != nil {
		return summary, errors.Wrap(err, "fetch queued processes")
	}

	var errs *multierror.Error
	for _, p := range queued {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		summary.Inc("queued")
		_, err := a.engine.Admit(ctx, p.ID)
		switch {
		case err == nil:
			summary.Inc("admitted")
		case errors.Is(err, custom_errors.ErrInsufficientResources):
			summary.Inc("waiting")
		case lostRace(err):
			summary.Inc("skipped")
		default:
			errs = multierror.Append(errs, errors.Wrapf(err, "admit process %s", p.ID))
		}
	}
	return summary, errs.ErrorOrNil()
}
