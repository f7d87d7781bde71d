package jobs

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hexpgame/hexcron/internal/constants"
	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CancellationReaper finalizes processes stuck in CANCELLING for longer than
// the cancel timeout, as if cleanup had been acknowledged.
type CancellationReaper struct {
	processes store.ProcessStore
	engine    ProcessEngine
	timeout   time.Duration
	pageSize  int
}

func NewCancellationReaper(processes store.ProcessStore, engine ProcessEngine, timeout time.Duration, pageSize int) *CancellationReaper {
	if timeout <= 0 {
		timeout = constants.DefaultCancelTimeout
	}
	if pageSize <= 0 {
		pageSize = constants.DefaultSweepPageSize
	}
	return &CancellationReaper{processes: processes, engine: engine, timeout: timeout, pageSize: pageSize}
}

func (r *CancellationReaper) Execute(ctx context.Context, jc scheduler.JobContext) (types.Summary, error) {
	cutoff := jc.Clock.Now().Add(-r.timeout)
	summary := types.Summary{"stale": 0, "cancelled": 0, "skipped": 0}
	var errs *multierror.Error

	fetch := func(ctx context.Context, page int) (*types.PaginationResult[types.Process], error) {
		return r.processes.FetchStale(ctx, state.Cancelling, cutoff, page, r.pageSize)
	}
	err := drain(ctx, fetch, func(batch []types.Process) {
		for _, p := range batch {
			summary.Inc("stale")
			_, err := r.engine.AcknowledgeCancel(ctx, p.ID)
			switch {
			case err == nil:
				summary.Inc("cancelled")
			case lostRace(err):
				summary.Inc("skipped")
			default:
				errs = multierror.Append(errs, errors.Wrapf(err, "process %s", p.ID))
			}
		}
	})
	if err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "fetch stale cancellations"))
	}

	if summary["cancelled"] > 0 {
		jc.Logger.Info("forced stale cancellations", zap.Int("cancelled", summary["cancelled"]), zap.Duration("timeout", r.timeout))
	}
	return summary, errs.ErrorOrNil()
}
