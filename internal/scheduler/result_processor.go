package scheduler

import (
	"context"
	"time"

	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/types"
	"go.uber.org/zap"
)

const recordTimeout = 5 * time.Second

// processResults writes invocation outcomes to the run store until Stop. What is
// still buffered when Stop closes quit is drained before returning.
func (r *Registry) processResults() {
	defer close(r.resultsDone)

	for {
		select {
		case res := <-r.results:
			r.recordResult(res)
		case <-r.quit:
			for {
				select {
				case res := <-r.results:
					r.recordResult(res)
				default:
					return
				}
			}
		}
	}
}

func (r *Registry) recordResult(res types.JobResult) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	logger := r.logger.With(zap.String("job", res.JobName))

	var err error
	switch res.Status {
	case state.StatusSucceeded:
		err = r.runs.MarkSuccess(ctx, res.JobName, res.Summary)
	case state.StatusFailed, state.StatusTimedOut:
		msg := ""
		if res.Err != nil {
			msg = res.Err.Error()
		}
		err = r.runs.MarkFailure(ctx, res.JobName, res.Status, msg)
	case state.StatusSkipped:
		if err := r.runs.MarkSkipped(ctx, res.JobName); err != nil {
			logger.Warn("failed to record skipped tick", zap.Error(err))
		}
		return
	default:
		logger.Warn("unknown job status", zap.String("status", res.Status.String()))
		return
	}
	if err != nil {
		logger.Warn("failed to record job outcome", zap.Error(err))
	}

	if err := r.runs.UpdateJobRunTimes(ctx, res.JobName, res.RanAt, res.NextRun); err != nil {
		logger.Warn("failed to record job run times", zap.Error(err))
	}
}
