package app

import (
	"context"
	"slices"

	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const jobRunPageSize = 100

// ReportStatus logs the process population and, when job runs are persisted,
// how many jobs sit in each run status.
func (c *Container) ReportStatus(ctx context.Context) error {
	counts, err := c.Processes.CountByState(ctx)
	if err != nil {
		return errors.Wrap(err, "count processes")
	}
	fields := make([]zap.Field, 0, len(counts))
	for _, st := range state.AllProcessStates {
		fields = append(fields, zap.Int(st.String(), counts[st]))
	}
	c.Logger.Info("process status", fields...)

	if c.JobRuns == nil {
		return nil
	}
	runs, err := c.JobRuns.CountAllJobsGroupedByStatus(ctx)
	if err != nil {
		return errors.Wrap(err, "count job runs")
	}
	fields = fields[:0]
	for _, st := range state.AllStatuses {
		fields = append(fields, zap.Int(string(st), runs[st]))
	}
	c.Logger.Info("job run status", fields...)
	return nil
}

// ListJobRuns returns every persisted job run, optionally only those in status.
// An empty status lists all of them.
func (c *Container) ListJobRuns(ctx context.Context, status state.JobRunStatus) ([]types.JobRun, error) {
	if c.JobRuns == nil {
		return nil, errors.Errorf("job runs are not persisted with the %s storage driver", c.Config.StorageDriver)
	}
	if status != "" && !slices.Contains(state.AllStatuses, status) {
		return nil, errors.Errorf("unknown job run status %q", status)
	}

	var out []types.JobRun
	for page := 1; ; page++ {
		res, err := c.JobRuns.GetAll(ctx, page, jobRunPageSize, status)
		if err != nil {
			return nil, errors.Wrapf(err, "list job runs page %d", page)
		}
		out = append(out, res.Items...)
		if !res.HasNextPage || len(res.Items) == 0 {
			return out, nil
		}
	}
}
