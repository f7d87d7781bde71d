package store

import (
	"context"
	"time"

	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/types"
)

// JobRunStore keeps a durable record of every registered recurring job and the
// outcome of its latest invocation.
type JobRunStore interface {
	// AddOrUpdate inserts the job or refreshes its expression and next run. Returns the job's ID.
	AddOrUpdate(ctx context.Context, name, expression, instance string, nextRunAt time.Time) (int64, error)

	// UpdateJobRunTimes updates the LastRunAt and NextRunAt timestamps after execution.
	UpdateJobRunTimes(ctx context.Context, name string, lastRunAt, nextRunAt time.Time) error

	// MarkSuccess records a successful invocation and its summary.
	MarkSuccess(ctx context.Context, name string, summary types.Summary) error

	// MarkFailure records a failed or timed out invocation with the given error message.
	MarkFailure(ctx context.Context, name string, status state.JobRunStatus, errMsg string) error

	// MarkSkipped counts a tick skipped because the previous invocation was still running.
	MarkSkipped(ctx context.Context, name string) error

	GetAll(ctx context.Context, page int, pageSize int, status state.JobRunStatus) (*types.PaginationResult[types.JobRun], error)

	CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobRunStatus]int, error)
}
