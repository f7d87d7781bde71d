package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const jobRunColumns = `
	id, name, expression, instance, status, last_error, summary,
	last_run_at, next_run_at, runs, failures, skipped, created_at, updated_at`

// JobRunStore keeps one row per recurring job in job_runs.
type JobRunStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewJobRunStore(db *sql.DB, logger *zap.Logger) *JobRunStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobRunStore{db: db, logger: logger}
}

func (r *JobRunStore) AddOrUpdate(ctx context.Context, name, expression, instance string, nextRunAt time.Time) (int64, error) {
	query := `
		INSERT INTO job_runs (name, expression, instance, status, next_run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (name) DO UPDATE SET
			expression = $2,
			instance = $3,
			next_run_at = $5,
			updated_at = now()
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, name, expression, instance, state.StatusScheduled, nextRunAt).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to insert or update job run %q", name)
	}
	return id, nil
}

func (r *JobRunStore) UpdateJobRunTimes(ctx context.Context, name string, lastRunAt, nextRunAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE job_runs
		SET last_run_at = $1, next_run_at = $2, updated_at = now()
		WHERE name = $3
	`, lastRunAt, nextRunAt, name)
	return errors.Wrapf(err, "update run times of %q", name)
}

func (r *JobRunStore) MarkSuccess(ctx context.Context, name string, summary types.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "failed to marshal summary")
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE job_runs
		SET status = $1,
		    last_error = NULL,
		    summary = $2,
		    runs = runs + 1,
		    updated_at = now()
		WHERE name = $3
	`, state.StatusSucceeded, payload, name)
	return errors.Wrapf(err, "mark %q succeeded", name)
}

func (r *JobRunStore) MarkFailure(ctx context.Context, name string, status state.JobRunStatus, errMsg string) error {
	if !status.IsFailure() {
		return errors.Errorf("mark %q failed: %s is not a failure status", name, status)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE job_runs
		SET status = $1,
		    last_error = $2,
		    runs = runs + 1,
		    failures = failures + 1,
		    updated_at = now()
		WHERE name = $3
	`, status, errMsg, name)
	return errors.Wrapf(err, "mark %q %s", name, status)
}

func (r *JobRunStore) MarkSkipped(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE job_runs
		SET skipped = skipped + 1, updated_at = now()
		WHERE name = $1
	`, name)
	return errors.Wrapf(err, "mark %q skipped", name)
}

func (r *JobRunStore) GetAll(ctx context.Context, page int, pageSize int, status state.JobRunStatus) (*types.PaginationResult[types.JobRun], error) {
	if page < 1 {
		page = 1
	}

	var args []any
	where := "TRUE"
	argIndex := 1
	if status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, status)
		argIndex++
	}

	var totalItems int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_runs WHERE `+where, args...).Scan(&totalItems)
	if err != nil {
		return nil, errors.Wrap(err, "count job runs")
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM job_runs
		WHERE %s
		ORDER BY name ASC
		LIMIT $%d OFFSET $%d`, jobRunColumns, where, argIndex, argIndex+1)
	args = append(args, pageSize, types.Offset(page, pageSize))

	rows, err := r.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query job runs")
	}
	defer rows.Close()

	runs := make([]types.JobRun, 0)
	for rows.Next() {
		var (
			run       types.JobRun
			summary   []byte
			lastRunAt sql.NullTime
			nextRunAt sql.NullTime
		)
		err := rows.Scan(
			&run.ID, &run.Name, &run.Expression, &run.Instance, &run.Status, &run.LastError, &summary,
			&lastRunAt, &nextRunAt, &run.Runs, &run.Failures, &run.Skipped, &run.CreatedAt, &run.UpdatedAt,
		)
		if err != nil {
			r.logger.Warn("skipping unreadable job run row", zap.Error(err))
			continue
		}
		run.Summary = summary
		run.LastRunAt = timePtr(lastRunAt)
		run.NextRunAt = timePtr(nextRunAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate job runs")
	}

	return types.NewPaginationResult(runs, totalItems, page, pageSize), nil
}

// CountAllJobsGroupedByStatus reports how many jobs last ended in each status.
// Statuses nobody is in are present with a zero count.
func (r *JobRunStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobRunStatus]int, error) {
	counts := make(map[state.JobRunStatus]int, len(state.AllStatuses))
	for _, status := range state.AllStatuses {
		counts[status] = 0
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM job_runs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "count job runs by status")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status state.JobRunStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "scan job run count")
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate job run counts")
	}
	return counts, nil
}
