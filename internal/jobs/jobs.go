// Package jobs holds the recurring maintenance routines run by the scheduler.
// Every job keeps only store and engine handles; nothing is cached between runs.
package jobs

import (
	"context"

	"github.com/google/uuid"
	"github.com/hexpgame/hexcron/custom_errors"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
)

// Job names as registered with the scheduler and stored in job_runs.
const (
	CompletionSweeperName  = "completion_sweeper"
	CancellationReaperName = "cancellation_reaper"
	QueueAdmitterName      = "queue_admitter"
	MissionGeneratorName   = "mission_generator"
	WarDetectorName        = "war_detector"
	WarFinisherName        = "war_finisher"
	SessionCleanupName     = "session_cleanup"
	PremiumExpiryName      = "premium_expiry"
	BackupTriggerName      = "backup_trigger"
	RoundFinisherName      = "finish_round"
	SafenetUpdateName      = "safenet_update"
)

// ProcessEngine is the part of process.Engine the jobs drive.
type ProcessEngine interface {
	Finalize(ctx context.Context, id uuid.UUID, policy func(types.Process) (bool, string)) (*types.Process, error)
	AcknowledgeCancel(ctx context.Context, id uuid.UUID) (*types.Process, error)
	Admit(ctx context.Context, id uuid.UUID) (*types.Process, error)
}

// lostRace reports errors that mean another actor already moved the process.
// They are counted, never treated as a job failure.
func lostRace(err error) bool {
	return errors.Is(err, custom_errors.ErrInvalidStateTransition) ||
		errors.Is(err, custom_errors.ErrProcessNotFound)
}

type pageFetcher func(ctx context.Context, page int) (*types.PaginationResult[types.Process], error)

// drain walks a result set that shrinks as it is handled. Processes that stay in
// the set, because handling them failed, are remembered and paged past, so the
// loop ends once every matching process has been seen once.
func drain(ctx context.Context, fetch pageFetcher, handle func(batch []types.Process)) error {
	seen := make(map[uuid.UUID]struct{})
	page := 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := fetch(ctx, page)
		if err != nil {
			return err
		}

		fresh := make([]types.Process, 0, len(result.Items))
		for _, p := range result.Items {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			fresh = append(fresh, p)
		}

		if len(fresh) == 0 {
			if !result.HasNextPage {
				return nil
			}
			page++
			continue
		}
		handle(fresh)
	}
}
