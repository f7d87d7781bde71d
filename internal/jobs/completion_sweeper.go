package jobs

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/hexpgame/hexcron/internal/constants"
	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OutcomePolicy decides how a due process without an external failure signal
// ends. Returning false fails it with the given reason.
type OutcomePolicy func(p types.Process) (success bool, reason string)

// AlwaysSucceed is the default policy: a process that ran its full duration completes.
func AlwaysSucceed(types.Process) (bool, string) {
	return true, ""
}

// CompletionSweeper finalizes RUNNING processes whose estimated completion has passed.
type CompletionSweeper struct {
	processes   store.ProcessStore
	engine      ProcessEngine
	policy      OutcomePolicy
	pageSize    int
	concurrency int
}

func NewCompletionSweeper(processes store.ProcessStore, engine ProcessEngine, policy OutcomePolicy, pageSize, concurrency int) *CompletionSweeper {
	if policy == nil {
		policy = AlwaysSucceed
	}
	if pageSize <= 0 {
		pageSize = constants.DefaultSweepPageSize
	}
	if concurrency <= 0 {
		concurrency = constants.DefaultSweepConcurrency
	}
	return &CompletionSweeper{
		processes:   processes,
		engine:      engine,
		policy:      policy,
		pageSize:    pageSize,
		concurrency: concurrency,
	}
}

func (s *CompletionSweeper) Execute(ctx context.Context, jc scheduler.JobContext) (types.Summary, error) {
	now := jc.Clock.Now()
	summary := types.Summary{"due": 0, "completed": 0, "failed": 0, "skipped": 0}

	var (
		mu   sync.Mutex
		errs *multierror.Error
	)

	fetch := func(ctx context.Context, page int) (*types.PaginationResult[types.Process], error) {
		return s.processes.FetchDue(ctx, now, page, s.pageSize)
	}
	err := drain(ctx, fetch, func(batch []types.Process) {
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for _, p := range batch {
			g.Go(func() error {
				key, err := s.finalize(ctx, p)
				mu.Lock()
				defer mu.Unlock()
				summary.Inc("due")
				switch {
				case err == nil:
					summary.Inc(key)
				case lostRace(err):
					summary.Inc("skipped")
				default:
					errs = multierror.Append(errs, errors.Wrapf(err, "process %s", p.ID))
				}
				return nil
			})
		}
		_ = g.Wait()
	})
	if err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "fetch due processes"))
	}

	if summary["due"] > 0 {
		jc.Logger.Info("completion sweep",
			zap.Int("due", summary["due"]),
			zap.Int("completed", summary["completed"]),
			zap.Int("failed", summary["failed"]),
			zap.Int("skipped", summary["skipped"]))
	}
	return summary, errs.ErrorOrNil()
}

// finalize leaves the decision to the engine so a failure signal recorded after
// the page was fetched still wins.
func (s *CompletionSweeper) finalize(ctx context.Context, p types.Process) (string, error) {
	done, err := s.engine.Finalize(ctx, p.ID, s.policy)
	if err != nil {
		return "", err
	}
	if done.State == state.Failed {
		return "failed", nil
	}
	return "completed", nil
}
