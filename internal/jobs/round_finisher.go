package jobs

import (
	"context"

	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RoundFinisher closes the current round once its end date has passed and
// opens the next one. Rounds without an end date are left alone.
type RoundFinisher struct {
	rounds store.RoundFinisher
}

func NewRoundFinisher(rounds store.RoundFinisher) *RoundFinisher {
	return &RoundFinisher{rounds: rounds}
}

func (f *RoundFinisher) Execute(ctx context.Context, jc scheduler.JobContext) (types.Summary, error) {
	now := jc.Clock.Now()
	summary := types.Summary{}

	round, err := f.rounds.CurrentRound(ctx)
	if err != nil {
		return summary, errors.Wrap(err, "read round")
	}
	if round == nil || !round.Active {
		summary.Inc("inactive_round")
		return summary, nil
	}
	if !round.Due(now) {
		summary.Inc("not_due")
		return summary, nil
	}

	next, err := f.rounds.FinishRound(ctx, *round, now)
	if err != nil {
		return summary, errors.Wrapf(err, "finish round %d", round.ID)
	}
	if next == nil {
		// Another instance closed it first.
		summary.Inc("skipped")
		return summary, nil
	}

	summary.Inc("finished")
	jc.Logger.Info("round finished",
		zap.Int64("round_id", round.ID),
		zap.Int64("next_round_id", next.ID))
	return summary, nil
}
