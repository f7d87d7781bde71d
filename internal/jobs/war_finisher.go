package jobs

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/hexpgame/hexcron/internal/message_broaker"
	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// WarFinisher closes wars whose end date has passed and records the winner.
type WarFinisher struct {
	wars store.WarStore
}

func NewWarFinisher(wars store.WarStore) *WarFinisher {
	return &WarFinisher{wars: wars}
}

func (f *WarFinisher) Execute(ctx context.Context, jc scheduler.JobContext) (types.Summary, error) {
	summary := types.Summary{"due": 0, "finished": 0}

	due, err := f.wars.DueWars(ctx, jc.Clock.Now())
	if err != nil {
		return summary, errors.Wrap(err, "list due wars")
	}

	var errs *multierror.Error
	for _, war := range due {
		summary.Inc("due")
		winner, loser := war.Winner()
		if err := f.wars.ArchiveWar(ctx, war, winner, loser); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "war %d", war.ID))
			continue
		}
		summary.Inc("finished")
		jc.Logger.Info("clan war finished",
			zap.Int64("war_id", war.ID),
			zap.Int64("winner", winner),
			zap.Int64("loser", loser))

		event := message_broaker.Event{
			Type:       message_broaker.EventWarFinished,
			Subject:    fmt.Sprintf("war/%d", war.ID),
			OccurredAt: jc.Clock.Now(),
			Data:       map[string]any{"winner": winner, "loser": loser, "bounty": war.Bounty},
		}
		if err := jc.Notifier.Notify(ctx, event); err != nil {
			jc.Logger.Warn("war event not delivered", zap.Error(err))
		}
	}
	return summary, errs.ErrorOrNil()
}
