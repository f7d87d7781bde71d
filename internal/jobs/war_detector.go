package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hexpgame/hexcron/internal/constants"
	"github.com/hexpgame/hexcron/internal/message_broaker"
	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// WarDetector watches recent clan attacks and declares a war once hostilities
// between two clans go both ways and pass the escalation threshold.
type WarDetector struct {
	wars store.WarStore
}

func NewWarDetector(wars store.WarStore) *WarDetector {
	return &WarDetector{wars: wars}
}

func (d *WarDetector) Execute(ctx context.Context, jc scheduler.JobContext) (types.Summary, error) {
	now := jc.Clock.Now()
	summary := types.Summary{}

	purged, err := d.wars.PurgeAttacksBefore(ctx, now.Add(-constants.AttackRetention))
	if err != nil {
		return summary, errors.Wrap(err, "purge old attacks")
	}
	summary.Add("purged", int(purged))

	attacks, err := d.wars.ListAttacks(ctx)
	if err != nil {
		return summary, errors.Wrap(err, "list attacks")
	}

	byPair := make(map[types.ClanPair][]types.ClanAttack)
	for _, a := range attacks {
		if a.AttackerClan == 0 || a.VictimClan == 0 || a.AttackerClan == a.VictimClan {
			continue
		}
		pair := types.NewClanPair(a.AttackerClan, a.VictimClan)
		byPair[pair] = append(byPair[pair], a)
	}

	pairs := make([]types.ClanPair, 0, len(byPair))
	for pair := range byPair {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Low != pairs[j].Low {
			return pairs[i].Low < pairs[j].Low
		}
		return pairs[i].High < pairs[j].High
	})

	for _, pair := range pairs {
		summary.Inc("pairs")
		if !ShouldStartWar(pair, byPair[pair]) {
			continue
		}
		started, err := d.wars.StartWar(ctx, pair, now, now.Add(constants.WarDuration))
		if err != nil {
			return summary, errors.Wrapf(err, "start war %d vs %d", pair.Low, pair.High)
		}
		if !started {
			summary.Inc("already_at_war")
			continue
		}
		summary.Inc("started")
		jc.Logger.Info("clan war declared", zap.Int64("clan1", pair.Low), zap.Int64("clan2", pair.High))
		d.announce(ctx, jc, pair, now.Add(constants.WarDuration))
	}
	return summary, nil
}

func (d *WarDetector) announce(ctx context.Context, jc scheduler.JobContext, pair types.ClanPair, endsAt time.Time) {
	event := message_broaker.Event{
		Type:       message_broaker.EventWarStarted,
		Subject:    fmt.Sprintf("war/%d-%d", pair.Low, pair.High),
		OccurredAt: jc.Clock.Now(),
		Data:       map[string]any{"clan1": pair.Low, "clan2": pair.High, "ends_at": endsAt},
	}
	if err := jc.Notifier.Notify(ctx, event); err != nil {
		jc.Logger.Warn("war event not delivered", zap.Error(err))
	}
}

// ShouldStartWar applies the escalation rule to the attacks between one pair of
// clans. One side must have hit at least two distinct members, or used at least
// two distinct attackers, or attacked the clan server, and the other side must
// have struck back at least once.
func ShouldStartWar(pair types.ClanPair, attacks []types.ClanAttack) bool {
	var low, high []types.ClanAttack
	for _, a := range attacks {
		switch a.AttackerClan {
		case pair.Low:
			low = append(low, a)
		case pair.High:
			high = append(high, a)
		}
	}
	return escalated(low) && len(high) > 0 || escalated(high) && len(low) > 0
}

func escalated(attacks []types.ClanAttack) bool {
	victims := make(map[int64]struct{})
	attackers := make(map[int64]struct{})
	for _, a := range attacks {
		if a.ServerAttack {
			return true
		}
		victims[a.VictimID] = struct{}{}
		attackers[a.AttackerID] = struct{}{}
	}
	return len(victims) >= 2 || len(attackers) >= 2
}
