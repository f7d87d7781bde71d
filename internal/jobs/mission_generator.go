package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/hexpgame/hexcron/internal/constants"
	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultMissionTargets is how many open missions each level should offer.
var DefaultMissionTargets = map[int]int{
	1: constants.MissionTargetLevel1,
	2: constants.MissionTargetLevel2,
	3: constants.MissionTargetLevel3,
}

// MissionGenerator tops the mission pool of every level up to its target while a round is running.
type MissionGenerator struct {
	rounds   store.RoundStore
	missions store.MissionStore
	targets  map[int]int
}

func NewMissionGenerator(rounds store.RoundStore, missions store.MissionStore, targets map[int]int) *MissionGenerator {
	if len(targets) == 0 {
		targets = DefaultMissionTargets
	}
	return &MissionGenerator{rounds: rounds, missions: missions, targets: targets}
}

func (g *MissionGenerator) Execute(ctx context.Context, jc scheduler.JobContext) (types.Summary, error) {
	summary := types.Summary{}

	round, err := g.rounds.CurrentRound(ctx)
	if err != nil {
		return summary, errors.Wrap(err, "read round")
	}
	if round == nil || !round.Active {
		jc.Logger.Debug("round not active, no missions generated")
		summary.Inc("inactive_round")
		return summary, nil
	}

	deleted, err := g.missions.DeleteCompleted(ctx)
	if err != nil {
		return summary, errors.Wrap(err, "delete completed missions")
	}
	summary.Add("deleted", int(deleted))

	available, err := g.missions.CountAvailable(ctx)
	if err != nil {
		return summary, errors.Wrap(err, "count available missions")
	}

	levels := make([]int, 0, len(g.targets))
	for level := range g.targets {
		levels = append(levels, level)
	}
	sort.Ints(levels)

	for _, level := range levels {
		missing := g.targets[level] - available[level]
		if missing <= 0 {
			continue
		}
		written, err := g.missions.Generate(ctx, level, missing)
		if err != nil {
			return summary, errors.Wrapf(err, "generate level %d missions", level)
		}
		summary.Add(fmt.Sprintf("level%d", level), written)
		summary.Add("generated", written)
	}

	if summary["generated"] > 0 {
		jc.Logger.Info("missions generated", zap.Int("generated", summary["generated"]), zap.Int64("deleted", deleted))
	}
	return summary, nil
}
