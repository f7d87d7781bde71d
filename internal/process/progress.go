package process

import (
	"time"

	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/types"
)

// MaxRunningProgress caps progress below 100 until the sweeper completes the process.
const MaxRunningProgress = 99.9

// ComputeProgress derives progress from elapsed time versus the estimated
// duration. It never goes below the stored value and never reaches 100 on its
// own. Non-running processes keep their stored progress.
func ComputeProgress(p *types.Process, now time.Time) float64 {
	if p.State != state.Running || p.TimeStarted == nil || p.EstimatedCompletion == nil {
		return p.Progress
	}

	total := p.EstimatedCompletion.Sub(*p.TimeStarted)
	var pct float64
	if total <= 0 {
		pct = MaxRunningProgress
	} else {
		pct = float64(now.Sub(*p.TimeStarted)) / float64(total) * 100
	}

	switch {
	case pct < 0:
		pct = 0
	case pct > MaxRunningProgress:
		pct = MaxRunningProgress
	}
	if pct < p.Progress {
		return p.Progress
	}
	return pct
}
