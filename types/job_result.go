package types

import (
	"time"

	"github.com/hexpgame/hexcron/internal/state"
)

// JobResult is what a finished (or skipped) invocation reports to the result processor.
type JobResult struct {
	JobName  string
	Err      error
	Status   state.JobRunStatus
	Summary  Summary
	RanAt    time.Time
	Duration time.Duration
	NextRun  time.Time
}
