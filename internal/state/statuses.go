package state

// JobRunStatus is the outcome recorded for the latest invocation of a recurring job.
type JobRunStatus string

const (
	StatusScheduled JobRunStatus = "scheduled"
	StatusRunning   JobRunStatus = "running"
	StatusSucceeded JobRunStatus = "succeeded"
	StatusFailed    JobRunStatus = "failed"
	StatusSkipped   JobRunStatus = "skipped"
	StatusTimedOut  JobRunStatus = "timed_out"
)

func (s JobRunStatus) String() string {
	return string(s)
}

var AllStatuses = []JobRunStatus{
	StatusScheduled,
	StatusRunning,
	StatusSucceeded,
	StatusFailed,
	StatusSkipped,
	StatusTimedOut,
}

// IsFailure reports whether the status counts against the job's failure tally.
func (s JobRunStatus) IsFailure() bool {
	return s == StatusFailed || s == StatusTimedOut
}
