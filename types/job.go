package types

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hexpgame/hexcron/internal/state"
)

// Summary is a job-defined report of counts, used only for logs and run records.
type Summary map[string]int

func (s Summary) Inc(key string) {
	s[key]++
}

func (s Summary) Add(key string, n int) {
	s[key] += n
}

// JobDescriptor is the in-memory view of a registered recurring job.
type JobDescriptor struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Timeout   string     `json:"timeout"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	Running   bool       `json:"running"`
	Runs      int64      `json:"runs"`
	Failures  int64      `json:"failures"`
	Skipped   int64      `json:"skipped"`
	TimedOut  int64      `json:"timed_out"`
	LastError string     `json:"last_error,omitempty"`
}

// JobRun is the persisted record of a job's latest invocation and its counters.
type JobRun struct {
	ID         int64
	Name       string
	Expression string
	Instance   string
	Status     state.JobRunStatus
	LastError  sql.NullString
	Summary    json.RawMessage
	LastRunAt  *time.Time
	NextRunAt  *time.Time
	Runs       int64
	Failures   int64
	Skipped    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
