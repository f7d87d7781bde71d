package custom_errors

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrInsufficientResources is returned by the ledger when a server cannot
	// cover a reservation in every dimension. The caller decides whether to retry.
	ErrInsufficientResources = errors.New("insufficient resources")

	// ErrInvalidStateTransition means the requested edge is not in the transition
	// table. The process is left untouched.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrJobFailed marks a single failed invocation of a recurring job.
	ErrJobFailed = errors.New("job failed")

	// ErrJobTimeout is the cause recorded when a job outlives its execution ceiling.
	ErrJobTimeout = errors.New("job execution timed out")

	// ErrSchedulerFatal is the only error class that should stop the scheduler.
	// A job failure never produces it.
	ErrSchedulerFatal = errors.New("scheduler fatal")

	ErrProcessNotFound  = errors.New("process not found")
	ErrServerNotFound   = errors.New("server not found")
	ErrDuplicateJob     = errors.New("job already registered")
	ErrJobNotFound      = errors.New("job not registered")
	ErrJobRunning       = errors.New("job is already running")
	ErrSchedulerStarted = errors.New("scheduler already started")
	ErrSchedulerStopped = errors.New("scheduler stopped")
	ErrShutdownTimeout  = errors.New("shutdown grace period elapsed with jobs still running")
)

// InsufficientResourcesError reports the first dimension that could not be covered.
type InsufficientResourcesError struct {
	ServerID  int64
	Dimension string
	Requested int64
	Available int64
}

func NewInsufficientResources(serverID int64, dimension string, requested, available int64) *InsufficientResourcesError {
	return &InsufficientResourcesError{
		ServerID:  serverID,
		Dimension: dimension,
		Requested: requested,
		Available: available,
	}
}

func (e *InsufficientResourcesError) Error() string {
	return fmt.Sprintf("server %d: %s requested %d, available %d: %s",
		e.ServerID, e.Dimension, e.Requested, e.Available, ErrInsufficientResources)
}

func (e *InsufficientResourcesError) Unwrap() error {
	return ErrInsufficientResources
}

// InvalidStateTransitionError carries the rejected edge.
type InvalidStateTransitionError struct {
	From string
	To   string
}

func NewInvalidStateTransition(from, to string) *InvalidStateTransitionError {
	return &InvalidStateTransitionError{From: from, To: to}
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidStateTransition, e.From, e.To)
}

func (e *InvalidStateTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// JobError records which job failed, when, and why.
type JobError struct {
	Job   string
	At    time.Time
	Cause error
}

func NewJobError(job string, at time.Time, cause error) *JobError {
	return &JobError{Job: job, At: at, Cause: cause}
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %q at %s: %v", e.Job, e.At.UTC().Format(time.RFC3339), e.Cause)
}

// Is lets errors.Is match both ErrJobFailed and whatever the cause matches.
func (e *JobError) Is(target error) bool {
	return target == ErrJobFailed
}

func (e *JobError) Unwrap() error {
	return e.Cause
}

// SchedulerFatal wraps err so that it matches ErrSchedulerFatal.
func SchedulerFatal(err error, msg string) error {
	return &fatalError{msg: msg, cause: err}
}

type fatalError struct {
	msg   string
	cause error
}

func (e *fatalError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", ErrSchedulerFatal, e.msg)
	}
	return fmt.Sprintf("%s: %s: %v", ErrSchedulerFatal, e.msg, e.cause)
}

func (e *fatalError) Is(target error) bool {
	return target == ErrSchedulerFatal
}

func (e *fatalError) Unwrap() error {
	return e.cause
}
