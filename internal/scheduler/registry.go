package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hexpgame/hexcron/custom_errors"
	"github.com/hexpgame/hexcron/internal/constants"
	"github.com/hexpgame/hexcron/internal/lock"
	"github.com/hexpgame/hexcron/internal/message_broaker"
	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/internal/tracing"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type entry struct {
	name     string
	expr     string
	schedule cron.Schedule
	job      Job
	timeout  time.Duration
	logger   *zap.Logger

	// running is the overlap guard: set by compare-and-swap before an
	// invocation is handed off, cleared when it finishes or times out.
	running atomic.Bool

	mu        sync.Mutex
	lastRunAt *time.Time
	nextRunAt *time.Time
	runs      int64
	failures  int64
	skipped   int64
	timedOut  int64
	lastError string
}

func (e *entry) setNext(t time.Time) {
	e.mu.Lock()
	e.nextRunAt = &t
	e.mu.Unlock()
}

func (e *entry) record(res types.JobResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if res.Status == state.StatusSkipped {
		e.skipped++
		return
	}
	ranAt := res.RanAt
	e.lastRunAt = &ranAt
	e.runs++
	switch res.Status {
	case state.StatusSucceeded:
		e.lastError = ""
	case state.StatusTimedOut:
		e.timedOut++
		e.failures++
		e.lastError = res.Err.Error()
	case state.StatusFailed:
		e.failures++
		e.lastError = res.Err.Error()
	}
}

func (e *entry) descriptor() types.JobDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.JobDescriptor{
		Name:      e.name,
		Schedule:  e.expr,
		Timeout:   e.timeout.String(),
		LastRunAt: e.lastRunAt,
		NextRunAt: e.nextRunAt,
		Running:   e.running.Load(),
		Runs:      e.runs,
		Failures:  e.failures,
		Skipped:   e.skipped,
		TimedOut:  e.timedOut,
		LastError: e.lastError,
	}
}

// Registry owns the recurring jobs of one process. Each job gets its own timer
// goroutine; invocations run on separate goroutines bounded by a semaphore, so
// a slow job never delays another job's tick.
type Registry struct {
	clock          clock.Clock
	logger         *zap.Logger
	notifier       message_broaker.Notifier
	locks          lock.DistributedLockManager
	runs           store.JobRunStore
	instance       string
	maxConcurrent  int
	defaultTimeout time.Duration
	shutdownGrace  time.Duration

	sem *semaphore.Weighted

	mu          sync.Mutex
	entries     map[string]*entry
	started     bool
	stopping    bool
	stopTimers  context.CancelFunc
	execCtx     context.Context
	cancelExec  context.CancelFunc
	timers      sync.WaitGroup
	inflight    sync.WaitGroup
	results     chan types.JobResult
	quit        chan struct{}
	resultsDone chan struct{}
}

func NewRegistry(opts ...Option) *Registry {
	r := defaultRegistry()
	for _, opt := range opts {
		opt(r)
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.notifier == nil {
		r.notifier = message_broaker.NopNotifier{}
	}
	r.sem = semaphore.NewWeighted(int64(r.maxConcurrent))
	r.entries = make(map[string]*entry)
	r.execCtx, r.cancelExec = context.WithCancel(context.Background())
	r.results = make(chan types.JobResult, constants.DefaultResultBuffer)
	r.quit = make(chan struct{})
	r.resultsDone = make(chan struct{})
	return r
}

// Register adds a job under a unique name. It must be called before Start.
func (r *Registry) Register(name, schedule string, job Job, opts ...RegisterOption) error {
	if name == "" {
		return errors.New("register job: empty name")
	}
	if job == nil {
		return errors.Errorf("register job %q: nil job", name)
	}
	parsed, err := ParseSchedule(schedule)
	if err != nil {
		return errors.Wrapf(err, "register job %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return errors.Wrapf(custom_errors.ErrSchedulerStarted, "register job %q", name)
	}
	if _, ok := r.entries[name]; ok {
		return errors.Wrapf(custom_errors.ErrDuplicateJob, "register job %q", name)
	}

	e := &entry{
		name:     name,
		expr:     schedule,
		schedule: parsed,
		job:      job,
		timeout:  r.defaultTimeout,
		logger:   r.logger.With(zap.String("job", name)),
	}
	for _, opt := range opts {
		opt(e)
	}
	r.entries[name] = e
	return nil
}

// Start launches one timer goroutine per registered job and returns at once.
// Cancelling ctx stops the timers but not executions already in flight; use
// Stop for an orderly shutdown.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return custom_errors.SchedulerFatal(nil, "registry already started")
	}
	for name, e := range r.entries {
		if e.job == nil || e.schedule == nil {
			return custom_errors.SchedulerFatal(nil, "job "+name+" is not runnable")
		}
	}
	r.started = true

	if r.runs != nil {
		now := r.clock.Now()
		for _, e := range r.entries {
			if _, err := r.runs.AddOrUpdate(ctx, e.name, e.expr, r.instance, e.schedule.Next(now)); err != nil {
				e.logger.Warn("failed to record job registration", zap.Error(err))
			}
		}
		go r.processResults()
	} else {
		close(r.resultsDone)
	}

	timerCtx, cancel := context.WithCancel(ctx)
	r.stopTimers = cancel
	for _, e := range r.entries {
		r.timers.Add(1)
		go r.loop(timerCtx, e)
	}

	r.logger.Info("scheduler started", zap.Int("jobs", len(r.entries)), zap.String("instance", r.instance))
	return nil
}

// Stop halts the timers and waits up to the shutdown grace period for running
// invocations. When the grace period elapses their contexts are cancelled and
// ErrShutdownTimeout is returned.
func (r *Registry) Stop() error {
	r.mu.Lock()
	if !r.started || r.stopping {
		r.mu.Unlock()
		return nil
	}
	r.stopping = true
	r.mu.Unlock()

	r.stopTimers()
	r.timers.Wait()

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	grace := r.clock.Timer(r.shutdownGrace)
	defer grace.Stop()

	var err error
	select {
	case <-done:
	case <-grace.C:
		err = errors.Wrapf(custom_errors.ErrShutdownTimeout, "after %s", r.shutdownGrace)
		r.logger.Error("jobs still running after shutdown grace", zap.Duration("grace", r.shutdownGrace))
	}
	r.cancelExec()

	close(r.quit)
	<-r.resultsDone

	r.logger.Info("scheduler stopped")
	return err
}

func (r *Registry) loop(ctx context.Context, e *entry) {
	defer r.timers.Done()

	for {
		now := r.clock.Now()
		next := e.schedule.Next(now)
		e.setNext(next)

		timer := r.clock.Timer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.dispatch(e, next)
		}
	}
}

// dispatch hands the invocation to its own goroutine. It never blocks on the job.
func (r *Registry) dispatch(e *entry, scheduledAt time.Time) {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Warn("previous invocation still running, skipping tick", zap.Time("scheduled_at", scheduledAt))
		r.finish(e, types.JobResult{JobName: e.name, Status: state.StatusSkipped, RanAt: r.clock.Now()})
		return
	}

	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		e.running.Store(false)
		return
	}
	r.inflight.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.inflight.Done()
		defer e.running.Store(false)
		r.run(r.execCtx, e, scheduledAt)
	}()
}

// RunNow executes a job immediately and waits for it, obeying the same overlap
// rule as timed invocations.
func (r *Registry) RunNow(ctx context.Context, name string) (types.Summary, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return nil, errors.Wrapf(custom_errors.ErrJobNotFound, "%q", name)
	}
	if r.stopping {
		r.mu.Unlock()
		return nil, custom_errors.ErrSchedulerStopped
	}
	if !e.running.CompareAndSwap(false, true) {
		r.mu.Unlock()
		return nil, errors.Wrapf(custom_errors.ErrJobRunning, "%q", name)
	}
	r.inflight.Add(1)
	r.mu.Unlock()

	defer r.inflight.Done()
	defer e.running.Store(false)

	res := r.run(ctx, e, r.clock.Now())
	return res.Summary, res.Err
}

// Descriptors returns a snapshot of every registered job, ordered by name.
func (r *Registry) Descriptors() []types.JobDescriptor {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	out := make([]types.JobDescriptor, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.descriptor())
	}
	return out
}

type outcome struct {
	summary types.Summary
	err     error
}

// run performs one invocation: concurrency slot, cluster lock, timeout, span.
// The caller owns the overlap flag.
func (r *Registry) run(parent context.Context, e *entry, scheduledAt time.Time) types.JobResult {
	res := types.JobResult{JobName: e.name}

	if err := r.sem.Acquire(parent, 1); err != nil {
		res.Status = state.StatusSkipped
		res.Err = errors.Wrap(err, "waiting for a worker slot")
		res.RanAt = r.clock.Now()
		r.finish(e, res)
		return res
	}
	defer r.sem.Release(1)

	if r.locks != nil {
		key := constants.JobLockKey(e.name)
		acquired, err := r.locks.TryAcquire(parent, key)
		if err != nil {
			res.Status = state.StatusFailed
			res.RanAt = r.clock.Now()
			res.Err = custom_errors.NewJobError(e.name, res.RanAt, errors.Wrap(err, "cluster lock"))
			r.finish(e, res)
			return res
		}
		if !acquired {
			e.logger.Info("cluster lock held by another instance, skipping tick")
			res.Status = state.StatusSkipped
			res.Err = errors.Wrap(custom_errors.ErrJobRunning, "cluster lock held")
			res.RanAt = r.clock.Now()
			r.finish(e, res)
			return res
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.locks.Release(ctx, key); err != nil {
				e.logger.Warn("failed to release cluster lock", zap.Error(err))
			}
		}()
	}

	ctx, cancel := r.clock.WithTimeout(parent, e.timeout)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "job."+e.name)
	span.WithAttributes(map[string]string{"job": e.name, "instance": r.instance})

	started := r.clock.Now()
	res.RanAt = started
	jc := JobContext{
		JobName:     e.name,
		ScheduledAt: scheduledAt,
		Clock:       r.clock,
		Logger:      e.logger,
		Notifier:    r.notifier,
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: errors.Errorf("panic: %v", p)}
			}
		}()
		summary, err := e.job.Execute(ctx, jc)
		done <- outcome{summary: summary, err: err}
	}()

	select {
	case o := <-done:
		res.Summary = o.summary
		if o.err != nil {
			res.Status = state.StatusFailed
			res.Err = custom_errors.NewJobError(e.name, started, o.err)
		} else {
			res.Status = state.StatusSucceeded
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.Status = state.StatusTimedOut
			res.Err = custom_errors.NewJobError(e.name, started, custom_errors.ErrJobTimeout)
		} else {
			res.Status = state.StatusFailed
			res.Err = custom_errors.NewJobError(e.name, started, ctx.Err())
		}
	}
	res.Duration = r.clock.Since(started)
	res.NextRun = e.schedule.Next(r.clock.Now())

	tracing.EndSpan(span, res.Err)
	r.finish(e, res)
	return res
}

// finish updates counters, logs, notifies and queues the result for persistence.
func (r *Registry) finish(e *entry, res types.JobResult) {
	e.record(res)

	switch res.Status {
	case state.StatusSucceeded:
		e.logger.Info("job finished",
			zap.Time("ran_at", res.RanAt),
			zap.Duration("duration", res.Duration),
			zap.Any("summary", res.Summary))
		r.notify(e, message_broaker.EventJobFinished, res)
	case state.StatusFailed, state.StatusTimedOut:
		e.logger.Error("job failed",
			zap.Time("ran_at", res.RanAt),
			zap.String("status", res.Status.String()),
			zap.Error(res.Err))
		r.notify(e, message_broaker.EventJobFailed, res)
	}

	if r.runs == nil {
		return
	}
	select {
	case r.results <- res:
	default:
		e.logger.Warn("result buffer full, dropping run record", zap.String("status", res.Status.String()))
	}
}

func (r *Registry) notify(e *entry, eventType string, res types.JobResult) {
	data := make(map[string]any, len(res.Summary)+1)
	for k, v := range res.Summary {
		data[k] = v
	}
	if res.Err != nil {
		data["error"] = res.Err.Error()
	}
	event := message_broaker.Event{
		Type:       eventType,
		Subject:    "job/" + e.name,
		State:      res.Status.String(),
		OccurredAt: r.clock.Now(),
		Data:       data,
	}
	if err := r.notifier.Notify(context.Background(), event); err != nil {
		e.logger.Debug("job event not delivered", zap.Error(err))
	}
}
