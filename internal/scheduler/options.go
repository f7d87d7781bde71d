package scheduler

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hexpgame/hexcron/internal/constants"
	"github.com/hexpgame/hexcron/internal/lock"
	"github.com/hexpgame/hexcron/internal/message_broaker"
	"github.com/hexpgame/hexcron/internal/store"
	"go.uber.org/zap"
)

// Option configures a Registry.
type Option func(*Registry)

func WithClock(clk clock.Clock) Option {
	return func(r *Registry) {
		r.clock = clk
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithNotifier(n message_broaker.Notifier) Option {
	return func(r *Registry) {
		r.notifier = n
	}
}

// WithLockManager makes every invocation take a cluster wide lock first. A job
// whose lock is held by another instance is skipped for that tick.
func WithLockManager(l lock.DistributedLockManager) Option {
	return func(r *Registry) {
		r.locks = l
	}
}

// WithJobRunStore persists the outcome of every invocation.
func WithJobRunStore(s store.JobRunStore) Option {
	return func(r *Registry) {
		r.runs = s
	}
}

// WithInstance names this scheduler in run records.
func WithInstance(instance string) Option {
	return func(r *Registry) {
		r.instance = instance
	}
}

// WithMaxConcurrent bounds how many jobs execute at once across the registry.
func WithMaxConcurrent(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxConcurrent = n
		}
	}
}

func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

func WithShutdownGrace(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.shutdownGrace = d
		}
	}
}

// RegisterOption tunes a single job at registration.
type RegisterOption func(*entry)

// WithTimeout sets the execution ceiling of one job.
func WithTimeout(d time.Duration) RegisterOption {
	return func(e *entry) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func defaultRegistry() *Registry {
	return &Registry{
		clock:          clock.New(),
		logger:         zap.NewNop(),
		notifier:       message_broaker.NopNotifier{},
		maxConcurrent:  constants.DefaultMaxConcurrentJobs,
		defaultTimeout: constants.DefaultJobTimeout,
		shutdownGrace:  constants.DefaultShutdownGrace,
	}
}
