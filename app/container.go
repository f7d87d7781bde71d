package app

import (
	"context"
	"database/sql"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/hexpgame/hexcron/internal/jobs"
	"github.com/hexpgame/hexcron/internal/lock"
	"github.com/hexpgame/hexcron/internal/message_broaker"
	"github.com/hexpgame/hexcron/internal/process"
	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/internal/store/memory"
	"github.com/hexpgame/hexcron/internal/store/postgres"
	"github.com/hexpgame/hexcron/internal/tracing"
	"github.com/hexpgame/hexcron/types"
	"github.com/hexpgame/hexcron/types/config"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	serviceName    = "hexcron"
	serviceVersion = "1.0.0"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.HexcronConfig
	Logger *zap.Logger
	Clock  clock.Clock

	// Connections (created once, shared by all stores)
	DB     *sql.DB
	Redis  *redis.Client
	Broker message_broaker.MessageBroker

	Ledger    store.ResourceLedger
	Processes store.ProcessStore
	JobRuns   store.JobRunStore

	Locks    lock.DistributedLockManager
	Notifier message_broaker.Notifier
	Engine   *process.Engine
	Registry *scheduler.Registry

	// Jobs lists what RegisterAll put on the registry.
	Jobs []string

	ownsDB, ownsRedis, ownsBroker bool
	shutdownTracing               func(context.Context) error
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle.
// Pass optional WithDB, WithRedis, WithBroker to inject connections for testing.
func NewContainer(ctx context.Context, cfg *config.HexcronConfig, opts ...ContainerOption) (c *Container, err error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	c = &Container{Config: cfg, Clock: opt.clock, Logger: opt.logger}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
			c = nil
		}
	}()

	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		if c.Logger, err = NewLogger(cfg); err != nil {
			return c, err
		}
	}

	if cfg.Tracing.Enabled {
		if c.shutdownTracing, err = tracing.Init(serviceName, serviceVersion, cfg.Tracing.OutputFile); err != nil {
			return c, errors.Wrap(err, "init tracing")
		}
	}

	if err = c.connect(ctx, opt); err != nil {
		return c, err
	}

	deps := c.buildStores(cfg)

	c.Notifier = message_broaker.NopNotifier{}
	if c.Broker != nil {
		c.Notifier = message_broaker.NewBrokerNotifier(c.Broker, cfg.RabbitMQConfig.EventsQueue, c.Logger)
		deps.Broker = c.Broker
		deps.BackupQueue = cfg.RabbitMQConfig.BackupQueue
	}

	c.Engine = process.NewEngine(c.Processes, c.Ledger,
		process.WithClock(c.Clock),
		process.WithLogger(c.Logger.Named("process")),
		process.WithNotifier(c.Notifier),
	)
	deps.Processes = c.Processes
	deps.Engine = c.Engine
	deps.CancelTimeout = cfg.CancelTimeout
	deps.SweepPageSize = cfg.SweepPageSize
	deps.SweepConcurrency = cfg.SweepConcurrency
	deps.AdmitBatch = cfg.BatchSize
	deps.Timeouts = cfg.JobTimeouts

	c.Locks = c.lockManager(cfg)

	regOpts := []scheduler.Option{
		scheduler.WithClock(c.Clock),
		scheduler.WithLogger(c.Logger.Named("scheduler")),
		scheduler.WithNotifier(c.Notifier),
		scheduler.WithInstance(cfg.Instance),
		scheduler.WithMaxConcurrent(cfg.WorkerCount),
		scheduler.WithDefaultTimeout(cfg.JobTimeout),
		scheduler.WithShutdownGrace(cfg.ShutdownGrace),
	}
	if c.Locks != nil {
		regOpts = append(regOpts, scheduler.WithLockManager(c.Locks))
	}
	if c.JobRuns != nil {
		regOpts = append(regOpts, scheduler.WithJobRunStore(c.JobRuns))
	}
	c.Registry = scheduler.NewRegistry(regOpts...)

	c.Jobs, err = jobs.RegisterAll(c.Registry, deps, cfg.Schedules, cfg.DisabledJobs)
	if err != nil {
		return c, errors.Wrap(err, "register jobs")
	}
	c.Logger.Info("container ready",
		zap.String("storage", cfg.StorageDriver.String()),
		zap.Strings("jobs", c.Jobs),
		zap.Bool("cluster_lock", c.Locks != nil),
		zap.Bool("events", c.Broker != nil))
	return c, nil
}

// connect opens every connection the configuration asks for that was not injected.
func (c *Container) connect(ctx context.Context, opt *containerConfig) error {
	cfg := c.Config

	c.DB = opt.db
	if c.DB == nil && cfg.StorageDriver == config.Postgres {
		db, err := openPostgresDB(ctx, cfg.PostgresConfig)
		if err != nil {
			return errors.Wrap(err, "init storage")
		}
		c.DB, c.ownsDB = db, true
	}

	c.Redis = opt.redis
	if c.Redis == nil && cfg.UseClusterLock && cfg.LockDriver == config.RedisLock {
		client, err := openRedis(ctx, cfg.RedisConfig)
		if err != nil {
			return errors.Wrap(err, "init redis")
		}
		c.Redis, c.ownsRedis = client, true
	}

	c.Broker = opt.broker
	if c.Broker == nil && cfg.RabbitMQConfig != nil {
		broker, err := message_broaker.NewRabbitMQ(cfg.RabbitMQConfig.URL, cfg.RabbitMQConfig.Exchange)
		if err != nil {
			return errors.Wrap(err, "init rabbitmq")
		}
		c.Broker, c.ownsBroker = broker, true
	}
	if c.Broker != nil && cfg.RabbitMQConfig == nil {
		return errors.New("a message broker needs the rabbitmq configuration for its queue names")
	}
	return nil
}

func (c *Container) buildStores(cfg *config.HexcronConfig) jobs.Dependencies {
	var deps jobs.Dependencies
	switch cfg.StorageDriver {
	case config.Memory:
		ledger := memory.NewLedger(c.Clock)
		for _, srv := range cfg.Servers {
			ledger.AddServer(srv.ID, types.Resources{CPU: srv.CPU, RAM: srv.RAM, NET: srv.NET}, srv.Storage)
		}
		c.Ledger = ledger
		c.Processes = memory.NewProcessStore(ledger)
	default:
		ledger := postgres.NewLedger(c.DB, c.Clock)
		c.Ledger = ledger
		c.Processes = postgres.NewProcessStore(c.DB, ledger)
		c.JobRuns = postgres.NewJobRunStore(c.DB, c.Logger.Named("job_runs"))

		games := postgres.NewGameStore(c.DB)
		users := postgres.NewUserStore(c.DB)
		deps.Rounds, deps.Finisher, deps.Missions, deps.Wars = games, games, games, games
		deps.Safenet = postgres.NewSafenetStore(c.DB)
		deps.Sessions, deps.Premium = users, users
	}
	return deps
}

func (c *Container) lockManager(cfg *config.HexcronConfig) lock.DistributedLockManager {
	if !cfg.UseClusterLock {
		return nil
	}
	if cfg.LockDriver == config.RedisLock {
		return lock.NewRedisLockManager(c.Redis, cfg.RedisConfig.LockTTL)
	}
	return lock.NewPostgresDistributedLockManager(c.DB)
}

// Close releases everything the container opened itself. Injected connections
// are left to their owner.
func (c *Container) Close(ctx context.Context) error {
	var errs *multierror.Error
	if c.ownsBroker && c.Broker != nil {
		errs = multierror.Append(errs, errors.Wrap(c.Broker.Close(), "close broker"))
	}
	if c.ownsRedis && c.Redis != nil {
		errs = multierror.Append(errs, errors.Wrap(c.Redis.Close(), "close redis"))
	}
	if c.ownsDB && c.DB != nil {
		errs = multierror.Append(errs, errors.Wrap(c.DB.Close(), "close postgres"))
	}
	if c.shutdownTracing != nil {
		errs = multierror.Append(errs, errors.Wrap(c.shutdownTracing(ctx), "flush traces"))
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return errs.ErrorOrNil()
}
