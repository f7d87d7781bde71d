package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hexpgame/hexcron/custom_errors"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the YAML configuration file. Durations use Go syntax ("90s").
//
//	instance: node-a
//	storage: postgres
//	postgres:
//	  url: postgres://hexcron@localhost/game?sslmode=disable
//	cluster_lock:
//	  enabled: true
//	  driver: redis
//	jobs:
//	  completion_sweeper:
//	    schedule: "@every 2s"
//	  backup_trigger:
//	    enabled: false
//
// The memory driver takes its servers from the file:
//
//	storage: memory
//	servers:
//	  - {id: 1, cpu: 1000, ram: 512, net: 100, storage: 10000}
type FileConfig struct {
	Instance string `yaml:"instance"`
	Storage  string `yaml:"storage"`

	Postgres struct {
		URL          string `yaml:"url"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
	} `yaml:"postgres"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		LockTTL  string `yaml:"lock_ttl"`
	} `yaml:"redis"`

	RabbitMQ *struct {
		URL         string `yaml:"url"`
		Exchange    string `yaml:"exchange"`
		EventsQueue string `yaml:"events_queue"`
		BackupQueue string `yaml:"backup_queue"`
	} `yaml:"rabbitmq"`

	ClusterLock struct {
		Enabled bool   `yaml:"enabled"`
		Driver  string `yaml:"driver"`
	} `yaml:"cluster_lock"`

	Scheduler struct {
		Workers       int    `yaml:"workers"`
		JobTimeout    string `yaml:"job_timeout"`
		ShutdownGrace string `yaml:"shutdown_grace"`
	} `yaml:"scheduler"`

	Processes struct {
		CancelTimeout    string `yaml:"cancel_timeout"`
		AdmitBatch       int    `yaml:"admit_batch"`
		SweepPageSize    int    `yaml:"sweep_page_size"`
		SweepConcurrency int    `yaml:"sweep_concurrency"`
	} `yaml:"processes"`

	Jobs map[string]JobFileConfig `yaml:"jobs"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`

	Tracing struct {
		Enabled    bool   `yaml:"enabled"`
		OutputFile string `yaml:"output_file"`
	} `yaml:"tracing"`

	Servers []struct {
		ID      int64 `yaml:"id"`
		CPU     int64 `yaml:"cpu"`
		RAM     int64 `yaml:"ram"`
		NET     int64 `yaml:"net"`
		Storage int64 `yaml:"storage"`
	} `yaml:"servers"`
}

type JobFileConfig struct {
	Schedule string `yaml:"schedule"`
	Timeout  string `yaml:"timeout"`
	Enabled  *bool  `yaml:"enabled"`
}

// LoadFile reads a YAML file and builds a validated HexcronConfig from it.
// Extra options are applied after the file and win over it.
func LoadFile(path string, extra ...Option) (*HexcronConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(raw, extra...)
}

func Parse(raw []byte, extra ...Option) (*HexcronConfig, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	opts, err := fc.Options()
	if err != nil {
		return nil, err
	}
	return NewHexcronConfig(fc.Instance, append(opts, extra...)...)
}

// Options converts the file into functional options. Values left empty in the
// file produce no option, so the defaults stay in place.
func (fc FileConfig) Options() ([]Option, error) {
	var opts []Option
	var bad []error
	duration := func(field, value string, apply func(time.Duration) Option) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			bad = append(bad, fmt.Errorf("%s: %w", field, err))
			return
		}
		opts = append(opts, apply(d))
	}

	storage, ok := parseStorageDriver(fc.Storage)
	if !ok {
		bad = append(bad, fmt.Errorf("storage: unknown driver %q", fc.Storage))
	}
	opts = append(opts, WithStorageDriver(storage))
	if fc.Postgres.URL != "" {
		opts = append(opts, WithPostgresConfig(PostgresConfig{
			ConnectionUrl: fc.Postgres.URL,
			MaxOpenConns:  fc.Postgres.MaxOpenConns,
			MaxIdleConns:  fc.Postgres.MaxIdleConns,
		}))
	}

	if fc.Redis.Address != "" {
		var ttl time.Duration
		if fc.Redis.LockTTL != "" {
			d, err := time.ParseDuration(fc.Redis.LockTTL)
			if err != nil {
				bad = append(bad, fmt.Errorf("redis.lock_ttl: %w", err))
			}
			ttl = d
		}
		opts = append(opts, WithRedisConfig(RedisConfig{
			Address:  fc.Redis.Address,
			Password: fc.Redis.Password,
			DB:       fc.Redis.DB,
			LockTTL:  ttl,
		}))
	}

	if fc.ClusterLock.Enabled {
		driver, ok := parseLockDriver(fc.ClusterLock.Driver)
		if !ok {
			bad = append(bad, fmt.Errorf("cluster_lock.driver: unknown driver %q", fc.ClusterLock.Driver))
		} else {
			opts = append(opts, WithClusterLock(driver))
		}
	}

	if fc.RabbitMQ != nil {
		opts = append(opts, WithRabbitMQConfig(RabbitMQConfig{
			URL:         fc.RabbitMQ.URL,
			Exchange:    fc.RabbitMQ.Exchange,
			EventsQueue: fc.RabbitMQ.EventsQueue,
			BackupQueue: fc.RabbitMQ.BackupQueue,
		}))
	}

	if fc.Scheduler.Workers != 0 {
		opts = append(opts, WithWorkerCount(fc.Scheduler.Workers))
	}
	duration("scheduler.job_timeout", fc.Scheduler.JobTimeout, WithJobTimeout)
	duration("scheduler.shutdown_grace", fc.Scheduler.ShutdownGrace, WithShutdownGrace)
	duration("processes.cancel_timeout", fc.Processes.CancelTimeout, WithCancelTimeout)
	if fc.Processes.AdmitBatch != 0 {
		opts = append(opts, WithBatchSize(fc.Processes.AdmitBatch))
	}
	if fc.Processes.SweepPageSize != 0 || fc.Processes.SweepConcurrency != 0 {
		pageSize, concurrency := fc.Processes.SweepPageSize, fc.Processes.SweepConcurrency
		if pageSize == 0 {
			pageSize = DefaultSweepPageSize
		}
		if concurrency == 0 {
			concurrency = DefaultSweepConcurrency
		}
		opts = append(opts, WithSweep(pageSize, concurrency))
	}

	for name, job := range fc.Jobs {
		if job.Schedule != "" {
			opts = append(opts, WithSchedule(name, job.Schedule))
		}
		duration("jobs."+name+".timeout", job.Timeout, func(d time.Duration) Option {
			return WithJobTimeoutFor(name, d)
		})
		if job.Enabled != nil && !*job.Enabled {
			opts = append(opts, WithDisabledJobs(name))
		}
	}

	if fc.Log.Level != "" {
		opts = append(opts, WithLogLevel(fc.Log.Level, fc.Log.Development))
	}
	if fc.Tracing.Enabled {
		opts = append(opts, WithTracing(fc.Tracing.OutputFile))
	}
	if len(fc.Servers) > 0 {
		servers := make([]ServerConfig, 0, len(fc.Servers))
		for _, srv := range fc.Servers {
			servers = append(servers, ServerConfig(srv))
		}
		opts = append(opts, WithServers(servers...))
	}

	if len(bad) > 0 {
		return nil, &custom_errors.ValidationError{Errors: bad}
	}
	return opts, nil
}
