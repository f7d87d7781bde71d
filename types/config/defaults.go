package config

import (
	"time"

	"github.com/hexpgame/hexcron/internal/constants"
)

const (
	DefaultStorageDriver = Postgres
	DefaultLogLevel      = "info"
	DefaultBackupQueue   = "hexcron.backups"
	DefaultEventsQueue   = "hexcron.events"
	DefaultExchange      = "hexcron"

	DefaultWorkerCount      = constants.DefaultMaxConcurrentJobs
	DefaultBatchSize        = constants.DefaultAdmitBatch
	DefaultSweepConcurrency = constants.DefaultSweepConcurrency
	DefaultSweepPageSize    = constants.DefaultSweepPageSize

	DefaultJobTimeout    time.Duration = constants.DefaultJobTimeout
	DefaultShutdownGrace time.Duration = constants.DefaultShutdownGrace
	DefaultCancelTimeout time.Duration = constants.DefaultCancelTimeout
	DefaultLockTTL       time.Duration = constants.DefaultLockTTL
)
