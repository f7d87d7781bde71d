package constants

import "time"

// LockKeyPrefix namespaces the cluster lock taken around each job invocation.
const LockKeyPrefix = "hexcron:job:"

func JobLockKey(job string) string {
	return LockKeyPrefix + job
}

const (
	DefaultMaxConcurrentJobs = 8
	DefaultJobTimeout        = 5 * time.Minute
	DefaultShutdownGrace     = 30 * time.Second
	DefaultCancelTimeout     = 2 * time.Minute
	DefaultLockTTL           = 10 * time.Minute
	DefaultSweepPageSize     = 500
	DefaultSweepConcurrency  = 16
	DefaultAdmitBatch        = 200
	DefaultResultBuffer      = 64
)

const (
	MissionTargetLevel1 = 50
	MissionTargetLevel2 = 30
	MissionTargetLevel3 = 25
)

const (
	AttackRetention = 72 * time.Hour
	WarDuration     = 48 * time.Hour
)
