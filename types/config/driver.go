package config

import "strings"

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	// Memory keeps processes and the ledger in process memory. Game and user
	// tables are unavailable, so only the process jobs run.
	Memory
)

type LockDriver int

const (
	// PostgresLock uses session advisory locks on the main database.
	PostgresLock LockDriver = iota + 1
	RedisLock
)

type MessageQueueDriver int

const (
	RabbitMQ MessageQueueDriver = iota + 1
)

func (d MessageQueueDriver) String() string {
	switch d {
	case RabbitMQ:
		return "rabbitmq"
	default:
		return "unknown"
	}
}

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case Memory:
		return "memory"
	}
	return "unknown"
}

func (d LockDriver) String() string {
	switch d {
	case PostgresLock:
		return "postgres"
	case RedisLock:
		return "redis"
	}
	return "unknown"
}

func parseStorageDriver(s string) (StorageDriver, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "postgres":
		return Postgres, true
	case "memory":
		return Memory, true
	}
	return 0, false
}

func parseLockDriver(s string) (LockDriver, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "postgres":
		return PostgresLock, true
	case "redis":
		return RedisLock, true
	}
	return 0, false
}
