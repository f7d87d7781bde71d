package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hexpgame/hexcron/internal/constants"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock that another node has since taken is left alone.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLockManager holds locks as SET NX keys with a TTL. The TTL bounds how
// long a crashed node can keep a job from running elsewhere.
type RedisLockManager struct {
	client *redis.Client
	ttl    time.Duration
	token  func() string

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisLockManager(client *redis.Client, ttl time.Duration) *RedisLockManager {
	if ttl <= 0 {
		ttl = constants.DefaultLockTTL
	}
	return &RedisLockManager{
		client: client,
		ttl:    ttl,
		token:  uuid.NewString,
		tokens: make(map[string]string),
	}
}

func (l *RedisLockManager) TryAcquire(ctx context.Context, key string) (bool, error) {
	token := l.token()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to acquire lock %q", key)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

func (l *RedisLockManager) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()

	if !ok {
		return nil
	}
	if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		return errors.Wrapf(err, "failed to release lock %q", key)
	}
	return nil
}
