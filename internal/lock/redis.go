package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "call_lock:"

// releaseScript deletes the lock only if the caller's token still owns it.
// Compare-and-delete must be atomic or an expired holder could free a lock
// re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker implements Locker on a single Redis instance using
// SET NX PX with a per-acquire token.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) Acquire(ctx context.Context, callID string, lease time.Duration) (string, error) {
	if callID == "" {
		return "", fmt.Errorf("lock: call id is required")
	}
	if lease <= 0 {
		return "", fmt.Errorf("lock: lease must be > 0")
	}

	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, keyPrefix+callID, token, lease).Result()
	if err != nil {
		return "", fmt.Errorf("lock: acquire: %w", err)
	}
	if !ok {
		return "", ErrAlreadyLocked
	}
	return token, nil
}

func (l *RedisLocker) Release(ctx context.Context, callID, token string) error {
	if callID == "" || token == "" {
		return ErrNotHeld
	}
	n, err := releaseScript.Run(ctx, l.rdb, []string{keyPrefix + callID}, token).Int()
	if err != nil {
		return fmt.Errorf("lock: release: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
