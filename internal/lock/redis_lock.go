package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Lock is a held lease. Only the holder's random value can release it.
type Lock struct {
	client *redis.Client
	key    string
	value  string
}

// Key returns the redis key backing the lock.
func (l *Lock) Key() string {
	return l.key
}

// Release deletes the key if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

// RedisLocker hands out SET NX leases with a TTL.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker creates a locker whose keys are namespaced under prefix.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// TryAcquire attempts to take the lease without waiting. acquired is false
// when another holder already owns the key.
func (r *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, false, fmt.Errorf("lock value: %w", err)
	}
	l := &Lock{client: r.client, key: r.prefix + key, value: hex.EncodeToString(b)}

	ok, err := r.client.SetNX(ctx, l.key, l.value, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return l, true, nil
}
