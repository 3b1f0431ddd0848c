package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/newsletter-service/internal/config"
	"github.com/spec-kit/newsletter-service/internal/lock"
)

var errRedisNotConfigured = errors.New("redis client not configured")

// Redis holds the client used for publish deduplication leases.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds a client when cfg.Addr is set. An unreachable server is
// logged, not fatal: the publish path fails closed on its own.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		logger.Warn("REDIS_ADDR not provided; publish deduplication disabled")
		return &Redis{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}

	return &Redis{Client: client}
}

// Locker returns a publish locker whose keys live under prefix, or nil when
// no client is configured.
func (r *Redis) Locker(prefix string) *lock.RedisLocker {
	if !r.Configured() {
		return nil
	}
	return lock.NewRedisLocker(r.Client, prefix)
}

// Close closes the client.
func (r *Redis) Close() {
	if r.Configured() {
		_ = r.Client.Close()
	}
}

// Configured reports whether a client exists.
func (r *Redis) Configured() bool {
	return r != nil && r.Client != nil
}

// Ping backs the readiness check.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Configured() {
		return errRedisNotConfigured
	}
	return r.Client.Ping(ctx).Err()
}
