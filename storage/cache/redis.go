// Package cache holds the short-lived state of the API: revoked tokens and login attempts.
package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
)

const (
	revokedPrefix  = "sala:revoked:"
	attemptsPrefix = "sala:attempts:"
)

// Redis implements core.TokenBlacklist and core.AttemptCounter. Keys expire on their own.
type Redis struct {
	client *redis.Client
}

var (
	_ core.TokenBlacklist = (*Redis)(nil)
	_ core.AttemptCounter = (*Redis)(nil)
)

func NewRedis(conf core.RedisConfig) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	})}
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Ping(ctx context.Context) error {
	return errors.Wrap(r.client.Ping(ctx).Err(), "pinging redis")
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	err := r.client.Set(ctx, revokedPrefix+tokenID, 1, ttl).Err()
	return errors.Wrap(err, "revoking token")
}

func (r *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedPrefix+tokenID).Result()
	if err != nil {
		return false, errors.Wrap(err, "checking revoked token")
	}
	return n > 0, nil
}

// Purge is a no-op: redis expires the revoked tokens itself.
func (r *Redis) Purge(context.Context) (int, error) {
	return 0, nil
}

func (r *Redis) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	key = attemptsPrefix + key
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "counting attempt")
	}
	// the first hit starts the window
	if n == 1 {
		if err = r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, errors.Wrap(err, "setting attempts window")
		}
	}
	return int(n), nil
}

func (r *Redis) Count(ctx context.Context, key string) (int, error) {
	n, err := r.client.Get(ctx, attemptsPrefix+key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "getting attempts")
	}
	return n, nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	return errors.Wrap(r.client.Del(ctx, attemptsPrefix+key).Err(), "resetting attempts")
}
