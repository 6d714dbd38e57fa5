package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// blockSlice bounds one BLPOP when the caller asked to wait indefinitely,
// so cancellation of ctx is noticed between slices.
const blockSlice = 5 * time.Second

// RedisConfig selects the list that backs a detection session.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int    // Detection session id
	Key      string // Defaults to DefaultKey
}

// Redis is a Queue stored in a Redis list: RPUSH at the tail, BLPOP at the
// head.
type Redis struct {
	client *redis.Client
	key    string
	owned  bool
}

// NewRedis connects to the session database named by cfg.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		ContextTimeoutEnabled: true,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", cfg.Addr, err)
	}

	r := NewRedisFromClient(client, cfg.Key)
	r.owned = true
	return r, nil
}

// NewRedisFromClient uses an existing client. Close leaves it open.
func NewRedisFromClient(client *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Push(ctx context.Context, item string) error {
	if err := r.client.RPush(ctx, r.key, item).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", r.key, err)
	}
	return nil
}

// Pop waits with BLPOP. Redis counts the timeout in whole seconds with a
// minimum of one, so shorter timeouts are rounded up.
func (r *Redis) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout > 0 {
		return r.blpop(ctx, timeout)
	}
	for {
		item, err := r.blpop(ctx, blockSlice)
		if !errors.Is(err, ErrTimeout) {
			return item, err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
}

func (r *Redis) blpop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := r.client.BLPop(ctx, timeout, r.key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", ErrTimeout
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("failed to pop from %s: %w", r.key, err)
	case len(res) != 2:
		return "", fmt.Errorf("unexpected BLPOP reply %q", res)
	}
	return res[1], nil
}

// Len returns the current list length.
func (r *Redis) Len(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.key).Result()
}

// Close releases the connection pool if NewRedis created it.
func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
