package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edupgarcia/bulk-processing/internal/domain/entity"
)

const (
	attemptsTTL = 24 * time.Hour
	statusTTL   = 24 * time.Hour
)

// RedisRepo keeps per-message delivery attempts and the latest status of
// each stage per destination prefix.
type RedisRepo struct {
	Client *redis.Client
}

func NewRedisRepo(client *redis.Client) *RedisRepo {
	return &RedisRepo{Client: client}
}

func attemptsKey(stage entity.Stage, key string) string {
	return fmt.Sprintf("pipeline:%s:attempts:%s", stage, key)
}

func statusKey(stage entity.Stage, path string) string {
	return fmt.Sprintf("pipeline:%s:status:%s", stage, path)
}

func (r *RedisRepo) IncrAttempts(ctx context.Context, stage entity.Stage, key string) (int, error) {
	k := attemptsKey(stage, key)

	pipe := r.Client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, attemptsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr attempts: %w", err)
	}
	return int(incr.Val()), nil
}

func (r *RedisRepo) ClearAttempts(ctx context.Context, stage entity.Stage, key string) error {
	return r.Client.Del(ctx, attemptsKey(stage, key)).Err()
}

func (r *RedisRepo) SetStatus(ctx context.Context, stage entity.Stage, path string, status entity.RunStatus) error {
	return r.Client.Set(ctx, statusKey(stage, path), string(status), statusTTL).Err()
}

// GetStatus returns an empty status when none is cached.
func (r *RedisRepo) GetStatus(ctx context.Context, stage entity.Stage, path string) (entity.RunStatus, error) {
	val, err := r.Client.Get(ctx, statusKey(stage, path)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return entity.RunStatus(val), nil
}

func (r *RedisRepo) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
