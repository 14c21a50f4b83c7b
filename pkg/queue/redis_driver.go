package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/darcho/darcho/pkg/logger"
)

const (
	redisQueueKey   = "darcho:queue:jobs"
	redisDelayedKey = "darcho:queue:delayed"
)

// RedisDriver keeps ready jobs in a list (LPUSH/BRPOP) and delayed jobs in a
// sorted set scored by the Unix time they become ready.
type RedisDriver struct {
	rdb *redis.Client
}

// NewRedisDriver creates a driver on the client shared with pkg/cache. Call
// Promote in a goroutine to move delayed jobs onto the ready list.
func NewRedisDriver(rdb *redis.Client) *RedisDriver {
	return &RedisDriver{rdb: rdb}
}

func (d *RedisDriver) Name() string { return "redis" }

func (d *RedisDriver) Push(ctx context.Context, payload []byte) error {
	if err := d.rdb.LPush(ctx, redisQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("queue/redis: push: %w", err)
	}
	return nil
}

// Pop waits up to five seconds for a job.
func (d *RedisDriver) Pop(ctx context.Context) ([]byte, error) {
	result, err := d.rdb.BRPop(ctx, 5*time.Second, redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("queue/redis: pop: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}
	return []byte(result[1]), nil
}

func (d *RedisDriver) PushDelayed(ctx context.Context, payload []byte, delay time.Duration) error {
	runAt := float64(time.Now().Add(delay).Unix())
	if err := d.rdb.ZAdd(ctx, redisDelayedKey, redis.Z{
		Score:  runAt,
		Member: string(payload),
	}).Err(); err != nil {
		return fmt.Errorf("queue/redis: push delayed: %w", err)
	}
	return nil
}

// Promote moves due delayed jobs onto the ready list every second until ctx
// is cancelled.
func (d *RedisDriver) Promote(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.promoteDue(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("queue/redis: promote failed", "error", err)
			}
		}
	}
}

func (d *RedisDriver) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	jobs, err := d.rdb.ZRangeByScore(ctx, redisDelayedKey, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil || len(jobs) == 0 {
		return err
	}
	for _, job := range jobs {
		// ZRem first so two promoters never push the same job twice.
		removed, err := d.rdb.ZRem(ctx, redisDelayedKey, job).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := d.rdb.LPush(ctx, redisQueueKey, job).Err(); err != nil {
			return err
		}
	}
	return nil
}
