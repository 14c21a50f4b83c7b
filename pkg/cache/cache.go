// Package cache is the shared key/value store used for read-through caching,
// session records and rate-limit counters. It talks to Redis and falls back
// to an in-process store when Redis is unreachable, so a laptop without Redis
// still runs the whole service.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/pkg/metrics"
)

// ErrMiss is returned by GetRaw when the key does not exist.
var ErrMiss = errors.New("cache: miss")

// Store is a cache backend.
type Store interface {
	Name() string
	GetRaw(ctx context.Context, key string) ([]byte, error)
	SetRaw(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// ReplaceRaw overwrites key only if it still exists and reports whether it did.
	ReplaceRaw(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	// Incr adds one to key and returns the new value. ttl is applied when the
	// key is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// SAdd/SMembers/SRem keep small string sets (e.g. session ids per user).
	SAdd(ctx context.Context, key, member string, ttl time.Duration) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

var (
	mu    sync.RWMutex
	store Store = NewMemoryStore()

	// RDB is the live Redis client, nil when running on the memory store.
	RDB *redis.Client
)

// Connect dials Redis. On failure the memory store stays active and the
// error is returned so the caller can log it.
func Connect() error {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr(),
		Password: config.RedisPassword(),
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("cache: redis ping: %w (using memory store)", err)
	}

	mu.Lock()
	RDB = client
	store = &redisStore{rdb: client}
	mu.Unlock()
	return nil
}

// Use installs s as the active store. Tests use it with NewMemoryStore.
func Use(s Store) {
	mu.Lock()
	defer mu.Unlock()
	store = s
	if rs, ok := s.(*redisStore); ok {
		RDB = rs.rdb
	} else {
		RDB = nil
	}
}

// Driver names the active store ("redis" or "memory").
func Driver() string { return current().Name() }

func current() Store {
	mu.RLock()
	defer mu.RUnlock()
	return store
}

// Get loads key into dest and reports a hit.
func Get(ctx context.Context, key string, dest interface{}) bool {
	s := current()
	raw, err := s.GetRaw(ctx, key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues(s.Name()).Inc()
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		metrics.CacheMisses.WithLabelValues(s.Name()).Inc()
		return false
	}
	metrics.CacheHits.WithLabelValues(s.Name()).Inc()
	return true
}

// Set stores value as JSON under key for ttl (0 = no expiry).
func Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	return current().SetRaw(ctx, key, data, ttl)
}

// Replace stores value under key only if key is still present. It reports
// false, without writing, when the key was deleted or has expired.
func Replace(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	return current().ReplaceRaw(ctx, key, data, ttl)
}

func Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return current().Del(ctx, keys...)
}

func Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return current().Incr(ctx, key, ttl)
}

func SAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	return current().SAdd(ctx, key, member, ttl)
}

func SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return current().SRem(ctx, key, members...)
}

func SMembers(ctx context.Context, key string) ([]string, error) {
	return current().SMembers(ctx, key)
}

// ─── Redis ───────────────────────────────────────────────────────────────────

type redisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client) Store { return &redisStore{rdb: rdb} }

func (r *redisStore) Name() string { return "redis" }

func (r *redisStore) GetRaw(ctx context.Context, key string) ([]byte, error) {
	val, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return val, err
}

func (r *redisStore) SetRaw(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, val, ttl).Err()
}

func (r *redisStore) ReplaceRaw(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	return r.rdb.SetXX(ctx, key, val, ttl).Result()
}

func (r *redisStore) Del(ctx context.Context, keys ...string) error {
	return r.rdb.Del(ctx, keys...).Err()
}

func (r *redisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		if err := r.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (r *redisStore) SAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, key, member)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *redisStore) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.rdb.SRem(ctx, key, args...).Err()
}

func (r *redisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return r.rdb.SMembers(ctx, key).Result()
}
