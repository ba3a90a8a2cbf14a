package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores entries as JSON strings so a team can share one cache.
type RedisCache struct {
	client *redis.Client
	opts   Options
	now    func() time.Time
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Options holds common cache configuration
	Options Options
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(config RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisCacheWithClient(client, config.Options), nil
}

// NewRedisCacheWithClient creates a Redis cache with an existing client
func NewRedisCacheWithClient(client *redis.Client, opts Options) *RedisCache {
	return &RedisCache{client: client, opts: opts.withDefaults(), now: time.Now}
}

func (r *RedisCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.opts.Prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, etag string) error {
	raw, err := json.Marshal(Entry{
		Key:       key,
		Value:     value,
		ETag:      etag,
		ExpiresAt: r.now().Add(r.opts.TTL),
	})
	if err != nil {
		return err
	}
	// Redis expiry covers the stale window; freshness is decided by ExpiresAt.
	return r.client.Set(ctx, r.opts.Prefix+key, raw, r.opts.TTL+r.opts.StaleTTL).Err()
}

func (r *RedisCache) ETag(ctx context.Context, key string) (string, error) {
	e, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	return e.ETag, nil
}

func (r *RedisCache) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.opts.Prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}
