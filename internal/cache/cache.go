// Package cache stores GitHub API responses with a freshness TTL and the
// ETag needed to revalidate them once they go stale.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/samhoang/ccx/internal/config"
)

// Cache defines the interface for all response cache backends
type Cache interface {
	// Get returns the entry for key, fresh or stale. ok is false on a miss.
	Get(ctx context.Context, key string) (entry Entry, ok bool, err error)

	// Set stores value with a fresh TTL and the response ETag (may be empty)
	Set(ctx context.Context, key string, value []byte, etag string) error

	// ETag returns the validator recorded for key, or ""
	ETag(ctx context.Context, key string) (string, error)

	// Clear removes every entry
	Clear(ctx context.Context) error
}

// Entry is one cached response body.
type Entry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ETag      string    `json:"etag,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Fresh reports whether the entry can be served without revalidation.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Options holds common configuration for cache backends
type Options struct {
	// TTL is how long an entry is served without contacting the API
	TTL time.Duration
	// StaleTTL is how long an expired entry is kept as an ETag validator
	StaleTTL time.Duration
	// Prefix is prepended to keys by backends with a shared namespace
	Prefix string
}

// DefaultOptions returns the default cache options
func DefaultOptions() Options {
	return Options{
		TTL:      5 * time.Minute,
		StaleTTL: 24 * time.Hour,
		Prefix:   "ccx:",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TTL <= 0 {
		o.TTL = d.TTL
	}
	if o.StaleTTL < 0 {
		o.StaleTTL = 0
	}
	return o
}

// Open builds the backend selected in cfg. dir is used by the file backend.
func Open(cfg config.CacheConfig, dir string) (Cache, error) {
	opts := DefaultOptions()
	if cfg.TTL.Duration > 0 {
		opts.TTL = cfg.TTL.Duration
	}
	if cfg.RedisPrefix != "" {
		opts.Prefix = cfg.RedisPrefix
	}

	switch cfg.Backend {
	case "", "file":
		return NewFileCache(dir, opts)
	case "memory":
		return NewMemoryCache(opts), nil
	case "redis":
		return NewRedisCache(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Options:  opts,
		})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
