package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileCache keeps one JSON file per entry in a directory. Several processes
// may share the directory; writes are atomic renames and last writer wins.
type FileCache struct {
	dir  string
	opts Options
	now  func() time.Time
}

// NewFileCache creates the cache directory (0700) and returns the cache
func NewFileCache(dir string, opts Options) (*FileCache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{dir: filepath.Clean(dir), opts: opts.withDefaults(), now: time.Now}, nil
}

func (f *FileCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:])+".json")
}

func (f *FileCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}

	p := f.path(key)
	raw, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Key != key {
		// Corrupt or colliding entries are misses; the next Set overwrites them.
		return Entry{}, false, nil
	}

	if f.now().After(e.ExpiresAt.Add(f.opts.StaleTTL)) {
		os.Remove(p)
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (f *FileCache) Set(ctx context.Context, key string, value []byte, etag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(Entry{
		Key:       key,
		Value:     value,
		ETag:      etag,
		ExpiresAt: f.now().Add(f.opts.TTL),
	})
	if err != nil {
		return err
	}

	tmp := filepath.Join(f.dir, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.path(key)); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (f *FileCache) ETag(ctx context.Context, key string) (string, error) {
	e, ok, err := f.Get(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	return e.ETag, nil
}

func (f *FileCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
