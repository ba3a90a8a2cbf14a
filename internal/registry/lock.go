package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultStaleAfter   = 30 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	defaultLockTimeout  = 5 * time.Second
)

// lockInfo is the content of <registry>.lock
type lockInfo struct {
	PID       int   `json:"pid"`
	Timestamp int64 `json:"timestamp"` // epoch ms
}

// fileLock serializes registry reads and writes across processes. It is
// not reentrant; within one process Store.Save coalesces callers instead.
type fileLock struct {
	path         string
	staleAfter   time.Duration
	pollInterval time.Duration
	timeout      time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

func newFileLock(registryPath string) *fileLock {
	return &fileLock{
		path:         registryPath + ".lock",
		staleAfter:   defaultStaleAfter,
		pollInterval: defaultPollInterval,
		timeout:      defaultLockTimeout,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
}

// acquire blocks until the lock file is ours, the timeout elapses or ctx
// is done. The returned release func is idempotent.
func (l *fileLock) acquire(ctx context.Context) (func(), error) {
	deadline := time.Now().Add(l.timeout)

	for {
		info, err := l.tryCreate()
		if err == nil {
			released := false
			return func() {
				if !released {
					released = true
					l.release(info)
				}
			}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock %s: %w", l.path, err)
		}

		if l.reclaimIfStale() {
			continue
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w after %s: %s", ErrLockTimeout, l.timeout, l.path)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

// tryCreate writes the lock content to a private temp file and hard-links
// it into place, so the lock never exists half-written.
func (l *fileLock) tryCreate() (lockInfo, error) {
	info := lockInfo{PID: os.Getpid(), Timestamp: l.now().UnixMilli()}
	data, err := json.Marshal(info)
	if err != nil {
		return info, err
	}

	tmp := filepath.Join(filepath.Dir(l.path), "."+filepath.Base(l.path)+"."+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return info, err
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, l.path); err != nil {
		if os.IsExist(err) {
			return info, os.ErrExist
		}
		return info, err
	}
	return info, nil
}

// reclaimIfStale removes a lock whose holder is presumed dead. It returns
// true when the caller should retry immediately.
func (l *fileLock) reclaimIfStale() bool {
	current, ok, err := l.read()
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	if err != nil {
		return false
	}

	if ok {
		age := l.now().Sub(time.UnixMilli(current.Timestamp))
		if age <= l.staleAfter {
			return false
		}
		l.logger.Warn("reclaiming stale registry lock",
			zap.String("lock", l.path),
			zap.Int("pid", current.PID),
			zap.Duration("age", age))
	} else {
		l.logger.Warn("removing unreadable registry lock", zap.String("lock", l.path))
	}

	// Move the lock aside first so two waiters reclaiming at once cannot
	// delete a lock that was freshly taken in between.
	tomb := l.path + ".stale-" + uuid.NewString()
	if err := os.Rename(l.path, tomb); err != nil {
		return errors.Is(err, os.ErrNotExist)
	}
	defer os.Remove(tomb)

	moved, movedOK, _ := readLockFile(tomb)
	if movedOK && (!ok || moved != current) {
		// Not the lock we judged stale: put it back if the slot is still free.
		os.Link(tomb, l.path)
	}
	return true
}

func (l *fileLock) read() (lockInfo, bool, error) {
	return readLockFile(l.path)
}

// readLockFile returns ok=false with a nil error when the file exists but
// cannot be parsed.
func readLockFile(path string) (lockInfo, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lockInfo{}, false, err
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil || info.Timestamp == 0 {
		return lockInfo{}, false, nil
	}
	return info, true, nil
}

// release removes the lock only if it still holds our content; a lock
// reclaimed from us as stale belongs to someone else now.
func (l *fileLock) release(mine lockInfo) {
	current, ok, err := l.read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("read registry lock on release", zap.String("lock", l.path), zap.Error(err))
		}
		return
	}
	if ok && current != mine {
		l.logger.Warn("registry lock was taken over before release", zap.String("lock", l.path))
		return
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("remove registry lock", zap.String("lock", l.path), zap.Error(err))
	}
}
