package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/samhoang/ccx/internal/metrics"
)

// Store is the in-memory view of registry.json plus the machinery to
// persist it safely. Mutations apply to memory first and are rolled back
// if they cannot be written.
type Store struct {
	path          string
	extensionsDir string
	lock          *fileLock
	logger        *zap.Logger
	metrics       metrics.Registry
	now           func() time.Time
	rename        func(oldpath, newpath string) error

	mu      sync.RWMutex
	records map[string]ExtensionRecord
	order   []string
	// dirty maps ids changed since the last successful save to the
	// sequence number of their latest mutation. A dirty id with no record
	// is a pending delete.
	dirty  map[string]uint64
	seq    uint64
	loaded bool

	saveMu  sync.Mutex
	saving  bool
	pending bool
	waiters []chan error
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for persistence and lock diagnostics
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
			s.lock.logger = l
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m metrics.Registry) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLockTiming overrides the stale threshold, poll interval and timeout
func WithLockTiming(staleAfter, pollInterval, timeout time.Duration) Option {
	return func(s *Store) {
		s.lock.staleAfter = staleAfter
		s.lock.pollInterval = pollInterval
		s.lock.timeout = timeout
	}
}

// NewStore creates a store for the registry file at path. extensionsDir is
// where installed extension trees live; Initialize creates it.
func NewStore(path, extensionsDir string, opts ...Option) *Store {
	s := &Store{
		path:          path,
		extensionsDir: extensionsDir,
		lock:          newFileLock(path),
		logger:        zap.NewNop(),
		metrics:       metrics.Noop{},
		now:           time.Now,
		rename:        os.Rename,
		records:       make(map[string]ExtensionRecord),
		dirty:         make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the registry file path
func (s *Store) Path() string {
	return s.path
}

// ExtensionsDir returns the directory installed extensions are unpacked into
func (s *Store) ExtensionsDir() string {
	return s.extensionsDir
}

// Initialize creates the owner-only directories, loads the registry and
// writes an empty registry file if none exists yet.
func (s *Store) Initialize(ctx context.Context) error {
	for _, dir := range []string{filepath.Dir(s.path), s.extensionsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil && !errors.Is(err, os.ErrExist) {
			return &RegistryError{Op: "initialize", Err: err}
		}
	}

	if err := s.Load(ctx); err != nil {
		return err
	}

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		if err := s.Save(ctx); err != nil {
			return &RegistryError{Op: "initialize", Err: err}
		}
	}
	return nil
}

// Load replaces the in-memory state with the registry file. A missing file
// is an empty registry. Unsaved local changes are discarded.
func (s *Store) Load(ctx context.Context) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return &RegistryError{Op: "load", Err: err}
	}
	defer release()

	file, err := s.readFile()
	if err != nil {
		return &RegistryError{Op: "load", Err: err}
	}

	s.mu.Lock()
	s.records = make(map[string]ExtensionRecord, len(file.Extensions))
	s.order = s.order[:0]
	for _, rec := range file.Extensions {
		if _, dup := s.records[rec.ID]; !dup {
			s.order = append(s.order, rec.ID)
		}
		s.records[rec.ID] = rec
	}
	s.dirty = make(map[string]uint64)
	s.loaded = true
	s.mu.Unlock()

	s.logger.Debug("registry loaded", zap.String("path", s.path), zap.Int("extensions", len(file.Extensions)))
	return nil
}

// Loaded reports whether Load has completed at least once
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *Store) acquire(ctx context.Context) (func(), error) {
	start := time.Now()
	release, err := s.lock.acquire(ctx)
	s.metrics.ObserveLockWait(time.Since(start).Seconds())
	return release, err
}

// readFile must be called with the file lock held.
func (s *Store) readFile() (*File, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &File{Version: SchemaVersion}, nil
		}
		return nil, err
	}

	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRegistry, s.path, err)
	}
	if _, ok := shape["version"]; !ok {
		return nil, fmt.Errorf("%w: %s: missing version", ErrCorruptRegistry, s.path)
	}
	exts := strings.TrimSpace(string(shape["extensions"]))
	if !strings.HasPrefix(exts, "[") {
		return nil, fmt.Errorf("%w: %s: extensions must be an array", ErrCorruptRegistry, s.path)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRegistry, s.path, err)
	}
	return &file, nil
}

// Save persists the in-memory state. A call that arrives while another
// save is running does not start a second writer: it marks one more cycle
// pending and waits for that cycle, which the running save performs
// before it returns. A queued call reports that cycle's outcome even if
// ctx ends first, since the cycle writes its changes regardless.
func (s *Store) Save(ctx context.Context) error {
	s.saveMu.Lock()
	if s.saving {
		s.pending = true
		ch := make(chan error, 1)
		s.waiters = append(s.waiters, ch)
		s.saveMu.Unlock()
		return <-ch
	}
	s.saving = true
	s.saveMu.Unlock()

	err := s.persist(ctx)

	for {
		s.saveMu.Lock()
		if !s.pending {
			s.saving = false
			s.saveMu.Unlock()
			return err
		}
		s.pending = false
		batch := s.waiters
		s.waiters = nil
		s.saveMu.Unlock()

		// The waiters' mutations are already in memory, so the cycle runs
		// even when the ctx that started this save is done.
		perr := s.persist(context.WithoutCancel(ctx))
		for _, ch := range batch {
			ch <- perr
		}
	}
}

// persist runs one lock, merge, write, rename cycle. The on-disk file is
// re-read under the lock and only ids this store changed are applied to
// it, so stores in other processes never lose each other's records.
func (s *Store) persist(ctx context.Context) error {
	release, err := s.acquire(ctx)
	if err != nil {
		s.metrics.IncRegistryOp("save", "lock_error")
		return err
	}
	defer release()

	onDisk, err := s.readFile()
	if err != nil {
		s.metrics.IncRegistryOp("save", "read_error")
		return err
	}

	s.mu.RLock()
	merged := s.mergeLocked(onDisk.Extensions)
	written := make(map[string]uint64, len(s.dirty))
	for id, seq := range s.dirty {
		written[id] = seq
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(File{
		Version:     SchemaVersion,
		LastUpdated: s.now().UTC(),
		Extensions:  merged,
	}, "", "  ")
	if err != nil {
		return err
	}

	if err := s.writeAtomic(data); err != nil {
		s.logger.Error("failed to persist registry", zap.String("path", s.path), zap.Error(err))
		s.metrics.IncRegistryOp("save", "write_error")
		return &PersistError{Path: s.path, Err: err}
	}

	s.mu.Lock()
	for id, seq := range written {
		if s.dirty[id] == seq {
			delete(s.dirty, id)
		}
	}
	s.adoptLocked(merged)
	s.loaded = true
	s.mu.Unlock()

	s.metrics.IncRegistryOp("save", "ok")
	return nil
}

// mergeLocked overlays dirty ids on the on-disk records, keeping disk order
// and appending new ids in local insertion order.
func (s *Store) mergeLocked(disk []ExtensionRecord) []ExtensionRecord {
	out := make([]ExtensionRecord, 0, len(disk)+len(s.dirty))
	seen := make(map[string]bool, len(disk))

	for _, rec := range disk {
		if seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		if _, isDirty := s.dirty[rec.ID]; isDirty {
			local, ok := s.records[rec.ID]
			if !ok {
				continue
			}
			rec = local
		}
		out = append(out, rec.Clone())
	}

	for _, id := range s.order {
		if seen[id] {
			continue
		}
		if _, isDirty := s.dirty[id]; !isDirty {
			continue
		}
		if local, ok := s.records[id]; ok {
			out = append(out, local.Clone())
			seen[id] = true
		}
	}
	return out
}

// adoptLocked refreshes records this store has not changed since the
// write, picking up other processes' additions and removals.
func (s *Store) adoptLocked(merged []ExtensionRecord) {
	present := make(map[string]bool, len(merged))
	for _, rec := range merged {
		present[rec.ID] = true
		if _, isDirty := s.dirty[rec.ID]; isDirty {
			continue
		}
		if _, ok := s.records[rec.ID]; !ok {
			s.order = append(s.order, rec.ID)
		}
		s.records[rec.ID] = rec
	}

	kept := s.order[:0]
	for _, id := range s.order {
		if _, isDirty := s.dirty[id]; !isDirty && !present[id] {
			delete(s.records, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func (s *Store) writeAtomic(data []byte) error {
	tmp := fmt.Sprintf("%s.%s.tmp", s.path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := s.rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Add inserts or replaces rec by id and persists it
func (s *Store) Add(ctx context.Context, rec ExtensionRecord) error {
	if !validID(rec.ID) {
		return &RegistryError{Op: "add", ID: rec.ID, Err: ErrInvalidID}
	}

	s.mu.Lock()
	t := s.beginLocked(rec.ID)
	s.putLocked(rec.Clone())
	t.gen = s.markDirtyLocked(rec.ID)
	s.mu.Unlock()

	return s.commit(ctx, "add", t)
}

// Update applies fn to a copy of the record and persists the result. The
// id cannot be changed. It returns ErrNotFound for unknown ids.
func (s *Store) Update(ctx context.Context, id string, fn func(*ExtensionRecord)) error {
	s.mu.Lock()
	cur, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return &RegistryError{Op: "update", ID: id, Err: ErrNotFound}
	}

	t := s.beginLocked(id)
	next := cur.Clone()
	fn(&next)
	next.ID = id
	s.putLocked(next)
	t.gen = s.markDirtyLocked(id)
	s.mu.Unlock()

	return s.commit(ctx, "update", t)
}

// Remove deletes id and persists only if something was deleted
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	if _, ok := s.records[id]; !ok {
		s.mu.Unlock()
		return false, nil
	}

	t := s.beginLocked(id)
	s.deleteLocked(id)
	t.gen = s.markDirtyLocked(id)
	s.mu.Unlock()

	if err := s.commit(ctx, "remove", t); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) commit(ctx context.Context, op string, t *tx) error {
	if err := s.Save(ctx); err != nil {
		s.mu.Lock()
		t.revertLocked()
		s.mu.Unlock()

		s.logger.Warn("registry change rolled back",
			zap.String("op", op), zap.String("id", t.id), zap.Error(err))
		s.metrics.IncRegistryOp(op, "rolled_back")
		return &RegistryError{Op: op, ID: t.id, Err: err}
	}
	s.metrics.IncRegistryOp(op, "ok")
	return nil
}

func (s *Store) putLocked(rec ExtensionRecord) {
	if _, ok := s.records[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
}

func (s *Store) deleteLocked(id string) {
	delete(s.records, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Store) markDirtyLocked(id string) uint64 {
	s.seq++
	s.dirty[id] = s.seq
	return s.seq
}

// Get returns a copy of the record for id
func (s *Store) Get(id string) (ExtensionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return ExtensionRecord{}, false
	}
	return rec.Clone(), true
}

// List returns all records in insertion order
func (s *Store) List() []ExtensionRecord {
	return s.filter(func(ExtensionRecord) bool { return true })
}

// ListInstalled returns installed records in insertion order
func (s *Store) ListInstalled() []ExtensionRecord {
	return s.filter(func(r ExtensionRecord) bool { return r.IsInstalled })
}

func (s *Store) filter(keep func(ExtensionRecord) bool) []ExtensionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ExtensionRecord, 0, len(s.order))
	for _, id := range s.order {
		if rec := s.records[id]; keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// IsInstalled reports whether id is installed
func (s *Store) IsInstalled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id].IsInstalled
}

// CheckExisting returns a descriptor when id is already installed, or nil
func (s *Store) CheckExisting(id string) *ExistingInstall {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok || !rec.IsInstalled {
		return nil
	}
	version := rec.Version
	if rec.InstalledVersion != nil {
		version = *rec.InstalledVersion
	}
	return &ExistingInstall{ID: id, Version: version}
}

// Stats counts total, installed and per-type records
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{ByType: make(map[ExtensionType]int)}
	for _, rec := range s.records {
		st.Total++
		if rec.IsInstalled {
			st.Installed++
		}
		st.ByType[rec.Type]++
	}
	return st
}

func validID(id string) bool {
	owner, name, ok := strings.Cut(id, "/")
	return ok && owner != "" && name != "" && !strings.Contains(name, "/")
}
