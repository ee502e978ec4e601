// Package store persists cache records keyed by absolute file path.
//
// Entries live in memory and are flushed to a bbolt database by Save, either
// explicitly or automatically after every N mutations. A Store that is
// closed without saving loses unsaved mutations but never leaves a partially
// written database behind: each Save is a single bbolt transaction.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	vidcache "github.com/wolfeidau/vid-cache"
	"github.com/wolfeidau/vid-cache/telemetry"
)

// Entry is a cached record together with the modification time of the file
// it was produced from.
type Entry struct {
	ModTime time.Time
	Record  vidcache.CacheRecord
}

// Fresh reports whether the entry was produced from a file with the given
// modification time.
func (e Entry) Fresh(modTime time.Time) bool {
	return e.ModTime.Equal(modTime)
}

// Store is a persistent map from path to Entry. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	dirty   map[string]struct{}
	removed map[string]struct{}
	closed  bool

	saveMu    sync.Mutex
	mutations atomic.Uint64
	threshold uint32

	db     *bbolt.DB
	codec  *Codec
	path   string
	logger *slog.Logger
	noSync bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithNoSync disables fsync per transaction.
// Use only for testing or benchmarking, never in production.
func WithNoSync(noSync bool) Option {
	return func(s *Store) {
		s.noSync = noSync
	}
}

// Open opens the store at path, creating an empty one if the file does not
// exist. Every saveThreshold mutations (Put or Remove of an existing key)
// trigger a Save; zero disables autosave.
//
// Open returns an error wrapping ErrCorrupted if the file exists but its
// content cannot be decoded.
func Open(path string, saveThreshold uint32, opts ...Option) (*Store, error) {
	s := &Store{
		entries:   make(map[string]Entry),
		dirty:     make(map[string]struct{}),
		removed:   make(map[string]struct{}),
		threshold: saveThreshold,
		path:      path,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	start := time.Now()

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  s.noSync,
	})
	if err != nil {
		if errors.Is(err, berrors.ErrInvalid) || errors.Is(err, berrors.ErrVersionMismatch) || errors.Is(err, berrors.ErrChecksum) {
			err = corrupted(err)
		}
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	codec, err := NewCodec()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating codec: %w", err)
	}
	s.codec = codec

	if err := s.load(); err != nil {
		codec.Close()
		_ = db.Close()
		telemetry.RecordStoreOp(context.Background(), "load", "error", time.Since(start))
		return nil, err
	}
	telemetry.RecordStoreOp(context.Background(), "load", "success", time.Since(start))

	s.logger.Debug("opened store", "path", path, "entries", len(s.entries), "save_threshold", saveThreshold)
	return s, nil
}

// load checks the schema version and reads every entry into memory.
func (s *Store) load() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucketMeta, err)
		}
		entries, err := tx.CreateBucketIfNotExists(bucketEntries)
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucketEntries, err)
		}

		if raw := meta.Get(keySchemaVersion); raw != nil {
			version, ok := decodeUint64(raw)
			if !ok || version != SchemaVersion {
				return corrupted(fmt.Errorf("unsupported schema version %x", raw))
			}
		} else if err := meta.Put(keySchemaVersion, encodeUint64(SchemaVersion)); err != nil {
			return fmt.Errorf("writing schema version: %w", err)
		}

		return entries.ForEach(func(k, v []byte) error {
			entry, err := s.codec.Decode(v)
			if err != nil {
				return fmt.Errorf("loading entry %q: %w", k, err)
			}
			s.entries[string(k)] = entry
			return nil
		})
	})
}

// Get returns the entry for key.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Put stores record for key, replacing any existing entry. It counts as a
// mutation for autosave. A failed autosave is logged and its changes stay
// pending for the next Save.
func (s *Store) Put(key string, modTime time.Time, record vidcache.CacheRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.entries[key] = Entry{ModTime: modTime, Record: record}
	s.dirty[key] = struct{}{}
	delete(s.removed, key)
	s.mu.Unlock()

	return s.mutated()
}

// Remove deletes the entry for key. Removing a missing key is a no-op and
// does not count as a mutation. Autosave behaves as for Put.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.entries[key]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.entries, key)
	delete(s.dirty, key)
	s.removed[key] = struct{}{}
	s.mu.Unlock()

	return s.mutated()
}

func (s *Store) mutated() error {
	n := s.mutations.Add(1)
	if s.threshold == 0 || n%uint64(s.threshold) != 0 {
		return nil
	}
	if err := s.Save(); err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		s.logger.Warn("autosave failed, changes left pending",
			"path", s.path,
			"pending", s.Pending(),
			"error", err)
	}
	return nil
}

// Keys returns every key in lexical order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.entries))
}

// Range calls fn for each entry in lexical key order until fn returns false.
// fn must not call back into the Store.
func (s *Store) Range(fn func(key string, e Entry) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range slices.Sorted(maps.Keys(s.entries)) {
		if !fn(k, s.entries[k]) {
			return
		}
	}
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Pending returns the number of keys changed since the last Save.
func (s *Store) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dirty) + len(s.removed)
}

// Mutations returns the number of mutations since Open.
func (s *Store) Mutations() uint64 {
	return s.mutations.Load()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Save writes every pending change in a single transaction. If the
// transaction fails the changes stay pending.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	start := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	writes := make(map[string][]byte, len(s.dirty))
	for k := range s.dirty {
		v, err := s.codec.Encode(s.entries[k])
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("encoding entry %q: %w", k, err)
		}
		writes[k] = v
	}
	deletes := slices.Collect(maps.Keys(s.removed))
	s.dirty = make(map[string]struct{})
	s.removed = make(map[string]struct{})
	s.mu.Unlock()

	if len(writes) == 0 && len(deletes) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		for k, v := range writes {
			if err := b.Put([]byte(k), v); err != nil {
				return fmt.Errorf("putting entry %q: %w", k, err)
			}
		}
		for _, k := range deletes {
			if err := b.Delete([]byte(k)); err != nil {
				return fmt.Errorf("deleting entry %q: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		s.restorePending(writes, deletes)
		telemetry.RecordStoreOp(context.Background(), "save", "error", time.Since(start))
		return fmt.Errorf("saving store: %w", err)
	}

	elapsed := time.Since(start)
	telemetry.RecordStoreOp(context.Background(), "save", "success", elapsed)
	telemetry.RecordSave(context.Background(), len(writes)+len(deletes), elapsed)

	s.logger.Debug("saved store",
		"path", s.path,
		"written", len(writes),
		"deleted", len(deletes),
		"duration", elapsed)
	return nil
}

// restorePending marks the keys of a failed Save as pending again, unless
// they changed in the meantime.
func (s *Store) restorePending(writes map[string][]byte, deletes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range writes {
		if _, ok := s.entries[k]; ok {
			s.dirty[k] = struct{}{}
		}
	}
	for _, k := range deletes {
		if _, ok := s.entries[k]; !ok {
			s.removed[k] = struct{}{}
		}
	}
}

// Close releases the database without saving. Closing twice is a no-op.
func (s *Store) Close() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if pending := len(s.dirty) + len(s.removed); pending > 0 {
		s.logger.Debug("closing store with unsaved changes", "path", s.path, "pending", pending)
	}

	s.codec.Close()
	return s.db.Close()
}
