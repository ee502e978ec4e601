// Package cache keeps video fingerprints for a set of files up to date.
//
// A Cache pairs a persistent store with a Producer. Looking up a path only
// runs the Producer when the file is new or its modification time has
// changed since the stored record was made; files that have disappeared are
// evicted. Failures are cached like successes, so a file that cannot be
// fingerprinted is not retried until it changes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	vidcache "github.com/wolfeidau/vid-cache"
	"github.com/wolfeidau/vid-cache/producer"
	"github.com/wolfeidau/vid-cache/store"
	"github.com/wolfeidau/vid-cache/telemetry"
)

// Cache maps file paths to cached fingerprints. It is safe for concurrent use.
type Cache struct {
	store       *store.Store
	producer    vidcache.Producer
	fs          afero.Fs
	logger      *slog.Logger
	parallelism int
	storeOpts   []store.Option
	group       singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithProducer sets the Producer used for new and changed files. It defaults
// to a producer.Fingerprinter reading from the cache filesystem.
func WithProducer(p vidcache.Producer) Option {
	return func(c *Cache) {
		c.producer = p
	}
}

// WithLogger sets the logger for the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithFs sets the filesystem used to check file existence and modification
// times. This is primarily useful for testing with in-memory filesystems.
func WithFs(fs afero.Fs) Option {
	return func(c *Cache) {
		c.fs = fs
	}
}

// WithParallelism sets how many paths UpdateUsingFs processes at once.
// Values of 1 or less process paths sequentially.
func WithParallelism(n int) Option {
	return func(c *Cache) {
		c.parallelism = n
	}
}

// WithStoreOptions passes options through to store.Open.
func WithStoreOptions(opts ...store.Option) Option {
	return func(c *Cache) {
		c.storeOpts = append(c.storeOpts, opts...)
	}
}

// Open opens (or creates) the store at cachePath. The store saves itself
// after every saveThreshold mutations; zero disables autosave.
func Open(cachePath string, saveThreshold uint32, opts ...Option) (*Cache, error) {
	c := newCache(opts)

	storeOpts := append([]store.Option{store.WithLogger(c.logger)}, c.storeOpts...)
	st, err := store.Open(cachePath, saveThreshold, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", cachePath, err)
	}
	c.store = st

	return c, nil
}

// New creates a Cache over an already open store.
func New(st *store.Store, opts ...Option) *Cache {
	c := newCache(opts)
	c.store = st
	return c
}

func newCache(opts []Option) *Cache {
	c := &Cache{
		fs:          afero.NewOsFs(),
		logger:      slog.Default(),
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.producer == nil {
		c.producer = producer.NewLoggingProducer(
			producer.NewInstrumentedProducer(producer.NewFingerprinter(producer.WithFs(c.fs))),
			c.logger,
		)
	}
	return c
}

// Store returns the underlying store.
func (c *Cache) Store() *store.Store {
	return c.store
}

// Fetch returns the cached fingerprint for path without touching the file.
// It returns an error wrapping store.ErrNotFound if nothing is cached, or the
// cached *vidcache.HashError if fingerprinting failed.
func (c *Cache) Fetch(path string) (vidcache.VideoHash, error) {
	path = filepath.Clean(path)
	e, ok := c.store.Get(path)
	if !ok {
		return vidcache.VideoHash{}, fmt.Errorf("fetching %s: %w", path, store.ErrNotFound)
	}
	return e.Record.Hash()
}

// FetchStats returns the cached statistics for path, like Fetch.
func (c *Cache) FetchStats(path string) (vidcache.VideoStats, error) {
	path = filepath.Clean(path)
	e, ok := c.store.Get(path)
	if !ok {
		return vidcache.VideoStats{}, fmt.Errorf("fetching stats %s: %w", path, store.ErrNotFound)
	}
	return e.Record.Stats()
}

// FetchUpdate brings the entry for path up to date and returns it.
//
// The path is cleaned before use, so equivalent spellings share one entry.
// If the file no longer exists its entry is evicted and FetchUpdate returns
// (nil, nil). If the stored entry matches the file's modification time it is
// returned without running the Producer. Otherwise the Producer runs and its
// outcome, success or failure, is stored and returned.
//
// Concurrent calls for the same path share one Producer run. The error is
// non-nil only when the file could not be inspected or the store could not
// be written.
func (c *Cache) FetchUpdate(ctx context.Context, path string) (*vidcache.CacheRecord, error) {
	path = filepath.Clean(path)
	ch := c.group.DoChan(path, func() (any, error) {
		// Detached so one caller giving up does not fail the others.
		return c.fetchUpdate(context.WithoutCancel(ctx), path)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*vidcache.CacheRecord), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) fetchUpdate(ctx context.Context, path string) (*vidcache.CacheRecord, error) {
	info, err := c.fs.Stat(path)
	if err != nil {
		if !notExist(err) {
			telemetry.RecordFetch(ctx, telemetry.FetchError)
			return nil, fmt.Errorf("inspecting %s: %w", path, err)
		}
		if err := c.store.Remove(path); err != nil {
			telemetry.RecordFetch(ctx, telemetry.FetchError)
			return nil, fmt.Errorf("evicting %s: %w", path, err)
		}
		telemetry.RecordFetch(ctx, telemetry.FetchMissing)
		return nil, nil
	}

	modTime := info.ModTime()
	result := telemetry.FetchMiss
	if e, ok := c.store.Get(path); ok {
		if e.Fresh(modTime) {
			telemetry.RecordFetch(ctx, telemetry.FetchHit)
			record := e.Record
			return &record, nil
		}
		result = telemetry.FetchStale
	}

	hash, stats, err := c.producer.Produce(ctx, path)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}
	record := vidcache.NewRecord(path, hash, stats, err)

	if err := c.store.Put(path, modTime, record); err != nil {
		telemetry.RecordFetch(ctx, telemetry.FetchError)
		return nil, fmt.Errorf("storing %s: %w", path, err)
	}
	telemetry.RecordFetch(ctx, result)
	return &record, nil
}

// AllCachedPaths returns, in lexical order, every path whose cached record
// is a success. Paths with cached failures are omitted but stay stored.
func (c *Cache) AllCachedPaths() []string {
	var paths []string
	c.store.Range(func(key string, e store.Entry) bool {
		if e.Record.Success() {
			paths = append(paths, key)
		}
		return true
	})
	return paths
}

// Save persists every unsaved change.
func (c *Cache) Save() error {
	return c.store.Save()
}

// Close releases the store without saving.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Stats summarises the store contents.
type Stats struct {
	Entries  int
	Success  int
	Failure  int
	Pending  int
	Failures map[vidcache.Kind]int
}

// Stats counts cached entries by outcome.
func (c *Cache) Stats() Stats {
	s := Stats{Failures: make(map[vidcache.Kind]int)}
	c.store.Range(func(_ string, e store.Entry) bool {
		s.Entries++
		if e.Record.Success() {
			s.Success++
		} else {
			s.Failure++
			s.Failures[e.Record.Err.Kind]++
		}
		return true
	})
	s.Pending = c.store.Pending()

	telemetry.UpdateStoreEntries(context.Background(), s.Success, s.Failure)
	return s
}
