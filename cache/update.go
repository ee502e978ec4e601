package cache

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wolfeidau/vid-cache/telemetry"
)

// Projection is the part of a projection.FileProjection that a bulk update
// needs.
type Projection interface {
	Contains(path string) bool
	ProjectedFiles() ([]string, error)
}

// UpdateUsingFs brings the cache up to date with a projection. It visits
// every projected file and every successfully cached path the projection
// contains, so files that have been deleted since the last run are evicted
// even though the projection no longer lists them.
//
// Producer failures (*vidcache.HashError) and per-path store failures
// (*PathError) are collected in the returned list and do not stop the
// update. The error is non-nil only if the projection has not been projected
// or ctx is already done. If ctx is cancelled part way, the remaining paths
// are skipped and the list ends with the context error.
func (c *Cache) UpdateUsingFs(ctx context.Context, proj Projection) ([]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := proj.ProjectedFiles()
	if err != nil {
		return nil, fmt.Errorf("listing projected files: %w", err)
	}

	set := make(map[string]struct{}, len(files))
	for _, p := range c.AllCachedPaths() {
		if proj.Contains(p) {
			set[p] = struct{}{}
		}
	}
	for _, p := range files {
		set[p] = struct{}{}
	}
	paths := slices.Sorted(maps.Keys(set))

	ctx = telemetry.WithRunID(ctx, uuid.NewString())
	logger := telemetry.Logger(ctx, c.logger)

	mode := "sequential"
	if c.parallelism > 1 {
		mode = "parallel"
	}

	logger.Info("updating cache",
		"paths", len(paths),
		"projected", len(files),
		"mode", mode,
		"parallelism", c.parallelism)

	start := time.Now()
	var errs []error
	if c.parallelism > 1 {
		errs = c.updateParallel(ctx, paths)
	} else {
		errs = c.updateSequential(ctx, paths)
	}
	elapsed := time.Since(start)

	telemetry.RecordUpdateRun(ctx, mode, len(paths), len(errs), elapsed)
	logger.Info("cache updated",
		"paths", len(paths),
		"errors", len(errs),
		"pending", c.store.Pending(),
		"duration", elapsed)

	return errs, nil
}

func (c *Cache) updateSequential(ctx context.Context, paths []string) []error {
	var errs []error
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return append(errs, skipped(len(paths)-i, err))
		}
		if err := c.updateOne(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (c *Cache) updateParallel(ctx context.Context, paths []string) []error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(c.parallelism)

	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			// Wait before appending so the skipped error stays last.
			_ = g.Wait()
			return append(errs, skipped(len(paths)-i, err))
		}
		g.Go(func() error {
			if err := c.updateOne(ctx, p); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return errs
}

// updateOne refreshes a single path and returns its non-fatal error, if any.
func (c *Cache) updateOne(ctx context.Context, path string) error {
	record, err := c.FetchUpdate(ctx, path)
	if err != nil {
		return &PathError{Path: path, Err: err}
	}
	if record != nil && record.Err != nil {
		return record.Err
	}
	return nil
}

func skipped(n int, err error) error {
	return fmt.Errorf("skipped %d paths: %w", n, err)
}
