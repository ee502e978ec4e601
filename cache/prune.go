package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfeidau/vid-cache/telemetry"
)

// Prune evicts every entry whose file no longer exists, whether or not any
// projection still covers it. It returns the number of evicted entries.
// Entries whose files cannot be inspected for another reason are kept.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	start := time.Now()
	var evicted int
	defer func() {
		telemetry.RecordPrune(ctx, evicted, time.Since(start))
	}()

	keys := c.store.Keys()
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return evicted, err
		}

		_, err := c.fs.Stat(key)
		if err == nil {
			continue
		}
		if !notExist(err) {
			c.logger.Warn("failed to inspect cached path", "path", key, "error", err)
			continue
		}

		if err := c.store.Remove(key); err != nil {
			return evicted, fmt.Errorf("evicting %s: %w", key, err)
		}
		evicted++
	}

	c.logger.Info("pruned vanished files",
		"evicted", evicted,
		"total", len(keys))

	return evicted, nil
}
