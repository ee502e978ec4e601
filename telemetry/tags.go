// Package telemetry provides run tagging for structured logging and metrics.
package telemetry

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	// runIDKey is the context key for the bulk update run ID.
	runIDKey contextKey = "run_id"
)

// FetchResult represents the outcome of a cache lookup.
type FetchResult string

const (
	// FetchHit means a fresh record was served from the store.
	FetchHit FetchResult = "hit"
	// FetchMiss means no record existed and the Producer ran.
	FetchMiss FetchResult = "miss"
	// FetchStale means the record was outdated and the Producer ran.
	FetchStale FetchResult = "stale"
	// FetchMissing means the file no longer exists and any record was evicted.
	FetchMissing FetchResult = "missing"
	// FetchError means the lookup failed.
	FetchError FetchResult = "error"
)

// WithRunID returns a context carrying the bulk update run ID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run ID stored by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// Logger returns logger annotated with the run ID from ctx, if any.
func Logger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := RunIDFromContext(ctx); id != "" {
		return logger.With("run_id", id)
	}
	return logger
}
