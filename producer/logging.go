package producer

import (
	"context"
	"errors"
	"log/slog"

	vidcache "github.com/wolfeidau/vid-cache"
)

// LoggingProducer wraps a Producer and logs every outcome: info for a new
// fingerprint, warn for each kind of failure.
type LoggingProducer struct {
	next   vidcache.Producer
	logger *slog.Logger
}

// NewLoggingProducer creates a new logging Producer wrapper.
func NewLoggingProducer(next vidcache.Producer, logger *slog.Logger) *LoggingProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingProducer{next: next, logger: logger.With("component", "producer")}
}

func (lp *LoggingProducer) Produce(ctx context.Context, path string) (vidcache.VideoHash, vidcache.VideoStats, error) {
	hash, stats, err := lp.next.Produce(ctx, path)
	if err == nil {
		lp.logger.Info("inserting", "path", path, "container", stats.Container, "size", stats.Size)
		return hash, stats, nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		lp.logger.Debug("fingerprint cancelled", "path", path, "error", err)
		return hash, stats, err
	}

	he := vidcache.Classify(path, err)
	switch he.Kind {
	case vidcache.KindDetermineVideo:
		lp.logger.Warn("not sure if video", "path", path, "error", he.Detail)
	case vidcache.KindVideoLength:
		lp.logger.Warn("too short", "path", path)
	default:
		lp.logger.Warn("processing error", "path", path, "error", he.Detail)
	}
	return hash, stats, err
}
