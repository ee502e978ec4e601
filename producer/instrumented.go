package producer

import (
	"context"
	"errors"
	"time"

	vidcache "github.com/wolfeidau/vid-cache"
	"github.com/wolfeidau/vid-cache/telemetry"
)

// InstrumentedProducer wraps a Producer with metrics recording.
type InstrumentedProducer struct {
	next vidcache.Producer
}

// NewInstrumentedProducer creates a new instrumented Producer wrapper.
func NewInstrumentedProducer(next vidcache.Producer) *InstrumentedProducer {
	return &InstrumentedProducer{next: next}
}

func (ip *InstrumentedProducer) Produce(ctx context.Context, path string) (vidcache.VideoHash, vidcache.VideoStats, error) {
	start := time.Now()
	hash, stats, err := ip.next.Produce(ctx, path)
	telemetry.RecordProduce(ctx, outcomeFromError(path, err), time.Since(start), stats.Size)
	return hash, stats, err
}

// Unwrap returns the underlying Producer.
func (ip *InstrumentedProducer) Unwrap() vidcache.Producer {
	return ip.next
}

func outcomeFromError(path string, err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return string(vidcache.Classify(path, err).Kind)
}
