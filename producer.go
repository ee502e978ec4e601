package vidcache

import "context"

// Producer derives a fingerprint from the file at path.
//
// Implementations must be deterministic for a given file's bytes: the cache
// only calls Produce again once the file's modification time changes.
// Failures should be reported as *HashError; any other error is classified
// as KindVideoProcessing.
type Producer interface {
	Produce(ctx context.Context, path string) (VideoHash, VideoStats, error)
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func(ctx context.Context, path string) (VideoHash, VideoStats, error)

// Produce calls f(ctx, path).
func (f ProducerFunc) Produce(ctx context.Context, path string) (VideoHash, VideoStats, error) {
	return f(ctx, path)
}
