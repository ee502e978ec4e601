package vidcache

import (
	"math/bits"
	"time"
)

// VideoHash is the fingerprint derived from a single video file.
type VideoHash struct {
	SrcPath string   `json:"src_path"`
	Digest  Digest   `json:"digest"`
	Samples []uint64 `json:"samples"` // per-window fingerprints, in file order
}

// Distance returns the number of differing bits between the sample
// fingerprints of two hashes. Hashes with a different number of samples are
// compared over the shorter prefix; the remainder counts as fully different.
func (h VideoHash) Distance(other VideoHash) int {
	n := min(len(h.Samples), len(other.Samples))
	d := 0
	for i := range n {
		d += bits.OnesCount64(h.Samples[i] ^ other.Samples[i])
	}
	d += 64 * (max(len(h.Samples), len(other.Samples)) - n)
	return d
}

// VideoStats describes the file a VideoHash was derived from.
type VideoStats struct {
	Size       int64         `json:"size"`
	Container  string        `json:"container"`
	Samples    int           `json:"samples"`
	HashedIn   time.Duration `json:"hashed_in"`
	ModifiedAt time.Time     `json:"modified_at"`
}
