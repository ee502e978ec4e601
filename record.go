package vidcache

import "errors"

// CachedVideoData is the successful arm of a CacheRecord.
type CachedVideoData struct {
	Hash  VideoHash  `json:"hash"`
	Stats VideoStats `json:"stats"`
}

// CacheRecord is the persisted outcome of producing a fingerprint for a
// path: either Data (success) or Err (classified failure). Exactly one of
// the two is set.
type CacheRecord struct {
	Data *CachedVideoData `json:"data,omitempty"`
	Err  *HashError       `json:"err,omitempty"`
}

var errEmptyRecord = errors.New("empty cache record")

// NewRecord wraps a Producer outcome. A non-nil err takes precedence and is
// classified with Classify.
func NewRecord(srcPath string, hash VideoHash, stats VideoStats, err error) CacheRecord {
	if err != nil {
		return CacheRecord{Err: Classify(srcPath, err)}
	}
	return CacheRecord{Data: &CachedVideoData{Hash: hash, Stats: stats}}
}

// Success reports whether the record holds a fingerprint.
func (r CacheRecord) Success() bool {
	return r.Data != nil && r.Err == nil
}

// Result returns the cached data or the cached failure.
func (r CacheRecord) Result() (CachedVideoData, error) {
	switch {
	case r.Err != nil:
		return CachedVideoData{}, r.Err
	case r.Data == nil:
		return CachedVideoData{}, errEmptyRecord
	default:
		return *r.Data, nil
	}
}

// Hash returns the cached fingerprint or the cached failure.
func (r CacheRecord) Hash() (VideoHash, error) {
	data, err := r.Result()
	return data.Hash, err
}

// Stats returns the cached statistics or the cached failure.
func (r CacheRecord) Stats() (VideoStats, error) {
	data, err := r.Result()
	return data.Stats, err
}

// Validate checks that exactly one arm of the record is set.
func (r CacheRecord) Validate() error {
	if (r.Data == nil) == (r.Err == nil) {
		return errEmptyRecord
	}
	return nil
}
