// Package vidcache defines the artifacts cached for video files: the
// fingerprint (VideoHash), its statistics (VideoStats), the classified
// failures a Producer may report (HashError) and the persisted CacheRecord
// that stores either outcome.
//
// The staleness-tracked cache lives in package cache, file discovery in
// package projection and persistence in package store.
package vidcache
