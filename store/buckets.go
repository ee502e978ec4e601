package store

import (
	"encoding/binary"
	"time"
)

// Bucket names for bbolt storage.
var (
	bucketEntries = []byte("entries") // absolute path -> encoded Entry
	bucketMeta    = []byte("meta")    // store-level settings

	keySchemaVersion = []byte("schema_version")
)

// SchemaVersion is written to the meta bucket of every store. A store with a
// different version is reported as corrupted.
const SchemaVersion uint64 = 1

// encodeTimestamp converts a time.Time to an unsigned value that sorts in
// time order. Offsetting by math.MinInt64 keeps pre-1970 times in order.
func encodeTimestamp(t time.Time) uint64 {
	return uint64(t.UnixNano() - (-1 << 63)) //nolint:gosec // intentional signed->unsigned shift
}

// decodeTimestamp reverses encodeTimestamp.
func decodeTimestamp(u uint64) time.Time {
	ns := int64(u) + (-1 << 63) //nolint:gosec // intentional unsigned->signed shift
	return time.Unix(0, ns).UTC()
}

func encodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func decodeUint64(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}
