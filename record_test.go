package vidcache

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		hash := VideoHash{SrcPath: "/videos/a.mp4", Digest: DigestBytes([]byte("a")), Samples: []uint64{1, 2}}
		stats := VideoStats{Size: 42, Container: "mp4", Samples: 2}

		rec := NewRecord("/videos/a.mp4", hash, stats, nil)
		require.True(t, rec.Success())
		require.NoError(t, rec.Validate())

		gotHash, err := rec.Hash()
		require.NoError(t, err)
		assert.Equal(t, hash, gotHash)

		gotStats, err := rec.Stats()
		require.NoError(t, err)
		assert.Equal(t, stats, gotStats)
	})

	t.Run("classified failure", func(t *testing.T) {
		rec := NewRecord("/videos/b.mp4", VideoHash{}, VideoStats{}, NewHashError(KindVideoLength, "/videos/b.mp4", ""))
		require.False(t, rec.Success())
		require.NoError(t, rec.Validate())

		_, err := rec.Hash()
		require.ErrorIs(t, err, ErrVideoLength)
	})

	t.Run("unclassified failure becomes processing error", func(t *testing.T) {
		rec := NewRecord("/videos/c.mp4", VideoHash{}, VideoStats{}, errors.New("decoder crashed"))

		_, err := rec.Hash()
		require.ErrorIs(t, err, ErrVideoProcessing)

		var he *HashError
		require.ErrorAs(t, err, &he)
		assert.Equal(t, "/videos/c.mp4", he.SrcPath)
		assert.Equal(t, "decoder crashed", he.Detail)
	})
}

func TestCacheRecordValidate(t *testing.T) {
	require.Error(t, CacheRecord{}.Validate())
	require.Error(t, CacheRecord{
		Data: &CachedVideoData{},
		Err:  NewHashError(KindDetermineVideo, "/x", ""),
	}.Validate())
}

func TestCacheRecordJSONKeepsBothArms(t *testing.T) {
	ok := NewRecord("/v/a.mkv", VideoHash{SrcPath: "/v/a.mkv", Digest: DigestBytes([]byte("a"))}, VideoStats{Container: "matroska"}, nil)
	failed := NewRecord("/v/b.bin", VideoHash{}, VideoStats{}, NewHashError(KindDetermineVideo, "/v/b.bin", "unknown container"))

	for _, rec := range []CacheRecord{ok, failed} {
		data, err := json.Marshal(rec)
		require.NoError(t, err)

		var decoded CacheRecord
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, rec, decoded)
	}
}

func TestHashErrorMessage(t *testing.T) {
	err := NewHashError(KindVideoProcessing, "/v/x.mp4", "short read")
	assert.Equal(t, "video processing failed: /v/x.mp4: short read", err.Error())

	err = NewHashError(KindDetermineVideo, "/v/y.txt", "")
	assert.Equal(t, "could not determine if file is a video: /v/y.txt", err.Error())
	assert.ErrorIs(t, err, ErrDetermineVideo)
	assert.NotErrorIs(t, err, ErrVideoLength)
}

func TestVideoHashDistance(t *testing.T) {
	a := VideoHash{Samples: []uint64{0b1010, 0}}
	b := VideoHash{Samples: []uint64{0b0110, 0, 5}}

	assert.Equal(t, 0, a.Distance(a))
	assert.Equal(t, 2+64, a.Distance(b))
	assert.Equal(t, a.Distance(b), b.Distance(a))
}
