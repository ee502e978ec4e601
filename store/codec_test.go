package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	vidcache "github.com/wolfeidau/vid-cache"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec()
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCodec_SmallRecordIsNotCompressed(t *testing.T) {
	c := newTestCodec(t)
	e := Entry{ModTime: modTime, Record: failureRecord("/v/a.mp4")}

	b, err := c.Encode(e)
	require.NoError(t, err)

	data, err := json.Marshal(e.Record)
	require.NoError(t, err)
	assert.Contains(t, string(b), string(data), "payload stored verbatim")

	got, err := c.Decode(b)
	require.NoError(t, err)
	assert.True(t, got.ModTime.Equal(e.ModTime))
	assert.Equal(t, e.Record, got.Record)
}

func TestCodec_LargeRecordIsCompressed(t *testing.T) {
	c := newTestCodec(t)

	samples := make([]uint64, 2000)
	for i := range samples {
		samples[i] = uint64(i % 7)
	}
	record := vidcache.NewRecord("/v/long.mkv",
		vidcache.VideoHash{SrcPath: "/v/long.mkv", Samples: samples},
		vidcache.VideoStats{Size: 1 << 30, Container: "matroska", Samples: len(samples)},
		nil)
	e := Entry{ModTime: modTime, Record: record}

	data, err := json.Marshal(record)
	require.NoError(t, err)
	require.Greater(t, len(data), CompressionThreshold)

	b, err := c.Encode(e)
	require.NoError(t, err)
	assert.Less(t, len(b), len(data))

	got, err := c.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, record, got.Record)
}

func TestCodec_DetectsCorruption(t *testing.T) {
	c := newTestCodec(t)
	b, err := c.Encode(Entry{ModTime: modTime, Record: successRecord("/v/a.mp4")})
	require.NoError(t, err)

	t.Run("flipped payload byte", func(t *testing.T) {
		bad := append([]byte{}, b...)
		bad[len(bad)-10] ^= 0x01
		_, err := c.Decode(bad)
		require.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := c.Decode(b[:len(b)-5])
		require.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := c.Decode(nil)
		require.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("invalid record", func(t *testing.T) {
		data := []byte(`{}`)
		var raw []byte
		raw = protowire.AppendTag(raw, fieldSize, protowire.VarintType)
		raw = protowire.AppendVarint(raw, uint64(len(data)))
		raw = protowire.AppendTag(raw, fieldChecksum, protowire.Fixed64Type)
		raw = protowire.AppendFixed64(raw, xxhash.Sum64(data))
		raw = protowire.AppendTag(raw, fieldPayload, protowire.BytesType)
		raw = protowire.AppendBytes(raw, data)

		_, err := c.Decode(raw)
		require.ErrorIs(t, err, ErrCorrupted)
	})
}

func TestCodec_SkipsUnknownFields(t *testing.T) {
	c := newTestCodec(t)
	b, err := c.Encode(Entry{ModTime: modTime, Record: successRecord("/v/a.mp4")})
	require.NoError(t, err)

	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("from the future"))

	got, err := c.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, successRecord("/v/a.mp4"), got.Record)
}

func TestTimestampRoundTrip(t *testing.T) {
	for _, ts := range []time.Time{
		modTime,
		time.Date(1969, 7, 20, 20, 17, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 123456789, time.FixedZone("AEST", 10*3600)),
	} {
		assert.True(t, decodeTimestamp(encodeTimestamp(ts)).Equal(ts), ts.String())
	}
	assert.Less(t, encodeTimestamp(modTime), encodeTimestamp(modTime.Add(time.Nanosecond)))
}
