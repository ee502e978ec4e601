package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	vidcache "github.com/wolfeidau/vid-cache"
)

const (
	// CompressionThreshold is the minimum payload size before compression is considered.
	// zstd overhead is not worth it for smaller payloads.
	CompressionThreshold = 2048

	// MaxPayloadSize caps the uncompressed size of an encoded record.
	MaxPayloadSize = 4 * 1024 * 1024
)

// Payload encodings.
const (
	encodingIdentity uint64 = 0
	encodingZstd     uint64 = 1
)

// Envelope field numbers. Each stored value is a sequence of protobuf wire
// fields so that fields can be added without breaking older entries.
const (
	fieldModTime  protowire.Number = 1 // fixed64, encodeTimestamp
	fieldEncoding protowire.Number = 2 // varint
	fieldSize     protowire.Number = 3 // varint, uncompressed payload length
	fieldChecksum protowire.Number = 4 // fixed64, xxhash64 of uncompressed payload
	fieldPayload  protowire.Number = 5 // bytes, JSON CacheRecord
)

var (
	// ErrPayloadTooLarge is returned when an encoded record exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("store: payload exceeds maximum size")

	errCodecClosed = errors.New("store: codec closed")
)

// Codec encodes entries for storage, compressing large payloads with zstd.
// Encoder and decoder are goroutine-safe and can be reused.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	mu      sync.RWMutex
}

// NewCodec creates a new codec with a reusable zstd encoder and decoder.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxPayloadSize))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Codec{
		encoder: enc,
		decoder: dec,
	}, nil
}

// Close releases encoder/decoder resources.
func (c *Codec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoder != nil {
		c.encoder.Close()
		c.encoder = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
}

// Encode serialises an entry.
func (c *Codec) Encode(e Entry) ([]byte, error) {
	data, err := json.Marshal(e.Record)
	if err != nil {
		return nil, fmt.Errorf("marshaling record: %w", err)
	}
	if len(data) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	payload, encoding, err := c.compress(data)
	if err != nil {
		return nil, err
	}

	b := make([]byte, 0, len(payload)+32)
	b = protowire.AppendTag(b, fieldModTime, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, encodeTimestamp(e.ModTime))
	b = protowire.AppendTag(b, fieldEncoding, protowire.VarintType)
	b = protowire.AppendVarint(b, encoding)
	b = protowire.AppendTag(b, fieldSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(len(data)))
	b = protowire.AppendTag(b, fieldChecksum, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, xxhash.Sum64(data))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, payload)
	return b, nil
}

func (c *Codec) compress(data []byte) ([]byte, uint64, error) {
	if len(data) < CompressionThreshold {
		return data, encodingIdentity, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.encoder == nil {
		return nil, 0, errCodecClosed
	}

	compressed := c.encoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return data, encodingIdentity, nil
	}
	return compressed, encodingZstd, nil
}

// Decode parses an entry produced by Encode. Any structural problem,
// checksum mismatch or invalid record is reported as ErrCorrupted.
func (c *Codec) Decode(b []byte) (Entry, error) {
	var (
		modTime    uint64
		encoding   uint64
		size       uint64
		checksum   uint64
		payload    []byte
		hasPayload bool
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Entry{}, corrupted(protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldModTime && typ == protowire.Fixed64Type:
			modTime, n = protowire.ConsumeFixed64(b)
		case num == fieldEncoding && typ == protowire.VarintType:
			encoding, n = protowire.ConsumeVarint(b)
		case num == fieldSize && typ == protowire.VarintType:
			size, n = protowire.ConsumeVarint(b)
		case num == fieldChecksum && typ == protowire.Fixed64Type:
			checksum, n = protowire.ConsumeFixed64(b)
		case num == fieldPayload && typ == protowire.BytesType:
			payload, n = protowire.ConsumeBytes(b)
			hasPayload = true
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return Entry{}, corrupted(protowire.ParseError(n))
		}
		b = b[n:]
	}

	if !hasPayload {
		return Entry{}, corrupted(errors.New("missing payload"))
	}
	if size > MaxPayloadSize {
		return Entry{}, corrupted(ErrPayloadTooLarge)
	}

	data, err := c.decompress(payload, encoding)
	if err != nil {
		return Entry{}, err
	}
	if uint64(len(data)) != size || xxhash.Sum64(data) != checksum {
		return Entry{}, corrupted(errors.New("checksum mismatch"))
	}

	var record vidcache.CacheRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return Entry{}, corrupted(err)
	}
	if err := record.Validate(); err != nil {
		return Entry{}, corrupted(err)
	}

	return Entry{ModTime: decodeTimestamp(modTime), Record: record}, nil
}

func (c *Codec) decompress(payload []byte, encoding uint64) ([]byte, error) {
	switch encoding {
	case encodingIdentity:
		return payload, nil
	case encodingZstd:
	default:
		return nil, corrupted(fmt.Errorf("unsupported encoding %d", encoding))
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.decoder == nil {
		return nil, errCodecClosed
	}

	data, err := c.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, corrupted(fmt.Errorf("decompressing payload: %w", err))
	}
	return data, nil
}

func corrupted(err error) error {
	return fmt.Errorf("%w: %w", ErrCorrupted, err)
}
