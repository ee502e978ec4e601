// Package producer derives video fingerprints from files on disk.
//
// The Fingerprinter identifies the container from the file header, then
// records a BLAKE3 digest of the whole file and an xxhash fingerprint of
// evenly spaced sample windows. Samples let two fingerprints be compared
// with VideoHash.Distance; the digest identifies exact copies.
package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"

	vidcache "github.com/wolfeidau/vid-cache"
)

const (
	// DefaultMinSize is the smallest file the Fingerprinter accepts.
	DefaultMinSize = 64 * 1024

	// DefaultSamples is the number of sample windows taken per file.
	DefaultSamples = 16

	// DefaultWindowSize is the size of each sample window in bytes.
	DefaultWindowSize = 4096
)

// Fingerprinter is the default vidcache.Producer.
type Fingerprinter struct {
	fs         afero.Fs
	minSize    int64
	samples    int
	windowSize int
	now        func() time.Time
}

// Option configures a Fingerprinter.
type Option func(*Fingerprinter)

// WithFs sets the filesystem files are read from.
func WithFs(fs afero.Fs) Option {
	return func(f *Fingerprinter) {
		f.fs = fs
	}
}

// WithMinSize sets the minimum file size. Smaller files fail with
// vidcache.KindVideoLength.
func WithMinSize(n int64) Option {
	return func(f *Fingerprinter) {
		f.minSize = n
	}
}

// WithSamples sets the number of sample windows. Values below 1 are ignored.
func WithSamples(n int) Option {
	return func(f *Fingerprinter) {
		if n > 0 {
			f.samples = n
		}
	}
}

// WithWindowSize sets the sample window size. Values below 1 are ignored.
func WithWindowSize(n int) Option {
	return func(f *Fingerprinter) {
		if n > 0 {
			f.windowSize = n
		}
	}
}

// WithNow sets the time function used to measure hashing time.
// This is primarily useful for testing.
func WithNow(fn func() time.Time) Option {
	return func(f *Fingerprinter) {
		f.now = fn
	}
}

// NewFingerprinter creates a Fingerprinter reading from the OS filesystem
// unless WithFs is given.
func NewFingerprinter(opts ...Option) *Fingerprinter {
	f := &Fingerprinter{
		fs:         afero.NewOsFs(),
		minSize:    DefaultMinSize,
		samples:    DefaultSamples,
		windowSize: DefaultWindowSize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Produce fingerprints the file at path. Failures are returned as
// *vidcache.HashError, except context cancellation which is returned as is.
func (f *Fingerprinter) Produce(ctx context.Context, path string) (vidcache.VideoHash, vidcache.VideoStats, error) {
	start := f.now()

	info, err := f.fs.Stat(path)
	if err != nil {
		return fail(vidcache.KindVideoProcessing, path, err.Error())
	}
	if !info.Mode().IsRegular() {
		return fail(vidcache.KindDetermineVideo, path, "not a regular file")
	}

	file, err := f.fs.Open(path)
	if err != nil {
		return fail(vidcache.KindVideoProcessing, path, err.Error())
	}
	defer func() { _ = file.Close() }()

	header := make([]byte, headerSize)
	n, err := io.ReadFull(file, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fail(vidcache.KindVideoProcessing, path, fmt.Sprintf("reading header: %v", err))
	}

	container := detectContainer(header[:n])
	if container == "" {
		return fail(vidcache.KindDetermineVideo, path, "unrecognised container")
	}

	size := info.Size()
	if size < f.minSize {
		return fail(vidcache.KindVideoLength, path, fmt.Sprintf("%d bytes, need at least %d", size, f.minSize))
	}

	samples, err := f.sample(ctx, file, size)
	if err != nil {
		return sampleFailure(ctx, path, err)
	}

	digest, _, err := vidcache.DigestReader(&contextReader{ctx: ctx, r: io.NewSectionReader(file, 0, size)})
	if err != nil {
		return sampleFailure(ctx, path, err)
	}

	hash := vidcache.VideoHash{
		SrcPath: path,
		Digest:  digest,
		Samples: samples,
	}
	stats := vidcache.VideoStats{
		Size:       size,
		Container:  container,
		Samples:    len(samples),
		HashedIn:   f.now().Sub(start),
		ModifiedAt: info.ModTime(),
	}
	return hash, stats, nil
}

// sample hashes f.samples windows spread evenly from the start to the end
// of the file. The first window starts at offset zero and the last one ends
// at size.
func (f *Fingerprinter) sample(ctx context.Context, r io.ReaderAt, size int64) ([]uint64, error) {
	window := int64(f.windowSize)
	if window > size {
		window = size
	}
	span := size - window

	buf := make([]byte, window)
	out := make([]uint64, 0, f.samples)
	for i := range f.samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var off int64
		if f.samples > 1 {
			off = span * int64(i) / int64(f.samples-1)
		}
		n, err := r.ReadAt(buf, off)
		if err != nil && !(errors.Is(err, io.EOF) && int64(n) == window) {
			return nil, fmt.Errorf("reading sample %d at offset %d: %w", i, off, err)
		}
		out = append(out, xxhash.Sum64(buf[:n]))
	}
	return out, nil
}

func fail(kind vidcache.Kind, path, detail string) (vidcache.VideoHash, vidcache.VideoStats, error) {
	return vidcache.VideoHash{}, vidcache.VideoStats{}, vidcache.NewHashError(kind, path, detail)
}

func sampleFailure(ctx context.Context, path string, err error) (vidcache.VideoHash, vidcache.VideoStats, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return vidcache.VideoHash{}, vidcache.VideoStats{}, ctxErr
	}
	return fail(vidcache.KindVideoProcessing, path, err.Error())
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
