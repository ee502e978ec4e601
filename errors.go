package vidcache

import (
	"errors"
	"fmt"
)

// Kind classifies why a fingerprint could not be derived from a file.
type Kind string

const (
	// KindDetermineVideo means the file could not be identified as a video.
	KindDetermineVideo Kind = "determine_video"
	// KindVideoLength means the video is too short (or empty) to fingerprint.
	KindVideoLength Kind = "video_length"
	// KindVideoProcessing means reading or sampling the video failed.
	KindVideoProcessing Kind = "video_processing"
)

// Sentinel errors matched by HashError through errors.Is.
var (
	ErrDetermineVideo  = errors.New("could not determine if file is a video")
	ErrVideoLength     = errors.New("video too short")
	ErrVideoProcessing = errors.New("video processing failed")
)

// HashError is a classified Producer failure. It is cached like a
// successful result, so a file that deterministically fails is not retried
// until its modification time changes.
type HashError struct {
	Kind    Kind   `json:"kind"`
	SrcPath string `json:"src_path"`
	Detail  string `json:"detail,omitempty"`
}

// NewHashError creates a HashError of the given kind.
func NewHashError(kind Kind, srcPath, detail string) *HashError {
	return &HashError{Kind: kind, SrcPath: srcPath, Detail: detail}
}

// Error implements the error interface.
func (e *HashError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.sentinel(), e.SrcPath)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the sentinel for the error's kind.
func (e *HashError) Unwrap() error {
	return e.sentinel()
}

func (e *HashError) sentinel() error {
	switch e.Kind {
	case KindDetermineVideo:
		return ErrDetermineVideo
	case KindVideoLength:
		return ErrVideoLength
	default:
		return ErrVideoProcessing
	}
}

// Classify converts an arbitrary Producer error into a HashError.
// Errors that are not already classified become KindVideoProcessing with the
// error text as the diagnostic.
func Classify(srcPath string, err error) *HashError {
	if err == nil {
		return nil
	}
	var he *HashError
	if errors.As(err, &he) {
		return he
	}
	return NewHashError(KindVideoProcessing, srcPath, err.Error())
}
