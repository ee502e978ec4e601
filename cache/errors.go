package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// PathError is a per-path failure reported by UpdateUsingFs when the store
// could not be read or written for that path. Producer failures are reported
// as *vidcache.HashError instead.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("cache: %s: %v", e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// notExist reports whether a stat error means the path is gone, including
// when one of its parent directories has been replaced by a file.
func notExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
