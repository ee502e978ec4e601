package projection

import (
	"errors"
	"fmt"
)

// Usage errors. These are returned, never raised as panics.
var (
	// ErrNotProjected is returned when projected files are requested before
	// ProjectUsingFs or ProjectUsingList has been called.
	ErrNotProjected = errors.New("projection: files have not been projected")

	// ErrWrongProjection is returned when a projection that was made using one
	// method is asked to project using the other.
	ErrWrongProjection = errors.New("projection: already projected using a different method")
)

// SrcPathExcludedError is returned by New when a source path is equal to or
// nested under an exclusion path.
type SrcPathExcludedError struct {
	SrcPath  string
	ExclPath string
}

func (e *SrcPathExcludedError) Error() string {
	return fmt.Sprintf("projection: src path %s is excluded by %s", e.SrcPath, e.ExclPath)
}

// PathNotFoundError is returned when a source path does not exist.
type PathNotFoundError struct {
	Path string
	Err  error
}

func (e *PathNotFoundError) Error() string {
	return "projection: path not found: " + e.Path
}

func (e *PathNotFoundError) Unwrap() error { return e.Err }

// ExclPathNotFoundError is returned when an exclusion path does not exist.
type ExclPathNotFoundError struct {
	Path string
	Err  error
}

func (e *ExclPathNotFoundError) Error() string {
	return "projection: excl path not found: " + e.Path
}

func (e *ExclPathNotFoundError) Unwrap() error { return e.Err }

// EnumerationError is a non-fatal error for a single entry encountered while
// walking the filesystem, such as an unreadable directory.
type EnumerationError struct {
	Path string
	Err  error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("projection: enumerating %s: %v", e.Path, e.Err)
}

func (e *EnumerationError) Unwrap() error { return e.Err }
