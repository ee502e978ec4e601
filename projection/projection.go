// Package projection enumerates the files reachable from a set of source
// paths, excluding sub-paths and file extensions. The enumeration happens
// exactly once per FileProjection, either by walking the filesystem or by
// filtering a list supplied by the caller, and the result is kept so that
// expensive walks are never repeated.
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"
)

// State records whether, and how, a FileProjection has been projected.
type State int

const (
	Unprojected State = iota
	ProjectedUsingFs
	ProjectedUsingList
)

func (s State) String() string {
	switch s {
	case Unprojected:
		return "unprojected"
	case ProjectedUsingFs:
		return "projected using fs"
	case ProjectedUsingList:
		return "projected using list"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FileProjection holds a set of source paths, exclusion paths and excluded
// extensions, and the files they project to once projection has happened.
//
// A FileProjection is not safe for concurrent projection. Once projected it
// is read-only and may be shared.
type FileProjection struct {
	filter    filter
	state     State
	projected map[string]struct{}
	fs        afero.Fs
	logger    *slog.Logger
}

// Option configures a FileProjection.
type Option func(*FileProjection)

// WithFs sets the filesystem walked by ProjectUsingFs.
// This is primarily useful for testing with in-memory filesystems.
func WithFs(fs afero.Fs) Option {
	return func(p *FileProjection) {
		p.fs = fs
	}
}

// WithLogger sets the logger for the projection.
func WithLogger(logger *slog.Logger) Option {
	return func(p *FileProjection) {
		p.logger = logger
	}
}

// New creates an unprojected FileProjection. Extensions are matched without
// regard to case and may be given with or without a leading dot.
//
// New returns a *SrcPathExcludedError if any source path is equal to or
// nested under an exclusion path. It does not touch the filesystem.
func New(srcPaths, exclPaths, exclExts []string, opts ...Option) (*FileProjection, error) {
	f, err := newFilter(srcPaths, exclPaths, exclExts)
	if err != nil {
		return nil, err
	}

	p := &FileProjection{
		filter: f,
		state:  Unprojected,
		fs:     afero.NewOsFs(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Contains reports whether path is a descendant of some source path and not
// a descendant of any exclusion path. It does not depend on projection state.
func (p *FileProjection) Contains(path string) bool {
	return p.filter.contains(path)
}

// State returns the projection state.
func (p *FileProjection) State() State {
	return p.state
}

// ProjectUsingFs walks every source path and records each regular file that
// the projection contains and whose extension is not excluded. Directories
// that are excluded are not descended into.
//
// A missing source or exclusion path is fatal and leaves the projection
// unprojected. Errors for individual entries (an unreadable directory, say)
// are returned as a list of *EnumerationError and do not stop the walk.
//
// Calling ProjectUsingFs again is a no-op; calling it after ProjectUsingList
// returns ErrWrongProjection.
func (p *FileProjection) ProjectUsingFs(ctx context.Context) ([]error, error) {
	switch p.state {
	case ProjectedUsingFs:
		return nil, nil
	case ProjectedUsingList:
		return nil, fmt.Errorf("%w: cannot project using fs, %s", ErrWrongProjection, p.state)
	}

	for _, path := range p.filter.srcPaths {
		if ok, err := afero.Exists(p.fs, path); !ok {
			return nil, &PathNotFoundError{Path: path, Err: err}
		}
	}
	for _, path := range p.filter.exclPaths {
		if ok, err := afero.Exists(p.fs, path); !ok {
			return nil, &ExclPathNotFoundError{Path: path, Err: err}
		}
	}

	projected := make(map[string]struct{})
	var errs []error

	for _, root := range p.filter.srcPaths {
		err := afero.Walk(p.fs, p.walkRoot(root), func(path string, info os.FileInfo, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			path = filepath.Clean(path)
			if err != nil {
				errs = append(errs, &EnumerationError{Path: path, Err: err})
				return nil
			}

			if !p.filter.contains(path) || p.filter.hasExcludedExt(path) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if p.isRegularFile(path, info) {
				projected[path] = struct{}{}
			}
			return nil
		})
		if err != nil && !errors.Is(err, filepath.SkipDir) {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}

	p.projected = projected
	p.state = ProjectedUsingFs

	p.logger.Debug("projected files using fs",
		"src_paths", p.filter.srcPaths,
		"files", len(projected),
		"errors", len(errs))

	return errs, nil
}

// walkRoot returns the path to walk for a source path. A source path that is
// a symlink to a directory gets a trailing separator so the walk lstats the
// target and descends, while entries keep the link's path as their prefix.
func (p *FileProjection) walkRoot(root string) string {
	l, ok := p.fs.(afero.Lstater)
	if !ok {
		return root
	}
	info, _, err := l.LstatIfPossible(root)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return root
	}
	target, err := p.fs.Stat(root)
	if err != nil || !target.IsDir() {
		return root
	}
	return root + string(filepath.Separator)
}

// isRegularFile reports whether the entry is a regular file, resolving a
// symlink to its target. Symlinked directories below a source path are never
// descended into.
func (p *FileProjection) isRegularFile(path string, info os.FileInfo) bool {
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := p.fs.Stat(path)
		if err != nil {
			return false
		}
		return target.Mode().IsRegular()
	}
	return info.Mode().IsRegular()
}

// ProjectUsingList records every candidate that the projection contains.
// Extension exclusion does not apply: the list is assumed to be curated.
//
// Calling ProjectUsingList again is a no-op; calling it after ProjectUsingFs
// returns ErrWrongProjection.
func (p *FileProjection) ProjectUsingList(candidates []string) error {
	switch p.state {
	case ProjectedUsingList:
		return nil
	case ProjectedUsingFs:
		return fmt.Errorf("%w: cannot project using list, %s", ErrWrongProjection, p.state)
	}

	projected := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if p.filter.contains(c) {
			projected[filepath.Clean(c)] = struct{}{}
		}
	}

	p.projected = projected
	p.state = ProjectedUsingList

	p.logger.Debug("projected files using list",
		"candidates", len(candidates),
		"files", len(projected))

	return nil
}

// ProjectedFiles returns the projected files in lexical order.
// It returns ErrNotProjected if no projection has happened yet.
func (p *FileProjection) ProjectedFiles() ([]string, error) {
	if p.state == Unprojected {
		return nil, ErrNotProjected
	}
	files := make([]string, 0, len(p.projected))
	for f := range p.projected {
		files = append(files, f)
	}
	slices.Sort(files)
	return files, nil
}

// Len returns the number of projected files, or zero before projection.
func (p *FileProjection) Len() int {
	return len(p.projected)
}
