package projection

import (
	"path/filepath"
	"strings"
)

// filter holds the include/exclude rules of a projection. It never touches
// the filesystem.
type filter struct {
	srcPaths  []string
	exclPaths []string
	exclExts  []string
}

func newFilter(srcPaths, exclPaths, exclExts []string) (filter, error) {
	f := filter{
		srcPaths:  cleanPaths(srcPaths),
		exclPaths: cleanPaths(exclPaths),
	}
	for _, ext := range exclExts {
		ext = strings.TrimPrefix(ext, ".")
		if ext == "" {
			continue
		}
		f.exclExts = append(f.exclExts, ext)
	}

	for _, exclPath := range f.exclPaths {
		for _, srcPath := range f.srcPaths {
			if isWithin(srcPath, exclPath) {
				return filter{}, &SrcPathExcludedError{SrcPath: srcPath, ExclPath: exclPath}
			}
		}
	}
	return f, nil
}

// contains reports whether path is under some src path and under no excl path.
func (f filter) contains(path string) bool {
	path = filepath.Clean(path)
	return f.includes(path) && !f.excludes(path)
}

func (f filter) includes(path string) bool {
	for _, src := range f.srcPaths {
		if isWithin(path, src) {
			return true
		}
	}
	return false
}

func (f filter) excludes(path string) bool {
	for _, excl := range f.exclPaths {
		if isWithin(path, excl) {
			return true
		}
	}
	return false
}

// hasExcludedExt reports whether the final element of path carries one of
// the excluded extensions, ignoring case.
func (f filter) hasExcludedExt(path string) bool {
	ext := extension(path)
	if ext == "" {
		return false
	}
	for _, excl := range f.exclExts {
		if strings.EqualFold(ext, excl) {
			return true
		}
	}
	return false
}

// isWithin reports whether path equals base or is a descendant of it,
// comparing whole path elements: /a/bc is not within /a/b.
func isWithin(path, base string) bool {
	if path == base {
		return true
	}
	if filepath.IsAbs(path) != filepath.IsAbs(base) {
		return false
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// extension returns the extension of the final path element without the
// leading dot. Dotfiles such as ".profile" have no extension.
func extension(path string) string {
	name := filepath.Base(path)
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return ""
	}
	return name[i+1:]
}

func cleanPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.Clean(p))
	}
	return out
}
