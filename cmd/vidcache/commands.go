package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"

	vidcache "github.com/wolfeidau/vid-cache"
	"github.com/wolfeidau/vid-cache/cache"
	"github.com/wolfeidau/vid-cache/projection"
)

// UpdateCmd projects the source paths and refreshes the cache.
type UpdateCmd struct {
	Src        []string `arg:"" name:"src" help:"Source paths to scan."`
	Exclude    []string `name:"exclude" short:"x" help:"Paths to exclude, including everything beneath them."`
	ExcludeExt []string `name:"exclude-ext" help:"File extensions to skip, e.g. txt."`
	Workers    int      `name:"workers" default:"1" help:"Number of files to fingerprint at once."`
	FromList   string   `name:"from-list" help:"Read candidate files from this file, one per line, instead of walking the source paths."`
}

func (u *UpdateCmd) Run(rc *runContext) error {
	src, err := absPaths(u.Src)
	if err != nil {
		return err
	}
	excl, err := absPaths(u.Exclude)
	if err != nil {
		return err
	}

	proj, err := projection.New(src, excl, u.ExcludeExt, projection.WithLogger(rc.logger))
	if err != nil {
		return err
	}

	if u.FromList != "" {
		candidates, err := readList(u.FromList)
		if err != nil {
			return err
		}
		if err := proj.ProjectUsingList(candidates); err != nil {
			return err
		}
	} else {
		errs, err := proj.ProjectUsingFs(rc.ctx)
		if err != nil {
			return err
		}
		for _, e := range errs {
			rc.logger.Warn("skipped while scanning", "error", e)
		}
	}

	c, err := rc.openCache(cache.WithParallelism(u.Workers))
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	errs, err := c.UpdateUsingFs(rc.ctx, proj)
	if err != nil {
		return err
	}

	var failed, storeErrs int
	for _, e := range errs {
		var pe *cache.PathError
		if errors.As(e, &pe) {
			storeErrs++
			rc.logger.Error("failed to update cache entry", "path", pe.Path, "error", pe.Err)
			continue
		}
		failed++
	}

	if err := c.Save(); err != nil {
		return err
	}

	fmt.Fprintf(rc.out, "%d files projected, %d cached, %d not fingerprinted, %d errors\n",
		proj.Len(), len(c.AllCachedPaths()), failed, storeErrs)
	return nil
}

// FetchCmd prints the cached fingerprint for one file.
type FetchCmd struct {
	Path   string `arg:"" name:"path" help:"File to look up."`
	Update bool   `name:"update" short:"u" help:"Refresh the entry from disk first."`
}

func (f *FetchCmd) Run(rc *runContext) error {
	path, err := filepath.Abs(f.Path)
	if err != nil {
		return err
	}

	c, err := rc.openCache()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if f.Update {
		record, err := c.FetchUpdate(rc.ctx, path)
		if err != nil {
			return err
		}
		if err := c.Save(); err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("%s: %w", path, os.ErrNotExist)
		}
	}

	hash, err := c.Fetch(path)
	if err != nil {
		return err
	}
	stats, err := c.FetchStats(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(rc.out, "path:      %s\n", hash.SrcPath)
	fmt.Fprintf(rc.out, "digest:    %s\n", hash.Digest)
	fmt.Fprintf(rc.out, "container: %s\n", stats.Container)
	fmt.Fprintf(rc.out, "size:      %d\n", stats.Size)
	fmt.Fprintf(rc.out, "samples:   %d\n", len(hash.Samples))
	fmt.Fprintf(rc.out, "hashed in: %s\n", stats.HashedIn)
	return nil
}

// ListCmd prints every successfully cached file.
type ListCmd struct{}

func (l *ListCmd) Run(rc *runContext) error {
	c, err := rc.openCache()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	table := tablewriter.NewWriter(rc.out)
	table.SetHeader([]string{"Path", "Container", "Size", "Digest"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT})

	paths := c.AllCachedPaths()
	for _, p := range paths {
		hash, err := c.Fetch(p)
		if err != nil {
			return err
		}
		stats, err := c.FetchStats(p)
		if err != nil {
			return err
		}
		table.Append([]string{p, stats.Container, strconv.FormatInt(stats.Size, 10), hash.Digest.ShortString()})
	}
	table.SetFooter([]string{fmt.Sprintf("Total Files %d", len(paths)), "", "", ""})

	table.Render()
	return nil
}

// PruneCmd evicts entries for vanished files.
type PruneCmd struct{}

func (p *PruneCmd) Run(rc *runContext) error {
	c, err := rc.openCache()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	evicted, err := c.Prune(rc.ctx)
	if err != nil {
		return err
	}
	if err := c.Save(); err != nil {
		return err
	}

	fmt.Fprintf(rc.out, "evicted %d entries\n", evicted)
	return nil
}

// StatsCmd prints entry counts.
type StatsCmd struct{}

func (s *StatsCmd) Run(rc *runContext) error {
	c, err := rc.openCache()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	stats := c.Stats()

	table := tablewriter.NewWriter(rc.out)
	table.SetHeader([]string{"Metric", "Count"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})

	table.Append([]string{"entries", strconv.Itoa(stats.Entries)})
	table.Append([]string{"success", strconv.Itoa(stats.Success)})
	table.Append([]string{"failure", strconv.Itoa(stats.Failure)})

	kinds := make([]string, 0, len(stats.Failures))
	for k := range stats.Failures {
		kinds = append(kinds, string(k))
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		table.Append([]string{"  " + k, strconv.Itoa(stats.Failures[vidcache.Kind(k)])})
	}
	table.Append([]string{"pending", strconv.Itoa(stats.Pending)})

	table.Render()
	return nil
}

func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}

// readList reads one path per line, skipping blank lines.
func readList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var paths []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		abs, err := filepath.Abs(line)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", line, err)
		}
		paths = append(paths, abs)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading list: %w", err)
	}
	return paths, nil
}
