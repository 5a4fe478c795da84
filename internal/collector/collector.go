package collector

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/schaermu/nfswatch/internal/snapshot"
)

// ErrRootUnreachable is returned when the watched root cannot be listed,
// typically because the network mount is down.
var ErrRootUnreachable = errors.New("watch root unreachable")

// Stats summarizes one collection
type Stats struct {
	Directories int
	Files       int
	Skipped     int
	Duration    time.Duration
}

// Result is the output of one traversal
type Result struct {
	Snapshot *snapshot.Snapshot
	Index    snapshot.FolderIndex
	Stats    Stats
}

// Collector walks a directory tree and records its metadata
type Collector struct {
	fs      afero.Fs
	workers int
	logger  *slog.Logger
}

// DefaultWorkers is the worker pool size used when none is configured.
func DefaultWorkers() int {
	return 4 * runtime.GOMAXPROCS(0)
}

// New creates a Collector reading through fs with at most workers concurrent
// file metadata reads.
func New(fs afero.Fs, workers int, logger *slog.Logger) *Collector {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	return &Collector{fs: fs, workers: workers, logger: logger}
}

// Collect traverses root and returns a snapshot of every directory and file
// beneath it together with the folder index. Entries whose metadata cannot be
// read are left out. If root itself cannot be listed the error wraps
// ErrRootUnreachable and no partial snapshot is returned.
//
// ctx is checked once before the traversal starts; an in-flight traversal
// always runs to completion.
func (c *Collector) Collect(ctx context.Context, root string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	root = filepath.Clean(root)

	info, err := c.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootUnreachable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootUnreachable, root)
	}

	dirs, files, skipped, err := c.enumerate(root)
	if err != nil {
		return nil, err
	}

	b := snapshot.NewBuilder(root, len(dirs)+len(files))

	// Directory metadata is read sequentially.
	for _, dir := range dirs {
		entry, ok := c.entryFor(dir)
		if !ok {
			skipped++
			continue
		}
		b.Add(entry)
	}

	var failed atomic.Int64
	p := pool.New().WithMaxGoroutines(c.workers)
	for _, file := range files {
		p.Go(func() {
			entry, ok := c.entryFor(file)
			if !ok {
				failed.Add(1)
				return
			}
			b.Add(entry)
		})
	}
	p.Wait()

	snap, index := b.Build()
	stats := Stats{
		Directories: len(dirs),
		Files:       len(files),
		Skipped:     skipped + int(failed.Load()),
		Duration:    time.Since(start),
	}

	c.logger.Debug("collected snapshot",
		"root", root,
		"entries", snap.Len(),
		"directories", stats.Directories,
		"files", stats.Files,
		"skipped", stats.Skipped,
		"duration", stats.Duration)

	return &Result{Snapshot: snap, Index: index, Stats: stats}, nil
}

// enumerate lists every directory and non-directory path below root. A
// subdirectory that cannot be listed is skipped with its subtree.
func (c *Collector) enumerate(root string) (dirs, files []string, skipped int, err error) {
	queue := []string{root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, readErr := readDir(c.fs, dir)
		if readErr != nil {
			if dir == root {
				return nil, nil, 0, fmt.Errorf("%w: %v", ErrRootUnreachable, readErr)
			}
			skipped++
			continue
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				dirs = append(dirs, path)
				queue = append(queue, path)
			} else {
				files = append(files, path)
			}
		}
	}
	return dirs, files, skipped, nil
}

// entryFor reads the metadata of path. ok is false when the entry vanished
// or cannot be stated.
func (c *Collector) entryFor(path string) (snapshot.Entry, bool) {
	info, err := c.fs.Stat(path)
	if err != nil {
		return snapshot.Entry{}, false
	}
	return entryFromInfo(path, info), true
}

func entryFromInfo(path string, info os.FileInfo) snapshot.Entry {
	if info.IsDir() {
		return snapshot.NewDirectory(path, info.ModTime(), createdAt(info))
	}
	return snapshot.NewFile(path, info.Size(), info.ModTime(), createdAt(info))
}

func readDir(fs afero.Fs, dir string) ([]iofs.DirEntry, error) {
	f, err := fs.Open(dir)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	// *os.File lists entries without stating each one.
	if rd, ok := f.(iofs.ReadDirFile); ok {
		return rd.ReadDir(-1)
	}

	infos, err := f.Readdir(-1)
	if err != nil {
		return nil, err
	}
	entries := make([]iofs.DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, iofs.FileInfoToDirEntry(info))
	}
	return entries, nil
}
