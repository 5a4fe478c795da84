package snapshot

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind distinguishes files from directories
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

// String returns the lower-case name of the kind
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name so persisted snapshots stay readable.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindFile, KindDirectory:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("unknown entry kind %d", int(k))
	}
}

// UnmarshalText decodes a kind written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "file":
		*k = KindFile
	case "directory":
		*k = KindDirectory
	default:
		return fmt.Errorf("unknown entry kind %q", string(text))
	}
	return nil
}

// Entry is the metadata of one filesystem object at collection time.
// Size is only meaningful for files; it is nil for directories.
type Entry struct {
	Path       string    `json:"path"`
	Kind       Kind      `json:"kind"`
	Size       *int64    `json:"size,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewFile returns a file entry with UTC-normalized timestamps.
func NewFile(path string, size int64, modifiedAt, createdAt time.Time) Entry {
	return Entry{
		Path:       path,
		Kind:       KindFile,
		Size:       &size,
		ModifiedAt: modifiedAt.UTC(),
		CreatedAt:  createdAt.UTC(),
	}
}

// NewDirectory returns a directory entry with UTC-normalized timestamps.
func NewDirectory(path string, modifiedAt, createdAt time.Time) Entry {
	return Entry{
		Path:       path,
		Kind:       KindDirectory,
		ModifiedAt: modifiedAt.UTC(),
		CreatedAt:  createdAt.UTC(),
	}
}

// SizeOrZero returns the file size, or 0 for directories.
func (e Entry) SizeOrZero() int64 {
	if e.Size == nil {
		return 0
	}
	return *e.Size
}

// Snapshot is an immutable point-in-time map from path to Entry.
type Snapshot struct {
	entries map[string]Entry
}

// New builds a snapshot from a list of entries. Later entries win on
// duplicate paths.
func New(entries ...Entry) *Snapshot {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return &Snapshot{entries: m}
}

// Len returns the number of entries. A nil snapshot is empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Get looks up an entry by path.
func (s *Snapshot) Get(path string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s.entries[path]
	return e, ok
}

// Paths returns every path in ascending order.
func (s *Snapshot) Paths() []string {
	if s == nil {
		return nil
	}
	paths := make([]string, 0, len(s.entries))
	for p := range s.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Range calls fn for every entry until fn returns false. Order is unspecified.
func (s *Snapshot) Range(fn func(Entry) bool) {
	if s == nil {
		return
	}
	for _, e := range s.entries {
		if !fn(e) {
			return
		}
	}
}

// FolderIndex maps a folder path to the files recorded beneath it, directly
// or nested, during the collection that produced its companion Snapshot.
type FolderIndex struct {
	files map[string][]string
}

// Files returns the files recorded under folder, sorted ascending.
func (fi FolderIndex) Files(folder string) []string {
	return fi.files[folder]
}

// Len returns the number of folders in the index.
func (fi FolderIndex) Len() int {
	return len(fi.files)
}

// IndexFolders derives a FolderIndex from a snapshot by recording every file
// under each ancestor that the snapshot holds as a directory. Paths are
// visited in order, so every file list is already sorted.
func IndexFolders(s *Snapshot) FolderIndex {
	files := make(map[string][]string)
	for _, path := range s.Paths() {
		if e, _ := s.Get(path); e.Kind != KindFile {
			continue
		}
		for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
			if parent, ok := s.Get(dir); ok && parent.Kind == KindDirectory {
				files[dir] = append(files[dir], path)
			}
			if next := filepath.Dir(dir); next == dir {
				break
			}
		}
	}
	return FolderIndex{files: files}
}

// Builder accumulates entries from concurrent workers. It is the only
// mutable form of a snapshot; Build freezes it.
type Builder struct {
	root string

	mu      sync.Mutex
	entries map[string]Entry
	folders map[string][]string
}

// NewBuilder creates a builder for a tree rooted at root. Files are indexed
// under every ancestor folder up to and including root.
func NewBuilder(root string, sizeHint int) *Builder {
	return &Builder{
		root:    filepath.Clean(root),
		entries: make(map[string]Entry, sizeHint),
		folders: make(map[string][]string),
	}
}

// Add inserts an entry. Files are also recorded in the folder index.
func (b *Builder) Add(e Entry) {
	var ancestors []string
	if e.Kind == KindFile {
		ancestors = b.ancestors(e.Path)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[e.Path] = e
	for _, dir := range ancestors {
		b.folders[dir] = append(b.folders[dir], e.Path)
	}
}

func (b *Builder) ancestors(path string) []string {
	var dirs []string
	prefix := b.root + string(filepath.Separator)
	if b.root == string(filepath.Separator) {
		prefix = b.root
	}
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		if dir == b.root {
			dirs = append(dirs, dir)
			break
		}
		if !strings.HasPrefix(dir, prefix) {
			break
		}
		dirs = append(dirs, dir)
	}
	return dirs
}

// Build returns the finished snapshot and folder index. The builder must not
// be used afterwards.
func (b *Builder) Build() (*Snapshot, FolderIndex) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, list := range b.folders {
		sort.Strings(list)
	}
	snap := &Snapshot{entries: b.entries}
	index := FolderIndex{files: b.folders}
	b.entries = nil
	b.folders = nil
	return snap, index
}
