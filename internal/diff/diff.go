package diff

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schaermu/nfswatch/internal/snapshot"
)

// EventType classifies a change between two snapshots
type EventType int

const (
	CreatedFile EventType = iota
	CreatedFolder
	DeletedFolder
	DeletedFile
	ModifiedFile
)

// String returns the label used in event output
func (t EventType) String() string {
	switch t {
	case CreatedFile:
		return "Created file"
	case CreatedFolder:
		return "Created folder"
	case DeletedFolder:
		return "Deleted folder"
	case DeletedFile:
		return "Deleted file"
	case ModifiedFile:
		return "Modified file"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is a single reported change
type Event struct {
	Type EventType
	Path string
}

// String renders the event as "<EventKind>: <path>".
func (e Event) String() string {
	return e.Type.String() + ": " + e.Path
}

// Summary counts events per type
type Summary struct {
	Created  int
	Deleted  int
	Modified int
}

// Total returns the number of events
func (s Summary) Total() int {
	return s.Created + s.Deleted + s.Modified
}

// Summarize counts the events by category.
func Summarize(events []Event) Summary {
	var s Summary
	for _, e := range events {
		switch e.Type {
		case CreatedFile, CreatedFolder:
			s.Created++
		case DeletedFile, DeletedFolder:
			s.Deleted++
		case ModifiedFile:
			s.Modified++
		}
	}
	return s
}

// Compute reconciles two snapshots into change events. Events are ordered
// created, deleted folders, deleted files, modified; each group is sorted by
// path. Files inside a deleted folder are not reported separately, and
// nested deleted folders collapse into their top-most deleted ancestor. A path
// whose kind changed is reported deleted as the old kind and created as the
// new one, never as modified.
func Compute(oldSnap, newSnap *snapshot.Snapshot, oldIndex snapshot.FolderIndex) []Event {
	var (
		created      []Event
		deletedDirs  []string
		deletedFiles []string
		modified     []Event
	)

	newSnap.Range(func(e snapshot.Entry) bool {
		prev, existed := oldSnap.Get(e.Path)
		if !existed || prev.Kind != e.Kind {
			t := CreatedFile
			if e.Kind == snapshot.KindDirectory {
				t = CreatedFolder
			}
			created = append(created, Event{Type: t, Path: e.Path})
			return true
		}
		if prev.Kind == snapshot.KindFile && e.Kind == snapshot.KindFile && fileChanged(prev, e) {
			modified = append(modified, Event{Type: ModifiedFile, Path: e.Path})
		}
		return true
	})

	oldSnap.Range(func(e snapshot.Entry) bool {
		// A path that changed kind is deleted as its old kind.
		if next, exists := newSnap.Get(e.Path); exists && next.Kind == e.Kind {
			return true
		}
		if e.Kind == snapshot.KindDirectory {
			deletedDirs = append(deletedDirs, e.Path)
		} else {
			deletedFiles = append(deletedFiles, e.Path)
		}
		return true
	})

	topLevel := collapseFolders(deletedDirs)

	implicit := make(map[string]struct{})
	for _, dir := range topLevel {
		for _, f := range oldIndex.Files(dir) {
			implicit[f] = struct{}{}
		}
	}

	events := make([]Event, 0, len(created)+len(topLevel)+len(deletedFiles)+len(modified))

	sortEvents(created)
	events = append(events, created...)

	sort.Strings(topLevel)
	for _, dir := range topLevel {
		events = append(events, Event{Type: DeletedFolder, Path: dir})
	}

	sort.Strings(deletedFiles)
	for _, f := range deletedFiles {
		if _, ok := implicit[f]; ok {
			continue
		}
		events = append(events, Event{Type: DeletedFile, Path: f})
	}

	sortEvents(modified)
	events = append(events, modified...)

	return events
}

// collapseFolders keeps only deleted folders that have no deleted ancestor.
// Sorting by length guarantees ancestors are visited before descendants.
func collapseFolders(dirs []string) []string {
	sorted := make([]string, len(dirs))
	copy(sorted, dirs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) < len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})

	var top []string
	for _, dir := range sorted {
		covered := false
		for _, parent := range top {
			if isDescendant(parent, dir) {
				covered = true
				break
			}
		}
		if !covered {
			top = append(top, dir)
		}
	}
	return top
}

func isDescendant(parent, path string) bool {
	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// fileChanged reports whether size or modification time differ. Creation
// time is ignored.
func fileChanged(oldEntry, newEntry snapshot.Entry) bool {
	return oldEntry.SizeOrZero() != newEntry.SizeOrZero() || !oldEntry.ModifiedAt.Equal(newEntry.ModifiedAt)
}

func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Path < events[j].Path
	})
}

// Write prints one line per event to w.
func Write(w io.Writer, events []Event) error {
	for _, e := range events {
		if _, err := fmt.Fprintln(w, e.String()); err != nil {
			return err
		}
	}
	return nil
}
