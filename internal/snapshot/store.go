package snapshot

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// FileTimeLayout is the UTC timestamp embedded in persisted snapshot file names.
const FileTimeLayout = "20060102_150405"

// FileName returns the name a snapshot persisted at t is written under.
func FileName(t time.Time) string {
	return fmt.Sprintf("snapshot_%s.json", t.UTC().Format(FileTimeLayout))
}

// Marshal encodes the snapshot as an indented JSON object keyed by path.
func Marshal(s *Snapshot) ([]byte, error) {
	entries := map[string]Entry{}
	if s != nil {
		entries = s.entries
	}
	return json.MarshalIndent(entries, "", "  ")
}

// Unmarshal decodes a snapshot written by Marshal.
func Unmarshal(data []byte) (*Snapshot, error) {
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = make(map[string]Entry)
	}
	for path, e := range entries {
		if e.Path == "" {
			e.Path = path
		}
		if e.Path != path {
			return nil, fmt.Errorf("entry key %q does not match path %q", path, e.Path)
		}
		e.ModifiedAt = e.ModifiedAt.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		entries[path] = e
	}
	return &Snapshot{entries: entries}, nil
}

// SaveFile writes the snapshot into dir under a name derived from now and
// returns the written path and its size. The file appears complete or not at all.
func SaveFile(fs afero.Fs, dir string, s *Snapshot, now time.Time) (string, int64, error) {
	data, err := Marshal(s)
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	dst := filepath.Join(dir, FileName(now))

	tmpFile, err := afero.TempFile(fs, dir, ".nfswatch-tmp-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = fs.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return "", 0, fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := fs.Rename(tmpPath, dst); err != nil {
		return "", 0, fmt.Errorf("failed to move snapshot into place: %w", err)
	}

	return dst, int64(len(data)), nil
}

// LoadFile reads a snapshot previously written by SaveFile.
func LoadFile(fs afero.Fs, path string) (*Snapshot, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	s, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file %s: %w", path, err)
	}
	return s, nil
}
