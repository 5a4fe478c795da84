package testutil

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// WriteTree creates the given layout below root on fs. Keys ending in "/" are
// directories; every other key is a file holding the mapped content.
func WriteTree(t *testing.T, fs afero.Fs, root string, layout map[string]string) {
	t.Helper()

	if err := fs.MkdirAll(root, 0755); err != nil {
		t.Fatalf("failed to create root %s: %v", root, err)
	}

	for rel, content := range layout {
		path := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(rel, "/")))
		if strings.HasSuffix(rel, "/") {
			if err := fs.MkdirAll(path, 0755); err != nil {
				t.Fatalf("failed to create directory %s: %v", path, err)
			}
			continue
		}
		if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create parent of %s: %v", path, err)
		}
		if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", path, err)
		}
	}
}

// Touch sets the modification time of path.
func Touch(t *testing.T, fs afero.Fs, path string, mtime time.Time) {
	t.Helper()
	if err := fs.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("failed to set times on %s: %v", path, err)
	}
}
