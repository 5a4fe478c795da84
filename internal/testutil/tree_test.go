package testutil

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestWriteTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	WriteTree(t, fs, "/root", map[string]string{
		"empty/":    "",
		"a/b/c.txt": "hello",
	})

	info, err := fs.Stat("/root/empty")
	if err != nil {
		t.Fatalf("expected empty directory: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected /root/empty to be a directory")
	}

	data, err := afero.ReadFile(fs, "/root/a/b/c.txt")
	if err != nil {
		t.Fatalf("expected file: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestTouch(t *testing.T) {
	fs := afero.NewMemMapFs()
	WriteTree(t, fs, "/root", map[string]string{"f": "x"})

	mtime := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	Touch(t, fs, "/root/f", mtime)

	info, err := fs.Stat("/root/f")
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("expected mtime %v, got %v", mtime, info.ModTime())
	}
}
