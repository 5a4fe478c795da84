package poller

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/schaermu/nfswatch/internal/snapshot"
)

// DiskPersister writes heavy-load snapshots as timestamped JSON files.
type DiskPersister struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger
}

// NewDiskPersister creates a persister writing into dir on fs
func NewDiskPersister(fs afero.Fs, dir string, logger *slog.Logger) *DiskPersister {
	return &DiskPersister{fs: fs, dir: dir, logger: logger}
}

// Persist writes snap to a new file named after now.
func (p *DiskPersister) Persist(snap *snapshot.Snapshot, now time.Time) (string, error) {
	path, size, err := snapshot.SaveFile(p.fs, p.dir, snap, now)
	if err != nil {
		return "", err
	}
	p.logger.Info("snapshot saved",
		"path", path,
		"entries", snap.Len(),
		"size", humanize.Bytes(uint64(size)))
	return path, nil
}
