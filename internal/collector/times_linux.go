//go:build linux

package collector

import (
	"os"
	"syscall"
	"time"
)

// createdAt falls back to the inode change time; linux stat does not expose a birth time.
func createdAt(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Unix()).UTC()
	}
	return info.ModTime().UTC()
}
