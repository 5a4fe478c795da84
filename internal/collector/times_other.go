//go:build !linux && !darwin && !windows

package collector

import (
	"os"
	"time"
)

func createdAt(info os.FileInfo) time.Time {
	return info.ModTime().UTC()
}
