//go:build !windows

package stream

import (
	"os"
	"syscall"
)

// inode extracts the file's inode number for rotation detection.
func inode(info os.FileInfo) uint64 {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return stat.Ino
	}
	return 0
}
