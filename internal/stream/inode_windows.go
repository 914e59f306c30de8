//go:build windows

package stream

import "os"

// inode is unavailable on Windows; rotation detection falls back to path
// change and truncation.
func inode(info os.FileInfo) uint64 {
	return 0
}
