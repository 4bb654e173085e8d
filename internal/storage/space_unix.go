//go:build linux || darwin || freebsd

package storage

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

func statfsSpace(root string) (uint64, uint64) {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		slog.Debug("Statfs failed", "root", root, "error", err)
		return 0, 0
	}
	bsize := uint64(st.Bsize)
	return uint64(st.Blocks) * bsize, uint64(st.Bavail) * bsize
}
