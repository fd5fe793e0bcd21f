//go:build unix

package loader

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps f read-only. The returned func unmaps the region; the parsed
// table copies every vector, so unmapping right after parsing is safe.
func mapFile(f *os.File, size int64) ([]byte, func(), error) {
	if size == 0 {
		return nil, func() {}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return data, func() { _ = unix.Munmap(data) }, nil
}
