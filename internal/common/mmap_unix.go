//go:build !windows

package common

import (
	"os"

	"golang.org/x/sys/unix"
)

// MmapFile memory-maps f read-only for the lifetime of the returned slice:
// zero-copy random access, so readers dereference the mapping directly
// instead of issuing a syscall per record.
func MmapFile(f *os.File) ([]byte, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, NewError(KindFileIO, "common.MmapFile", f.Name(), err)
	}
	size := stat.Size()
	if size == 0 {
		return []byte{}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, NewError(KindFileIO, "common.MmapFile", f.Name(), err)
	}
	return data, nil
}

// MunmapFile releases a mapping obtained from MmapFile. Safe to call with an
// empty slice (the zero-size fast path above never maps anything).
func MunmapFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
