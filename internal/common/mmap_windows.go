//go:build windows

package common

import (
	"io"
	"os"
)

// MmapFile falls back to a full read on Windows; a real Windows mmap via
// CreateFileMapping/MapViewOfFile is tracked as future work.
func MmapFile(f *os.File) ([]byte, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, NewError(KindFileIO, "common.MmapFile", f.Name(), err)
	}
	return data, nil
}

// MunmapFile is a no-op for the ReadAll-backed Windows fallback.
func MunmapFile(data []byte) error {
	return nil
}
