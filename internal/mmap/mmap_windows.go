//go:build windows

package mmap

import (
	"io"
	"os"
)

// Windows falls back to reading the file into memory. The Mapping API is
// unchanged; only the zero-copy property is lost.
func osMap(f *os.File, size int) ([]byte, func([]byte) error, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, nil, err
	}
	return data, func([]byte) error { return nil }, nil
}
