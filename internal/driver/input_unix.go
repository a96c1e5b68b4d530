//go:build unix

package driver

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// openInput memory-maps path for reading via golang.org/x/sys/unix.Mmap,
// falling back to a full read when useMmap is false or the file is empty.
func openInput(path string, useMmap bool) ([]byte, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}

	if !useMmap {
		data, err := readAll(f)
		f.Close()
		if err != nil {
			return nil, nil, err
		}
		return data, func() {}, nil
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat: %w", err)
	}

	size := stat.Size()
	if size == 0 {
		f.Close()
		return []byte{}, func() {}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("mmap: %w", err)
	}

	cleanup := func() {
		_ = unix.Munmap(data)
		f.Close()
	}
	return data, cleanup, nil
}
