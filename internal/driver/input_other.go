//go:build !unix

package driver

import (
	"fmt"
	"os"
)

// openInput reads path fully into memory on non-Unix platforms, which have
// no golang.org/x/sys/unix.Mmap to fall back on.
func openInput(path string, useMmap bool) ([]byte, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	data, err := readAll(f)
	if err != nil {
		return nil, nil, err
	}
	return data, func() {}, nil
}
