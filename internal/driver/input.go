package driver

import (
	"fmt"
	"io"
	"os"
)

// readAll reads f fully, sized off Stat when available to avoid the
// repeated-doubling growth os.ReadFile itself already does — kept as a
// distinct helper so both platform-specific openInput variants share it.
func readAll(f *os.File) ([]byte, error) {
	var size int64
	if stat, err := f.Stat(); err == nil {
		size = stat.Size()
	}
	buf := make([]byte, 0, size)
	for {
		if len(buf) == cap(buf) {
			buf = append(buf, 0)[:len(buf)]
		}
		n, err := f.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if err != nil {
			if err == io.EOF {
				return buf, nil
			}
			return nil, fmt.Errorf("read: %w", err)
		}
	}
}
