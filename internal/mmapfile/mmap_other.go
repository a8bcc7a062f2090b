//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package mmapfile

import (
	"io"

	"golang.org/x/exp/mmap"
)

// File is a read-only memory mapped file accessed through io.ReaderAt.
type File struct {
	r    *mmap.ReaderAt
	size int64
}

// Open maps the file at path.
func Open(path string) (*File, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	return &File{r: r, size: int64(r.Len())}, nil
}

// Size returns the mapped length, or 0 after Close.
func (f *File) Size() int64 { return f.size }

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.r == nil {
		return 0, ErrClosed
	}
	if off >= f.size && len(p) > 0 {
		return 0, io.EOF
	}
	return f.r.ReadAt(p, off)
}

// Close unmaps the file.
func (f *File) Close() error {
	if f.r == nil {
		return nil
	}
	r := f.r
	f.r, f.size = nil, 0
	return r.Close()
}
