//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package mmapfile

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// File is a read-only memory mapped file. Its bytes are directly
// addressable, so parsers can hand out sub-slices instead of copies.
type File struct {
	data   []byte
	size   int64
	closed bool
}

// Open maps the file at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return &File{}, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("mmapfile: %s: %d bytes cannot be mapped on this platform", path, size)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmapfile: mmap %s: %w", path, err)
	}
	return &File{data: data, size: size}, nil
}

// Bytes returns the mapped region. It is invalid after Close.
func (f *File) Bytes() []byte { return f.data }

// Size returns the mapped length, or 0 after Close.
func (f *File) Size() int64 { return f.size }

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if off < 0 || off > f.size {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the file.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	data := f.data
	f.data, f.size, f.closed = nil, 0, true
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}
