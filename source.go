package boxtree

import "io"

// Source is a finite, randomly addressable, immutable byte sequence.
type Source interface {
	io.ReaderAt
	Size() int64
}

// byteSource is implemented by sources whose bytes are directly addressable
// in memory. Payload access on such sources returns sub-slices of the
// underlying buffer instead of copies.
type byteSource interface {
	Bytes() []byte
}

// Bytes adapts an in-memory buffer to a Source.
type Bytes []byte

// Size returns the buffer length.
func (b Bytes) Size() int64 { return int64(len(b)) }

// Bytes returns the underlying buffer.
func (b Bytes) Bytes() []byte { return b }

// ReadAt implements io.ReaderAt.
func (b Bytes) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

type readerAtSource struct {
	io.ReaderAt
	size int64
}

func (s readerAtSource) Size() int64 { return s.size }

// NewSource adapts r, holding size bytes, to a Source.
func NewSource(r io.ReaderAt, size int64) Source {
	if s, ok := r.(Source); ok && s.Size() == size {
		return s
	}
	return readerAtSource{ReaderAt: r, size: size}
}
