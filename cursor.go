package boxtree

import (
	"fmt"
	"io"
)

// cursor provides bounds-checked, offset-addressed reads over a Source. It
// keeps no position; every read names its absolute offset.
//
// A cursor is not safe for concurrent use because reads from non-memory
// sources go through a shared scratch buffer. Parallel walkers each own one.
type cursor struct {
	src  Source
	buf  []byte // non-nil when src is byte addressable
	size uint64
	tmp  [16]byte
}

func newCursor(src Source) *cursor {
	c := &cursor{src: src}
	if bs, ok := src.(byteSource); ok {
		c.buf = bs.Bytes()
		c.size = uint64(len(c.buf))
	} else if n := src.Size(); n > 0 {
		c.size = uint64(n)
	}
	return c
}

// check fails with ErrOutOfBounds unless [off, off+n) lies within the source.
func (c *cursor) check(off, n uint64) error {
	if off > c.size || n > c.size-off {
		return &ParseError{
			Err:    ErrOutOfBounds,
			Offset: off,
			Detail: fmt.Sprintf("reading %d bytes, source has %d", n, c.size),
		}
	}
	return nil
}

// read fills p from off.
func (c *cursor) read(off uint64, p []byte) error {
	if err := c.check(off, uint64(len(p))); err != nil {
		return err
	}
	if c.buf != nil {
		copy(p, c.buf[off:])
		return nil
	}
	n, err := c.src.ReadAt(p, int64(off))
	if n == len(p) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return &ParseError{Err: ErrOutOfBounds, Offset: off, Detail: "short read", Cause: err}
}

// window returns n bytes at off. The result aliases the source buffer or the
// cursor scratch space and is only valid until the next read.
func (c *cursor) window(off, n uint64) ([]byte, error) {
	if c.buf != nil {
		if err := c.check(off, n); err != nil {
			return nil, err
		}
		return c.buf[off : off+n], nil
	}
	p := c.tmp[:n]
	if err := c.read(off, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *cursor) u8(off uint64) (uint8, error) {
	p, err := c.window(off, 1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (c *cursor) u16(off uint64) (uint16, error) {
	p, err := c.window(off, 2)
	if err != nil {
		return 0, err
	}
	return be.Uint16(p), nil
}

func (c *cursor) u32(off uint64) (uint32, error) {
	p, err := c.window(off, 4)
	if err != nil {
		return 0, err
	}
	return be.Uint32(p), nil
}

func (c *cursor) u64(off uint64) (uint64, error) {
	p, err := c.window(off, 8)
	if err != nil {
		return 0, err
	}
	return be.Uint64(p), nil
}

func (c *cursor) fourcc(off uint64) (BoxType, error) {
	var t BoxType
	p, err := c.window(off, 4)
	if err != nil {
		return t, err
	}
	copy(t[:], p)
	return t, nil
}

// slice validates and returns a reference to [off, off+n). No bytes are read.
func (c *cursor) slice(off, n uint64) (PayloadRef, error) {
	if err := c.check(off, n); err != nil {
		return PayloadRef{}, err
	}
	return PayloadRef{Offset: off, Length: n}, nil
}

// bytes resolves ref. Byte-addressable sources return a borrowed sub-slice,
// other sources are read into a new buffer.
func (c *cursor) bytes(ref PayloadRef) ([]byte, error) {
	if err := c.check(ref.Offset, ref.Length); err != nil {
		return nil, err
	}
	if c.buf != nil {
		return c.buf[ref.Offset : ref.Offset+ref.Length : ref.Offset+ref.Length], nil
	}
	p := make([]byte, ref.Length)
	if err := c.read(ref.Offset, p); err != nil {
		return nil, err
	}
	return p, nil
}

// zeros reports whether [off, off+n) holds only zero bytes.
func (c *cursor) zeros(off, n uint64) (bool, error) {
	if err := c.check(off, n); err != nil {
		return false, err
	}
	for n > 0 {
		k := min(n, uint64(len(c.tmp)))
		p, err := c.window(off, k)
		if err != nil {
			return false, err
		}
		for _, b := range p {
			if b != 0 {
				return false, nil
			}
		}
		off += k
		n -= k
	}
	return true, nil
}
