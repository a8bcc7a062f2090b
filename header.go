package boxtree

// Header describes a decoded box header. Offsets and sizes are absolute
// byte counts within the source.
type Header struct {
	Type       BoxType
	UserType   [16]byte // extended type, uuid boxes only
	Offset     uint64
	HeaderSize uint64 // 8, 16, or either plus 16 for uuid
	Size       uint64 // total size including header
}

// PayloadSize returns the size of the box data (excluding the header).
func (h Header) PayloadSize() uint64 { return h.Size - h.HeaderSize }

// End returns the offset just past the box.
func (h Header) End() uint64 { return h.Offset + h.Size }

// ReadHeader decodes the header of the box starting at offset within the
// region [offset, end) of src. It validates the declared size against the
// region but does not look at the payload.
func ReadHeader(src Source, offset, end uint64) (Header, error) {
	return decodeHeader(newCursor(src), offset, end)
}

//	aligned(8) class Box (unsigned int(32) boxtype, optional unsigned int(8)[16] extended_type) {
//	    unsigned int(32) size;
//	    unsigned int(32) type = boxtype;
//	    if (size==1) {
//	       unsigned int(64) largesize;
//	    } else if (size==0) {
//	       // box extends to end of file
//	    }
//	    if (boxtype=='uuid') {
//	    unsigned int(8)[16] usertype = extended_type;
//	 }
//	}
func decodeHeader(c *cursor, off, end uint64) (Header, error) {
	h := Header{Offset: off, HeaderSize: 8}
	if off > end || end-off < 8 {
		return h, newError(ErrTruncatedHeader, off, BoxType{}, "need 8 bytes, have %d", remaining(off, end))
	}
	avail := end - off

	size32, err := c.u32(off)
	if err != nil {
		return h, err
	}
	if h.Type, err = c.fourcc(off + 4); err != nil {
		return h, err
	}

	switch size32 {
	case 1:
		if avail < 16 {
			return h, newError(ErrTruncatedHeader, off, h.Type, "need 16 bytes for largesize, have %d", avail)
		}
		if h.Size, err = c.u64(off + 8); err != nil {
			return h, err
		}
		h.HeaderSize = 16
		if h.Size == 0 {
			return h, newError(ErrZeroSizedBox, off, h.Type, "largesize is 0")
		}
		if h.Size < h.HeaderSize {
			return h, newError(ErrInvalidSize, off, h.Type, "largesize %d is smaller than the 16 byte header", h.Size)
		}
	case 0:
		// Extends to the end of the enclosing region.
		h.Size = avail
	default:
		h.Size = uint64(size32)
		if h.Size < h.HeaderSize {
			return h, newError(ErrInvalidSize, off, h.Type, "size %d is smaller than the 8 byte header", h.Size)
		}
	}

	if h.Type == TypeUuid {
		if avail < h.HeaderSize+16 {
			return h, newError(ErrTruncatedHeader, off, h.Type, "need %d bytes for extended type, have %d", h.HeaderSize+16, avail)
		}
		if err = c.read(off+h.HeaderSize, h.UserType[:]); err != nil {
			return h, err
		}
		h.HeaderSize += 16
		if h.Size < h.HeaderSize {
			return h, newError(ErrInvalidSize, off, h.Type, "size %d is smaller than the %d byte header", h.Size, h.HeaderSize)
		}
	}

	if h.Size > avail {
		return h, newError(ErrBoxOverflowsParent, off, h.Type, "size %d exceeds the %d bytes left in the parent", h.Size, avail)
	}
	return h, nil
}

func remaining(off, end uint64) uint64 {
	if off >= end {
		return 0
	}
	return end - off
}
