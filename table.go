package boxtree

import "math/bits"

// TableLayout describes an auxiliary fixed-stride table at the start of a
// leaf payload. Offsets are relative to the payload start and include the
// 4-byte version/flags word of the full box.
type TableLayout struct {
	CountOffset   uint64
	EntriesOffset uint64
	Stride        [2]uint64 // entry size by box version (0, 1)

	// UniformSizeOffset locates a field that, when non-zero, replaces the
	// entries (stsz sample_size). Zero means the layout has no such field.
	UniformSizeOffset uint64
}

// Table locates the entries of a validated auxiliary table. Entries are not
// decoded; use the iterators on Tree to read them.
type Table struct {
	Version     uint8
	Count       uint32
	Offset      uint64 // absolute offset of the first entry
	Stride      uint64
	UniformSize uint32 // stsz only; when non-zero there are no entries
}

// Len returns the number of bytes spanned by the entries.
func (t *Table) Len() uint64 {
	if t.UniformSize != 0 {
		return 0
	}
	return uint64(t.Count) * t.Stride
}

// decodeTable reads the table header of a leaf with layout l and checks that
// the declared entries fit in the payload.
func decodeTable(c *cursor, h Header, l *TableLayout) (*Table, error) {
	payload := h.PayloadSize()
	start := h.Offset + h.HeaderSize
	if payload < l.EntriesOffset {
		return nil, newError(ErrInvalidTableLength, start, h.Type, "payload of %d bytes cannot hold the %d byte table header", payload, l.EntriesOffset)
	}

	version, err := c.u8(start)
	if err != nil {
		return nil, err
	}
	count, err := c.u32(start + l.CountOffset)
	if err != nil {
		return nil, err
	}
	if version > 1 && l.Stride[0] != l.Stride[1] {
		return nil, newError(ErrInvalidTableLength, start, h.Type, "unknown version %d", version)
	}
	t := &Table{
		Version: version,
		Count:   count,
		Offset:  start + l.EntriesOffset,
		Stride:  l.Stride[min(int(version), 1)],
	}
	if l.UniformSizeOffset != 0 {
		if t.UniformSize, err = c.u32(start + l.UniformSizeOffset); err != nil {
			return nil, err
		}
		if t.UniformSize != 0 {
			return t, nil
		}
	}

	hi, need := bits.Mul64(uint64(count), t.Stride)
	if hi != 0 || need > payload-l.EntriesOffset {
		return nil, newError(ErrInvalidTableLength, start, h.Type, "%d entries of %d bytes do not fit in %d bytes", count, t.Stride, payload-l.EntriesOffset)
	}
	return t, nil
}
