package boxtree

import "fmt"

// tableIter walks the entries of a Table through a private cursor.
type tableIter struct {
	c     *cursor
	t     Table
	index uint32
	err   error
}

// Count returns the total number of entries.
func (it *tableIter) Count() uint32 { return it.t.Count }

// Err returns the first read error, if any.
func (it *tableIter) Err() error { return it.err }

// entry returns the offset of the next entry, or false when done.
func (it *tableIter) entry() (uint64, bool) {
	if it.err != nil || it.index >= it.t.Count {
		return 0, false
	}
	off := it.t.Offset + uint64(it.index)*it.t.Stride
	it.index++
	return off, true
}

func (it *tableIter) u32(off uint64) uint32 {
	v, err := it.c.u32(off)
	if err != nil && it.err == nil {
		it.err = err
	}
	return v
}

func (it *tableIter) u64(off uint64) uint64 {
	v, err := it.c.u64(off)
	if err != nil && it.err == nil {
		it.err = err
	}
	return v
}

// table returns the validated table of n, decoding it when the parse
// skipped tables.
func (t *Tree) table(n *Node, types ...BoxType) (tableIter, error) {
	match := false
	for _, typ := range types {
		if n.Type == typ {
			match = true
			break
		}
	}
	if !match {
		return tableIter{}, fmt.Errorf("%w: %s", ErrWrongTable, n.Type)
	}
	c, err := t.cursor()
	if err != nil {
		return tableIter{}, err
	}
	tbl := n.Table
	if tbl == nil {
		l := t.registry.Lookup(n.Type).Table
		if l == nil {
			return tableIter{}, fmt.Errorf("%w: %s", ErrNotTable, n.Type)
		}
		h := Header{Type: n.Type, Offset: n.Offset, HeaderSize: n.HeaderSize, Size: n.Size}
		if tbl, err = decodeTable(c, h, l); err != nil {
			return tableIter{}, err
		}
	}
	return tableIter{c: c, t: *tbl}, nil
}

// ChunkOffsetIter iterates over chunk offsets of an stco or co64 box.
type ChunkOffsetIter struct {
	tableIter
	wide bool
}

// ChunkOffsets returns an iterator over the chunk offsets of n, which must
// be an stco or co64 box. 32-bit offsets are widened.
func (t *Tree) ChunkOffsets(n *Node) (ChunkOffsetIter, error) {
	it, err := t.table(n, TypeStco, TypeCo64)
	return ChunkOffsetIter{tableIter: it, wide: n.Type == TypeCo64}, err
}

// Next returns the next chunk offset. Returns (0, false) when done.
func (it *ChunkOffsetIter) Next() (uint64, bool) {
	off, ok := it.entry()
	if !ok {
		return 0, false
	}
	if it.wide {
		return it.u64(off), it.err == nil
	}
	return uint64(it.u32(off)), it.err == nil
}

// SampleSizeIter iterates over sample sizes in an stsz box.
type SampleSizeIter struct {
	tableIter
	uniform uint32 // samples returned in uniform mode
}

// SampleSizes returns an iterator over the sample sizes of the stsz box n.
func (t *Tree) SampleSizes(n *Node) (SampleSizeIter, error) {
	it, err := t.table(n, TypeStsz)
	return SampleSizeIter{tableIter: it}, err
}

// Next returns the next sample size. Returns (0, false) when done.
func (it *SampleSizeIter) Next() (uint32, bool) {
	if it.t.UniformSize != 0 {
		if it.uniform >= it.t.Count {
			return 0, false
		}
		it.uniform++
		return it.t.UniformSize, true
	}
	off, ok := it.entry()
	if !ok {
		return 0, false
	}
	return it.u32(off), it.err == nil
}

// Uint32Iter iterates over plain uint32 entries (stss).
type Uint32Iter struct {
	tableIter
}

// SyncSamples returns an iterator over the sync sample numbers of the stss
// box n.
func (t *Tree) SyncSamples(n *Node) (Uint32Iter, error) {
	it, err := t.table(n, TypeStss)
	return Uint32Iter{it}, err
}

// Next returns the next entry. Returns (0, false) when done.
func (it *Uint32Iter) Next() (uint32, bool) {
	off, ok := it.entry()
	if !ok {
		return 0, false
	}
	return it.u32(off), it.err == nil
}

// SttsEntry is a time-to-sample entry.
type SttsEntry struct {
	Count    uint32
	Duration uint32
}

// SttsIter iterates over stts entries.
type SttsIter struct {
	tableIter
}

// TimeToSample returns an iterator over the entries of the stts box n.
func (t *Tree) TimeToSample(n *Node) (SttsIter, error) {
	it, err := t.table(n, TypeStts)
	return SttsIter{it}, err
}

// Next returns the next entry. Returns false when done.
func (it *SttsIter) Next() (SttsEntry, bool) {
	off, ok := it.entry()
	if !ok {
		return SttsEntry{}, false
	}
	e := SttsEntry{
		Count:    it.u32(off),
		Duration: it.u32(off + 4),
	}
	return e, it.err == nil
}

// CttsEntry is a composition offset entry.
type CttsEntry struct {
	Count  uint32
	Offset int32 // version 0 values are reinterpreted as signed
}

// CttsIter iterates over ctts entries.
type CttsIter struct {
	tableIter
}

// CompositionOffsets returns an iterator over the entries of the ctts box n.
func (t *Tree) CompositionOffsets(n *Node) (CttsIter, error) {
	it, err := t.table(n, TypeCtts)
	return CttsIter{it}, err
}

// Next returns the next entry. Returns false when done.
func (it *CttsIter) Next() (CttsEntry, bool) {
	off, ok := it.entry()
	if !ok {
		return CttsEntry{}, false
	}
	e := CttsEntry{
		Count:  it.u32(off),
		Offset: int32(it.u32(off + 4)),
	}
	return e, it.err == nil
}

// StscEntry is a sample-to-chunk entry.
type StscEntry struct {
	FirstChunk          uint32
	SamplesPerChunk     uint32
	SampleDescriptionId uint32
}

// StscIter iterates over stsc entries.
type StscIter struct {
	tableIter
}

// SampleToChunk returns an iterator over the entries of the stsc box n.
func (t *Tree) SampleToChunk(n *Node) (StscIter, error) {
	it, err := t.table(n, TypeStsc)
	return StscIter{it}, err
}

// Next returns the next entry. Returns false when done.
func (it *StscIter) Next() (StscEntry, bool) {
	off, ok := it.entry()
	if !ok {
		return StscEntry{}, false
	}
	e := StscEntry{
		FirstChunk:          it.u32(off),
		SamplesPerChunk:     it.u32(off + 4),
		SampleDescriptionId: it.u32(off + 8),
	}
	return e, it.err == nil
}

// ElstEntry is an edit list entry.
type ElstEntry struct {
	SegmentDuration uint64
	MediaTime       int64
	MediaRateInt    int16
	MediaRateFrac   int16
}

// ElstIter iterates over elst entries.
type ElstIter struct {
	tableIter
}

// EditList returns an iterator over the entries of the elst box n.
func (t *Tree) EditList(n *Node) (ElstIter, error) {
	it, err := t.table(n, TypeElst)
	return ElstIter{it}, err
}

// Next returns the next entry. Returns false when done.
func (it *ElstIter) Next() (ElstEntry, bool) {
	off, ok := it.entry()
	if !ok {
		return ElstEntry{}, false
	}
	var e ElstEntry
	if it.t.Version == 1 {
		e.SegmentDuration = it.u64(off)
		e.MediaTime = int64(it.u64(off + 8))
		off += 16
	} else {
		e.SegmentDuration = uint64(it.u32(off))
		e.MediaTime = int64(int32(it.u32(off + 4)))
		off += 8
	}
	rate := it.u32(off)
	e.MediaRateInt = int16(rate >> 16)
	e.MediaRateFrac = int16(rate)
	return e, it.err == nil
}
