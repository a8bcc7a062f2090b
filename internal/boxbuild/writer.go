// Package boxbuild encodes ISOBMFF boxes into a growing byte buffer. It is
// used to synthesize well-formed and deliberately malformed containers.
package boxbuild

import "encoding/binary"

var be = binary.BigEndian

type frameKind uint8

const (
	frameCompact frameKind = iota // 32-bit size backpatched on EndBox
	frameLarge                    // size field 1, 64-bit largesize backpatched
)

// writerFrame tracks the start offset of a box for size backpatching.
type writerFrame struct {
	offset int
	kind   frameKind
}

// Writer encodes ISOBMFF boxes.
type Writer struct {
	buf   []byte
	stack []writerFrame
}

// NewWriter creates a Writer appending to buf.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf[:0]}
}

// Bytes returns the written data.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Depth returns the number of open boxes.
func (w *Writer) Depth() int { return len(w.stack) }

// Write appends raw bytes. Implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// PutUint8 appends a single byte.
func (w *Writer) PutUint8(v byte) { w.buf = append(w.buf, v) }

// PutUint16 appends a big-endian uint16.
func (w *Writer) PutUint16(v uint16) { w.buf = be.AppendUint16(w.buf, v) }

// PutUint32 appends a big-endian uint32.
func (w *Writer) PutUint32(v uint32) { w.buf = be.AppendUint32(w.buf, v) }

// PutUint64 appends a big-endian uint64.
func (w *Writer) PutUint64(v uint64) { w.buf = be.AppendUint64(w.buf, v) }

// PutZeros appends n zero bytes.
func (w *Writer) PutZeros(n int) {
	w.buf = append(w.buf, make([]byte, n)...)
}

// PutType appends a four-character code.
func (w *Writer) PutType(t string) {
	if len(t) != 4 {
		panic("boxbuild: box type must be 4 bytes: " + t)
	}
	w.buf = append(w.buf, t...)
}

// Header appends a raw 8-byte header with an explicit size field. Nothing
// is backpatched, so the declared size may disagree with the content.
func (w *Writer) Header(size uint32, t string) {
	w.PutUint32(size)
	w.PutType(t)
}

// LargeHeader appends a raw 16-byte header with size field 1 and the given
// largesize.
func (w *Writer) LargeHeader(largesize uint64, t string) {
	w.PutUint32(1)
	w.PutType(t)
	w.PutUint64(largesize)
}

// StartBox begins a new box. Write content, then call EndBox.
func (w *Writer) StartBox(t string) {
	w.stack = append(w.stack, writerFrame{offset: len(w.buf)})
	w.PutUint32(0) // placeholder size
	w.PutType(t)
}

// StartLargeBox begins a box encoded with a 64-bit largesize.
func (w *Writer) StartLargeBox(t string) {
	w.stack = append(w.stack, writerFrame{offset: len(w.buf), kind: frameLarge})
	w.LargeHeader(0, t)
}

// StartUUIDBox begins a uuid box with the given extended type.
func (w *Writer) StartUUIDBox(userType [16]byte) {
	w.StartBox("uuid")
	w.buf = append(w.buf, userType[:]...)
}

// StartFullBox begins a new full box with version and flags.
func (w *Writer) StartFullBox(t string, version uint8, flags uint32) {
	w.StartBox(t)
	w.PutUint32(uint32(version)<<24 | flags&0x00ffffff)
}

// EndBox finishes the current box by backpatching its size.
func (w *Writer) EndBox() {
	f := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	size := len(w.buf) - f.offset
	if f.kind == frameLarge {
		be.PutUint64(w.buf[f.offset+8:], uint64(size))
		return
	}
	be.PutUint32(w.buf[f.offset:], uint32(size))
}

// EndOpenBox finishes the current box leaving its size field 0, meaning the
// box extends to the end of its enclosing region.
func (w *Writer) EndOpenBox() {
	f := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	be.PutUint32(w.buf[f.offset:], 0)
}

// Leaf writes a complete box holding payload.
func (w *Writer) Leaf(t string, payload []byte) {
	w.StartBox(t)
	w.buf = append(w.buf, payload...)
	w.EndBox()
}

// WriteFtyp writes a complete ftyp box.
func (w *Writer) WriteFtyp(brand string, brandVersion uint32, compat ...string) {
	w.StartBox("ftyp")
	w.PutType(brand)
	w.PutUint32(brandVersion)
	for _, c := range compat {
		w.PutType(c)
	}
	w.EndBox()
}

// WriteMvhd writes a version 0 mvhd box (108 bytes).
func (w *Writer) WriteMvhd(timescale, duration, nextTrackId uint32) {
	w.StartFullBox("mvhd", 0, 0)
	w.PutUint32(0) // creation time
	w.PutUint32(0) // modification time
	w.PutUint32(timescale)
	w.PutUint32(duration)
	w.PutUint32(0x00010000) // rate 1.0
	w.PutUint16(0x0100)     // volume 1.0
	w.PutZeros(10)          // reserved
	// Identity matrix
	w.PutUint32(0x00010000)
	w.PutZeros(12)
	w.PutUint32(0x00010000)
	w.PutZeros(12)
	w.PutUint32(0x40000000)
	w.PutZeros(24) // predefined
	w.PutUint32(nextTrackId)
	w.EndBox()
}

// WriteHdlr writes a complete hdlr box.
func (w *Writer) WriteHdlr(handlerType string, name string) {
	w.StartFullBox("hdlr", 0, 0)
	w.PutUint32(0) // predefined
	w.PutType(handlerType)
	w.PutZeros(12) // reserved
	w.buf = append(w.buf, name...)
	w.PutUint8(0) // null terminator
	w.EndBox()
}

// WriteDref writes a dref box with a single self-referencing url entry.
func (w *Writer) WriteDref() {
	w.StartFullBox("dref", 0, 0)
	w.PutUint32(1) // entry count
	w.StartFullBox("url ", 0, 1)
	w.EndBox()
	w.EndBox()
}

// WriteStsz writes a complete stsz box.
func (w *Writer) WriteStsz(sampleSize uint32, count uint32, entries []uint32) {
	w.StartFullBox("stsz", 0, 0)
	w.PutUint32(sampleSize)
	w.PutUint32(count)
	if sampleSize == 0 {
		for _, e := range entries {
			w.PutUint32(e)
		}
	}
	w.EndBox()
}

// WriteUint32Table writes a full box holding a count followed by uint32
// entries (stco, stss).
func (w *Writer) WriteUint32Table(t string, entries []uint32) {
	w.StartFullBox(t, 0, 0)
	w.PutUint32(uint32(len(entries)))
	for _, e := range entries {
		w.PutUint32(e)
	}
	w.EndBox()
}

// WriteCo64 writes a complete co64 box.
func (w *Writer) WriteCo64(entries []uint64) {
	w.StartFullBox("co64", 0, 0)
	w.PutUint32(uint32(len(entries)))
	for _, e := range entries {
		w.PutUint64(e)
	}
	w.EndBox()
}

// WritePairTable writes a full box holding a count followed by pairs of
// uint32 (stts, ctts).
func (w *Writer) WritePairTable(t string, entries [][2]uint32) {
	w.StartFullBox(t, 0, 0)
	w.PutUint32(uint32(len(entries)))
	for _, e := range entries {
		w.PutUint32(e[0])
		w.PutUint32(e[1])
	}
	w.EndBox()
}

// WriteStsc writes a complete stsc box.
func (w *Writer) WriteStsc(entries [][3]uint32) {
	w.StartFullBox("stsc", 0, 0)
	w.PutUint32(uint32(len(entries)))
	for _, e := range entries {
		w.PutUint32(e[0])
		w.PutUint32(e[1])
		w.PutUint32(e[2])
	}
	w.EndBox()
}

// ElstEntry is an edit list entry.
type ElstEntry struct {
	SegmentDuration uint64
	MediaTime       int64
	MediaRateInt    int16
	MediaRateFrac   int16
}

// WriteElst writes a complete elst box in the given version.
func (w *Writer) WriteElst(version uint8, entries []ElstEntry) {
	w.StartFullBox("elst", version, 0)
	w.PutUint32(uint32(len(entries)))
	for _, e := range entries {
		if version == 1 {
			w.PutUint64(e.SegmentDuration)
			w.PutUint64(uint64(e.MediaTime))
		} else {
			w.PutUint32(uint32(e.SegmentDuration))
			w.PutUint32(uint32(int32(e.MediaTime)))
		}
		w.PutUint16(uint16(e.MediaRateInt))
		w.PutUint16(uint16(e.MediaRateFrac))
	}
	w.EndBox()
}
