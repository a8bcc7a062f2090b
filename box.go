// Package boxtree parses the box structure of ISO Base Media File Format
// (MP4, QuickTime) containers into an in-memory tree.
//
// The tree records the type, offset and sizes of every box and references
// leaf payloads by offset and length. It never copies payload bytes, so its
// footprint grows with the number of boxes rather than with the input size.
// The source passed to the parser must stay valid for as long as payloads are
// read through the tree.
package boxtree

import (
	"encoding/binary"
	"fmt"
	"unicode"

	"golang.org/x/text/encoding/charmap"
)

var be = binary.BigEndian

// BoxType is a 4-byte box type identifier.
type BoxType [4]byte

// String returns a printable form of the type. Plain ASCII codes print as
// is, QuickTime codes using Mac Roman bytes (e.g. 0xA9 'n' 'a' 'm') print as
// "©nam", anything else prints as a hex literal.
func (t BoxType) String() string {
	ascii := true
	for _, c := range t {
		if c < 0x20 || c == 0x7f {
			return fmt.Sprintf("0x%08x", be.Uint32(t[:]))
		}
		if c >= 0x80 {
			ascii = false
		}
	}
	if ascii {
		return string(t[:])
	}
	s, err := charmap.Macintosh.NewDecoder().String(string(t[:]))
	if err != nil {
		return fmt.Sprintf("0x%08x", be.Uint32(t[:]))
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return fmt.Sprintf("0x%08x", be.Uint32(t[:]))
		}
	}
	return s
}

// ParseBoxType converts a display form back into a BoxType. Non-ASCII
// characters are encoded as Mac Roman, so ParseBoxType("©nam") yields
// {0xA9, 'n', 'a', 'm'}. Hex literals produced by String are accepted too.
func ParseBoxType(s string) (BoxType, error) {
	var t BoxType
	if len(s) == 10 && s[0] == '0' && s[1] == 'x' {
		var v uint32
		if _, err := fmt.Sscanf(s, "0x%08x", &v); err == nil {
			be.PutUint32(t[:], v)
			return t, nil
		}
	}
	b, err := charmap.Macintosh.NewEncoder().String(s)
	if err != nil {
		return t, fmt.Errorf("box type %q: %w", s, err)
	}
	if len(b) != 4 {
		return t, fmt.Errorf("box type %q: want 4 bytes, have %d", s, len(b))
	}
	copy(t[:], b)
	return t, nil
}

// Known box types.
var (
	TypeFtyp = BoxType{'f', 't', 'y', 'p'}
	TypeStyp = BoxType{'s', 't', 'y', 'p'} // Segment type box (used in fragmented MP4)
	TypeMoov = BoxType{'m', 'o', 'o', 'v'}
	TypeMvhd = BoxType{'m', 'v', 'h', 'd'}
	TypeTrak = BoxType{'t', 'r', 'a', 'k'}
	TypeTkhd = BoxType{'t', 'k', 'h', 'd'}
	TypeTref = BoxType{'t', 'r', 'e', 'f'}
	TypeTrgr = BoxType{'t', 'r', 'g', 'r'}
	TypeEdts = BoxType{'e', 'd', 't', 's'}
	TypeElst = BoxType{'e', 'l', 's', 't'}
	TypeMdia = BoxType{'m', 'd', 'i', 'a'}
	TypeMdhd = BoxType{'m', 'd', 'h', 'd'}
	TypeHdlr = BoxType{'h', 'd', 'l', 'r'}
	TypeElng = BoxType{'e', 'l', 'n', 'g'}
	TypeMinf = BoxType{'m', 'i', 'n', 'f'}
	TypeVmhd = BoxType{'v', 'm', 'h', 'd'}
	TypeSmhd = BoxType{'s', 'm', 'h', 'd'}
	TypeHmhd = BoxType{'h', 'm', 'h', 'd'}
	TypeGmhd = BoxType{'g', 'm', 'h', 'd'} // QuickTime base media header
	TypeDinf = BoxType{'d', 'i', 'n', 'f'}
	TypeDref = BoxType{'d', 'r', 'e', 'f'}
	TypeStbl = BoxType{'s', 't', 'b', 'l'}
	TypeStsd = BoxType{'s', 't', 's', 'd'}
	TypeStts = BoxType{'s', 't', 't', 's'}
	TypeCtts = BoxType{'c', 't', 't', 's'}
	TypeStsc = BoxType{'s', 't', 's', 'c'}
	TypeStsz = BoxType{'s', 't', 's', 'z'}
	TypeStz2 = BoxType{'s', 't', 'z', '2'}
	TypeStco = BoxType{'s', 't', 'c', 'o'}
	TypeCo64 = BoxType{'c', 'o', '6', '4'}
	TypeStss = BoxType{'s', 't', 's', 's'}
	TypeStsh = BoxType{'s', 't', 's', 'h'}
	TypeSdtp = BoxType{'s', 'd', 't', 'p'}
	TypeSbgp = BoxType{'s', 'b', 'g', 'p'}
	TypeSgpd = BoxType{'s', 'g', 'p', 'd'}
	// Fragment movie boxes
	TypeMvex = BoxType{'m', 'v', 'e', 'x'}
	TypeMehd = BoxType{'m', 'e', 'h', 'd'}
	TypeTrex = BoxType{'t', 'r', 'e', 'x'}
	TypeMoof = BoxType{'m', 'o', 'o', 'f'}
	TypeMfhd = BoxType{'m', 'f', 'h', 'd'}
	TypeTraf = BoxType{'t', 'r', 'a', 'f'}
	TypeTfhd = BoxType{'t', 'f', 'h', 'd'}
	TypeTfdt = BoxType{'t', 'f', 'd', 't'}
	TypeTrun = BoxType{'t', 'r', 'u', 'n'}
	TypeMfra = BoxType{'m', 'f', 'r', 'a'}
	TypeTfra = BoxType{'t', 'f', 'r', 'a'}
	TypeMfro = BoxType{'m', 'f', 'r', 'o'}
	TypeSidx = BoxType{'s', 'i', 'd', 'x'} // Segment index box
	// Protection boxes
	TypeSinf = BoxType{'s', 'i', 'n', 'f'}
	TypeSchi = BoxType{'s', 'c', 'h', 'i'}
	TypePssh = BoxType{'p', 's', 's', 'h'}
	// Metadata boxes
	TypeMeta = BoxType{'m', 'e', 't', 'a'}
	TypeUdta = BoxType{'u', 'd', 't', 'a'}
	TypeIlst = BoxType{'i', 'l', 's', 't'}
	// Data boxes
	TypeMdat = BoxType{'m', 'd', 'a', 't'}
	TypeFree = BoxType{'f', 'r', 'e', 'e'}
	TypeSkip = BoxType{'s', 'k', 'i', 'p'}
	TypeWide = BoxType{'w', 'i', 'd', 'e'}
	TypeUuid = BoxType{'u', 'u', 'i', 'd'}
	// Sample entry boxes
	TypeAvc1 = BoxType{'a', 'v', 'c', '1'}
	TypeMp4a = BoxType{'m', 'p', '4', 'a'}
	TypeUrl  = BoxType{'u', 'r', 'l', ' '}
)
