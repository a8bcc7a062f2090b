package boxtree

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetsuo/boxtree/internal/boxbuild"
)

// sparseSource is a Source of arbitrary size whose bytes past head read as
// zero. It stands in for files far larger than the test can allocate.
type sparseSource struct {
	head []byte
	size int64
}

func (s sparseSource) Size() int64 { return s.size }

func (s sparseSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= s.size {
		return 0, io.EOF
	}
	n := len(p)
	if rest := s.size - off; int64(n) > rest {
		n = int(rest)
	}
	for i := range p[:n] {
		pos := off + int64(i)
		if pos < int64(len(s.head)) {
			p[i] = s.head[pos]
		} else {
			p[i] = 0
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// sampleMovie builds ftyp(20) + moov(100, one mvhd of 92) + mdat(size 0,
// 500 bytes to the end).
func sampleMovie() []byte {
	w := boxbuild.NewWriter(nil)
	w.WriteFtyp("isom", 512, "isom")
	w.StartBox("moov")
	w.Leaf("mvhd", make([]byte, 84))
	w.EndBox()
	w.StartBox("mdat")
	w.PutZeros(492)
	w.EndOpenBox()
	return w.Bytes()
}

// sampleTrack builds a movie with one track carrying every table type.
func sampleTrack() []byte {
	w := boxbuild.NewWriter(nil)
	w.WriteFtyp("mp42", 0, "mp42", "isom")
	w.StartBox("moov")
	w.WriteMvhd(1000, 5000, 2)
	w.StartBox("trak")
	w.StartBox("edts")
	w.WriteElst(0, []boxbuild.ElstEntry{{SegmentDuration: 5000, MediaTime: -1, MediaRateInt: 1}})
	w.EndBox()
	w.StartBox("mdia")
	w.WriteHdlr("vide", "VideoHandler")
	w.StartBox("minf")
	w.StartBox("dinf")
	w.WriteDref()
	w.EndBox()
	w.StartBox("stbl")
	w.StartFullBox("stsd", 0, 0)
	w.PutUint32(1)
	w.Leaf("avc1", make([]byte, 78))
	w.EndBox()
	w.WritePairTable("stts", [][2]uint32{{3, 1000}, {2, 500}})
	w.WritePairTable("ctts", [][2]uint32{{1, 0}, {1, 0xfffffc18}})
	w.WriteStsc([][3]uint32{{1, 2, 1}, {3, 1, 1}})
	w.WriteStsz(0, 5, []uint32{100, 200, 300, 400, 500})
	w.WriteUint32Table("stco", []uint32{64, 364, 1064})
	w.WriteUint32Table("stss", []uint32{1, 4})
	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
	w.EndBox() // moov
	w.StartBox("mdat")
	w.PutZeros(1500)
	w.EndBox()
	return w.Bytes()
}

// requireConsistent checks size and nesting invariants of every node and
// that the roots partition [0, size).
func requireConsistent(t *testing.T, tree *Tree, size uint64) {
	t.Helper()
	var pos uint64
	for _, r := range tree.Roots {
		require.Equal(t, pos, r.Offset, "roots must be contiguous")
		pos = r.End()
	}
	require.Equal(t, size, pos, "roots must cover the source")

	var check func(n *Node)
	check = func(n *Node) {
		require.Equal(t, n.Size, n.HeaderSize+n.PayloadSize())
		require.Equal(t, n.Offset+n.HeaderSize, n.Payload.Offset)
		require.Equal(t, n.PayloadSize(), n.Payload.Length)
		for _, c := range n.Children {
			require.GreaterOrEqual(t, c.Offset, n.Offset+n.HeaderSize)
			require.LessOrEqual(t, c.End(), n.End())
			check(c)
		}
	}
	for _, r := range tree.Roots {
		check(r)
	}
}
