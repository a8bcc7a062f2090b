package boxtree

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/boxtree/internal/boxbuild"
)

func TestParseMovie(t *testing.T) {
	buf := sampleMovie()
	require.Len(t, buf, 620)

	tree, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, tree.Roots, 3)
	assert.Equal(t, 4, tree.Count())
	requireConsistent(t, tree, uint64(len(buf)))

	ftyp, moov, mdat := tree.Roots[0], tree.Roots[1], tree.Roots[2]

	assert.Equal(t, TypeFtyp, ftyp.Type)
	assert.Equal(t, uint64(0), ftyp.Offset)
	assert.Equal(t, uint64(20), ftyp.Size)
	assert.Equal(t, PayloadRef{Offset: 8, Length: 12}, ftyp.Payload)
	assert.False(t, ftyp.IsContainer())
	assert.Nil(t, ftyp.Children)

	assert.Equal(t, TypeMoov, moov.Type)
	assert.Equal(t, uint64(20), moov.Offset)
	assert.Equal(t, uint64(100), moov.Size)
	require.True(t, moov.IsContainer())
	require.Len(t, moov.Children, 1)
	mvhd := moov.Children[0]
	assert.Equal(t, TypeMvhd, mvhd.Type)
	assert.Equal(t, uint64(28), mvhd.Offset)
	assert.Equal(t, uint64(92), mvhd.Size)
	assert.Equal(t, PayloadRef{Offset: 36, Length: 84}, mvhd.Payload)

	assert.Equal(t, TypeMdat, mdat.Type)
	assert.Equal(t, uint64(120), mdat.Offset)
	assert.Equal(t, uint64(500), mdat.Size)
	assert.Equal(t, uint64(8), mdat.HeaderSize)
	assert.Equal(t, uint64(492), mdat.PayloadSize())
}

func TestParseTrack(t *testing.T) {
	buf := sampleTrack()
	tree, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, 22, tree.Count())
	requireConsistent(t, tree, uint64(len(buf)))

	stsd := tree.Find(TypeMoov, TypeTrak, TypeMdia, TypeMinf, TypeStbl, TypeStsd)
	require.NotNil(t, stsd)
	require.Len(t, stsd.Children, 1)
	assert.Equal(t, TypeAvc1, stsd.Children[0].Type)
	assert.Equal(t, stsd.Offset+16, stsd.Children[0].Offset, "entries follow version, flags and entry count")
	assert.False(t, stsd.Children[0].IsContainer())

	dref := tree.Find(TypeMoov, TypeTrak, TypeMdia, TypeMinf, TypeDinf, TypeDref)
	require.NotNil(t, dref)
	require.Len(t, dref.Children, 1)
	assert.Equal(t, TypeUrl, dref.Children[0].Type)

	stco := tree.Find(TypeMoov, TypeTrak, TypeMdia, TypeMinf, TypeStbl, TypeStco)
	require.NotNil(t, stco)
	require.NotNil(t, stco.Table)
	assert.Equal(t, uint32(3), stco.Table.Count)
	assert.Equal(t, stco.Payload.Offset+8, stco.Table.Offset)
	assert.Equal(t, uint64(12), stco.Table.Len())
}

func TestParseEmpty(t *testing.T) {
	tree, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, tree.Roots)
	assert.Equal(t, 0, tree.Count())

	nodes, err := ParseNodes([]byte{})
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(w *boxbuild.Writer)
		err   error
		off   uint64
		typ   string
	}{
		{
			name: "trailing bytes",
			build: func(w *boxbuild.Writer) {
				w.Leaf("free", nil)
				w.PutUint32(0)
			},
			err: ErrTruncatedHeader,
			off: 8,
		},
		{
			name:  "top-level box overflows file",
			build: func(w *boxbuild.Writer) { w.Header(64, "moov"); w.PutZeros(16) },
			err:   ErrBoxOverflowsParent,
			typ:   "moov",
		},
		{
			name: "child overflows parent",
			build: func(w *boxbuild.Writer) {
				w.StartBox("moov")
				w.Header(100, "mvhd")
				w.PutZeros(8)
				w.EndBox()
				w.Leaf("free", make([]byte, 100))
			},
			err: ErrBoxOverflowsParent,
			off: 8,
			typ: "mvhd",
		},
		{
			name: "truncated child header",
			build: func(w *boxbuild.Writer) {
				w.StartBox("moov")
				w.Leaf("mvhd", nil)
				w.PutZeros(4)
				w.EndBox()
			},
			err: ErrTruncatedHeader,
			off: 16,
		},
		{
			name: "zero largesize",
			build: func(w *boxbuild.Writer) {
				w.StartBox("moov")
				w.LargeHeader(0, "trak")
				w.EndBox()
			},
			err: ErrZeroSizedBox,
			off: 8,
			typ: "trak",
		},
		{
			name: "child size below header",
			build: func(w *boxbuild.Writer) {
				w.StartBox("trak")
				w.Header(3, "tkhd")
				w.EndBox()
			},
			err: ErrInvalidSize,
			off: 8,
			typ: "tkhd",
		},
		{
			name: "table longer than payload",
			build: func(w *boxbuild.Writer) {
				w.StartFullBox("stco", 0, 0)
				w.PutUint32(10)
				w.PutUint32(1234)
				w.EndBox()
			},
			err: ErrInvalidTableLength,
			off: 8,
			typ: "stco",
		},
		{
			name: "table header missing",
			build: func(w *boxbuild.Writer) {
				w.StartFullBox("stsz", 0, 0)
				w.PutUint32(0)
				w.EndBox()
			},
			err: ErrInvalidTableLength,
			off: 8,
			typ: "stsz",
		},
		{
			name: "table count overflows",
			build: func(w *boxbuild.Writer) {
				w.StartFullBox("co64", 0, 0)
				w.PutUint32(0xffffffff)
				w.EndBox()
			},
			err: ErrInvalidTableLength,
			off: 8,
			typ: "co64",
		},
		{
			name: "sample description prefix missing",
			build: func(w *boxbuild.Writer) {
				w.StartFullBox("stsd", 0, 0)
				w.EndBox()
			},
			err: ErrTruncatedHeader,
			off: 8,
			typ: "stsd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := boxbuild.NewWriter(nil)
			tt.build(w)

			tree, err := Parse(w.Bytes())
			require.Error(t, err)
			assert.Nil(t, tree)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.off, pe.Offset)
			if tt.typ != "" {
				assert.Equal(t, tt.typ, pe.Type.String())
			}
		})
	}
}

func TestParseMaxDepth(t *testing.T) {
	nested := func(n int) []byte {
		w := boxbuild.NewWriter(nil)
		for range n {
			w.StartBox("moov")
		}
		for range n {
			w.EndBox()
		}
		return w.Bytes()
	}

	p := Parser{MaxDepth: 4}
	tree, err := p.Parse(context.Background(), Bytes(nested(4)))
	require.NoError(t, err)
	assert.Equal(t, 4, tree.Count())

	_, err = p.Parse(context.Background(), Bytes(nested(5)))
	require.True(t, errors.Is(err, ErrMaxDepthExceeded), "got %v", err)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, uint64(32), pe.Offset)

	// A deep chain fails at the default bound instead of exhausting the
	// stack.
	_, err = Parse(nested(100000))
	require.True(t, errors.Is(err, ErrMaxDepthExceeded), "got %v", err)
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, uint64(DefaultMaxDepth*8), pe.Offset)
}

func TestParseSizeZeroChild(t *testing.T) {
	w := boxbuild.NewWriter(nil)
	w.StartBox("moov")
	w.Leaf("mvhd", make([]byte, 4))
	w.StartBox("udta")
	w.PutZeros(6)
	w.EndOpenBox()
	w.EndBox()
	w.Leaf("free", nil)
	buf := w.Bytes()

	tree, err := Parse(buf)
	require.NoError(t, err)
	requireConsistent(t, tree, uint64(len(buf)))

	moov := tree.Roots[0]
	udta := moov.Child(TypeUdta)
	require.NotNil(t, udta)
	assert.Equal(t, moov.End(), udta.End(), "size-0 child extends to the end of its parent")
	assert.Equal(t, uint64(14), udta.Size)
	assert.Empty(t, udta.Children)
}

func TestParseMeta(t *testing.T) {
	name := func(w *boxbuild.Writer) {
		w.StartBox("ilst")
		w.PutUint32(16)
		w.Write([]byte{0xa9, 'n', 'a', 'm'})
		w.PutZeros(8)
		w.EndBox()
	}

	t.Run("full box", func(t *testing.T) {
		w := boxbuild.NewWriter(nil)
		w.StartBox("udta")
		w.StartFullBox("meta", 0, 0)
		w.WriteHdlr("mdir", "")
		name(w)
		w.EndBox()
		w.EndBox()

		tree, err := Parse(w.Bytes())
		require.NoError(t, err)
		meta := tree.Find(TypeUdta, TypeMeta)
		require.NotNil(t, meta)
		require.Len(t, meta.Children, 2)
		assert.Equal(t, meta.Offset+12, meta.Children[0].Offset)
		assert.Equal(t, TypeHdlr, meta.Children[0].Type)

		ilst := meta.Child(TypeIlst)
		require.NotNil(t, ilst)
		require.Len(t, ilst.Children, 1)
		assert.Equal(t, "©nam", ilst.Children[0].Type.String())
	})

	t.Run("quicktime", func(t *testing.T) {
		w := boxbuild.NewWriter(nil)
		w.StartBox("udta")
		w.StartBox("meta")
		w.WriteHdlr("mdir", "")
		name(w)
		w.EndBox()
		w.EndBox()

		tree, err := Parse(w.Bytes())
		require.NoError(t, err)
		meta := tree.Find(TypeUdta, TypeMeta)
		require.NotNil(t, meta)
		require.Len(t, meta.Children, 2)
		assert.Equal(t, meta.Offset+8, meta.Children[0].Offset)
		assert.Equal(t, TypeHdlr, meta.Children[0].Type)
	})
}

func TestParseUdtaTerminator(t *testing.T) {
	build := func(tail uint32) []byte {
		w := boxbuild.NewWriter(nil)
		w.StartBox("udta")
		w.Leaf("name", []byte("clip"))
		w.PutUint32(tail)
		w.EndBox()
		return w.Bytes()
	}

	tree, err := Parse(build(0))
	require.NoError(t, err)
	udta := tree.Roots[0]
	require.Len(t, udta.Children, 1)
	assert.Equal(t, uint64(24), udta.Size)

	_, err = Parse(build(0xdeadbeef))
	assert.True(t, errors.Is(err, ErrTruncatedHeader), "got %v", err)
}

func TestParseRegistryOverride(t *testing.T) {
	buf := sampleTrack()

	r := DefaultRegistry()
	r[TypeTrak] = Descriptor{Kind: Leaf}
	delete(DefaultRegistry(), TypeMoov) // copies are independent

	p := Parser{Registry: r}
	tree, err := p.Parse(context.Background(), Bytes(buf))
	require.NoError(t, err)

	trak := tree.Find(TypeMoov, TypeTrak)
	require.NotNil(t, trak)
	assert.False(t, trak.IsContainer())
	assert.Nil(t, trak.Children)
	assert.Equal(t, 5, tree.Count())

	assert.True(t, DefaultRegistry().IsContainer(TypeMoov))
	assert.False(t, DefaultRegistry().IsContainer(TypeAvc1))
}

func TestParseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, parallel := range []int{0, 4} {
		p := Parser{Parallel: parallel}
		tree, err := p.Parse(ctx, Bytes(sampleTrack()))
		require.Error(t, err)
		assert.Nil(t, tree)
		assert.True(t, errors.Is(err, ErrCancelled), "got %v", err)
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	}
}

func fragmented(fragments int) []byte {
	w := boxbuild.NewWriter(nil)
	w.WriteFtyp("iso6", 0, "iso6", "dash")
	w.StartBox("moov")
	w.WriteMvhd(90000, 0, 2)
	w.StartBox("mvex")
	w.Leaf("trex", make([]byte, 24))
	w.EndBox()
	w.EndBox()
	for i := range fragments {
		w.StartBox("moof")
		w.StartFullBox("mfhd", 0, 0)
		w.PutUint32(uint32(i + 1))
		w.EndBox()
		w.StartBox("traf")
		w.Leaf("tfhd", make([]byte, 8))
		w.Leaf("tfdt", make([]byte, 12))
		w.Leaf("trun", make([]byte, 12+8*i))
		w.EndBox()
		w.EndBox()
		w.Leaf("mdat", make([]byte, 100*i))
	}
	return w.Bytes()
}

func TestParseParallelMatchesSequential(t *testing.T) {
	for name, buf := range map[string][]byte{
		"track":      sampleTrack(),
		"fragmented": fragmented(16),
	} {
		t.Run(name, func(t *testing.T) {
			seq, err := Parse(buf)
			require.NoError(t, err)

			p := Parser{Parallel: 4}
			par, err := p.Parse(context.Background(), Bytes(buf))
			require.NoError(t, err)

			assert.Equal(t, seq.String(), par.String())
			assert.Equal(t, seq.Count(), par.Count())
			requireConsistent(t, par, uint64(len(buf)))
		})
	}
}

func TestParseParallelError(t *testing.T) {
	w := boxbuild.NewWriter(nil)
	w.Write(fragmented(4))
	w.StartBox("moof")
	w.Header(100, "mfhd")
	w.EndBox()
	w.Leaf("free", nil)
	buf := w.Bytes()

	moofOff := uint64(len(fragmented(4)))
	p := Parser{Parallel: 3}
	_, err := p.Parse(context.Background(), Bytes(buf))
	require.True(t, errors.Is(err, ErrBoxOverflowsParent), "got %v", err)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, moofOff+8, pe.Offset)

	// A broken top-level header after valid containers is reported too.
	w = boxbuild.NewWriter(nil)
	w.Write(fragmented(2))
	w.Header(4, "free")
	_, err = p.Parse(context.Background(), Bytes(w.Bytes()))
	assert.True(t, errors.Is(err, ErrInvalidSize), "got %v", err)
}

func TestParseLogs(t *testing.T) {
	var out bytes.Buffer
	p := Parser{Logger: slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	_, err := p.Parse(context.Background(), Bytes(sampleMovie()))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "msg=\"parse done\" boxes=4")
	assert.Contains(t, out.String(), "type=mdat offset=120 size=500")
}

func TestParseIsReusable(t *testing.T) {
	var p Parser
	a, err := p.Parse(context.Background(), Bytes(sampleMovie()))
	require.NoError(t, err)
	b, err := p.Parse(context.Background(), Bytes(sampleMovie()))
	require.NoError(t, err)
	assert.Equal(t, a.String(), b.String())
}

func TestParseParallelReportsSequentialError(t *testing.T) {
	const leaves = 200000
	w := boxbuild.NewWriter(nil)
	w.StartBox("moov")
	for range leaves {
		w.Leaf("free", nil)
	}
	w.Header(100, "mvhd")
	w.EndBox()
	w.StartBox("moof")
	w.Header(3, "mfhd")
	w.EndBox()
	buf := w.Bytes()

	_, err := Parse(buf)
	require.True(t, errors.Is(err, ErrBoxOverflowsParent), "got %v", err)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	want := uint64(8 + 8*leaves)
	assert.Equal(t, want, pe.Offset)

	// The moof fails at once while the moov is still being walked.
	p := Parser{Parallel: 2}
	for range 10 {
		_, err := p.Parse(context.Background(), Bytes(buf))
		require.True(t, errors.Is(err, ErrBoxOverflowsParent), "got %v", err)
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, want, pe.Offset)
	}
}

func TestParseLongPrefix(t *testing.T) {
	w := boxbuild.NewWriter(nil)
	w.StartBox("xtra")
	w.PutZeros(32)
	w.Leaf("free", nil)
	w.EndBox()
	buf := w.Bytes()
	require.Len(t, buf, 48)

	r := DefaultRegistry()
	r[BoxType{'x', 't', 'r', 'a'}] = Descriptor{Kind: Container, Prefix: 32, PrefixIfZero: true}
	p := Parser{Registry: r}

	for name, src := range map[string]Source{
		"bytes":    Bytes(buf),
		"readerat": NewSource(bytes.NewReader(buf), int64(len(buf))),
	} {
		t.Run(name, func(t *testing.T) {
			tree, err := p.Parse(context.Background(), src)
			require.NoError(t, err)
			xtra := tree.Roots[0]
			require.Len(t, xtra.Children, 1)
			assert.Equal(t, TypeFree, xtra.Children[0].Type)
			assert.Equal(t, uint64(40), xtra.Children[0].Offset)
		})
	}
}
