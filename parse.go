package boxtree

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxDepth bounds container nesting when Parser.MaxDepth is zero.
const DefaultMaxDepth = 64

// Parser builds box trees. The zero value uses the default registry and
// depth bound, validates auxiliary tables and parses sequentially. A Parser
// may be used by several goroutines at once.
type Parser struct {
	// Registry classifies box types; nil means DefaultRegistry.
	Registry Registry

	// MaxDepth bounds container nesting below the top level.
	MaxDepth int

	// SkipTables disables decoding and validation of auxiliary tables
	// during the parse. Iterators then decode them on demand.
	SkipTables bool

	// Parallel is the number of top-level container subtrees parsed
	// concurrently. Values below 2 parse sequentially.
	Parallel int

	Logger *slog.Logger
}

// Parse parses buf with the default parser.
func Parse(buf []byte) (*Tree, error) {
	var p Parser
	return p.Parse(context.Background(), Bytes(buf))
}

// ParseNodes parses buf and returns its top-level boxes.
func ParseNodes(buf []byte) ([]*Node, error) {
	t, err := Parse(buf)
	if err != nil {
		return nil, err
	}
	return t.Roots, nil
}

// Parse walks src and returns its box tree. On failure it returns a
// *ParseError and no tree. ctx is checked once per box.
func (p *Parser) Parse(ctx context.Context, src Source) (*Tree, error) {
	log := p.logger()
	size := src.Size()
	if size < 0 {
		size = 0
	}
	log.Debug("parse start", "size", size, "parallel", p.Parallel)

	w := p.newWalker(ctx, src)
	var (
		roots []*Node
		err   error
		count int
	)
	if p.Parallel > 1 {
		roots, count, err = p.parseParallel(ctx, src, w)
	} else {
		roots, err = w.parseRegion(0, uint64(size), 0)
		count = w.count
	}
	if err != nil {
		log.Debug("parse failed", "error", err)
		return nil, err
	}
	for _, r := range roots {
		log.Debug("box", "type", r.Type.String(), "offset", r.Offset, "size", r.Size)
	}
	log.Debug("parse done", "boxes", count)
	return &Tree{Roots: roots, src: src, registry: w.registry, count: count}, nil
}

func (p *Parser) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (p *Parser) newWalker(ctx context.Context, src Source) *walker {
	w := &walker{
		ctx:      ctx,
		done:     ctx.Done(),
		c:        newCursor(src),
		registry: p.Registry,
		maxDepth: p.MaxDepth,
		tables:   !p.SkipTables,
	}
	if w.registry == nil {
		w.registry = defaultRegistry
	}
	if w.maxDepth <= 0 {
		w.maxDepth = DefaultMaxDepth
	}
	return w
}

// walker carries the per-goroutine state of a parse.
type walker struct {
	ctx      context.Context
	done     <-chan struct{}
	c        *cursor
	registry Registry
	maxDepth int
	tables   bool
	count    int
}

func (w *walker) cancelled(off uint64) error {
	if w.done == nil {
		return nil
	}
	select {
	case <-w.done:
		return &ParseError{Err: ErrCancelled, Offset: off, Cause: w.ctx.Err()}
	default:
		return nil
	}
}

// parseRegion decodes the boxes in [off, end) at the given depth.
func (w *walker) parseRegion(off, end uint64, depth int) ([]*Node, error) {
	return w.parseRegionWith(off, end, depth, Descriptor{})
}

func (w *walker) parseRegionWith(off, end uint64, depth int, parent Descriptor) ([]*Node, error) {
	var nodes []*Node
	for off < end {
		if err := w.cancelled(off); err != nil {
			return nil, err
		}
		if parent.Terminator && end-off < 8 {
			ok, err := w.c.zeros(off, end-off)
			if err != nil {
				return nil, err
			}
			if ok {
				break
			}
		}
		n, err := w.parseBox(off, end, depth)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
		off += n.Size
	}
	return nodes, nil
}

// parseBox decodes the box at off and, for containers, its subtree.
func (w *walker) parseBox(off, end uint64, depth int) (*Node, error) {
	h, err := decodeHeader(w.c, off, end)
	if err != nil {
		return nil, err
	}
	w.count++

	start := h.Offset + h.HeaderSize
	n := &Node{
		Type:       h.Type,
		UserType:   h.UserType,
		Offset:     h.Offset,
		HeaderSize: h.HeaderSize,
		Size:       h.Size,
	}
	if n.Payload, err = w.c.slice(start, h.PayloadSize()); err != nil {
		return nil, err
	}

	d := w.registry.Lookup(h.Type)
	if d.Kind != Container {
		if d.Table != nil && w.tables {
			if n.Table, err = decodeTable(w.c, h, d.Table); err != nil {
				return nil, err
			}
		}
		return n, nil
	}

	n.Kind = Container
	if depth+1 > w.maxDepth {
		return nil, newError(ErrMaxDepthExceeded, off, h.Type, "nesting deeper than %d", w.maxDepth)
	}
	childStart, err := w.childStart(h, d)
	if err != nil {
		return nil, err
	}
	if n.Children, err = w.parseRegionWith(childStart, h.End(), depth+1, d); err != nil {
		return nil, err
	}
	if n.Children == nil {
		n.Children = []*Node{}
	}
	return n, nil
}

// childStart returns the offset of the first child of a container.
func (w *walker) childStart(h Header, d Descriptor) (uint64, error) {
	start := h.Offset + h.HeaderSize
	if d.Prefix == 0 {
		return start, nil
	}
	if h.PayloadSize() < d.Prefix {
		if d.PrefixIfZero {
			return start, nil
		}
		return 0, newError(ErrTruncatedHeader, start, h.Type, "need %d prefix bytes, have %d", d.Prefix, h.PayloadSize())
	}
	if d.PrefixIfZero {
		ok, err := w.c.zeros(start, d.Prefix)
		if err != nil {
			return 0, err
		}
		if !ok {
			return start, nil
		}
	}
	return start + d.Prefix, nil
}

// subtree is the outcome of one container parsed by parseParallel.
type subtree struct {
	node  *Node
	count int
	err   error
}

// parseParallel decodes top-level headers in order and hands container
// subtrees to a bounded group. A failed subtree stops further dispatch but
// lets earlier subtrees finish, so the reported error is the one a
// sequential walk would hit first.
func (p *Parser) parseParallel(ctx context.Context, src Source, top *walker) ([]*Node, int, error) {
	size := uint64(max(src.Size(), 0))
	var g errgroup.Group
	g.SetLimit(p.Parallel)

	var (
		slots  []*subtree
		topErr error
		failed atomic.Bool
	)
	off := uint64(0)
	for off < size && !failed.Load() {
		if err := top.cancelled(off); err != nil {
			topErr = err
			break
		}
		h, err := decodeHeader(top.c, off, size)
		if err != nil {
			topErr = err
			break
		}
		st := &subtree{}
		slots = append(slots, st)
		if !top.registry.IsContainer(h.Type) {
			if st.node, err = top.parseBox(off, size, 0); err != nil {
				topErr = err
				break
			}
			off += h.Size
			continue
		}

		start := off
		g.Go(func() error {
			w := p.newWalker(ctx, src)
			st.node, st.err = w.parseBox(start, size, 0)
			st.count = w.count
			if st.err != nil {
				failed.Store(true)
			}
			return nil
		})
		off += h.Size
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, &ParseError{Err: ErrCancelled, Offset: off, Cause: err}
	}
	for _, st := range slots {
		if st.err != nil {
			return nil, 0, st.err
		}
	}
	if topErr != nil {
		return nil, 0, topErr
	}

	roots := make([]*Node, len(slots))
	count := top.count
	for i, st := range slots {
		roots[i] = st.node
		count += st.count
	}
	return roots, count, nil
}
