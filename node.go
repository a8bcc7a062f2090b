package boxtree

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// PayloadRef addresses a byte range of the source.
type PayloadRef struct {
	Offset uint64
	Length uint64
}

// End returns the offset just past the range.
func (r PayloadRef) End() uint64 { return r.Offset + r.Length }

// Node is one box of the parsed tree. Nodes are immutable once Parse returns.
type Node struct {
	Type       BoxType
	UserType   [16]byte // extended type, uuid boxes only
	Kind       Kind
	Offset     uint64
	HeaderSize uint64
	Size       uint64 // total size including header

	// Payload references the box data after the header. For containers it
	// spans any prefix plus all children.
	Payload PayloadRef

	// Table is set for leaves carrying a known auxiliary table.
	Table *Table

	// Children holds the child boxes of a container, in file order.
	Children []*Node
}

// PayloadSize returns the size of the box data (excluding the header).
func (n *Node) PayloadSize() uint64 { return n.Size - n.HeaderSize }

// End returns the offset just past the box.
func (n *Node) End() uint64 { return n.Offset + n.Size }

// IsContainer reports whether the node was descended into.
func (n *Node) IsContainer() bool { return n.Kind == Container }

// Child returns the first child box of the given type, or nil.
func (n *Node) Child(t BoxType) *Node {
	for _, c := range n.Children {
		if c.Type == t {
			return c
		}
	}
	return nil
}

// ChildList returns all child boxes of the given type.
func (n *Node) ChildList(t BoxType) []*Node {
	var list []*Node
	for _, c := range n.Children {
		if c.Type == t {
			list = append(list, c)
		}
	}
	return list
}

func (n *Node) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] offset=%d size=%d", n.Type, n.Offset, n.Size)
	if n.HeaderSize != 8 {
		fmt.Fprintf(&sb, " header=%d", n.HeaderSize)
	}
	if n.Type == TypeUuid {
		fmt.Fprintf(&sb, " usertype=%x", n.UserType)
	}
	if n.Table != nil {
		if n.Table.UniformSize != 0 {
			fmt.Fprintf(&sb, " entries=%d uniform=%d", n.Table.Count, n.Table.UniformSize)
		} else {
			fmt.Fprintf(&sb, " entries=%d", n.Table.Count)
		}
	}
	if n.IsContainer() {
		fmt.Fprintf(&sb, " children=%d", len(n.Children))
	}
	return sb.String()
}

// Tree is the result of a parse. It holds the top-level boxes and a share of
// the source for payload access. The tree metadata does not depend on the
// source; after Detach it remains usable while payload access fails.
type Tree struct {
	Roots []*Node

	mu       sync.RWMutex
	src      Source
	registry Registry
	count    int
}

// Source returns the source the tree was parsed from, or nil once detached.
func (t *Tree) Source() Source {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.src
}

// Detach drops the tree's reference to its source so the caller can release
// it. Payloads previously returned by Payload must not be used after the
// source is released.
func (t *Tree) Detach() {
	t.mu.Lock()
	t.src = nil
	t.mu.Unlock()
}

// Count returns the total number of boxes in the tree.
func (t *Tree) Count() int { return t.count }

func (t *Tree) cursor() (*cursor, error) {
	src := t.Source()
	if src == nil {
		return nil, ErrDetached
	}
	return newCursor(src), nil
}

// Payload returns the payload bytes of n. For in-memory sources the result
// borrows the source buffer and must not be modified; other sources are read
// into a fresh buffer.
func (t *Tree) Payload(n *Node) ([]byte, error) {
	c, err := t.cursor()
	if err != nil {
		return nil, err
	}
	return c.bytes(n.Payload)
}

// PayloadReader returns a reader over the payload of n without copying it.
func (t *Tree) PayloadReader(n *Node) (*io.SectionReader, error) {
	src := t.Source()
	if src == nil {
		return nil, ErrDetached
	}
	return io.NewSectionReader(src, int64(n.Payload.Offset), int64(n.Payload.Length)), nil
}

// WalkFunc is called for every node in depth-first order. Returning
// SkipChildren from a container skips its subtree.
type WalkFunc func(n *Node, depth int) error

// SkipChildren is a sentinel for WalkFunc.
var SkipChildren = errors.New("skip children")

// Walk visits every node depth first in file order.
func (t *Tree) Walk(fn WalkFunc) error {
	return walkNodes(t.Roots, 0, fn)
}

func walkNodes(nodes []*Node, depth int, fn WalkFunc) error {
	for _, n := range nodes {
		err := fn(n, depth)
		if err == SkipChildren {
			continue
		}
		if err != nil {
			return err
		}
		if err := walkNodes(n.Children, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Find follows path from the roots, taking the first match at each level,
// e.g. Find(TypeMoov, TypeTrak, TypeMdia).
func (t *Tree) Find(path ...BoxType) *Node {
	if len(path) == 0 {
		return nil
	}
	var n *Node
	for _, r := range t.Roots {
		if r.Type == path[0] {
			n = r
			break
		}
	}
	for _, typ := range path[1:] {
		if n == nil {
			return nil
		}
		n = n.Child(typ)
	}
	return n
}

// FindAll returns every node of type typ in depth-first order.
func (t *Tree) FindAll(typ BoxType) []*Node {
	var list []*Node
	t.Walk(func(n *Node, _ int) error {
		if n.Type == typ {
			list = append(list, n)
		}
		return nil
	})
	return list
}

// Dump writes an indented listing of the tree to w.
func (t *Tree) Dump(w io.Writer) error {
	return t.Walk(func(n *Node, depth int) error {
		_, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), n)
		return err
	})
}

func (t *Tree) String() string {
	var sb strings.Builder
	t.Dump(&sb)
	return sb.String()
}
