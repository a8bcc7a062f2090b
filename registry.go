package boxtree

import "maps"

// Kind classifies how the parser treats a box payload.
type Kind uint8

const (
	// Leaf boxes keep their payload by reference and are not descended into.
	Leaf Kind = iota
	// Container boxes hold a sequence of child boxes.
	Container
)

func (k Kind) String() string {
	if k == Container {
		return "container"
	}
	return "leaf"
}

// Descriptor describes how a box type is parsed.
type Descriptor struct {
	Kind Kind

	// Prefix is the number of payload bytes between the header and the
	// first child of a container (e.g. version, flags and entry count).
	Prefix uint64

	// PrefixIfZero applies Prefix only when those bytes are all zero. ISO
	// meta is a full box with a zero version/flags word, QuickTime meta
	// starts its children right after the header.
	PrefixIfZero bool

	// Terminator accepts a trailing run of fewer than 8 zero bytes at the
	// end of the container (QuickTime udta ends with a 32-bit zero).
	Terminator bool

	// Table is the layout of an auxiliary count-prefixed table carried by a
	// leaf, or nil.
	Table *TableLayout
}

// Registry maps box types to descriptors. Types missing from the registry
// are leaves.
type Registry map[BoxType]Descriptor

var (
	container = Descriptor{Kind: Container}

	defaultRegistry = Registry{
		TypeMoov: container,
		TypeTrak: container,
		TypeEdts: container,
		TypeMdia: container,
		TypeMinf: container,
		TypeDinf: container,
		TypeStbl: container,
		TypeMvex: container,
		TypeMoof: container,
		TypeTraf: container,
		TypeMfra: container,
		TypeTref: container,
		TypeTrgr: container,
		TypeSinf: container,
		TypeSchi: container,
		TypeGmhd: container,
		TypeIlst: container,
		TypeUdta: {Kind: Container, Terminator: true},
		TypeMeta: {Kind: Container, Prefix: 4, PrefixIfZero: true},
		TypeStsd: {Kind: Container, Prefix: 8},
		TypeDref: {Kind: Container, Prefix: 8},

		TypeStco: {Table: &TableLayout{CountOffset: 4, EntriesOffset: 8, Stride: [2]uint64{4, 4}}},
		TypeCo64: {Table: &TableLayout{CountOffset: 4, EntriesOffset: 8, Stride: [2]uint64{8, 8}}},
		TypeStss: {Table: &TableLayout{CountOffset: 4, EntriesOffset: 8, Stride: [2]uint64{4, 4}}},
		TypeStsh: {Table: &TableLayout{CountOffset: 4, EntriesOffset: 8, Stride: [2]uint64{8, 8}}},
		TypeStts: {Table: &TableLayout{CountOffset: 4, EntriesOffset: 8, Stride: [2]uint64{8, 8}}},
		TypeCtts: {Table: &TableLayout{CountOffset: 4, EntriesOffset: 8, Stride: [2]uint64{8, 8}}},
		TypeStsc: {Table: &TableLayout{CountOffset: 4, EntriesOffset: 8, Stride: [2]uint64{12, 12}}},
		TypeStsz: {Table: &TableLayout{CountOffset: 8, EntriesOffset: 12, Stride: [2]uint64{4, 4}, UniformSizeOffset: 4}},
		TypeElst: {Table: &TableLayout{CountOffset: 4, EntriesOffset: 8, Stride: [2]uint64{12, 20}}},
	}
)

// DefaultRegistry returns a copy of the built-in classification table.
func DefaultRegistry() Registry {
	return maps.Clone(defaultRegistry)
}

// Lookup returns the descriptor for t. Unknown types are plain leaves.
func (r Registry) Lookup(t BoxType) Descriptor {
	return r[t]
}

// IsContainer reports whether t descends into children under r.
func (r Registry) IsContainer(t BoxType) bool {
	return r[t].Kind == Container
}
