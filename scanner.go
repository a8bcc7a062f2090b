package boxtree

import "context"

// Scanner reads top-level box headers from a Source without building a
// tree or touching payloads. It applies the same header validation as the
// parser, so a scan that completes without error visits boxes that
// partition the source.
//
// Typical usage:
//
//	sc := boxtree.NewScanner(src)
//	for sc.Next() {
//	    h := sc.Header()
//	    if h.Type == boxtree.TypeMoov {
//	        // ...
//	    }
//	}
//	if err := sc.Err(); err != nil { ... }
type Scanner struct {
	c   *cursor
	ctx context.Context
	hdr Header
	err error
	pos uint64
	end uint64
}

// NewScanner creates a Scanner over src.
func NewScanner(src Source) *Scanner {
	return NewScannerContext(context.Background(), src)
}

// NewScannerContext creates a Scanner that stops with ErrCancelled once ctx
// is done.
func NewScannerContext(ctx context.Context, src Source) *Scanner {
	c := newCursor(src)
	return &Scanner{c: c, ctx: ctx, end: c.size}
}

// Next advances to the next top-level box. Returns false when there
// are no more boxes or an error occurs. Check Err() after the loop.
func (s *Scanner) Next() bool {
	if s.err != nil || s.pos >= s.end {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = &ParseError{Err: ErrCancelled, Offset: s.pos, Cause: err}
		return false
	}
	h, err := decodeHeader(s.c, s.pos, s.end)
	if err != nil {
		s.err = err
		return false
	}
	s.hdr = h
	s.pos = h.End()
	return true
}

// Header returns the current box header. Only valid after Next returns true.
func (s *Scanner) Header() Header {
	return s.hdr
}

// Err returns the first error encountered by the Scanner.
func (s *Scanner) Err() error {
	return s.err
}
