package boxtree

import (
	"errors"
	"fmt"
	"strings"
)

// Parse failures. Every error returned by the parser is a *ParseError
// wrapping exactly one of these.
var (
	ErrOutOfBounds        = errors.New("read out of bounds")
	ErrTruncatedHeader    = errors.New("truncated box header")
	ErrInvalidSize        = errors.New("invalid box size")
	ErrBoxOverflowsParent = errors.New("box overflows parent")
	ErrZeroSizedBox       = errors.New("zero sized box")
	ErrMaxDepthExceeded   = errors.New("max depth exceeded")
	ErrInvalidTableLength = errors.New("invalid table length")
	ErrCancelled          = errors.New("parse cancelled")
)

// Errors returned when reading from a parsed tree.
var (
	ErrNotTable   = errors.New("box has no entry table")
	ErrWrongTable = errors.New("unexpected table type")
	ErrDetached   = errors.New("tree detached from its source")
)

// ParseError reports where parsing stopped and why.
type ParseError struct {
	Err    error   // one of the Err* sentinels
	Offset uint64  // absolute offset at which the problem was detected
	Type   BoxType // type of the offending box, zero if not yet known
	Detail string
	Cause  error // underlying error, e.g. the context error or an I/O error
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	sb.WriteString("boxtree: ")
	sb.WriteString(e.Err.Error())
	fmt.Fprintf(&sb, " at offset %d", e.Offset)
	if e.Type != (BoxType{}) {
		fmt.Fprintf(&sb, " [%s]", e.Type)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *ParseError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func newError(err error, off uint64, t BoxType, format string, args ...any) *ParseError {
	return &ParseError{Err: err, Offset: off, Type: t, Detail: fmt.Sprintf(format, args...)}
}
