// Package mmapfile exposes a file as a read-only, randomly addressable byte
// source backed by a memory mapping. Pages are loaded on first access, so
// reading only box headers of a multi-gigabyte file keeps resident memory
// small.
package mmapfile

import "errors"

// ErrClosed is returned by reads after Close.
var ErrClosed = errors.New("mmapfile: file closed")
