// ============================================================================
// Event File Errors
// ============================================================================
//
// Package: internal/eventfile
// Purpose: Classify read failures the way spec.md §7 requires: a truncated
// tail is benign and keeps the file Active, everything else is terminal.
//
// ============================================================================

package eventfile

import "errors"

var (
	// ErrTruncated means the reader hit a well-formed prefix followed by an
	// incomplete tail (or plain EOF with nothing buffered). It is not an
	// error condition for the file: the caller should stop reading this
	// cycle and retry from here next cycle.
	ErrTruncated = errors.New("eventfile: truncated record")

	// ErrChecksumMismatch means a complete record was read but its checksum
	// doesn't match its content. Terminal for the file.
	ErrChecksumMismatch = errors.New("eventfile: checksum mismatch")

	// ErrClosed means Close was already called on this reader or writer.
	ErrClosed = errors.New("eventfile: already closed")
)
