package diag

import "errors"

// Decoding errors. All but ErrInvalidHeader are recovered locally and
// reported as diagnostics.
var (
	// ErrInvalidHeader indicates the file does not start with the v6 header.
	ErrInvalidHeader = errors.New("rmlines: invalid file header")

	// ErrSchemaMismatch indicates a required field had an unexpected tag or type.
	ErrSchemaMismatch = errors.New("rmlines: schema mismatch")

	// ErrTruncatedData indicates a read past the end of a block or subblock.
	ErrTruncatedData = errors.New("rmlines: truncated data")

	// ErrUnknownBlockType indicates a block type with no registered decoder.
	ErrUnknownBlockType = errors.New("rmlines: unknown block type")

	// ErrOrphanedReference indicates an id that never resolved.
	ErrOrphanedReference = errors.New("rmlines: orphaned reference")

	// ErrCycleDetected indicates a loop in left-neighbour links.
	ErrCycleDetected = errors.New("rmlines: cycle detected")

	// ErrUnreadData indicates bytes left over at the end of a block.
	ErrUnreadData = errors.New("rmlines: unread data")

	// ErrInvalidValue indicates a value that cannot be encoded.
	ErrInvalidValue = errors.New("rmlines: invalid value")
)
