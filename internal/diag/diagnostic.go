// Package diag defines the error taxonomy and the structured warnings returned
// alongside every parse.
package diag

import (
	"errors"
	"fmt"
)

// Kind classifies a recovered condition.
type Kind string

const (
	KindSchemaMismatch    Kind = "schema_mismatch"
	KindTruncatedData     Kind = "truncated_data"
	KindUnknownBlockType  Kind = "unknown_block_type"
	KindOrphanedReference Kind = "orphaned_reference"
	KindCycleDetected     Kind = "cycle_detected"
	KindUnreadData        Kind = "unread_data"
	KindInvalidValue      Kind = "invalid_value"
)

// NoBlock is used as BlockIndex when a diagnostic is not tied to one block.
const NoBlock = -1

// NoOffset is used as Offset when the file position is not known.
const NoOffset = -1

// Diagnostic is a warning about one recovered condition.
type Diagnostic struct {
	BlockIndex int    `json:"block_index" yaml:"block_index"`
	BlockType  uint8  `json:"block_type" yaml:"block_type"`
	Offset     int    `json:"offset" yaml:"offset"`
	Kind       Kind   `json:"kind" yaml:"kind"`
	Reason     string `json:"reason" yaml:"reason"`
}

func (d Diagnostic) String() string {
	if d.BlockIndex == NoBlock {
		return fmt.Sprintf("%s: %s", d.Kind, d.Reason)
	}
	if d.Offset == NoOffset {
		return fmt.Sprintf("block %d (type 0x%02x): %s: %s", d.BlockIndex, d.BlockType, d.Kind, d.Reason)
	}
	return fmt.Sprintf("block %d (type 0x%02x) at offset %d: %s: %s",
		d.BlockIndex, d.BlockType, d.Offset, d.Kind, d.Reason)
}

// KindOf maps err to the kind of the first sentinel it wraps.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrTruncatedData):
		return KindTruncatedData
	case errors.Is(err, ErrUnknownBlockType):
		return KindUnknownBlockType
	case errors.Is(err, ErrOrphanedReference):
		return KindOrphanedReference
	case errors.Is(err, ErrCycleDetected):
		return KindCycleDetected
	case errors.Is(err, ErrUnreadData):
		return KindUnreadData
	case errors.Is(err, ErrInvalidValue):
		return KindInvalidValue
	default:
		return KindSchemaMismatch
	}
}

// FromError builds a diagnostic for a recovered error.
func FromError(index int, blockType uint8, offset int, err error) Diagnostic {
	return Diagnostic{
		BlockIndex: index,
		BlockType:  blockType,
		Offset:     offset,
		Kind:       KindOf(err),
		Reason:     err.Error(),
	}
}

// Count returns how many diagnostics have the given kind.
func Count(diags []Diagnostic, kind Kind) int {
	n := 0
	for _, d := range diags {
		if d.Kind == kind {
			n++
		}
	}
	return n
}
