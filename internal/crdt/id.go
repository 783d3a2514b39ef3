// Package crdt holds the replicated-data primitives shared by every part of a
// scene file: identifiers, last-write-wins registers and ordered sequences.
package crdt

import (
	"cmp"
	"fmt"
)

// ID identifies one replicated write. Author fits in a byte on the wire.
type ID struct {
	Author  uint64
	Counter uint64
}

var (
	// EndMarker marks the start (as a left neighbour) or end (as a right
	// neighbour) of a sequence.
	EndMarker = ID{0, 0}

	// RootID is the node id of the scene's top-level group.
	RootID = ID{0, 1}
)

// Compare orders ids by author, then counter.
func (id ID) Compare(other ID) int {
	if c := cmp.Compare(id.Author, other.Author); c != 0 {
		return c
	}
	return cmp.Compare(id.Counter, other.Counter)
}

// Less reports whether id sorts before other.
func (id ID) Less(other ID) bool {
	return id.Compare(other) < 0
}

// IsEnd reports whether id is the sequence end marker.
func (id ID) IsEnd() bool {
	return id == EndMarker
}

// Next returns the id n writes later from the same author.
func (id ID) Next(n uint64) ID {
	return ID{Author: id.Author, Counter: id.Counter + n}
}

func (id ID) String() string {
	return fmt.Sprintf("(%d, %d)", id.Author, id.Counter)
}

// LWW is a last-write-wins register value.
type LWW[T any] struct {
	Timestamp ID
	Value     T
}

// NewLWW returns a register holding value written at timestamp.
func NewLWW[T any](timestamp ID, value T) LWW[T] {
	return LWW[T]{Timestamp: timestamp, Value: value}
}

// Merge returns whichever of l and other carries the later timestamp. Ties
// keep l.
func (l LWW[T]) Merge(other LWW[T]) LWW[T] {
	if other.Timestamp.Compare(l.Timestamp) > 0 {
		return other
	}
	return l
}
