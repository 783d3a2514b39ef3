package crdt

import (
	"iter"
	"slices"
)

// SequenceItem is one fragment of a replicated sequence. The item is placed
// after LeftID and before RightID.
type SequenceItem[T any] struct {
	ID            ID
	LeftID        ID
	RightID       ID
	DeletedLength uint32
	Value         T
}

// Deleted reports whether the item has been tombstoned.
func (it SequenceItem[T]) Deleted() bool {
	return it.DeletedLength > 0
}

// CycleBreak records an ordering constraint that was dropped because the
// constraints around it form a loop.
type CycleBreak struct {
	ID   ID // item that lost the constraint
	Link ID // neighbour it was required to follow
}

// Sequence is an ordered set of items addressed by id.
//
// Items may be inserted in any order, before or after the neighbours they
// reference. The order is recomputed on first read after a change:
//
//   - an item comes after its left neighbour and before its right neighbour;
//     a neighbour that is EndMarker or not present in the set places no
//     constraint;
//   - items are emitted in rounds, each round holding every item whose
//     constraints are met, sorted by id;
//   - when no item is ready, the constraints of one item on a loop are
//     dropped and recorded in BrokenCycles.
//
// The zero value is an empty sequence ready to use. A Sequence is not safe for
// concurrent use.
type Sequence[T any] struct {
	items map[ID]SequenceItem[T]

	order  []ID
	breaks []CycleBreak
	dirty  bool
}

// NewSequence returns a sequence holding items.
func NewSequence[T any](items ...SequenceItem[T]) *Sequence[T] {
	s := &Sequence[T]{items: make(map[ID]SequenceItem[T], len(items))}
	for _, it := range items {
		s.Insert(it)
	}
	return s
}

// Insert adds item, replacing any earlier item with the same id.
func (s *Sequence[T]) Insert(item SequenceItem[T]) {
	if s.items == nil {
		s.items = make(map[ID]SequenceItem[T])
	}
	s.items[item.ID] = item
	s.dirty = true
}

// MarkDeleted tombstones the item with the given id, keeping its value. A zero
// length is stored as one. It reports whether the item exists.
func (s *Sequence[T]) MarkDeleted(id ID, length uint32) bool {
	it, ok := s.items[id]
	if !ok {
		return false
	}
	if length == 0 {
		length = 1
	}
	it.DeletedLength = length
	s.items[id] = it
	return true
}

// Remove drops the item with the given id. It reports whether the item
// existed.
func (s *Sequence[T]) Remove(id ID) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	s.dirty = true
	return true
}

// Len returns the number of items, deleted ones included.
func (s *Sequence[T]) Len() int {
	return len(s.items)
}

// Contains reports whether an item with id is present.
func (s *Sequence[T]) Contains(id ID) bool {
	_, ok := s.items[id]
	return ok
}

// Get returns the value stored for id.
func (s *Sequence[T]) Get(id ID) (T, bool) {
	it, ok := s.items[id]
	return it.Value, ok
}

// Item returns the full item stored for id.
func (s *Sequence[T]) Item(id ID) (SequenceItem[T], bool) {
	it, ok := s.items[id]
	return it, ok
}

// Keys returns every id in sequence order.
func (s *Sequence[T]) Keys() []ID {
	return slices.Clone(s.ordered())
}

// Items returns every item in sequence order.
func (s *Sequence[T]) Items() []SequenceItem[T] {
	order := s.ordered()
	out := make([]SequenceItem[T], 0, len(order))
	for _, id := range order {
		out = append(out, s.items[id])
	}
	return out
}

// Values returns every value in sequence order, deleted ones included.
func (s *Sequence[T]) Values() []T {
	order := s.ordered()
	out := make([]T, 0, len(order))
	for _, id := range order {
		out = append(out, s.items[id].Value)
	}
	return out
}

// LiveValues returns the values of items that are not deleted, in order.
func (s *Sequence[T]) LiveValues() []T {
	var out []T
	for _, v := range s.Live() {
		out = append(out, v)
	}
	return out
}

// Live iterates over non-deleted items in order. The iterator may be used
// more than once.
func (s *Sequence[T]) Live() iter.Seq2[ID, T] {
	return func(yield func(ID, T) bool) {
		for _, id := range s.ordered() {
			it := s.items[id]
			if it.Deleted() {
				continue
			}
			if !yield(id, it.Value) {
				return
			}
		}
	}
}

// All iterates over every item in order, deleted ones included.
func (s *Sequence[T]) All() iter.Seq2[ID, SequenceItem[T]] {
	return func(yield func(ID, SequenceItem[T]) bool) {
		for _, id := range s.ordered() {
			if !yield(id, s.items[id]) {
				return
			}
		}
	}
}

// BrokenCycles returns the constraints dropped while ordering.
func (s *Sequence[T]) BrokenCycles() []CycleBreak {
	s.ordered()
	return slices.Clone(s.breaks)
}

// known reports whether id names an item of the sequence.
func (s *Sequence[T]) known(id ID) bool {
	if id.IsEnd() {
		return false
	}
	_, ok := s.items[id]
	return ok
}

func (s *Sequence[T]) ordered() []ID {
	if !s.dirty && (s.order != nil || len(s.items) == 0) {
		return s.order
	}

	// deps[x] holds the items x must follow; next[x] the items following x.
	deps := make(map[ID]map[ID]struct{}, len(s.items))
	next := make(map[ID][]ID, len(s.items))
	link := func(before, after ID) {
		d := deps[after]
		if d == nil {
			d = make(map[ID]struct{}, 2)
			deps[after] = d
		}
		if _, ok := d[before]; ok {
			return
		}
		d[before] = struct{}{}
		next[before] = append(next[before], after)
	}
	for id, it := range s.items {
		if s.known(it.LeftID) {
			link(it.LeftID, id)
		}
		if s.known(it.RightID) {
			link(id, it.RightID)
		}
	}

	var ready []ID
	for id := range s.items {
		if len(deps[id]) == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]ID, 0, len(s.items))
	done := make(map[ID]bool, len(s.items))
	var breaks []CycleBreak
	for len(order) < len(s.items) {
		if len(ready) == 0 {
			cut := s.loopMember(deps, done)
			links := sortedKeys(deps[cut])
			for _, l := range links {
				breaks = append(breaks, CycleBreak{ID: cut, Link: l})
			}
			delete(deps, cut)
			ready = []ID{cut}
		}

		slices.SortFunc(ready, ID.Compare)
		for _, id := range ready {
			done[id] = true
		}
		order = append(order, ready...)

		var following []ID
		for _, id := range ready {
			for _, n := range next[id] {
				if done[n] {
					continue
				}
				d := deps[n]
				if _, ok := d[id]; !ok {
					continue
				}
				delete(d, id)
				if len(d) == 0 {
					following = append(following, n)
				}
			}
		}
		ready = following
	}

	s.order = order
	s.breaks = breaks
	s.dirty = false
	return s.order
}

// loopMember returns an unplaced item that lies on a loop of constraints.
// Every unplaced item still waits on another one, so walking the smallest
// pending constraint from the smallest unplaced id must repeat an item.
func (s *Sequence[T]) loopMember(deps map[ID]map[ID]struct{}, done map[ID]bool) ID {
	var cur ID
	first := true
	for id := range s.items {
		if !done[id] && (first || id.Less(cur)) {
			cur, first = id, false
		}
	}

	seen := make(map[ID]bool)
	for !seen[cur] {
		seen[cur] = true
		cur = sortedKeys(deps[cur])[0]
	}
	return cur
}

func sortedKeys(m map[ID]struct{}) []ID {
	out := make([]ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.SortFunc(out, ID.Compare)
	return out
}
