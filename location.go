package defmem

import (
	"fmt"
	"go/types"

	"golang.org/x/tools/go/ssa"
)

// This file contains the value domain of the analysis: descriptors for
// memory locations and sets of locations clustered by aliasing.

// UnknownSize marks a location whose accessed extent is not statically known
// (for example the backing array of a slice).
const UnknownSize int64 = -1

// MemoryLocation describes a single memory access: the base pointer that is
// dereferenced, the accessed extent in bytes and an optional access path tag
// for reinterpreted-width accesses. Two distinct descriptors may still refer
// to overlapping storage; such questions are answered by an [AliasOracle],
// never by comparing descriptors directly.
type MemoryLocation struct {
	Ptr  ssa.Value
	Size int64
	Tag  string
}

func (l MemoryLocation) String() string {
	if l.Ptr == nil {
		return "<nil>"
	}
	if l.Tag != "" {
		return fmt.Sprintf("%s:%s[%d]", l.Ptr.Name(), l.Tag, l.Size)
	}
	return fmt.Sprintf("%s[%d]", l.Ptr.Name(), l.Size)
}

// Location builds the descriptor for a dereference of ptr. The extent is the
// size of the pointee type when the pointer type exposes one.
func Location(ptr ssa.Value, sizes types.Sizes) MemoryLocation {
	size := UnknownSize
	if pt, ok := ptr.Type().Underlying().(*types.Pointer); ok {
		size = sizes.Sizeof(pt.Elem())
	}
	return MemoryLocation{Ptr: ptr, Size: size}
}

// LocationSet is a grow-only collection of memory locations partitioned into
// alias clusters. The partition is index based: an arena of location records
// with a cluster id per record. Records whose aliasing is detected on
// insertion share a cluster.
//
// Contains uses must semantics (an exact match with a prior insertion),
// Overlaps uses may semantics and is monotone non-decreasing under Insert.
// There is no removal; within one analysis pass sets only grow.
type LocationSet struct {
	oracle AliasOracle
	recs   []MemoryLocation
	// cluster[i] is the alias cluster of recs[i].
	cluster     []int
	nextCluster int
}

// NewLocationSet returns an empty set whose alias decisions are delegated to
// the given oracle.
func NewLocationSet(oracle AliasOracle) *LocationSet {
	if oracle == nil {
		panic("alias oracle must not be nil")
	}
	return &LocationSet{oracle: oracle}
}

func (s *LocationSet) emptyLike() *LocationSet {
	return &LocationSet{oracle: s.oracle}
}

// Len returns the number of inserted records.
func (s *LocationSet) Len() int { return len(s.recs) }

// Contains reports whether loc exactly matches a prior insertion.
func (s *LocationSet) Contains(loc MemoryLocation) bool {
	for _, r := range s.recs {
		if s.oracle.MustEqual(r, loc) {
			return true
		}
	}
	return false
}

// Overlaps reports whether loc may alias any member of the set. It is true
// whenever Contains is true.
func (s *LocationSet) Overlaps(loc MemoryLocation) bool {
	for _, r := range s.recs {
		if s.oracle.MayOverlap(r, loc) {
			return true
		}
	}
	return false
}

// Insert adds loc to the set, merging the alias clusters it bridges. It
// returns true when a new cluster was created, i.e. loc did not alias any
// prior member.
func (s *LocationSet) Insert(loc MemoryLocation) bool {
	if s.Contains(loc) {
		return false
	}

	merged := -1
	for i, r := range s.recs {
		if !s.oracle.MayOverlap(r, loc) {
			continue
		}
		if merged == -1 {
			merged = s.cluster[i]
		} else if s.cluster[i] != merged {
			// loc bridges two previously disjoint clusters.
			s.relabel(s.cluster[i], merged)
		}
	}

	fresh := merged == -1
	if fresh {
		merged = s.nextCluster
		s.nextCluster++
	}

	s.recs = append(s.recs, loc)
	s.cluster = append(s.cluster, merged)
	return fresh
}

func (s *LocationSet) relabel(from, to int) {
	for i, c := range s.cluster {
		if c == from {
			s.cluster[i] = to
		}
	}
}

// Locations returns the inserted records in insertion order. The returned
// slice is owned by the set and must not be mutated.
func (s *LocationSet) Locations() []MemoryLocation { return s.recs }

// InsertAll inserts every record of o, returning whether any insertion
// changed the set.
func (s *LocationSet) InsertAll(o *LocationSet) bool {
	changed := false
	for _, r := range o.recs {
		if !s.Contains(r) {
			s.Insert(r)
			changed = true
		}
	}
	return changed
}
