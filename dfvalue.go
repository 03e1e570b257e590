package defmem

// LocationValue is the lattice element the reaching definitions engine
// computes with: either the full value (every location, the optimistic
// placeholder for unvisited points) or a concrete set of locations.
//
// Intersect only narrows a value and Merge only widens it, so iteration over
// a finite location universe terminates.
type LocationValue struct {
	full bool
	locs *LocationSet
}

// FullValue returns the top element: every location is reachable.
func FullValue(oracle AliasOracle) LocationValue {
	return LocationValue{full: true, locs: NewLocationSet(oracle)}
}

// EmptyValue returns the bottom element: no location is reachable.
func EmptyValue(oracle AliasOracle) LocationValue {
	return LocationValue{locs: NewLocationSet(oracle)}
}

// IsFull reports whether the value is the optimistic placeholder.
func (v LocationValue) IsFull() bool { return v.full }

// Contains reports whether loc is certainly in the value.
func (v LocationValue) Contains(loc MemoryLocation) bool {
	return v.full || v.locs.Contains(loc)
}

// Overlaps reports whether loc may alias the value.
func (v LocationValue) Overlaps(loc MemoryLocation) bool {
	return v.full || v.locs.Overlaps(loc)
}

// Locations returns the concrete members. Meaningless for the full value.
func (v LocationValue) Locations() []MemoryLocation { return v.locs.Locations() }

// Intersect narrows v to its intersection with o and reports whether v
// changed. Intersecting with the full value is the identity, so an unvisited
// predecessor never erases information from a visited one.
func (v *LocationValue) Intersect(o LocationValue) bool {
	if o.full {
		return false
	}
	if v.full {
		v.full = false
		v.locs = v.locs.emptyLike()
		v.locs.InsertAll(o.locs)
		return true
	}

	kept := v.locs.emptyLike()
	changed := false
	for _, loc := range v.locs.Locations() {
		if o.locs.Contains(loc) {
			kept.Insert(loc)
		} else {
			changed = true
		}
	}
	if changed {
		v.locs = kept
	}
	return changed
}

// Merge widens v to its union with o and reports whether v changed.
func (v *LocationValue) Merge(o LocationValue) bool {
	if v.full {
		return false
	}
	if o.full {
		v.full = true
		return true
	}
	return v.locs.InsertAll(o.locs)
}

// MergeSet inserts every member of s and reports whether v changed.
func (v *LocationValue) MergeSet(s *LocationSet) bool {
	if v.full {
		return false
	}
	return v.locs.InsertAll(s)
}

// Fill widens v to the full value.
func (v *LocationValue) Fill() bool {
	if v.full {
		return false
	}
	v.full = true
	return true
}

// Equal reports whether v and o denote the same set of locations, at must
// granularity.
func (v LocationValue) Equal(o LocationValue) bool {
	if v.full != o.full {
		return false
	}
	if v.full {
		return true
	}
	for _, loc := range v.locs.Locations() {
		if !o.locs.Contains(loc) {
			return false
		}
	}
	for _, loc := range o.locs.Locations() {
		if !v.locs.Contains(loc) {
			return false
		}
	}
	return true
}

func (v LocationValue) clone() LocationValue {
	c := LocationValue{full: v.full, locs: v.locs.emptyLike()}
	c.locs.InsertAll(v.locs)
	return c
}

// DefinitionInfo carries the two reaching definitions facts at one program
// point. MustReach is always a subset of MayReach, in the may-overlap sense,
// once the fixpoint converges.
type DefinitionInfo struct {
	MustReach LocationValue
	MayReach  LocationValue
}

// ReachingInfo is the per node data-flow value: definition information at
// the node's entry and exit.
type ReachingInfo struct {
	In  DefinitionInfo
	Out DefinitionInfo
}
