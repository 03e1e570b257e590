package defmem

import "golang.org/x/tools/go/ssa"

// AliasOracle answers aliasing queries between memory location descriptors.
// The engine never decides aliasing itself; every set operation consults the
// oracle. Implementations must be safe for concurrent read when analysis
// sessions run in parallel.
type AliasOracle interface {
	// MayOverlap reports whether a and b may refer to overlapping storage.
	MayOverlap(a, b MemoryLocation) bool
	// MustEqual reports whether a and b are certainly the same access.
	MustEqual(a, b MemoryLocation) bool
}

// BaseOracle resolves aliasing from base pointer identity alone: identical
// descriptors are equal, locations rooted in distinct allocation sites are
// disjoint, fields of the same struct at different indices are disjoint, and
// everything else conservatively may overlap.
//
// It answers no inter-procedural questions; wrap a whole-program points-to
// result (see the ptroracle package) when more precision is needed.
type BaseOracle struct{}

func (BaseOracle) MustEqual(a, b MemoryLocation) bool {
	return a == b && a.Ptr != nil
}

func (o BaseOracle) MayOverlap(a, b MemoryLocation) bool {
	if a.Ptr == nil || b.Ptr == nil {
		return false
	}
	if a.Ptr == b.Ptr {
		// Same base pointer. Reinterpreted widths share storage, so tags do
		// not disambiguate.
		return true
	}

	ra, pa := root(a.Ptr)
	rb, pb := root(b.Ptr)

	if isAllocationSite(ra) && isAllocationSite(rb) && ra != rb {
		// Distinct allocation sites never produce overlapping objects.
		return false
	}

	if ra == rb && disjointPaths(pa, pb) {
		return false
	}

	return true
}

// root strips address computations off a pointer and returns the underlying
// base together with the chain of instructions that was stripped, outermost
// first.
func root(v ssa.Value) (ssa.Value, []ssa.Instruction) {
	var path []ssa.Instruction
	for {
		switch t := v.(type) {
		case *ssa.FieldAddr:
			path = append(path, t)
			v = t.X
		case *ssa.IndexAddr:
			path = append(path, t)
			v = t.X
		case *ssa.Slice:
			path = append(path, t)
			v = t.X
		case *ssa.ChangeType:
			v = t.X
		default:
			return v, path
		}
	}
}

func isAllocationSite(v ssa.Value) bool {
	switch v.(type) {
	case *ssa.Alloc, *ssa.Global:
		return true
	}
	return false
}

// disjointPaths reports whether two address computations rooted in the same
// object certainly select disjoint storage. Only the simple case of two
// field selections at different indices on the same base is recognised.
func disjointPaths(a, b []ssa.Instruction) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	fa, ok := a[0].(*ssa.FieldAddr)
	if !ok {
		return false
	}
	fb, ok := b[0].(*ssa.FieldAddr)
	if !ok {
		return false
	}
	return fa.X == fb.X && fa.Field != fb.Field
}
