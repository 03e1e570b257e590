package defmem

import (
	"log"

	"github.com/loopsafe/defmem/internal/maps"
	"golang.org/x/tools/go/ssa"
)

// LoopTraits classifies the locations a loop accesses explicitly by how they
// may be handled when the loop runs in parallel. Absence from every
// privatizable bucket is the conservative signal that privatization is
// unsafe; the analysis never reports failure.
type LoopTraits struct {
	Region *Region

	// Private locations are defined on every path through an iteration
	// before any use, so each task can own an uninitialised copy.
	Private []MemoryLocation

	// FirstPrivate locations have outward exposed uses: a private copy must
	// start from the value the location held before the loop (or the
	// previous iteration).
	FirstPrivate []MemoryLocation

	// LastPrivate locations are defined on every exit path; the copy of the
	// final iteration must be written back, since the value may be live
	// after the loop. Liveness itself is not checked here; consumers prune
	// candidates with their own liveness facts.
	LastPrivate []MemoryLocation

	// Shared locations may be written on some path only, so no copy
	// discipline is sound and they must stay shared.
	Shared []MemoryLocation

	// ReadOnly locations are used but never written inside the loop.
	ReadOnly []MemoryLocation

	// AddressTaken lists pointers whose address is evaluated inside the
	// loop; their original storage must stay addressable even when
	// privatized.
	AddressTaken []ssa.Value
}

// ClassifyLoop derives the privatization candidates of a collapsed loop
// region from its summary. Note that the classification is per memory
// location, not per source variable: a reinterpreted-width access (for
// example a narrow view into a wider variable) classifies only the accessed
// extent, and a consumer mapping locations back to variables must keep the
// enclosing variable first-private to preserve its pre-loop value.
func ClassifyLoop(res *Result, r *Region) LoopTraits {
	if r == nil || !r.IsLoop() {
		log.Panicf("loop region expected")
	}
	sum := r.Summary()

	tr := LoopTraits{Region: r}
	for _, loc := range sum.ExplicitAccesses().Locations() {
		mustDef := sum.Defs().Contains(loc)
		mayDef := sum.HasMayDef(loc)
		used := sum.HasUse(loc)

		// No oracle can separate loc from an opaque footprint, so a private
		// copy could miss writes the loop still performs, and an opaque read
		// could miss writes a private copy hides.
		if sum.MayWriteUnknown() || (sum.MayReadUnknown() && mayDef) {
			tr.Shared = append(tr.Shared, loc)
			continue
		}

		switch {
		case mustDef && !used:
			tr.Private = append(tr.Private, loc)
			tr.LastPrivate = append(tr.LastPrivate, loc)
		case mustDef && used:
			tr.FirstPrivate = append(tr.FirstPrivate, loc)
			tr.LastPrivate = append(tr.LastPrivate, loc)
		case mayDef:
			tr.Shared = append(tr.Shared, loc)
		case used:
			tr.ReadOnly = append(tr.ReadOnly, loc)
		}
	}

	tr.AddressTaken = maps.Keys(sum.AddressAccesses())
	return tr
}
