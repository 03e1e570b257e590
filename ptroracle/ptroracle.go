// Package ptroracle backs an alias oracle with a whole-program
// inclusion-based points-to analysis. Two locations may overlap when the
// points-to sets of their base pointers intersect; everything the points-to
// analysis has no answer for falls back to the conservative base rules.
package ptroracle

import (
	"golang.org/x/tools/go/pointer"
	"golang.org/x/tools/go/ssa"

	"github.com/loopsafe/defmem"
)

// compPtr identifies an abstract object: its allocation site and the access
// path within it.
type compPtr struct {
	site ssa.Value
	path string
}

type Oracle struct {
	base    defmem.BaseOracle
	objects map[ssa.Value]map[compPtr]struct{}
}

// New runs the points-to analysis rooted at mains and registers a query for
// every pointer-like value of the given functions. The returned oracle is
// read-only and safe for concurrent use by parallel analysis sessions.
func New(mains []*ssa.Package, fns ...*ssa.Function) (*Oracle, error) {
	config := &pointer.Config{Mains: mains}

	addQuery := func(v ssa.Value) {
		if defmem.PointerLike(v.Type()) && pointer.CanPoint(v.Type()) {
			config.AddQuery(v)
		}
	}

	for _, fn := range fns {
		for _, param := range fn.Params {
			addQuery(param)
		}
		for _, fv := range fn.FreeVars {
			addQuery(fv)
		}
		for _, block := range fn.Blocks {
			for _, insn := range block.Instrs {
				switch val := insn.(type) {
				case *ssa.Range: // has degenerate type
				case ssa.Value:
					addQuery(val)
				}
			}
		}
	}

	res, err := pointer.Analyze(config)
	if err != nil {
		return nil, err
	}

	objects := make(map[ssa.Value]map[compPtr]struct{}, len(res.Queries))
	for v, ptr := range res.Queries {
		set := make(map[compPtr]struct{})
		for _, label := range ptr.PointsTo().Labels() {
			if site := label.Value(); site != nil {
				set[compPtr{site, label.Path()}] = struct{}{}
			}
		}
		objects[v] = set
	}

	return &Oracle{objects: objects}, nil
}

func (o *Oracle) MustEqual(a, b defmem.MemoryLocation) bool {
	return o.base.MustEqual(a, b)
}

func (o *Oracle) MayOverlap(a, b defmem.MemoryLocation) bool {
	if !o.base.MayOverlap(a, b) {
		return false
	}
	if a.Ptr == b.Ptr {
		return true
	}

	pa, oka := o.objects[a.Ptr]
	pb, okb := o.objects[b.Ptr]
	if !oka || !okb {
		// No points-to answer for one of the bases; keep the base verdict.
		return true
	}

	for obj := range pa {
		if _, shared := pb[obj]; shared {
			return true
		}
	}
	return false
}
