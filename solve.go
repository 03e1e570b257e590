package defmem

import (
	"github.com/loopsafe/defmem/internal/queue"
)

// The data-flow problem is solved in forward direction, one region at a
// time, innermost loops first. Before a region's fixpoint runs, all of its
// nested regions are already collapsed, so their representatives transfer
// like ordinary nodes through their summary DefUseSets. This keeps deeply
// nested loop bodies from being rewalked once per enclosing level.
//
// The approach follows the defined-memory framework of Tu and Padua's
// automatic array privatization.

// nodeDefUse returns the facts a node transfers with: the block summary for
// block nodes, the region summary for representatives.
func (s *session) nodeDefUse(n *Node) *DefUseSet {
	if n.Region != nil {
		return n.Region.Summary()
	}
	return s.defUse[n.Index]
}

// solveRegion runs the engine over r's interior, children first.
func (s *session) solveRegion(r *Region) {
	for _, child := range r.Children {
		s.solveRegion(child)
	}

	order := s.rpo(r)

	for _, n := range order {
		s.info[n.Index] = &ReachingInfo{
			In:  s.topElement(),
			Out: s.topElement(),
		}
	}

	var work queue.Worklist[*Node]
	for _, n := range order {
		work.Push(n)
	}

	for !work.Empty() {
		n := work.Pop()
		ri := s.info[n.Index]

		ri.In = s.meet(r, n)
		out := s.transfer(n, ri.In)

		if out.MustReach.Equal(ri.Out.MustReach) && out.MayReach.Equal(ri.Out.MayReach) {
			continue
		}
		ri.Out = out
		for _, succ := range n.Succs {
			work.Push(succ)
		}
	}

	s.collapse(r)
}

// topElement is the pre-initialization placeholder: every location assumed
// must-reaching, so that intersection only narrows it down as real
// predecessors are processed, and nothing assumed may-reaching.
func (s *session) topElement() DefinitionInfo {
	return DefinitionInfo{
		MustReach: FullValue(s.oracle),
		MayReach:  EmptyValue(s.oracle),
	}
}

// boundaryCondition holds at the region entry: nothing is known to reach
// before any code of the region executes.
func (s *session) boundaryCondition() DefinitionInfo {
	return DefinitionInfo{
		MustReach: EmptyValue(s.oracle),
		MayReach:  EmptyValue(s.oracle),
	}
}

// meet combines the OUT values of n's predecessors within r: a location is
// must-reaching at a join only when it is must-reaching on every incoming
// path, and may-reaching when it may reach on any.
func (s *session) meet(r *Region, n *Node) DefinitionInfo {
	var in DefinitionInfo
	if n == r.Entry {
		// Back edges still meet into the loop header, so uses in the first
		// iteration stay outward exposed while MayReach carries facts from
		// previous iterations.
		in = s.boundaryCondition()
	} else {
		in = s.topElement()
	}

	for _, pred := range n.Preds {
		po := s.info[pred.Index].Out
		in.MustReach.Intersect(po.MustReach)
		in.MayReach.Merge(po.MayReach)
	}
	return in
}

// transfer applies one node's summary:
//
//	OUT.MustReach = (IN.MustReach \ MayDefs) ∪ Defs
//	OUT.MayReach  = IN.MayReach ∪ IN.MustReach ∪ MayDefs
//
// A must write kills prior reaching facts for overlapping locations at the
// must level; a may write never strengthens MustReach. A node with an
// unknown write acts as a may definition of every location not provably
// disjoint from it.
func (s *session) transfer(n *Node, in DefinitionInfo) DefinitionInfo {
	du := s.nodeDefUse(n)

	var out DefinitionInfo

	out.MustReach = EmptyValue(s.oracle)
	if in.MustReach.IsFull() {
		out.MustReach = FullValue(s.oracle)
	} else if !du.MayWriteUnknown() {
		for _, loc := range in.MustReach.Locations() {
			if !du.HasMayDef(loc) {
				out.MustReach.locs.Insert(loc)
			}
		}
	}
	out.MustReach.MergeSet(du.Defs())

	out.MayReach = in.MayReach.clone()
	out.MayReach.Merge(in.MustReach)
	out.MayReach.MergeSet(du.MayDefs())
	if du.MayWriteUnknown() {
		out.MayReach.Fill()
	}

	return out
}

// collapse computes the summary that represents r in its parent: locations
// must-defined on every exit path become must defs, anything defined
// anywhere inside becomes a may def, and interior uses not satisfied by an
// earlier interior must def stay outward exposed.
func (s *session) collapse(r *Region) {
	sum := NewDefUseSet(s.oracle)

	exitDefs := FullValue(s.oracle)
	for _, e := range r.Exits {
		exitDefs.Intersect(s.info[e.Index].Out.MustReach)
	}
	if !exitDefs.IsFull() {
		for _, loc := range exitDefs.Locations() {
			sum.AddDef(loc)
			sum.AddMayDef(loc)
		}
	}

	for _, n := range r.Nodes {
		du := s.nodeDefUse(n)
		in := s.info[n.Index].In

		sum.mayDefs.InsertAll(du.MayDefs())
		for _, use := range du.Uses().Locations() {
			if !in.MustReach.Contains(use) {
				sum.AddUse(use)
			}
		}

		sum.explicit.InsertAll(du.ExplicitAccesses())
		for ptr := range du.AddressAccesses() {
			sum.AddAddressAccess(ptr)
		}
		for i := range du.UnknownInsts() {
			sum.AddUnknownInst(i, may(du.unknownReads), may(du.unknownWrites))
		}
	}

	// An interior unknown read may observe the region-incoming value of any
	// location the region accesses, unless the value is certainly shadowed
	// on every path to the reading node.
	for _, n := range r.Nodes {
		du := s.nodeDefUse(n)
		if !du.MayReadUnknown() {
			continue
		}
		in := s.info[n.Index].In
		for _, loc := range sum.explicit.Locations() {
			if !in.MustReach.Contains(loc) {
				sum.AddUse(loc)
			}
		}
	}

	r.Collapse(sum)
}

// rpo lists r's interior in reverse postorder from its entry. Nodes only
// reachable through a path the builder could not order (none for reducible
// CFGs) are appended at the end.
func (s *session) rpo(r *Region) []*Node {
	seen := make(map[*Node]bool, len(r.Nodes))
	var post []*Node

	var visit func(n *Node)
	visit = func(n *Node) {
		seen[n] = true
		for _, succ := range n.Succs {
			if !seen[succ] {
				visit(succ)
			}
		}
		post = append(post, n)
	}
	visit(r.Entry)

	order := make([]*Node, 0, len(r.Nodes))
	for i := len(post) - 1; i >= 0; i-- {
		order = append(order, post[i])
	}
	for _, n := range r.Nodes {
		if !seen[n] {
			order = append(order, n)
		}
	}
	return order
}
