package defmem

import "log"

// Result exposes the facts computed by one analysis session. It is
// read-only; all sets it hands out are owned by the session and must not be
// mutated by the caller.
type Result struct {
	graph  *Graph
	defUse []*DefUseSet
	info   []*ReachingInfo
}

// Graph returns the region graph the analysis ran over.
func (r *Result) Graph() *Graph { return r.graph }

// DefUse returns the def-use summary of a node: the per block facts for
// block nodes, the collapse summary for region representatives.
func (r *Result) DefUse(n *Node) *DefUseSet {
	if n == nil {
		log.Panicf("node must not be nil")
	}
	if n.Region != nil {
		return n.Region.Summary()
	}
	du := r.defUse[n.Index]
	if du == nil {
		log.Panicf("def-use set of %s was not computed", n)
	}
	return du
}

// Reaching returns the definition information at n's entry and exit.
// Values at interior nodes of a loop are relative to the loop's entry.
func (r *Result) Reaching(n *Node) *ReachingInfo {
	if n == nil {
		log.Panicf("node must not be nil")
	}
	ri := r.info[n.Index]
	if ri == nil {
		log.Panicf("reaching information of %s was not computed", n)
	}
	return ri
}

// FunctionSummary returns the collapse summary of the whole function body.
func (r *Result) FunctionSummary() *DefUseSet {
	return r.graph.Root.Summary()
}

// Loops returns every loop region of the function, outermost first.
func (r *Result) Loops() []*Region {
	var loops []*Region
	var walk func(re *Region)
	walk = func(re *Region) {
		if re.IsLoop() {
			loops = append(loops, re)
		}
		for _, c := range re.Children {
			walk(c)
		}
	}
	walk(r.graph.Root)
	return loops
}
