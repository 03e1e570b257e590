package defmem

import (
	"fmt"
	"log"

	"golang.org/x/tools/go/ssa"
)

// This file builds the hierarchical region graph over a function's CFG.
// A region is a natural loop or the function body; its interior holds basic
// block nodes and one representative node per directly nested region. All
// analysis state is kept in side tables keyed by Node.Index, never on the
// graph itself.

// Node is one vertex of a region's interior graph: either a basic block or
// the representative of a nested, collapsible region.
type Node struct {
	Index  int
	Block  *ssa.BasicBlock // nil for region representatives
	Region *Region         // the represented region, nil for blocks
	Parent *Region
	Preds  []*Node
	Succs  []*Node
}

func (n *Node) String() string {
	if n.Region != nil {
		return fmt.Sprintf("region(%s)", n.Region)
	}
	return fmt.Sprintf("block %d", n.Block.Index)
}

// Region is a collapsible unit of the hierarchy. It starts open; the engine
// collapses it exactly once per analysis session by storing the summary
// DefUseSet that stands in for its whole interior.
type Region struct {
	// Node represents this region in the parent's interior; nil for the
	// function body.
	Node   *Node
	Parent *Region
	// Header is the loop header block; nil for the function body.
	Header *ssa.BasicBlock
	// Entry is the interior node control enters through.
	Entry *Node
	// Nodes is the interior in discovery order.
	Nodes []*Node
	// Exits are the interior nodes with an edge leaving the region,
	// including blocks that terminate the function.
	Exits    []*Node
	Children []*Region

	depth     int
	summary   *DefUseSet
	collapsed bool
}

func (r *Region) String() string {
	if r.Header == nil {
		return "body"
	}
	return fmt.Sprintf("loop@%d", r.Header.Index)
}

// IsLoop reports whether the region is a natural loop rather than the
// function body.
func (r *Region) IsLoop() bool { return r.Header != nil }

// Collapsed reports whether the region was already replaced by a summary.
func (r *Region) Collapsed() bool { return r.collapsed }

// Collapse closes the region with its summary. Collapsing twice is a
// contract violation.
func (r *Region) Collapse(summary *DefUseSet) {
	if summary == nil {
		log.Panicf("summary of %s must not be nil", r)
	}
	if r.collapsed {
		log.Panicf("%s is already collapsed", r)
	}
	r.summary = summary
	r.collapsed = true
}

// Summary returns the DefUseSet standing in for the collapsed interior.
// Querying an open region is a contract violation.
func (r *Region) Summary() *DefUseSet {
	if !r.collapsed {
		log.Panicf("%s has not been collapsed", r)
	}
	return r.summary
}

// Graph is the region decomposition of one function's CFG. Node indices are
// stable for the graph's lifetime.
type Graph struct {
	Fn    *ssa.Function
	Nodes []*Node
	Root  *Region

	byBlock map[*ssa.BasicBlock]*Node
}

// BlockNode returns the node wrapping b.
func (g *Graph) BlockNode(b *ssa.BasicBlock) *Node { return g.byBlock[b] }

// natLoop is a natural loop during discovery, before regions exist.
type natLoop struct {
	header *ssa.BasicBlock
	blocks map[*ssa.BasicBlock]bool
	parent *natLoop
	region *Region
}

// BuildGraph decomposes fn's CFG into nested loop regions. Back edges are
// edges whose head dominates their tail; the loop body is every block that
// reaches the latch without passing the header. Irreducible control flow is
// not expected from Go source.
func BuildGraph(fn *ssa.Function) *Graph {
	if fn == nil || len(fn.Blocks) == 0 {
		log.Panicf("cannot build a region graph without a function body")
	}

	loops := findLoops(fn)

	g := &Graph{
		Fn:      fn,
		Root:    &Region{},
		byBlock: make(map[*ssa.BasicBlock]*Node, len(fn.Blocks)),
	}

	// Regions, outermost first so parents exist before children.
	for _, l := range loops {
		parent := g.Root
		if l.parent != nil {
			parent = l.parent.region
		}
		l.region = &Region{
			Parent: parent,
			Header: l.header,
			depth:  parent.depth + 1,
		}
		parent.Children = append(parent.Children, l.region)
	}

	// One node per block, owned by the innermost containing region, plus
	// one representative node per loop region in its parent.
	innermost := func(b *ssa.BasicBlock) *Region {
		var best *natLoop
		for _, l := range loops {
			if l.blocks[b] && (best == nil || len(l.blocks) < len(best.blocks)) {
				best = l
			}
		}
		if best == nil {
			return g.Root
		}
		return best.region
	}

	for _, b := range fn.Blocks {
		r := innermost(b)
		n := g.newNode(r)
		n.Block = b
		g.byBlock[b] = n
	}
	for _, l := range loops {
		n := g.newNode(l.region.Parent)
		n.Region = l.region
		l.region.Node = n
		l.region.Entry = g.byBlock[l.header]
	}
	g.Root.Entry = g.repIn(g.byBlock[fn.Blocks[0]], g.Root)

	// Rewire CFG edges to region-level edges.
	for _, b := range fn.Blocks {
		nb := g.byBlock[b]
		for _, s := range b.Succs {
			g.connect(nb, g.byBlock[s])
		}
		if len(b.Succs) == 0 {
			g.markExits(nb, nil)
		}
	}

	return g
}

func (g *Graph) newNode(parent *Region) *Node {
	n := &Node{Index: len(g.Nodes), Parent: parent}
	g.Nodes = append(g.Nodes, n)
	parent.Nodes = append(parent.Nodes, n)
	return n
}

// repIn returns the node standing for n inside region r: n itself when n's
// region is r, otherwise the representative of the topmost enclosing region
// directly inside r.
func (g *Graph) repIn(n *Node, r *Region) *Node {
	for n.Parent != r {
		if n.Parent.Node == nil {
			log.Panicf("%s is not enclosed by %s", n, r)
		}
		n = n.Parent.Node
	}
	return n
}

// connect maps the CFG edge nb -> ns to an edge between representatives in
// the deepest region containing both, recording region exits crossed on the
// way out.
func (g *Graph) connect(nb, ns *Node) {
	l := commonRegion(nb.Parent, ns.Parent)
	g.markExits(nb, l)
	src := g.repIn(nb, l)
	dst := g.repIn(ns, l)
	addEdge(src, dst)
}

// markExits records nb's representative as an exit of every region it
// leaves on the way up to limit. A nil limit marks function-terminating
// blocks as exits of every enclosing region.
func (g *Graph) markExits(nb *Node, limit *Region) {
	for n := nb; n.Parent != limit; {
		r := n.Parent
		if !containsNode(r.Exits, n) {
			r.Exits = append(r.Exits, n)
		}
		if r.Node == nil {
			break
		}
		n = r.Node
	}
}

func commonRegion(a, b *Region) *Region {
	for a.depth > b.depth {
		a = a.Parent
	}
	for b.depth > a.depth {
		b = b.Parent
	}
	for a != b {
		a, b = a.Parent, b.Parent
	}
	return a
}

func addEdge(src, dst *Node) {
	if !containsNode(src.Succs, dst) {
		src.Succs = append(src.Succs, dst)
		dst.Preds = append(dst.Preds, src)
	}
}

func containsNode(l []*Node, n *Node) bool {
	for _, x := range l {
		if x == n {
			return true
		}
	}
	return false
}

// findLoops discovers the natural loops of fn, innermost nesting resolved,
// ordered outermost first.
func findLoops(fn *ssa.Function) []*natLoop {
	var loops []*natLoop
	byHeader := make(map[*ssa.BasicBlock]*natLoop)

	for _, b := range fn.Blocks {
		for _, s := range b.Succs {
			if !s.Dominates(b) {
				continue
			}
			// Back edge b -> s.
			l := byHeader[s]
			if l == nil {
				l = &natLoop{header: s, blocks: map[*ssa.BasicBlock]bool{s: true}}
				byHeader[s] = l
				loops = append(loops, l)
			}
			// Everything reaching the latch without passing the header is in
			// the loop.
			stack := []*ssa.BasicBlock{b}
			for len(stack) > 0 {
				x := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if l.blocks[x] {
					continue
				}
				l.blocks[x] = true
				stack = append(stack, x.Preds...)
			}
		}
	}

	// Nesting: the parent is the smallest other loop containing the header.
	for _, l := range loops {
		for _, o := range loops {
			if o == l || !o.blocks[l.header] {
				continue
			}
			if l.parent == nil || len(o.blocks) < len(l.parent.blocks) {
				l.parent = o
			}
		}
	}

	// Outermost first.
	ordered := make([]*natLoop, 0, len(loops))
	var emit func(parent *natLoop)
	emit = func(parent *natLoop) {
		for _, l := range loops {
			if l.parent == parent {
				ordered = append(ordered, l)
				emit(l)
			}
		}
	}
	emit(nil)
	return ordered
}
