// Package defmem determines must and may defined memory locations for each
// natural loop of a function, the facts needed to decide which locations are
// safe to privatize when the loop runs in parallel.
//
// The analysis works on Go SSA form (golang.org/x/tools/go/ssa) and is
// hierarchical: every loop is summarised bottom-up into a single collapsed
// node, so nested loop bodies are traversed once regardless of nesting
// depth. Aliasing questions are delegated to an AliasOracle supplied by the
// caller; imprecision is never an error, only a conservative result.
package defmem

import (
	"errors"
	"go/types"
	"log"

	"golang.org/x/tools/go/ssa"
)

func init() {
	log.SetFlags(log.Ltime | log.Lshortfile)
}

var ErrNoBody = errors.New("function has no body")

// Config configures one analysis session. Zero values select the
// conservative defaults.
type Config struct {
	// Oracle answers aliasing queries; BaseOracle when nil.
	Oracle AliasOracle

	// Signatures maps known callees to their memory effects;
	// DefaultSignatures() when nil.
	Signatures *SignatureDB

	// Sizes computes location extents; 64-bit gc sizes when nil.
	Sizes types.Sizes
}

// session owns all state of one function's analysis: the region graph and
// the two side tables keyed by node index. Nothing is shared between
// sessions, so functions may be analysed in parallel as long as the oracle
// and the signature database tolerate concurrent reads.
type session struct {
	fn     *ssa.Function
	graph  *Graph
	oracle AliasOracle

	defUse []*DefUseSet    // block nodes only, by node index
	info   []*ReachingInfo // by node index
}

// Analyze runs the defined-memory analysis on fn.
func Analyze(fn *ssa.Function, config Config) (*Result, error) {
	if fn == nil {
		log.Panicf("function must not be nil")
	}
	if len(fn.Blocks) == 0 {
		return nil, ErrNoBody
	}

	oracle := config.Oracle
	if oracle == nil {
		oracle = BaseOracle{}
	}
	sigs := config.Signatures
	if sigs == nil {
		sigs = DefaultSignatures()
	}
	sizes := config.Sizes
	if sizes == nil {
		sizes = types.SizesFor("gc", "amd64")
	}

	s := &session{
		fn:     fn,
		graph:  BuildGraph(fn),
		oracle: oracle,
	}

	cl := &Classifier{Signatures: sigs, Sizes: sizes}

	s.defUse = make([]*DefUseSet, len(s.graph.Nodes))
	s.info = make([]*ReachingInfo, len(s.graph.Nodes))
	for _, n := range s.graph.Nodes {
		if n.Block != nil {
			s.defUse[n.Index] = buildDefUse(n.Block, cl, oracle)
		}
	}

	s.solveRegion(s.graph.Root)

	return &Result{graph: s.graph, defUse: s.defUse, info: s.info}, nil
}
