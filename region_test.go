package defmem_test

import (
	"testing"

	"github.com/loopsafe/defmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nestedLoops = `
	package main

	func main() {
		var i, j, s int
		for {
			j = 0
			for {
				s += j
				j++
				if j >= 3 {
					break
				}
			}
			i++
			if i >= 3 {
				break
			}
		}
		_ = s
	}`

func TestBuildGraph(t *testing.T) {
	t.Run("StraightLine", func(t *testing.T) {
		fn := buildMain(t, `
			package main

			func main() {
				var a int
				a = 1
				_ = a
			}`)

		g := defmem.BuildGraph(fn)
		assert.Empty(t, g.Root.Children)
		assert.False(t, g.Root.IsLoop())
		assert.Len(t, g.Nodes, len(fn.Blocks))
		for _, b := range fn.Blocks {
			n := g.BlockNode(b)
			require.NotNil(t, n)
			assert.Same(t, b, n.Block)
		}
		assert.Same(t, g.BlockNode(fn.Blocks[0]), g.Root.Entry)
	})

	t.Run("NestedLoops", func(t *testing.T) {
		fn := buildMain(t, nestedLoops)

		g := defmem.BuildGraph(fn)
		// One node per block plus one representative per loop.
		assert.Len(t, g.Nodes, len(fn.Blocks)+2)

		require.Len(t, g.Root.Children, 1)
		outer := g.Root.Children[0]
		require.Len(t, outer.Children, 1)
		inner := outer.Children[0]

		for _, r := range []*defmem.Region{outer, inner} {
			assert.True(t, r.IsLoop())
			require.NotNil(t, r.Entry)
			assert.Same(t, r.Header, r.Entry.Block)
			assert.NotEmpty(t, r.Exits)
			assert.False(t, r.Collapsed())
		}

		assert.Same(t, g.Root, outer.Parent)
		assert.Same(t, outer, inner.Parent)
		assert.Same(t, outer, inner.Node.Parent,
			"the inner representative lives in the outer interior")
	})
}

func TestLoopsOrder(t *testing.T) {
	fn := buildMain(t, nestedLoops)
	res := analyze(t, fn)

	loops := res.Loops()
	require.Len(t, loops, 2)
	assert.Same(t, res.Graph().Root, loops[0].Parent, "outermost first")
	assert.Same(t, loops[0], loops[1].Parent)
}

func TestCollapse(t *testing.T) {
	fn := buildMain(t, nestedLoops)
	res := analyze(t, fn)

	for _, r := range res.Loops() {
		assert.True(t, r.Collapsed())
		require.Same(t, r.Summary(), r.Summary(),
			"collapsing is final; the summary never changes identity")
		assert.Panics(t, func() { r.Collapse(r.Summary()) })
	}
	assert.True(t, res.Graph().Root.Collapsed())

	t.Run("OpenRegionPanics", func(t *testing.T) {
		g := defmem.BuildGraph(fn)
		require.Len(t, g.Root.Children, 1)
		assert.Panics(t, func() { g.Root.Children[0].Summary() })
	})
}

func TestNestedLoopSummaries(t *testing.T) {
	fn := buildMain(t, nestedLoops)
	res := analyze(t, fn)

	outer := res.Loops()[0]
	inner := res.Loops()[1]

	j := localLoc(t, fn, "j")
	s := localLoc(t, fn, "s")
	i := localLoc(t, fn, "i")

	// The inner loop increments j and accumulates into s; both reads take
	// their first value from outside it.
	isum := inner.Summary()
	assert.True(t, isum.HasDef(j))
	assert.True(t, isum.HasDef(s))
	assert.True(t, isum.HasUse(j))
	assert.True(t, isum.HasUse(s))
	assert.False(t, isum.HasMayDef(i))

	// At the outer level j is reset before the inner loop runs, so its use
	// is satisfied inside the outer body.
	osum := outer.Summary()
	assert.True(t, osum.HasDef(j))
	assert.True(t, osum.HasDef(i))
	assert.False(t, osum.HasUse(j))
	assert.True(t, osum.HasUse(i))
}
