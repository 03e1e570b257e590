package defmem_test

import (
	"testing"

	"github.com/loopsafe/defmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"
)

// loadOf finds the first load of the named local and wraps the loaded value
// in a location descriptor.
func loadOf(t *testing.T, fn *ssa.Function, name string) defmem.MemoryLocation {
	t.Helper()

	for _, block := range fn.Blocks {
		for _, insn := range block.Instrs {
			if load, ok := insn.(*ssa.UnOp); ok {
				if alloc, ok := load.X.(*ssa.Alloc); ok && alloc.Comment == name {
					return defmem.Location(load, testSizes)
				}
			}
		}
	}
	t.Fatalf("no load of %q in %v", name, fn)
	return defmem.MemoryLocation{}
}

func TestClassifier(t *testing.T) {
	t.Run("ChannelSend", func(t *testing.T) {
		fn := buildMain(t, `
			package main

			func main() {
				ch := make(chan int, 1)
				ch <- 1
			}`)

		res := analyze(t, fn)
		du := res.DefUse(res.Graph().BlockNode(fn.Blocks[0]))

		assert.Len(t, du.UnknownInsts(), 1,
			"a send touches channel internals the analysis cannot name")
		assert.True(t, du.MayWriteUnknown())
	})

	t.Run("MapRead", func(t *testing.T) {
		fn := buildMain(t, `
			package main

			func main() {
				m := make(map[int]int)
				v := m[1]
				_ = v
			}`)

		res := analyze(t, fn)
		du := res.DefUse(res.Graph().BlockNode(fn.Blocks[0]))

		require.Len(t, du.UnknownInsts(), 1)
		assert.False(t, du.MayWriteUnknown(),
			"a map lookup reads but never writes")
	})

	t.Run("ReturnWithoutDefers", func(t *testing.T) {
		// The builder emits a RunDefers before every return; with nothing
		// deferred it must not count as an opaque access.
		fn := buildMain(t, `
			package main

			func main() {
				a := make([]int, 1)
				a[0] = 1
				print(a)
			}`)

		res := analyze(t, fn)
		du := res.DefUse(res.Graph().BlockNode(fn.Blocks[0]))

		assert.Empty(t, du.UnknownInsts())
		assert.False(t, du.MayWriteUnknown())
		assert.False(t, du.MayReadUnknown())
	})

	t.Run("ReturnWithDefers", func(t *testing.T) {
		fn := buildMain(t, `
			package main

			func main() {
				a := make([]int, 1)
				defer print(a)
				a[0] = 1
			}`)

		res := analyze(t, fn)
		du := res.DefUse(res.Graph().BlockNode(fn.Blocks[0]))

		assert.Len(t, du.UnknownInsts(), 1,
			"the deferred call runs at the return with an unclassified footprint")
		assert.True(t, du.MayWriteUnknown())
	})

	t.Run("CopyBuiltin", func(t *testing.T) {
		fn := buildMain(t, `
			package main

			func main() {
				a := make([]int, 2)
				b := make([]int, 2)
				copy(b, a)
			}`)

		res := analyze(t, fn)
		du := res.DefUse(res.Graph().BlockNode(fn.Blocks[0]))

		assert.Empty(t, du.UnknownInsts(),
			"copy has a precise argument footprint")
		assert.True(t, du.HasMayDef(loadOf(t, fn, "b")))
		assert.True(t, du.HasUse(loadOf(t, fn, "a")))
		assert.False(t, du.HasDef(loadOf(t, fn, "b")),
			"copy may write less than the whole destination")
	})
}
