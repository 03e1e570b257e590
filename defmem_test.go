package defmem_test

import (
	"testing"

	"github.com/loopsafe/defmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeErrors(t *testing.T) {
	fn := buildMain(t, `
		package main

		func ext(p *int)

		func main() {
			var a int
			ext(&a)
		}`)

	ext := fn.Pkg.Func("ext")
	require.NotNil(t, ext)
	require.Empty(t, ext.Blocks)

	_, err := defmem.Analyze(ext, defmem.Config{})
	assert.ErrorIs(t, err, defmem.ErrNoBody)

	assert.Panics(t, func() { defmem.Analyze(nil, defmem.Config{}) })
}

func TestResultContracts(t *testing.T) {
	fn := buildMain(t, `
		package main

		func main() {
			var a int
			a = 1
			_ = a
		}`)

	res := analyze(t, fn)
	assert.Panics(t, func() { res.DefUse(nil) })
	assert.Panics(t, func() { res.Reaching(nil) })
	assert.NotNil(t, res.FunctionSummary())
	assert.Empty(t, res.Loops())
}
