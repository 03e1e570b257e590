package defmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gridOracle resolves aliasing from location tags alone: locations with the
// same tag are equal, locations whose tags share a first letter overlap and
// the "*" tag overlaps everything.
type gridOracle struct{}

func (gridOracle) MustEqual(a, b MemoryLocation) bool { return a.Tag == b.Tag }

func (gridOracle) MayOverlap(a, b MemoryLocation) bool {
	if a.Tag == "*" || b.Tag == "*" {
		return true
	}
	return a.Tag[0] == b.Tag[0]
}

func tagged(tag string) MemoryLocation { return MemoryLocation{Tag: tag, Size: UnknownSize} }

func TestLocationSet(t *testing.T) {
	s := NewLocationSet(gridOracle{})

	assert.True(t, s.Insert(tagged("x1")), "first insertion should create a cluster")
	assert.False(t, s.Insert(tagged("x2")), "x2 aliases x1 and should join its cluster")
	assert.True(t, s.Insert(tagged("y1")), "y1 is disjoint from the x cluster")

	assert.True(t, s.Contains(tagged("x1")))
	assert.False(t, s.Contains(tagged("x3")), "Contains has must semantics")
	assert.True(t, s.Overlaps(tagged("x3")), "Overlaps has may semantics")
	assert.False(t, s.Overlaps(tagged("z1")))

	assert.False(t, s.Insert(tagged("x1")), "reinsertion changes nothing")
	assert.Equal(t, 3, s.Len())

	// The wildcard bridges the x and y clusters.
	assert.False(t, s.Insert(tagged("*")))

	// Overlaps stays monotone under insertion.
	assert.True(t, s.Overlaps(tagged("x3")))
	assert.True(t, s.Overlaps(tagged("z1")), "the wildcard made z1 overlap")
}

func TestLocationValue(t *testing.T) {
	oracle := gridOracle{}

	concrete := func(tags ...string) LocationValue {
		v := EmptyValue(oracle)
		for _, tag := range tags {
			v.locs.Insert(tagged(tag))
		}
		return v
	}

	t.Run("IntersectWithFullIsIdentity", func(t *testing.T) {
		v := concrete("x1", "y1")
		changed := v.Intersect(FullValue(oracle))
		assert.False(t, changed)
		assert.True(t, v.Contains(tagged("x1")))
		assert.True(t, v.Contains(tagged("y1")))
	})

	t.Run("FullNarrowsToVisitedPredecessor", func(t *testing.T) {
		// An unvisited predecessor holds the full placeholder; meeting it
		// with a visited predecessor's value must yield the visited value.
		v := FullValue(oracle)
		require.True(t, v.Intersect(concrete("x1")))
		assert.False(t, v.IsFull())
		assert.True(t, v.Contains(tagged("x1")))
		assert.False(t, v.Contains(tagged("y1")))
	})

	t.Run("Intersect", func(t *testing.T) {
		v := concrete("x1", "y1")
		assert.True(t, v.Intersect(concrete("x1", "z1")))
		assert.True(t, v.Contains(tagged("x1")))
		assert.False(t, v.Contains(tagged("y1")))
		assert.False(t, v.Contains(tagged("z1")))

		assert.False(t, v.Intersect(concrete("x1")), "already at the result")
	})

	t.Run("Merge", func(t *testing.T) {
		v := concrete("x1")
		assert.True(t, v.Merge(concrete("y1")))
		assert.True(t, v.Contains(tagged("x1")))
		assert.True(t, v.Contains(tagged("y1")))
		assert.False(t, v.Merge(concrete("y1")))

		assert.True(t, v.Merge(FullValue(oracle)))
		assert.True(t, v.IsFull())
		assert.False(t, v.Merge(concrete("z1")), "full absorbs everything")
	})

	t.Run("Monotone", func(t *testing.T) {
		// Intersect never grows a value, Merge never shrinks one.
		v := concrete("x1", "y1", "z1")
		for _, w := range []LocationValue{concrete("x1", "y1"), concrete("x1"), concrete()} {
			before := len(v.Locations())
			v.Intersect(w)
			assert.LessOrEqual(t, len(v.Locations()), before)
		}

		m := concrete()
		for _, w := range []LocationValue{concrete("x1"), concrete("y1", "z1")} {
			before := len(m.Locations())
			m.Merge(w)
			assert.GreaterOrEqual(t, len(m.Locations()), before)
		}
	})

	t.Run("Equal", func(t *testing.T) {
		assert.True(t, FullValue(oracle).Equal(FullValue(oracle)))
		assert.False(t, FullValue(oracle).Equal(concrete("x1")))

		a, b := concrete("x1", "y1"), concrete("y1", "x1")
		assert.True(t, a.Equal(b), "insertion order is irrelevant")
		assert.False(t, a.Equal(concrete("x1")))
	})
}
