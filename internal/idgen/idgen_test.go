package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerator_Sortable(t *testing.T) {
	g := New()
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		next := g.Next()
		assert.True(t, next > prev, "ids must sort by creation order: %q then %q", prev, next)
		prev = next
	}
}

func TestGenerator_Unique(t *testing.T) {
	g := New()
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := g.Next()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %q", id)
		seen[id] = struct{}{}
	}
}

func TestNextID_PackageLevel(t *testing.T) {
	a := NextID()
	b := NextID()
	assert.NotEqual(t, a, b)
}
