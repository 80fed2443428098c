package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFNV1A32_StableAcrossCalls(t *testing.T) {
	a := fnv1a32("user-42")
	b := fnv1a32("user-42")
	assert.Equal(t, a, b)
}

func TestBalancer_ShardedSelectionIsDeterministic(t *testing.T) {
	b := NewBalancer()
	first := b.Select("chat", 5, "user-42")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, b.Select("chat", 5, "user-42"))
	}
}

func TestBalancer_ShardedSelectionWithinBounds(t *testing.T) {
	b := NewBalancer()
	for _, key := range []string{"a", "bb", "ccc", "dddd", "user-1", "user-2"} {
		idx := b.Select("mod", 3, key)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 3)
	}
}

func TestBalancer_RoundRobinCyclesThroughInstances(t *testing.T) {
	b := NewBalancer()
	seen := make(map[int]int)
	for i := 0; i < 6; i++ {
		seen[b.Select("mod", 3, "")]++
	}
	assert.Len(t, seen, 3)
	for _, count := range seen {
		assert.Equal(t, 2, count)
	}
}

func TestBalancer_RoundRobinIsIndependentPerModule(t *testing.T) {
	b := NewBalancer()
	first := b.Select("mod-a", 4, "")
	// An unrelated module's selections must not perturb mod-a's counter.
	for i := 0; i < 3; i++ {
		b.Select("mod-b", 4, "")
	}
	second := b.Select("mod-a", 4, "")
	assert.NotEqual(t, first, second)
}

func TestBalancer_NoInstancesReturnsNegativeOne(t *testing.T) {
	b := NewBalancer()
	assert.Equal(t, -1, b.Select("mod", 0, ""))
	assert.Equal(t, -1, b.Select("mod", 0, "some-key"))
}
