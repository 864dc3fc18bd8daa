package rbtree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/indexedrb/pkg/rbtree"
)

func fillTree(tb testing.TB, tree *rbtree.Tree[int], count int) {
	tb.Helper()

	for idx := range count {
		require.NoError(tb, tree.Insert(idx, idx%5, tree.Size()/3))
	}
}

func TestAllocatorUsed(t *testing.T) {
	t.Parallel()

	alloc := rbtree.NewAllocator[int]()
	assert.Equal(t, 0, alloc.Used())
	assert.Equal(t, 0, alloc.Size())

	tree := rbtree.NewWithAllocator(alloc)
	fillTree(t, tree, 10)
	assert.Equal(t, 10, alloc.Used())
	assert.Equal(t, 11, alloc.Size())

	_, err := tree.DeleteAt(3)
	require.NoError(t, err)
	assert.Equal(t, 9, alloc.Used())
	assert.Equal(t, 11, alloc.Size())
}

func TestAllocatorHibernateBoot(t *testing.T) {
	t.Parallel()

	alloc := rbtree.NewAllocator[int]()
	first := rbtree.NewWithAllocator(alloc)
	second := rbtree.NewWithAllocator(alloc)

	fillTree(t, first, 3000)
	fillTree(t, second, 500)

	// Leave gaps behind.
	for range 700 {
		_, err := first.DeleteAt(first.Len() / 2)
		require.NoError(t, err)
	}

	firstValues, secondValues := first.Values(), second.Values()
	firstSize, secondSize := first.Size(), second.Size()
	used := alloc.Used()

	alloc.Hibernate()
	assert.True(t, alloc.Hibernated())
	assert.Panics(t, func() { alloc.Used() })
	assert.Panics(t, func() { _, _ = first.At(0) })

	alloc.Boot()
	assert.False(t, alloc.Hibernated())
	assert.Equal(t, used, alloc.Used())

	require.NoError(t, first.Validate())
	require.NoError(t, second.Validate())
	assert.Equal(t, firstValues, first.Values())
	assert.Equal(t, secondValues, second.Values())
	assert.Equal(t, firstSize, first.Size())
	assert.Equal(t, secondSize, second.Size())

	// Booted allocators keep recycling gaps.
	fillTree(t, first, 100)
	require.NoError(t, first.Validate())
	assert.Equal(t, used+100, alloc.Used())
}

func TestAllocatorHibernateThreshold(t *testing.T) {
	t.Parallel()

	alloc := rbtree.NewAllocator[int]()
	alloc.HibernationThreshold = 1000
	tree := rbtree.NewWithAllocator(alloc)
	fillTree(t, tree, 10)

	alloc.Hibernate()
	assert.False(t, alloc.Hibernated())

	alloc.Boot()
	assert.Equal(t, 10, alloc.Used())
	require.NoError(t, tree.Validate())
}

func TestAllocatorHibernateTwicePanics(t *testing.T) {
	t.Parallel()

	alloc := rbtree.NewAllocator[int]()
	fillTree(t, rbtree.NewWithAllocator(alloc), 10)

	alloc.Hibernate()
	assert.Panics(t, alloc.Hibernate)
	alloc.Boot()
}

func TestAllocatorHibernateEmpty(t *testing.T) {
	t.Parallel()

	alloc := rbtree.NewAllocator[string]()
	alloc.Hibernate()
	assert.True(t, alloc.Hibernated())

	alloc.Boot()
	assert.Equal(t, 0, alloc.Used())

	tree := rbtree.NewWithAllocator(alloc)
	require.NoError(t, tree.PushBack("x", 1))
	assert.Equal(t, 1, alloc.Used())
}

func TestAllocatorLargeWeights(t *testing.T) {
	t.Parallel()

	alloc := rbtree.NewAllocator[int]()
	tree := rbtree.NewWithAllocator(alloc)

	const big = 1 << 40

	require.NoError(t, tree.PushBack(1, big))
	require.NoError(t, tree.PushBack(2, 3))

	alloc.Hibernate()
	alloc.Boot()

	assert.Equal(t, big+3, tree.Size())

	value, err := tree.Lookup(big + 1)
	require.NoError(t, err)
	assert.Equal(t, 2, value)
}

func TestAllocatorClone(t *testing.T) {
	t.Parallel()

	alloc := rbtree.NewAllocator[int]()
	alloc.HibernationThreshold = 7

	tree := rbtree.NewWithAllocator(alloc)
	fillTree(t, tree, 50)

	cloned := alloc.Clone()
	assert.Equal(t, alloc.Used(), cloned.Used())
	assert.Equal(t, 7, cloned.HibernationThreshold)

	copied := tree.CloneShallow(cloned)
	tree.Clear()

	assert.Equal(t, 0, alloc.Used())
	assert.Equal(t, 50, cloned.Used())
	assert.Equal(t, 50, copied.Len())
	require.NoError(t, copied.Validate())
}
