package rbtree

// Iterator allows scanning tree elements in positional order.
//
// Iterator invalidation rule: deleting an element invalidates iterators that
// point to it and to its in-order successor (the successor's element may move
// into the removed node). Insertions keep iterators valid.
type Iterator[T any] struct {
	tree *Tree[T]
	node uint32
}

// Min creates an iterator that points to the first element in the tree.
// If the tree is empty, returns Limit().
func (tree *Tree[T]) Min() Iterator[T] {
	if tree.root == 0 {
		return tree.Limit()
	}

	return Iterator[T]{tree, leftmost(tree.root, tree.nodes())}
}

// Max creates an iterator that points at the last element in the tree.
//
// If the tree is empty, returns NegativeLimit().
func (tree *Tree[T]) Max() Iterator[T] {
	if tree.root == 0 {
		return tree.NegativeLimit()
	}

	return Iterator[T]{tree, rightmost(tree.root, tree.nodes())}
}

// Limit creates an iterator that points beyond the last element in the tree.
func (tree *Tree[T]) Limit() Iterator[T] {
	return Iterator[T]{tree, 0}
}

// NegativeLimit creates an iterator that points before the first element in the tree.
func (tree *Tree[T]) NegativeLimit() Iterator[T] {
	return Iterator[T]{tree, negativeLimitNode}
}

// Equal checks for the underlying nodes equality.
func (iter Iterator[T]) Equal(other Iterator[T]) bool {
	return iter.node == other.node
}

// Limit checks if the iterator points beyond the last element in the tree.
func (iter Iterator[T]) Limit() bool {
	return iter.node == 0
}

// NegativeLimit checks if the iterator points before the first element in the tree.
func (iter Iterator[T]) NegativeLimit() bool {
	return iter.node == negativeLimitNode
}

func (iter Iterator[T]) valid() bool {
	return !iter.Limit() && !iter.NegativeLimit()
}

// Value returns the current element.
//
// REQUIRES: !iter.Limit() && !iter.NegativeLimit().
func (iter Iterator[T]) Value() T {
	doAssert(iter.valid())

	return iter.tree.nodes()[iter.node].value
}

// Weight returns the weight of the current element.
func (iter Iterator[T]) Weight() int {
	doAssert(iter.valid())

	return iter.tree.nodes()[iter.node].weight
}

// Offset returns the weighted offset at which the current element starts.
func (iter Iterator[T]) Offset() int {
	doAssert(iter.valid())

	return offsetOf(iter.node, iter.tree.nodes())
}

// Rank returns the position of the current element among all elements.
func (iter Iterator[T]) Rank() int {
	doAssert(iter.valid())

	return rankOf(iter.node, iter.tree.nodes())
}

// Next creates a new iterator that points to the successor of the current element.
//
// REQUIRES: !iter.Limit().
func (iter Iterator[T]) Next() Iterator[T] {
	doAssert(!iter.Limit())

	if iter.NegativeLimit() {
		return iter.tree.Min()
	}

	return Iterator[T]{iter.tree, doNext(iter.node, iter.tree.nodes())}
}

// Prev creates a new iterator that points to the predecessor of the current
// node.
//
// REQUIRES: !iter.NegativeLimit().
func (iter Iterator[T]) Prev() Iterator[T] {
	doAssert(!iter.NegativeLimit())

	if iter.Limit() {
		return iter.tree.Max()
	}

	return Iterator[T]{iter.tree, doPrev(iter.node, iter.tree.nodes())}
}
