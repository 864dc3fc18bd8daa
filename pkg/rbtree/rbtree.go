// Package rbtree provides an indexed red-black tree. Elements are ordered by
// position instead of by key, and every element carries a weight, so a
// position is a cumulative-weight offset. Nodes live in an arena Allocator
// which can be hibernated with LZ4 and sharded between many trees.
package rbtree

import (
	"fmt"
)

// Tree is a red-black tree indexed by weighted offset and by element rank.
//
// Each node caches the total weight and the number of nodes of its subtree,
// which makes Insert, Delete, Lookup and their rank counterparts O(log n).
// An element with weight w starting at offset s covers [s, s+w).
//
// A Tree is not safe for concurrent use; see Locked.
type Tree[T any] struct {
	// Nodes allocator.
	allocator *Allocator[T]

	// Root of the tree.
	root uint32

	// Number of nodes under root, including the root.
	count int

	// Rotations performed since creation.
	rotations uint64
}

// New creates an empty tree with a private allocator.
func New[T any]() *Tree[T] {
	return NewWithAllocator(NewAllocator[T]())
}

// NewWithAllocator creates an empty tree which takes its nodes from allocator.
func NewWithAllocator[T any](allocator *Allocator[T]) *Tree[T] {
	return &Tree[T]{allocator: allocator}
}

// Singleton creates a tree holding exactly one element.
func Singleton[T any](value T, weight int) (*Tree[T], error) {
	tree := New[T]()

	err := tree.Insert(value, weight, 0)
	if err != nil {
		return nil, err
	}

	return tree, nil
}

func (tree *Tree[T]) nodes() []node[T] {
	if tree.allocator.storage == nil {
		panic("hibernated allocators cannot be used")
	}

	return tree.allocator.storage
}

// Allocator returns the bound nodes allocator.
func (tree *Tree[T]) Allocator() *Allocator[T] {
	return tree.allocator
}

// Len returns the number of elements in the tree.
func (tree *Tree[T]) Len() int {
	return tree.count
}

// IsEmpty reports whether the tree has no elements.
func (tree *Tree[T]) IsEmpty() bool {
	return tree.count == 0
}

// Size returns the total weight of all elements.
func (tree *Tree[T]) Size() int {
	if tree.root == 0 {
		return 0
	}

	return tree.nodes()[tree.root].size
}

// Rotations returns the number of rotations performed by rebalancing so far.
func (tree *Tree[T]) Rotations() uint64 {
	return tree.rotations
}

// Front returns the first element.
func (tree *Tree[T]) Front() (T, bool) {
	if tree.root == 0 {
		var zero T

		return zero, false
	}

	nodes := tree.nodes()

	return nodes[leftmost(tree.root, nodes)].value, true
}

// Back returns the last element.
func (tree *Tree[T]) Back() (T, bool) {
	if tree.root == 0 {
		var zero T

		return zero, false
	}

	nodes := tree.nodes()

	return nodes[rightmost(tree.root, nodes)].value, true
}

// Insert adds value so that it starts at the given weighted offset.
// The offset must lie in [0, Size()]: 0 prepends, Size() appends. An offset that
// falls strictly inside an existing element places value right after that element.
func (tree *Tree[T]) Insert(value T, weight, offset int) error {
	if weight < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeWeight, weight)
	}

	size := tree.Size()
	if offset < 0 || offset > size {
		return fmt.Errorf("%w: offset %d not in [0, %d]", ErrOutOfBounds, offset, size)
	}

	parent, left := tree.slotByOffset(offset)
	tree.link(parent, left, value, weight)

	return nil
}

// InsertAt adds value so that it becomes the element with the given rank.
// The rank must lie in [0, Len()].
func (tree *Tree[T]) InsertAt(rank int, value T, weight int) error {
	if weight < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeWeight, weight)
	}

	if rank < 0 || rank > tree.count {
		return fmt.Errorf("%w: rank %d not in [0, %d]", ErrOutOfBounds, rank, tree.count)
	}

	parent, left := tree.slotByRank(rank)
	tree.link(parent, left, value, weight)

	return nil
}

// PushFront prepends value, ahead of any zero-weight elements at offset 0.
func (tree *Tree[T]) PushFront(value T, weight int) error {
	return tree.InsertAt(0, value, weight)
}

// PushBack appends value after the last element.
func (tree *Tree[T]) PushBack(value T, weight int) error {
	return tree.InsertAt(tree.count, value, weight)
}

// Lookup returns the element whose weighted range contains offset.
func (tree *Tree[T]) Lookup(offset int) (T, error) {
	err := tree.checkOffset(offset)
	if err != nil {
		var zero T

		return zero, err
	}

	nodeIdx, _ := tree.locateOffset(offset)

	return tree.nodes()[nodeIdx].value, nil
}

// Seek returns an iterator to the element whose weighted range contains offset,
// together with the distance from the element's start to offset.
func (tree *Tree[T]) Seek(offset int) (Iterator[T], int, error) {
	err := tree.checkOffset(offset)
	if err != nil {
		return tree.Limit(), 0, err
	}

	nodeIdx, within := tree.locateOffset(offset)

	return Iterator[T]{tree, nodeIdx}, within, nil
}

// At returns the element with the given rank.
func (tree *Tree[T]) At(rank int) (T, error) {
	err := tree.checkRank(rank)
	if err != nil {
		var zero T

		return zero, err
	}

	return tree.nodes()[tree.locateRank(rank)].value, nil
}

// Delete removes the element whose weighted range contains offset and returns it.
func (tree *Tree[T]) Delete(offset int) (T, error) {
	err := tree.checkOffset(offset)
	if err != nil {
		var zero T

		return zero, err
	}

	nodeIdx, _ := tree.locateOffset(offset)

	return tree.remove(nodeIdx), nil
}

// DeleteAt removes the element with the given rank and returns it.
func (tree *Tree[T]) DeleteAt(rank int) (T, error) {
	err := tree.checkRank(rank)
	if err != nil {
		var zero T

		return zero, err
	}

	return tree.remove(tree.locateRank(rank)), nil
}

// DeleteWithIterator deletes the current item and returns its value.
//
// REQUIRES: !iter.Limit() && !iter.NegativeLimit().
func (tree *Tree[T]) DeleteWithIterator(iter Iterator[T]) T {
	doAssert(iter.tree == tree && !iter.Limit() && !iter.NegativeLimit())

	return tree.remove(iter.node)
}

// Clear removes all the nodes from the tree and hands them back to the allocator.
// The walk is post-order with an explicit stack, so it needs O(height) memory.
func (tree *Tree[T]) Clear() {
	if tree.root == 0 {
		tree.count = 0

		return
	}

	nodes := tree.nodes()
	stack := []uint32{tree.root}
	tree.root = 0

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if nodes[top].left != 0 {
			stack = append(stack, nodes[top].left)

			continue
		}

		if nodes[top].right != 0 {
			stack = append(stack, nodes[top].right)

			continue
		}

		stack = stack[:len(stack)-1]

		if parent := nodes[top].parent; parent != 0 {
			setChild(nodes, parent, isLeftChild(top, nodes), 0)
		}

		tree.allocator.free(tree.join(top))
	}

	tree.count = 0
}

// CloneShallow performs a shallow copy of the tree - the nodes are assumed to
// already exist in the allocator, typically obtained with Allocator.Clone().
func (tree *Tree[T]) CloneShallow(allocator *Allocator[T]) *Tree[T] {
	clone := *tree
	clone.allocator = allocator

	return &clone
}

// CloneDeep performs a deep copy of the tree - the nodes are created from scratch.
// allocator may be the tree's own allocator.
func (tree *Tree[T]) CloneDeep(allocator *Allocator[T]) *Tree[T] {
	clone := &Tree[T]{allocator: allocator, count: tree.count}
	nodeMap := make(map[uint32]uint32, tree.count)

	for iter := tree.Min(); !iter.Limit(); iter = iter.Next() {
		newNode := allocator.malloc()
		origin := tree.nodes()[iter.node]
		allocator.storage[newNode] = node[T]{
			value:  origin.value,
			weight: origin.weight,
			size:   origin.size,
			count:  origin.count,
			color:  origin.color,
		}
		nodeMap[iter.node] = newNode
	}

	originStorage := tree.nodes()
	cloneStorage := allocator.storage

	for origin, copied := range nodeMap {
		cloneNode := &cloneStorage[copied]
		cloneNode.left = nodeMap[originStorage[origin].left]
		cloneNode.right = nodeMap[originStorage[origin].right]
		cloneNode.parent = nodeMap[originStorage[origin].parent]
	}

	clone.root = nodeMap[tree.root]

	return clone
}

// Ascend calls fn for every element in order with its starting offset and weight.
// Iteration stops when fn returns false.
func (tree *Tree[T]) Ascend(fn func(offset, weight int, value T) bool) {
	offset := 0

	for iter := tree.Min(); !iter.Limit(); iter = iter.Next() {
		nd := &tree.nodes()[iter.node]
		if !fn(offset, nd.weight, nd.value) {
			return
		}

		offset += nd.weight
	}
}

// Values returns all elements in order.
func (tree *Tree[T]) Values() []T {
	values := make([]T, 0, tree.count)

	tree.Ascend(func(_, _ int, value T) bool {
		values = append(values, value)

		return true
	})

	return values
}

// Private methods.

func (tree *Tree[T]) checkOffset(offset int) error {
	if tree.root == 0 {
		return ErrEmptyTree
	}

	size := tree.Size()
	if offset < 0 || offset >= size {
		return fmt.Errorf("%w: offset %d not in [0, %d)", ErrOutOfBounds, offset, size)
	}

	return nil
}

func (tree *Tree[T]) checkRank(rank int) error {
	if tree.root == 0 {
		return ErrEmptyTree
	}

	if rank < 0 || rank >= tree.count {
		return fmt.Errorf("%w: rank %d not in [0, %d)", ErrOutOfBounds, rank, tree.count)
	}

	return nil
}

// slotByOffset finds the empty child slot where an element starting at offset
// belongs. Ties go left, so the new element lands before elements starting at
// the same offset.
func (tree *Tree[T]) slotByOffset(offset int) (parent uint32, left bool) {
	nodes := tree.nodes()

	for cursor := tree.root; cursor != 0; {
		parent = cursor
		leftSize := nodes[nodes[cursor].left].size

		if offset <= leftSize {
			cursor = nodes[cursor].left
			left = true

			continue
		}

		offset = max(offset-leftSize-nodes[cursor].weight, 0)
		cursor = nodes[cursor].right
		left = false
	}

	return parent, left
}

func (tree *Tree[T]) slotByRank(rank int) (parent uint32, left bool) {
	nodes := tree.nodes()

	for cursor := tree.root; cursor != 0; {
		parent = cursor
		leftCount := nodes[nodes[cursor].left].count

		if rank <= leftCount {
			cursor = nodes[cursor].left
			left = true

			continue
		}

		rank -= leftCount + 1
		cursor = nodes[cursor].right
		left = false
	}

	return parent, left
}

// locateOffset returns the node covering offset and the offset relative to its start.
// REQUIRES: 0 <= offset < Size().
func (tree *Tree[T]) locateOffset(offset int) (uint32, int) {
	nodes := tree.nodes()
	cursor := tree.root

	for {
		doAssert(cursor != 0)

		leftSize := nodes[nodes[cursor].left].size
		if offset < leftSize {
			cursor = nodes[cursor].left

			continue
		}

		offset -= leftSize
		if offset < nodes[cursor].weight {
			return cursor, offset
		}

		offset -= nodes[cursor].weight
		cursor = nodes[cursor].right
	}
}

// locateRank returns the node with the given rank.
// REQUIRES: 0 <= rank < Len().
func (tree *Tree[T]) locateRank(rank int) uint32 {
	nodes := tree.nodes()
	cursor := tree.root

	for {
		doAssert(cursor != 0)

		leftCount := nodes[nodes[cursor].left].count

		switch {
		case rank < leftCount:
			cursor = nodes[cursor].left
		case rank == leftCount:
			return cursor
		default:
			rank -= leftCount + 1
			cursor = nodes[cursor].right
		}
	}
}

// link allocates a red node under parent (or as the root when parent is 0),
// charges its weight to every ancestor and rebalances.
func (tree *Tree[T]) link(parent uint32, left bool, value T, weight int) uint32 {
	nodeIdx := tree.allocator.malloc()
	nodes := tree.nodes()

	nd := &nodes[nodeIdx]
	nd.value = value
	nd.weight = weight
	nd.size = weight
	nd.count = 1
	nd.color = red

	if parent == 0 {
		doAssert(tree.root == 0)
		tree.root = nodeIdx
	} else {
		previous := setChild(nodes, parent, left, nodeIdx)
		doAssert(previous == 0)
	}

	for cursor := parent; cursor != 0; cursor = nodes[cursor].parent {
		nodes[cursor].size += weight
		nodes[cursor].count++
	}

	tree.count++
	tree.insertFixup(nodeIdx)

	return nodeIdx
}

//nolint:gocognit // RB-tree insertion with rebalancing is inherently complex.
func (tree *Tree[T]) insertFixup(nodeIdx uint32) {
	nodes := tree.nodes()

	for {
		parent := nodes[nodeIdx].parent

		// Case 1: N is at the root.
		if parent == 0 {
			nodes[nodeIdx].color = black

			break
		}

		// Case 2: The parent is black, so the tree already
		// satisfies the RB properties.
		if nodes[parent].color == black {
			break
		}

		// Case 3: parent and uncle are both red.
		// Then paint both black and make grandparent red.
		grandparent := nodes[parent].parent
		parentIsLeft := isLeftChild(parent, nodes)
		uncle := childOf(grandparent, !parentIsLeft, nodes)

		if getColor(uncle, nodes) == red {
			nodes[parent].color = black
			nodes[uncle].color = black
			nodes[grandparent].color = red
			nodeIdx = grandparent

			continue
		}

		// Case 4: parent is red, uncle is black, N is an inner grandchild.
		if isRightChild(nodeIdx, nodes) && parentIsLeft {
			tree.rotateLeft(parent)
			nodeIdx = parent

			continue
		}

		if isLeftChild(nodeIdx, nodes) && !parentIsLeft {
			tree.rotateRight(parent)
			nodeIdx = parent

			continue
		}

		// Case 5: parent is red, uncle is black, N is an outer grandchild.
		nodes[parent].color = black
		nodes[grandparent].color = red

		if parentIsLeft {
			tree.rotateRight(grandparent)
		} else {
			tree.rotateLeft(grandparent)
		}

		break
	}

	nodes[tree.root].color = black
}

// remove unlinks nodeIdx from the tree, frees it and returns its value.
func (tree *Tree[T]) remove(nodeIdx uint32) T {
	nodes := tree.nodes()
	value := nodes[nodeIdx].value

	// Two children: take over the successor's element and remove the successor,
	// which has no left child.
	if nodes[nodeIdx].left != 0 && nodes[nodeIdx].right != 0 {
		succ := leftmost(nodes[nodeIdx].right, nodes)
		nodes[nodeIdx].value, nodes[succ].value = nodes[succ].value, nodes[nodeIdx].value
		nodes[nodeIdx].weight, nodes[succ].weight = nodes[succ].weight, nodes[nodeIdx].weight
		refreshPath(succ, nodes)
		nodeIdx = succ
	}

	doAssert(nodes[nodeIdx].left == 0 || nodes[nodeIdx].right == 0)

	child := nodes[nodeIdx].right
	if child == 0 {
		child = nodes[nodeIdx].left
	}

	if nodes[nodeIdx].color == black {
		if getColor(child, nodes) == red {
			nodes[child].color = black
		} else {
			// The node stands in for the missing black until it is spliced out.
			tree.deleteFixup(nodeIdx)
		}
	}

	parent := nodes[nodeIdx].parent
	tree.replaceNode(nodeIdx, child)
	tree.allocator.free(tree.join(nodeIdx))
	refreshPath(parent, nodes)
	tree.count--

	return value
}

// deleteFixup restores the black height after a black leaf at nodeIdx loses its
// place. nodeIdx is still linked and acts as the doubly black node.
func (tree *Tree[T]) deleteFixup(nodeIdx uint32) {
	nodes := tree.nodes()

	for nodeIdx != tree.root && getColor(nodeIdx, nodes) == black {
		parent := nodes[nodeIdx].parent
		isLeft := isLeftChild(nodeIdx, nodes)
		sibling := childOf(parent, !isLeft, nodes)
		doAssert(sibling != 0)

		// Case 1: red sibling. Rotate it above the parent to get a black sibling.
		if nodes[sibling].color == red {
			nodes[sibling].color = black
			nodes[parent].color = red
			tree.rotateDirection(parent, isLeft)
			sibling = childOf(parent, !isLeft, nodes)
		}

		near := childOf(sibling, isLeft, nodes)
		far := childOf(sibling, !isLeft, nodes)

		// Case 2: black sibling with black children. Push the extra black up.
		if getColor(near, nodes) == black && getColor(far, nodes) == black {
			nodes[sibling].color = red
			nodeIdx = parent

			continue
		}

		// Case 3: only the near nephew is red. Turn it into the far case.
		if getColor(far, nodes) == black {
			nodes[near].color = black
			nodes[sibling].color = red
			tree.rotateDirection(sibling, !isLeft)
			sibling = childOf(parent, !isLeft, nodes)
			far = childOf(sibling, !isLeft, nodes)
		}

		// Case 4: far nephew is red. One rotation absorbs the extra black.
		nodes[sibling].color = nodes[parent].color
		nodes[parent].color = black
		nodes[far].color = black
		tree.rotateDirection(parent, isLeft)
		nodeIdx = tree.root
	}

	nodes[nodeIdx].color = black
}

// replaceNode puts newn into the slot occupied by oldn. newn may be 0.
func (tree *Tree[T]) replaceNode(oldn, newn uint32) {
	nodes := tree.nodes()
	parent := nodes[oldn].parent

	if parent == 0 {
		doAssert(tree.root == oldn)
		tree.root = newn

		if newn != 0 {
			nodes[newn].parent = 0
		}

		return
	}

	setChild(nodes, parent, isLeftChild(oldn, nodes), newn)
}

// join dissolves the three edges of a node which has been unlinked from the
// tree so that its slot can be released as one unit.
func (tree *Tree[T]) join(nodeIdx uint32) uint32 {
	nodes := tree.nodes()
	nd := &nodes[nodeIdx]

	doAssert(tree.root != nodeIdx)
	doAssert(nd.parent == 0 || (nodes[nd.parent].left != nodeIdx && nodes[nd.parent].right != nodeIdx))
	doAssert(nd.left == 0 || nodes[nd.left].parent != nodeIdx)
	doAssert(nd.right == 0 || nodes[nd.right].parent != nodeIdx)

	nd.parent, nd.left, nd.right = 0, 0, 0

	return nodeIdx
}

// rotateDirection performs a tree rotation in the specified direction.
// IsLeft=true performs left rotation, isLeft=false performs right rotation.
// The aggregates of the two nodes that change places are recomputed bottom-up.
//
// Left rotation:
//
//	  X              Y
//	A   Y    =>    X   C
//	  B C        A B
//
// Right rotation:
//
//	    Y            X
//	  X   C  =>    A   Y
//	A B              B C
//
//nolint:dupword // ASCII art diagrams contain intentional repeated letters.
func (tree *Tree[T]) rotateDirection(pivot uint32, isLeft bool) {
	nodes := tree.nodes()

	// Get the child in the opposite direction of rotation.
	child := childOf(pivot, !isLeft, nodes)
	doAssert(child != 0)

	// Move the inner subtree.
	inner := childOf(child, isLeft, nodes)
	setChild(nodes, pivot, !isLeft, inner)

	// Update parent links and complete the rotation.
	tree.replaceNode(pivot, child)
	setChild(nodes, child, isLeft, pivot)

	refresh(pivot, nodes)
	refresh(child, nodes)

	tree.rotations++
}

func (tree *Tree[T]) rotateLeft(nodeIdx uint32) {
	tree.rotateDirection(nodeIdx, true)
}

func (tree *Tree[T]) rotateRight(nodeIdx uint32) {
	tree.rotateDirection(nodeIdx, false)
}
