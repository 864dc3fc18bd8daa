package rbtree

import "math"

const (
	red               = false
	black             = true
	negativeLimitNode = math.MaxUint32
)

// node is one arena slot. Edges are handles into the same arena; 0 means "no node".
// The parent edge is a back-reference only: a node is owned by the slot of its
// parent (or by the tree root) and by nothing else.
type node[T any] struct {
	value T

	// weight is the element's own contribution to the offset space.
	weight int
	// size is the sum of weights over the subtree rooted here.
	size int
	// count is the number of nodes in the subtree rooted here.
	count int

	parent, left, right uint32
	color               bool // Black or red.
}

func doAssert(condition bool) {
	if !condition {
		panic("rbtree internal assertion failed")
	}
}

// Internal node attribute accessors. Handle 0 behaves as a black leaf of zero size.
func getColor[T any](nodeIdx uint32, nodes []node[T]) bool {
	if nodeIdx == 0 {
		return black
	}

	return nodes[nodeIdx].color
}

func isLeftChild[T any](nodeIdx uint32, nodes []node[T]) bool {
	return nodeIdx == nodes[nodes[nodeIdx].parent].left
}

func isRightChild[T any](nodeIdx uint32, nodes []node[T]) bool {
	return nodeIdx == nodes[nodes[nodeIdx].parent].right
}

func childOf[T any](nodeIdx uint32, left bool, nodes []node[T]) uint32 {
	if left {
		return nodes[nodeIdx].left
	}

	return nodes[nodeIdx].right
}

// setLeft installs child into the left slot of parentIdx and returns the
// previous occupant. Both sides of the edge change together: the child's parent
// becomes parentIdx, and the previous occupant loses its back-reference unless
// it has already been re-homed elsewhere. child may be 0 to empty the slot.
func setLeft[T any](nodes []node[T], parentIdx, child uint32) uint32 {
	doAssert(parentIdx != 0)

	previous := nodes[parentIdx].left
	nodes[parentIdx].left = child
	relink(nodes, parentIdx, previous, child)

	return previous
}

// setRight is setLeft for the right slot.
func setRight[T any](nodes []node[T], parentIdx, child uint32) uint32 {
	doAssert(parentIdx != 0)

	previous := nodes[parentIdx].right
	nodes[parentIdx].right = child
	relink(nodes, parentIdx, previous, child)

	return previous
}

func setChild[T any](nodes []node[T], parentIdx uint32, left bool, child uint32) uint32 {
	if left {
		return setLeft(nodes, parentIdx, child)
	}

	return setRight(nodes, parentIdx, child)
}

func relink[T any](nodes []node[T], parentIdx, previous, child uint32) {
	if previous != 0 && previous != child && nodes[previous].parent == parentIdx {
		nodes[previous].parent = 0
	}

	if child != 0 {
		nodes[child].parent = parentIdx
	}
}

// refresh recomputes the aggregates of a single node from its children.
func refresh[T any](nodeIdx uint32, nodes []node[T]) {
	doAssert(nodeIdx != 0)

	nd := &nodes[nodeIdx]
	nd.size = nd.weight + nodes[nd.left].size + nodes[nd.right].size
	nd.count = 1 + nodes[nd.left].count + nodes[nd.right].count
}

// refreshPath recomputes the aggregates of nodeIdx and of all its ancestors.
func refreshPath[T any](nodeIdx uint32, nodes []node[T]) {
	for ; nodeIdx != 0; nodeIdx = nodes[nodeIdx].parent {
		refresh(nodeIdx, nodes)
	}
}

// Return the minimum node that's larger than N. Return 0 if no such
// node is found.
func doNext[T any](nodeIdx uint32, nodes []node[T]) uint32 {
	if nodes[nodeIdx].right != 0 {
		return leftmost(nodes[nodeIdx].right, nodes)
	}

	for nodeIdx != 0 {
		parentIdx := nodes[nodeIdx].parent
		if parentIdx == 0 {
			return 0
		}

		if isLeftChild(nodeIdx, nodes) {
			return parentIdx
		}

		nodeIdx = parentIdx
	}

	return 0
}

// Return the maximum node that's smaller than N. Return negativeLimitNode if no
// such node is found.
func doPrev[T any](nodeIdx uint32, nodes []node[T]) uint32 {
	if nodes[nodeIdx].left != 0 {
		return rightmost(nodes[nodeIdx].left, nodes)
	}

	for nodeIdx != 0 {
		parentIdx := nodes[nodeIdx].parent
		if parentIdx == 0 {
			break
		}

		if isRightChild(nodeIdx, nodes) {
			return parentIdx
		}

		nodeIdx = parentIdx
	}

	return negativeLimitNode
}

func leftmost[T any](nodeIdx uint32, nodes []node[T]) uint32 {
	for nodes[nodeIdx].left != 0 {
		nodeIdx = nodes[nodeIdx].left
	}

	return nodeIdx
}

func rightmost[T any](nodeIdx uint32, nodes []node[T]) uint32 {
	for nodes[nodeIdx].right != 0 {
		nodeIdx = nodes[nodeIdx].right
	}

	return nodeIdx
}

// offsetOf returns the weighted offset at which nodeIdx starts.
func offsetOf[T any](nodeIdx uint32, nodes []node[T]) int {
	offset := nodes[nodes[nodeIdx].left].size

	for cursor := nodeIdx; nodes[cursor].parent != 0; cursor = nodes[cursor].parent {
		parentIdx := nodes[cursor].parent
		if isRightChild(cursor, nodes) {
			offset += nodes[nodes[parentIdx].left].size + nodes[parentIdx].weight
		}
	}

	return offset
}

// rankOf returns the in-order position of nodeIdx.
func rankOf[T any](nodeIdx uint32, nodes []node[T]) int {
	rank := nodes[nodes[nodeIdx].left].count

	for cursor := nodeIdx; nodes[cursor].parent != 0; cursor = nodes[cursor].parent {
		parentIdx := nodes[cursor].parent
		if isRightChild(cursor, nodes) {
			rank += nodes[nodes[parentIdx].left].count + 1
		}
	}

	return rank
}
