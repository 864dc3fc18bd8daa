package rbtree

import "fmt"

// Validate checks the red-black, aggregate and reciprocity invariants of the
// whole tree. It is O(n) and meant for tests and debugging.
func (tree *Tree[T]) Validate() error {
	if tree.root == 0 {
		if tree.count != 0 {
			return fmt.Errorf("%w: empty tree reports %d elements", ErrCorrupted, tree.count)
		}

		return nil
	}

	nodes := tree.nodes()

	if nodes[tree.root].parent != 0 {
		return fmt.Errorf("%w: root %d has parent %d", ErrCorrupted, tree.root, nodes[tree.root].parent)
	}

	if nodes[tree.root].color != black {
		return fmt.Errorf("%w: root %d is red", ErrCorrupted, tree.root)
	}

	checker := validator[T]{nodes: nodes, gaps: tree.allocator.gaps}

	_, err := checker.check(tree.root)
	if err != nil {
		return err
	}

	if checker.visited != tree.count {
		return fmt.Errorf("%w: %d reachable nodes, %d counted", ErrCorrupted, checker.visited, tree.count)
	}

	return nil
}

type validator[T any] struct {
	nodes   []node[T]
	gaps    map[uint32]bool
	visited int
}

// check returns the black height of the subtree rooted at nodeIdx.
func (v *validator[T]) check(nodeIdx uint32) (int, error) {
	if nodeIdx == 0 {
		return 1, nil
	}

	if int(nodeIdx) >= len(v.nodes) || v.gaps[nodeIdx] {
		return 0, fmt.Errorf("%w: node %d is not allocated", ErrCorrupted, nodeIdx)
	}

	v.visited++
	if v.visited >= len(v.nodes) {
		return 0, fmt.Errorf("%w: cycle through node %d", ErrCorrupted, nodeIdx)
	}

	nd := &v.nodes[nodeIdx]

	for _, child := range [2]uint32{nd.left, nd.right} {
		if child != 0 && int(child) < len(v.nodes) && v.nodes[child].parent != nodeIdx {
			return 0, fmt.Errorf("%w: node %d does not point back to parent %d", ErrCorrupted, child, nodeIdx)
		}
	}

	if nd.color == red && (getColor(nd.left, v.nodes) == red || getColor(nd.right, v.nodes) == red) {
		return 0, fmt.Errorf("%w: red node %d has a red child", ErrCorrupted, nodeIdx)
	}

	if nd.weight < 0 {
		return 0, fmt.Errorf("%w: node %d has negative weight %d", ErrCorrupted, nodeIdx, nd.weight)
	}

	leftHeight, err := v.check(nd.left)
	if err != nil {
		return 0, err
	}

	rightHeight, err := v.check(nd.right)
	if err != nil {
		return 0, err
	}

	if leftHeight != rightHeight {
		return 0, fmt.Errorf("%w: node %d has black heights %d and %d",
			ErrCorrupted, nodeIdx, leftHeight, rightHeight)
	}

	size := nd.weight + v.nodes[nd.left].size + v.nodes[nd.right].size
	if nd.size != size {
		return 0, fmt.Errorf("%w: node %d has size %d, expected %d", ErrCorrupted, nodeIdx, nd.size, size)
	}

	count := 1 + v.nodes[nd.left].count + v.nodes[nd.right].count
	if nd.count != count {
		return 0, fmt.Errorf("%w: node %d has count %d, expected %d", ErrCorrupted, nodeIdx, nd.count, count)
	}

	if nd.color == black {
		return leftHeight + 1, nil
	}

	return leftHeight, nil
}
