package rbtree

import "errors"

// Sentinel errors returned by Tree operations. They are wrapped with details,
// use errors.Is to match them.
var (
	// ErrOutOfBounds is returned when an offset or rank lies outside the tree.
	ErrOutOfBounds = errors.New("index out of bounds")
	// ErrEmptyTree is returned by lookups and deletions on a tree without elements.
	ErrEmptyTree = errors.New("tree is empty")
	// ErrNegativeWeight is returned when an element is inserted with a negative weight.
	ErrNegativeWeight = errors.New("negative weight")
	// ErrCorrupted is returned by Validate when a structural invariant does not hold.
	ErrCorrupted = errors.New("tree invariant violated")
)
