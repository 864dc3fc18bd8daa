package rbtree

import (
	"context"
	"sync"
	"time"
)

// Operation names reported to a Recorder.
const (
	OpInsert   = "insert"
	OpInsertAt = "insert_at"
	OpDelete   = "delete"
	OpDeleteAt = "delete_at"
	OpLookup   = "lookup"
	OpAt       = "at"
	OpClear    = "clear"
	OpUpdate   = "update"
)

// OpStats describes one completed operation on a Locked tree.
type OpStats struct {
	Op        string
	Err       error
	Duration  time.Duration
	Rotations uint64
}

// Recorder receives statistics about operations on a Locked tree.
type Recorder interface {
	RecordOp(ctx context.Context, stats OpStats)
}

// LockedOption configures a Locked tree.
type LockedOption func(*lockedOptions)

type lockedOptions struct {
	recorder Recorder
}

// WithRecorder reports every operation to recorder.
func WithRecorder(recorder Recorder) LockedOption {
	return func(opts *lockedOptions) {
		opts.recorder = recorder
	}
}

// Locked wraps a Tree with a readers-writer lock: lookups share the lock,
// mutations hold it exclusively. The wrapped tree must not be used directly
// while it is owned by a Locked, and neither may other trees on the same allocator.
type Locked[T any] struct {
	mu       sync.RWMutex
	tree     *Tree[T]
	recorder Recorder
}

// NewLocked takes ownership of tree.
func NewLocked[T any](tree *Tree[T], opts ...LockedOption) *Locked[T] {
	options := lockedOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return &Locked[T]{tree: tree, recorder: options.recorder}
}

// Len returns the number of elements.
func (locked *Locked[T]) Len() int {
	locked.mu.RLock()
	defer locked.mu.RUnlock()

	return locked.tree.Len()
}

// Size returns the total weight.
func (locked *Locked[T]) Size() int {
	locked.mu.RLock()
	defer locked.mu.RUnlock()

	return locked.tree.Size()
}

// Front returns the first element.
func (locked *Locked[T]) Front() (T, bool) {
	locked.mu.RLock()
	defer locked.mu.RUnlock()

	return locked.tree.Front()
}

// Back returns the last element.
func (locked *Locked[T]) Back() (T, bool) {
	locked.mu.RLock()
	defer locked.mu.RUnlock()

	return locked.tree.Back()
}

// Lookup returns the element covering offset.
func (locked *Locked[T]) Lookup(offset int) (T, error) {
	locked.mu.RLock()
	defer locked.mu.RUnlock()

	start := time.Now()
	value, err := locked.tree.Lookup(offset)
	locked.record(OpLookup, err, start, 0)

	return value, err
}

// At returns the element with the given rank.
func (locked *Locked[T]) At(rank int) (T, error) {
	locked.mu.RLock()
	defer locked.mu.RUnlock()

	start := time.Now()
	value, err := locked.tree.At(rank)
	locked.record(OpAt, err, start, 0)

	return value, err
}

// Values returns a snapshot of all elements in order.
func (locked *Locked[T]) Values() []T {
	locked.mu.RLock()
	defer locked.mu.RUnlock()

	return locked.tree.Values()
}

// Insert adds value at the given weighted offset.
func (locked *Locked[T]) Insert(value T, weight, offset int) error {
	return locked.mutate(OpInsert, func(tree *Tree[T]) error {
		return tree.Insert(value, weight, offset)
	})
}

// InsertAt adds value at the given rank.
func (locked *Locked[T]) InsertAt(rank int, value T, weight int) error {
	return locked.mutate(OpInsertAt, func(tree *Tree[T]) error {
		return tree.InsertAt(rank, value, weight)
	})
}

// Delete removes the element covering offset.
func (locked *Locked[T]) Delete(offset int) (T, error) {
	var removed T

	err := locked.mutate(OpDelete, func(tree *Tree[T]) error {
		var err error

		removed, err = tree.Delete(offset)

		return err
	})

	return removed, err
}

// DeleteAt removes the element with the given rank.
func (locked *Locked[T]) DeleteAt(rank int) (T, error) {
	var removed T

	err := locked.mutate(OpDeleteAt, func(tree *Tree[T]) error {
		var err error

		removed, err = tree.DeleteAt(rank)

		return err
	})

	return removed, err
}

// Clear removes every element.
func (locked *Locked[T]) Clear() {
	_ = locked.mutate(OpClear, func(tree *Tree[T]) error {
		tree.Clear()

		return nil
	})
}

// View runs fn with shared access to the tree. fn must not mutate it.
func (locked *Locked[T]) View(fn func(tree *Tree[T]) error) error {
	locked.mu.RLock()
	defer locked.mu.RUnlock()

	return fn(locked.tree)
}

// Update runs fn with exclusive access to the tree, for batches of mutations.
func (locked *Locked[T]) Update(fn func(tree *Tree[T]) error) error {
	return locked.mutate(OpUpdate, fn)
}

func (locked *Locked[T]) mutate(op string, fn func(tree *Tree[T]) error) error {
	locked.mu.Lock()
	defer locked.mu.Unlock()

	start := time.Now()
	rotations := locked.tree.Rotations()
	err := fn(locked.tree)
	locked.record(op, err, start, locked.tree.Rotations()-rotations)

	return err
}

func (locked *Locked[T]) record(op string, err error, start time.Time, rotations uint64) {
	if locked.recorder == nil {
		return
	}

	locked.recorder.RecordOp(context.Background(), OpStats{
		Op:        op,
		Err:       err,
		Duration:  time.Since(start),
		Rotations: rotations,
	})
}
