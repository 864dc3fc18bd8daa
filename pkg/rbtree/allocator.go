package rbtree

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/indexedrb/pkg/safeconv"
)

// growCapacityNumerator and growCapacityDenominator define the 3/2 growth factor for storage.
const (
	growCapacityNumerator   = 3
	growCapacityDenominator = 2
)

// Hibernated column layout.
const (
	columnParent = iota
	columnLeft
	columnRight
	columnColor
	columnWeightLo
	columnWeightHi
	columnCount
)

const weightHiShift = 32

// Allocator is the arena for the nodes of one or more Tree-s. Node handles are
// indices into its storage; handle 0 is reserved and never allocated.
//
// An Allocator is not safe for concurrent use. Trees sharing an allocator
// must be mutated by one goroutine at a time.
type Allocator[T any] struct {
	storage []node[T]
	gaps    map[uint32]bool

	hibernatedData       [columnCount + 1][]byte
	hibernatedValues     []T
	hibernatedStorageLen int
	hibernatedGapsLen    int

	// HibernationThreshold is the minimum number of slots for Hibernate to compress.
	HibernationThreshold int

	// Logger receives debug records about hibernation. Nil discards them.
	Logger *slog.Logger
}

// NewAllocator creates a new allocator for tree nodes.
func NewAllocator[T any]() *Allocator[T] {
	return &Allocator[T]{
		storage: []node[T]{},
		gaps:    map[uint32]bool{},
	}
}

// discardLogger backs allocators without a Logger.
var discardLogger = slog.New(slog.DiscardHandler)

func (allocator *Allocator[T]) logger() *slog.Logger {
	if allocator.Logger != nil {
		return allocator.Logger
	}

	return discardLogger
}

// Size returns the currently allocated size.
func (allocator *Allocator[T]) Size() int {
	return len(allocator.storage)
}

// Used returns the number of nodes contained in the allocator.
func (allocator *Allocator[T]) Used() int {
	if allocator.storage == nil {
		panic("hibernated allocators cannot be used")
	}

	if len(allocator.storage) == 0 {
		return 0
	}

	// Slot 0 is the reserved sentinel.
	return len(allocator.storage) - 1 - len(allocator.gaps)
}

// Hibernated reports whether the allocator is currently compressed.
func (allocator *Allocator[T]) Hibernated() bool {
	return allocator.storage == nil
}

// Clone copies an existing allocator. Handles stay valid in the copy, which is
// what Tree.CloneShallow relies on.
func (allocator *Allocator[T]) Clone() *Allocator[T] {
	if allocator.storage == nil {
		panic("cannot clone a hibernated allocator")
	}

	newAllocator := &Allocator[T]{
		HibernationThreshold: allocator.HibernationThreshold,
		Logger:               allocator.Logger,
		storage:              make([]node[T], len(allocator.storage), cap(allocator.storage)),
		gaps:                 make(map[uint32]bool, len(allocator.gaps)),
	}
	copy(newAllocator.storage, allocator.storage)
	maps.Copy(newAllocator.gaps, allocator.gaps)

	return newAllocator
}

// Hibernate compresses the allocated memory. Link, color and weight columns are
// compressed with LZ4; values are parked as-is; subtree aggregates are dropped
// and recomputed by Boot.
func (allocator *Allocator[T]) Hibernate() {
	if allocator.hibernatedStorageLen > 0 {
		panic("cannot hibernate an already hibernated Allocator")
	}

	if allocator.storage == nil || len(allocator.storage) < allocator.HibernationThreshold {
		return
	}

	allocator.hibernatedStorageLen = len(allocator.storage)
	if allocator.hibernatedStorageLen == 0 {
		allocator.storage = nil

		return
	}

	buffers := [columnCount][]uint32{}

	for idx := range buffers {
		buffers[idx] = make([]uint32, len(allocator.storage))
	}

	values := make([]T, len(allocator.storage))

	// We deinterleave to achieve a better compression ratio.
	for idx := range allocator.storage {
		nd := &allocator.storage[idx]
		values[idx] = nd.value
		buffers[columnParent][idx] = nd.parent
		buffers[columnLeft][idx] = nd.left
		buffers[columnRight][idx] = nd.right
		buffers[columnWeightLo][idx] = uint32(uint64(nd.weight))                  //nolint:gosec // split into two columns.
		buffers[columnWeightHi][idx] = uint32(uint64(nd.weight) >> weightHiShift) //nolint:gosec // split into two columns.

		if nd.color {
			buffers[columnColor][idx] = 1
		}
	}

	allocator.storage = nil
	allocator.hibernatedValues = values

	wg := &sync.WaitGroup{}
	wg.Add(len(buffers) + 1)

	for idx, buffer := range buffers {
		go func(bufIdx int, buf []uint32) {
			defer wg.Done()

			allocator.hibernatedData[bufIdx] = CompressUInt32Slice(buf)
		}(idx, buffer)
	}

	// Gaps are sorted and delta-encoded: freed slots tend to cluster.
	go func() {
		defer wg.Done()

		if len(allocator.gaps) > 0 {
			allocator.hibernatedGapsLen = len(allocator.gaps)

			gapsBuffer := slices.Sorted(maps.Keys(allocator.gaps))
			DeltaEncodeUInt32Slice(gapsBuffer)
			allocator.hibernatedData[columnCount] = CompressUInt32Slice(gapsBuffer)
		}

		allocator.gaps = nil
	}()

	wg.Wait()

	compressed := 0
	for _, data := range allocator.hibernatedData {
		compressed += len(data)
	}

	allocator.logger().Debug("rbtree: allocator hibernated",
		"slots", allocator.hibernatedStorageLen,
		"gaps", allocator.hibernatedGapsLen,
		"compressed", humanize.Bytes(safeconv.MustIntToUint64(compressed)))
}

// Boot performs the opposite of Hibernate() - decompresses and restores the allocated memory.
func (allocator *Allocator[T]) Boot() {
	if allocator.storage == nil && allocator.hibernatedStorageLen == 0 {
		allocator.storage = []node[T]{}
		allocator.gaps = map[uint32]bool{}

		return
	}

	if allocator.hibernatedStorageLen == 0 {
		// Not hibernated.
		return
	}

	allocator.gaps = map[uint32]bool{}
	buffers := [columnCount][]uint32{}
	errs := [columnCount + 1]error{}

	wg := &sync.WaitGroup{}
	wg.Add(len(buffers) + 1)

	for idx := range buffers {
		go func(bufIdx int) {
			defer wg.Done()

			buffers[bufIdx] = make([]uint32, allocator.hibernatedStorageLen)
			errs[bufIdx] = DecompressUInt32Slice(allocator.hibernatedData[bufIdx], buffers[bufIdx])
			allocator.hibernatedData[bufIdx] = nil
		}(idx)
	}

	go func() {
		defer wg.Done()

		if allocator.hibernatedGapsLen > 0 {
			buffer := make([]uint32, allocator.hibernatedGapsLen)
			errs[columnCount] = DecompressUInt32Slice(allocator.hibernatedData[columnCount], buffer)
			DeltaDecodeUInt32Slice(buffer)

			for _, key := range buffer {
				allocator.gaps[key] = true
			}

			allocator.hibernatedData[columnCount] = nil
			allocator.hibernatedGapsLen = 0
		}
	}()

	wg.Wait()

	err := errors.Join(errs[:]...)
	if err != nil {
		panic(fmt.Sprintf("rbtree: cannot boot allocator: %v", err))
	}

	capSize := (allocator.hibernatedStorageLen * growCapacityNumerator) / growCapacityDenominator
	storage := make([]node[T], allocator.hibernatedStorageLen, capSize)

	for idx := range storage {
		nd := &storage[idx]
		nd.value = allocator.hibernatedValues[idx]
		nd.parent = buffers[columnParent][idx]
		nd.left = buffers[columnLeft][idx]
		nd.right = buffers[columnRight][idx]
		nd.weight = int(uint64(buffers[columnWeightLo][idx]) | uint64(buffers[columnWeightHi][idx])<<weightHiShift) //nolint:gosec // restores the original int.
		nd.color = buffers[columnColor][idx] > 0
	}

	restoreAggregates(storage, allocator.gaps)

	allocator.storage = storage
	allocator.hibernatedValues = nil
	allocator.hibernatedStorageLen = 0

	allocator.logger().Debug("rbtree: allocator booted", "slots", len(storage), "gaps", len(allocator.gaps))
}

// restoreAggregates rebuilds size and count of every live node by pushing each
// node's weight up through its ancestors.
func restoreAggregates[T any](storage []node[T], gaps map[uint32]bool) {
	for idx := 1; idx < len(storage); idx++ {
		if gaps[safeconv.MustIntToUint32(idx)] {
			continue
		}

		weight := storage[idx].weight

		for cursor := safeconv.MustIntToUint32(idx); cursor != 0; cursor = storage[cursor].parent {
			storage[cursor].size += weight
			storage[cursor].count++
		}
	}
}

func (allocator *Allocator[T]) malloc() uint32 {
	if allocator.storage == nil {
		panic("hibernated allocators cannot be used")
	}

	if len(allocator.gaps) > 0 {
		var key uint32

		for key = range allocator.gaps {
			break
		}

		delete(allocator.gaps, key)

		return key
	}

	nodeLen := len(allocator.storage)
	if nodeLen == 0 {
		// Zero is reserved.
		allocator.storage = append(allocator.storage, node[T]{})
		nodeLen = 1
	}

	if nodeLen == negativeLimitNode-1 {
		// [math.MaxUint32] is reserved.
		panic("the size of the rbtree allocator has reached the maximum value for uint32")
	}

	allocator.storage = append(allocator.storage, node[T]{})

	return safeconv.MustIntToUint32(nodeLen)
}

func (allocator *Allocator[T]) free(nodeIdx uint32) {
	if allocator.storage == nil {
		panic("hibernated allocators cannot be used")
	}

	if nodeIdx == 0 {
		panic("node #0 is special and cannot be deallocated")
	}

	_, exists := allocator.gaps[nodeIdx]
	doAssert(!exists)

	// Zeroing also drops the value so the garbage collector can reclaim what it references.
	allocator.storage[nodeIdx] = node[T]{}
	allocator.gaps[nodeIdx] = true
}
