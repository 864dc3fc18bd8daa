package rbtree

import (
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/Sumatoshi-tech/indexedrb/pkg/safeconv"
)

// minHibernationThreshold is the minimal reasonable default if division results in 0.
const minHibernationThreshold = 1000

// ShardedAllocator manages multiple Allocators so that unrelated trees can be
// mutated from different goroutines, one goroutine per shard.
type ShardedAllocator[T any] struct {
	shards []*Allocator[T]
}

// NewShardedAllocator creates a new ShardedAllocator with n shards.
// The hibernation threshold is split evenly between the shards.
func NewShardedAllocator[T any](shardCount, hibernationThreshold int) *ShardedAllocator[T] {
	if shardCount <= 0 {
		shardCount = 1
	}

	shards := make([]*Allocator[T], shardCount)

	for idx := range shardCount {
		shards[idx] = NewAllocator[T]()

		if hibernationThreshold > 0 {
			shards[idx].HibernationThreshold = hibernationThreshold / shardCount
			if shards[idx].HibernationThreshold == 0 {
				shards[idx].HibernationThreshold = minHibernationThreshold
			}
		}
	}

	return &ShardedAllocator[T]{shards: shards}
}

// SetLogger attaches logger to every shard.
func (sa *ShardedAllocator[T]) SetLogger(logger *slog.Logger) {
	for idx, shard := range sa.shards {
		if logger == nil {
			shard.Logger = nil

			continue
		}

		shard.Logger = logger.With("shard", idx)
	}
}

// ShardIndex returns the index of the shard which owns key.
func (sa *ShardedAllocator[T]) ShardIndex(key string) int {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))

	return int(hasher.Sum32() % safeconv.MustIntToUint32(len(sa.shards)))
}

// GetShard returns the allocator shard for the given key.
func (sa *ShardedAllocator[T]) GetShard(key string) *Allocator[T] {
	return sa.shards[sa.ShardIndex(key)]
}

// Shards returns all underlying allocators.
func (sa *ShardedAllocator[T]) Shards() []*Allocator[T] {
	return sa.shards
}

// Used returns the number of nodes held by all shards.
func (sa *ShardedAllocator[T]) Used() int {
	used := 0

	for _, shard := range sa.shards {
		used += shard.Used()
	}

	return used
}

// Hibernate hibernates all shards in parallel.
func (sa *ShardedAllocator[T]) Hibernate() {
	sa.parallel(func(alloc *Allocator[T]) {
		// Force hibernation even if below threshold by temporarily setting threshold to 0.
		originalThreshold := alloc.HibernationThreshold
		alloc.HibernationThreshold = 0
		alloc.Hibernate()
		alloc.HibernationThreshold = originalThreshold
	})
}

// Boot boots all shards in parallel.
func (sa *ShardedAllocator[T]) Boot() {
	sa.parallel(func(alloc *Allocator[T]) {
		alloc.Boot()
	})
}

func (sa *ShardedAllocator[T]) parallel(fn func(alloc *Allocator[T])) {
	wg := sync.WaitGroup{}
	wg.Add(len(sa.shards))

	for _, shard := range sa.shards {
		go func(alloc *Allocator[T]) {
			defer wg.Done()

			fn(alloc)
		}(shard)
	}

	wg.Wait()
}
