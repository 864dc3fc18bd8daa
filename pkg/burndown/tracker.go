package burndown

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/indexedrb/pkg/rbtree"
)

var (
	// ErrUnknownFile is returned for paths the Tracker does not know.
	ErrUnknownFile = errors.New("unknown file")
	// ErrFileExists is returned when adding a path the Tracker already tracks.
	ErrFileExists = errors.New("file already exists")
)

// Tracker keeps the line history of many files and a histogram of live lines
// per tick. Files are partitioned between shards by path; each shard has its
// own allocator and lock, so edits to files on different shards run in parallel.
type Tracker struct {
	allocators *rbtree.ShardedAllocator[uint32]
	shards     []*trackerShard
	logger     *slog.Logger
}

type trackerShard struct {
	mu    sync.Mutex
	alloc *rbtree.Allocator[uint32]
	files map[string]*File
	live  map[int]int64
}

// NewTracker creates a Tracker with shardCount shards. hibernationThreshold is
// split between the shards' allocators. logger may be nil.
func NewTracker(shardCount, hibernationThreshold int, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	allocators := rbtree.NewShardedAllocator[uint32](shardCount, hibernationThreshold)
	allocators.SetLogger(logger)

	shards := make([]*trackerShard, len(allocators.Shards()))
	for idx, alloc := range allocators.Shards() {
		shards[idx] = &trackerShard{
			alloc: alloc,
			files: map[string]*File{},
			live:  map[int]int64{},
		}
	}

	return &Tracker{allocators: allocators, shards: shards, logger: logger}
}

func (tracker *Tracker) shard(path string) *trackerShard {
	return tracker.shards[tracker.allocators.ShardIndex(path)]
}

func (shard *trackerShard) updaters() []Updater {
	return []Updater{func(_, previousTime, delta int) {
		shard.live[previousTime] += int64(delta)
		if shard.live[previousTime] == 0 {
			delete(shard.live, previousTime)
		}
	}}
}

// Add starts tracking path with length lines written at tick.
func (tracker *Tracker) Add(path string, tick, length int) error {
	shard := tracker.shard(path)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, exists := shard.files[path]; exists {
		return fmt.Errorf("%w: %s", ErrFileExists, path)
	}

	file, err := NewFile(tick, length, shard.alloc, shard.updaters()...)
	if err != nil {
		return fmt.Errorf("add %s: %w", path, err)
	}

	shard.files[path] = file

	return nil
}

// Update applies an edit to path, see File.Update.
func (tracker *Tracker) Update(path string, tick, pos, insLength, delLength int) error {
	shard := tracker.shard(path)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	file, exists := shard.files[path]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}

	err := file.Update(tick, pos, insLength, delLength)
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}

	return nil
}

// UpdateText records the change of path's content from oldText to newText at
// tick. Unchanged lines keep their ticks; inserted and replaced lines get tick.
func (tracker *Tracker) UpdateText(path string, tick int, oldText, newText string) error {
	diffs := LineDiff(oldText, newText)
	shard := tracker.shard(path)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	file, exists := shard.files[path]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}

	err := file.ApplyDiff(tick, diffs)
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}

	return nil
}

// Remove stops tracking path. Its lines are reported as deleted at tick.
func (tracker *Tracker) Remove(path string, tick int) error {
	shard := tracker.shard(path)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	file, exists := shard.files[path]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}

	err := file.Update(tick, 0, 0, file.Len())
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	file.Delete()
	delete(shard.files, path)

	return nil
}

// Rename moves the history of from to to. Live lines follow the file to the
// shard of its new path.
func (tracker *Tracker) Rename(from, to string) error {
	sourceIdx, targetIdx := tracker.allocators.ShardIndex(from), tracker.allocators.ShardIndex(to)
	source, target := tracker.shards[sourceIdx], tracker.shards[targetIdx]

	defer tracker.lockPair(sourceIdx, targetIdx)()

	file, exists := source.files[from]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownFile, from)
	}

	if _, taken := target.files[to]; taken {
		return fmt.Errorf("%w: %s", ErrFileExists, to)
	}

	delete(source.files, from)

	if source == target {
		source.files[to] = file

		return nil
	}

	moved := file.CloneDeep(target.alloc)
	moved.ReplaceUpdaters(target.updaters())
	file.tree.Ascend(func(_, weight int, value uint32) bool {
		source.live[int(value)] -= int64(weight)
		if source.live[int(value)] == 0 {
			delete(source.live, int(value))
		}

		target.live[int(value)] += int64(weight)

		return true
	})
	file.Delete()
	target.files[to] = moved

	return nil
}

// lockPair locks the shards at two indices in ascending order and returns the
// matching unlock.
func (tracker *Tracker) lockPair(first, second int) func() {
	if first == second {
		tracker.shards[first].mu.Lock()

		return tracker.shards[first].mu.Unlock
	}

	first, second = min(first, second), max(first, second)
	tracker.shards[first].mu.Lock()
	tracker.shards[second].mu.Lock()

	return func() {
		tracker.shards[second].mu.Unlock()
		tracker.shards[first].mu.Unlock()
	}
}

// Lines returns the per-line ticks of path.
func (tracker *Tracker) Lines(path string) ([]int, error) {
	shard := tracker.shard(path)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	file, exists := shard.files[path]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}

	return file.Flatten(), nil
}

// TickAt returns the tick of one line of path.
func (tracker *Tracker) TickAt(path string, line int) (int, error) {
	shard := tracker.shard(path)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	file, exists := shard.files[path]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}

	return file.TickAt(line)
}

// Files returns the tracked paths in sorted order.
func (tracker *Tracker) Files() []string {
	var paths []string

	tracker.eachShard(func(shard *trackerShard) {
		paths = slices.AppendSeq(paths, maps.Keys(shard.files))
	})

	slices.Sort(paths)

	return paths
}

// Histogram returns the number of live lines per tick.
func (tracker *Tracker) Histogram() map[int]int64 {
	histogram := map[int]int64{}

	tracker.eachShard(func(shard *trackerShard) {
		for tick, lines := range shard.live {
			histogram[tick] += lines
		}
	})

	return histogram
}

// Hibernate compresses the nodes of every shard. The Tracker must not be used
// until Boot is called.
func (tracker *Tracker) Hibernate() {
	tracker.lockAll()
	defer tracker.unlockAll()

	used := tracker.allocators.Used()
	tracker.allocators.Hibernate()
	tracker.logger.Debug("burndown: tracker hibernated", "nodes", humanize.Comma(int64(used)))
}

// Boot restores the Tracker after Hibernate.
func (tracker *Tracker) Boot() {
	tracker.lockAll()
	defer tracker.unlockAll()

	tracker.allocators.Boot()
	tracker.logger.Debug("burndown: tracker booted", "nodes", humanize.Comma(int64(tracker.allocators.Used())))
}

// Validate checks every tracked file.
func (tracker *Tracker) Validate() error {
	var errs []error

	tracker.eachShard(func(shard *trackerShard) {
		for path, file := range shard.files {
			err := file.Validate()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
			}
		}
	})

	return errors.Join(errs...)
}

// String summarizes the Tracker for logs.
func (tracker *Tracker) String() string {
	var files, lines, runs int

	tracker.eachShard(func(shard *trackerShard) {
		for _, file := range shard.files {
			files++
			lines += file.Len()
			runs += file.Nodes()
		}
	})

	return fmt.Sprintf("%s files, %s lines in %s runs",
		humanize.Comma(int64(files)), humanize.Comma(int64(lines)), humanize.Comma(int64(runs)))
}

func (tracker *Tracker) eachShard(fn func(shard *trackerShard)) {
	for _, shard := range tracker.shards {
		shard.mu.Lock()
		fn(shard)
		shard.mu.Unlock()
	}
}

func (tracker *Tracker) lockAll() {
	for _, shard := range tracker.shards {
		shard.mu.Lock()
	}
}

func (tracker *Tracker) unlockAll() {
	for _, shard := range tracker.shards {
		shard.mu.Unlock()
	}
}
