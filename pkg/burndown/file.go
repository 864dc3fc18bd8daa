// Package burndown tracks, for every line of a file, the tick at which the line
// was last written. Lines are stored as runs of equal ticks in a weighted
// red-black tree: the weight of a run is its line count, so a line number is a
// weighted offset and every edit costs O(log n) in the number of runs.
package burndown

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Sumatoshi-tech/indexedrb/pkg/rbtree"
	"github.com/Sumatoshi-tech/indexedrb/pkg/safeconv"
)

var (
	// ErrOutOfRange is returned when an edit reaches beyond the end of the file
	// or a tick does not fit into the tree.
	ErrOutOfRange = errors.New("out of range")
	// ErrNegative is returned for negative ticks, positions or lengths.
	ErrNegative = errors.New("negative argument")
)

// MaxTick is the largest tick a File can store.
const MaxTick = math.MaxUint32

// Updater is the function which is called back on File.Update().
// previousTime is the tick of the affected lines before the change and delta is
// the number of lines which moved from previousTime to currentTime; deletions
// report a negative delta, insertions report currentTime == previousTime.
type Updater = func(currentTime, previousTime, delta int)

// File is the line history of a single file. Users are not supposed to create
// File-s directly; instead, they should call NewFile().
type File struct {
	tree     *rbtree.Tree[uint32]
	updaters []Updater
}

// NewFile creates a file of length lines, all written at tick.
func NewFile(tick, length int, allocator *rbtree.Allocator[uint32], updaters ...Updater) (*File, error) {
	err := checkTick(tick)
	if err != nil {
		return nil, err
	}

	if length < 0 {
		return nil, fmt.Errorf("%w: length %d", ErrNegative, length)
	}

	file := &File{tree: rbtree.NewWithAllocator(allocator), updaters: updaters}

	if length > 0 {
		file.updateTime(tick, tick, length)

		err = file.tree.PushBack(safeconv.MustIntToUint32(tick), length)
		if err != nil {
			return nil, err
		}
	}

	return file, nil
}

func checkTick(tick int) error {
	if tick < 0 {
		return fmt.Errorf("%w: tick %d", ErrNegative, tick)
	}

	if tick > MaxTick {
		return fmt.Errorf("%w: tick %d exceeds %d", ErrOutOfRange, tick, uint32(MaxTick))
	}

	return nil
}

func (file *File) updateTime(currentTime, previousTime, delta int) {
	for _, update := range file.updaters {
		update(currentTime, previousTime, delta)
	}
}

// CloneShallow copies the file. It performs a shallow copy of the tree: the allocator
// must be Clone()-d beforehand.
func (file *File) CloneShallow(allocator *rbtree.Allocator[uint32]) *File {
	return &File{tree: file.tree.CloneShallow(allocator), updaters: file.updaters}
}

// CloneDeep copies the file. It performs a deep copy of the tree.
func (file *File) CloneDeep(allocator *rbtree.Allocator[uint32]) *File {
	return &File{tree: file.tree.CloneDeep(allocator), updaters: file.updaters}
}

// Delete releases the file's nodes back to its allocator. Updaters are not called.
func (file *File) Delete() {
	file.tree.Clear()
}

// ReplaceUpdaters replaces the file's updaters with a new set.
func (file *File) ReplaceUpdaters(updaters []Updater) {
	file.updaters = updaters
}

// Len returns the number of lines in the file.
func (file *File) Len() int {
	return file.tree.Size()
}

// Nodes returns the number of runs, that is tree nodes, in the file.
func (file *File) Nodes() int {
	return file.tree.Len()
}

// TickAt returns the tick of the given line.
func (file *File) TickAt(line int) (int, error) {
	tick, err := file.tree.Lookup(line)
	if err != nil {
		return 0, fmt.Errorf("%w: line %d of %d: %w", ErrOutOfRange, line, file.Len(), err)
	}

	return int(tick), nil
}

// Update applies an edit made at tick: delLength lines starting at pos are
// removed, then insLength lines are inserted at pos. Runs that end up next to a
// run with the same tick are merged. The file is left unchanged on error.
func (file *File) Update(tick, pos, insLength, delLength int) error {
	err := checkTick(tick)
	if err != nil {
		return err
	}

	if pos < 0 || insLength < 0 || delLength < 0 {
		return fmt.Errorf("%w: pos %d, insert %d, delete %d", ErrNegative, pos, insLength, delLength)
	}

	if pos+delLength > file.Len() {
		return fmt.Errorf("%w: edit [%d, %d) beyond the end of the file (%d lines)",
			ErrOutOfRange, pos, pos+delLength, file.Len())
	}

	if insLength|delLength == 0 {
		return nil
	}

	if delLength > 0 {
		file.deleteLines(tick, pos, delLength)
	}

	if insLength > 0 {
		rank := file.splitAt(pos)
		file.must(file.tree.InsertAt(rank, safeconv.MustIntToUint32(tick), insLength))
		file.updateTime(tick, tick, insLength)
		file.mergeAt(pos + insLength)
	}

	file.mergeAt(pos)

	return nil
}

func (file *File) deleteLines(tick, pos, delLength int) {
	rank := file.splitAt(pos)
	file.splitAt(pos + delLength)

	for remaining := delLength; remaining > 0; {
		iter, _, err := file.tree.Seek(pos)
		file.must(err)

		weight, previous := iter.Weight(), int(iter.Value())

		_, err = file.tree.DeleteAt(rank)
		file.must(err)

		file.updateTime(tick, previous, -weight)
		remaining -= weight
	}
}

// splitAt makes line pos the start of a run and returns the rank of that run,
// or the number of runs when pos is the end of the file.
func (file *File) splitAt(pos int) int {
	if pos == file.Len() {
		return file.tree.Len()
	}

	iter, within, err := file.tree.Seek(pos)
	file.must(err)

	rank := iter.Rank()
	if within == 0 {
		return rank
	}

	tick, weight := iter.Value(), iter.Weight()

	_, err = file.tree.DeleteAt(rank)
	file.must(err)
	file.must(file.tree.InsertAt(rank, tick, within))
	file.must(file.tree.InsertAt(rank+1, tick, weight-within))

	return rank + 1
}

// mergeAt joins the runs on both sides of line pos if they carry the same tick.
func (file *File) mergeAt(pos int) {
	if pos <= 0 || pos >= file.Len() {
		return
	}

	iter, within, err := file.tree.Seek(pos)
	file.must(err)

	if within != 0 {
		return
	}

	prev := iter.Prev()
	if prev.Value() != iter.Value() {
		return
	}

	rank := prev.Rank()
	tick, weight := iter.Value(), prev.Weight()+iter.Weight()

	_, err = file.tree.DeleteAt(rank)
	file.must(err)
	_, err = file.tree.DeleteAt(rank)
	file.must(err)
	file.must(file.tree.InsertAt(rank, tick, weight))
}

// must panics on errors which Update has ruled out by validating its arguments.
func (file *File) must(err error) {
	if err != nil {
		panic(fmt.Sprintf("burndown: inconsistent file state: %v\n%s", err, file.Dump()))
	}
}

// ForEach visits each run in line order with the first line of the run.
func (file *File) ForEach(callback func(line, tick int)) {
	file.tree.Ascend(func(offset, _ int, value uint32) bool {
		callback(offset, int(value))

		return true
	})
}

// Flatten represents the file as a slice of lines, each line's value being the
// corresponding tick.
func (file *File) Flatten() []int {
	lines := make([]int, 0, file.Len())

	file.tree.Ascend(func(_, weight int, value uint32) bool {
		for range weight {
			lines = append(lines, int(value))
		}

		return true
	})

	return lines
}

// Dump formats the runs into a string, one "line tick" pair per row, followed
// by the end of the file marked with tick -1.
// Useful for error messages, panic()-s and debugging.
func (file *File) Dump() string {
	var buffer strings.Builder

	file.ForEach(func(line, tick int) {
		fmt.Fprintf(&buffer, "%d %d\n", line, tick)
	})
	fmt.Fprintf(&buffer, "%d -1\n", file.Len())

	return buffer.String()
}

// Validate checks the underlying tree and the run structure:
//
// 1. The tree itself must satisfy its invariants.
//
// 2. Every run must contain at least one line.
//
// 3. Adjacent runs must carry different ticks.
func (file *File) Validate() error {
	err := file.tree.Validate()
	if err != nil {
		return err
	}

	previous := int64(-1)

	file.tree.Ascend(func(offset, weight int, value uint32) bool {
		switch {
		case weight == 0:
			err = fmt.Errorf("%w: empty run at line %d", rbtree.ErrCorrupted, offset)
		case int64(value) == previous:
			err = fmt.Errorf("%w: unmerged runs with tick %d at line %d", rbtree.ErrCorrupted, value, offset)
		}

		previous = int64(value)

		return err == nil
	})

	return err
}
