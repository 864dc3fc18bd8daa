package burndown

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerLifecycle(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(4, 0, nil)

	require.NoError(t, tracker.Add("a.go", 0, 100))
	require.NoError(t, tracker.Add("b.go", 1, 50))
	require.ErrorIs(t, tracker.Add("a.go", 2, 1), ErrFileExists)
	require.ErrorIs(t, tracker.Add("c.go", -1, 1), ErrNegative)

	require.NoError(t, tracker.Update("a.go", 2, 10, 5, 20))
	require.ErrorIs(t, tracker.Update("missing.go", 2, 0, 1, 0), ErrUnknownFile)
	require.ErrorIs(t, tracker.Update("b.go", 2, 60, 1, 0), ErrOutOfRange)

	assert.Equal(t, []string{"a.go", "b.go"}, tracker.Files())
	assert.Equal(t, map[int]int64{0: 80, 1: 50, 2: 5}, tracker.Histogram())

	tick, err := tracker.TickAt("a.go", 12)
	require.NoError(t, err)
	assert.Equal(t, 2, tick)

	require.NoError(t, tracker.Remove("b.go", 3))
	require.ErrorIs(t, tracker.Remove("b.go", 3), ErrUnknownFile)
	assert.Equal(t, map[int]int64{0: 80, 2: 5}, tracker.Histogram())
	assert.Equal(t, "1 files, 85 lines in 3 runs", tracker.String())
	require.NoError(t, tracker.Validate())
}

func TestTrackerRename(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(8, 0, nil)
	require.NoError(t, tracker.Add("old.go", 0, 10))
	require.NoError(t, tracker.Update("old.go", 1, 5, 3, 0))
	require.NoError(t, tracker.Add("other.go", 0, 1))

	before, err := tracker.Lines("old.go")
	require.NoError(t, err)

	for idx := range 20 {
		from := "old.go"
		if idx > 0 {
			from = fmt.Sprintf("renamed%d.go", idx-1)
		}

		require.NoError(t, tracker.Rename(from, fmt.Sprintf("renamed%d.go", idx)))
	}

	_, err = tracker.Lines("old.go")
	require.ErrorIs(t, err, ErrUnknownFile)

	after, err := tracker.Lines("renamed19.go")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, map[int]int64{0: 11, 1: 3}, tracker.Histogram())

	require.ErrorIs(t, tracker.Rename("renamed19.go", "other.go"), ErrFileExists)
	require.ErrorIs(t, tracker.Rename("nope.go", "x.go"), ErrUnknownFile)

	// The renamed file keeps reporting to the histogram of its new shard.
	require.NoError(t, tracker.Update("renamed19.go", 2, 0, 0, 13))
	assert.Equal(t, map[int]int64{0: 1}, tracker.Histogram())
	require.NoError(t, tracker.Validate())
}

func TestTrackerHibernateBoot(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tracker := NewTracker(2, 1_000_000, logger)

	expected := map[string][]int{}

	for idx := range 20 {
		path := fmt.Sprintf("file%d.go", idx)
		require.NoError(t, tracker.Add(path, idx, 100))
		require.NoError(t, tracker.Update(path, idx+1, idx, 10, 5))

		lines, err := tracker.Lines(path)
		require.NoError(t, err)

		expected[path] = lines
	}

	histogram := tracker.Histogram()

	tracker.Hibernate()
	tracker.Boot()

	for path, lines := range expected {
		actual, err := tracker.Lines(path)
		require.NoError(t, err)

		if diff := cmp.Diff(lines, actual); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", path, diff)
		}
	}

	assert.Equal(t, histogram, tracker.Histogram())
	require.NoError(t, tracker.Validate())
	assert.Contains(t, logs.String(), "burndown: tracker hibernated")
	assert.Contains(t, logs.String(), "rbtree: allocator booted")

	// Booted shards accept edits.
	require.NoError(t, tracker.Update("file3.go", 50, 0, 1, 0))
}

func TestTrackerConcurrentUpdates(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(4, 0, nil)

	const files = 16

	for idx := range files {
		require.NoError(t, tracker.Add(fmt.Sprintf("f%d", idx), 0, 10))
	}

	var wg sync.WaitGroup

	for idx := range files {
		wg.Add(1)

		go func() {
			defer wg.Done()

			path := fmt.Sprintf("f%d", idx)
			for tick := 1; tick <= 100; tick++ {
				assert.NoError(t, tracker.Update(path, tick, tick%10, 2, 1))
			}
		}()
	}

	wg.Wait()

	total := int64(0)
	for _, lines := range tracker.Histogram() {
		total += lines
	}

	assert.Equal(t, int64(files*(10+100)), total)
	require.NoError(t, tracker.Validate())
}

// textOf renders lines as file content with a trailing newline.
func textOf(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	return strings.Join(lines, "\n") + "\n"
}

func TestTrackerUpdateText(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(2, 0, nil)

	oldText := textOf([]string{"a", "b", "c", "d", "e"})
	require.NoError(t, tracker.Add("main.go", 0, 5))
	require.NoError(t, tracker.UpdateText("main.go", 1, oldText, textOf([]string{"a", "x", "c", "d", "e", "f"})))

	lines, err := tracker.Lines("main.go")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0, 0, 0, 1}, lines)
	assert.Equal(t, map[int]int64{0: 4, 1: 2}, tracker.Histogram())

	require.ErrorIs(t, tracker.UpdateText("missing.go", 1, "", "a\n"), ErrUnknownFile)
	require.ErrorIs(t, tracker.UpdateText("main.go", 2, oldText, "a\n"), ErrOutOfRange)
	require.ErrorIs(t, tracker.UpdateText("main.go", -1, "", "a\n"), ErrNegative)

	after, err := tracker.Lines("main.go")
	require.NoError(t, err)
	assert.Equal(t, lines, after)
	require.NoError(t, tracker.Validate())
}

func TestTrackerUpdateTextRandomAgainstFlat(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11)) //nolint:gosec // deterministic test data.
	tracker := NewTracker(1, 0, nil)

	next := 0
	fresh := func(count int) []string {
		lines := make([]string, count)
		for idx := range lines {
			lines[idx] = "line" + strconv.Itoa(next)
			next++
		}

		return lines
	}

	content := fresh(40)
	expected := make([]int, len(content))

	require.NoError(t, tracker.Add("doc.txt", 0, len(content)))

	for tick := 1; tick <= 200; tick++ {
		pos := rng.Intn(len(content) + 1)
		delLength := rng.Intn(min(5, len(content)-pos) + 1)
		insLength := rng.Intn(5)

		updated := append([]string(nil), content[:pos]...)
		updated = append(updated, fresh(insLength)...)
		updated = append(updated, content[pos+delLength:]...)

		require.NoError(t, tracker.UpdateText("doc.txt", tick, textOf(content), textOf(updated)))

		content = updated
		expected = applyFlat(expected, tick, pos, insLength, delLength)

		lines, err := tracker.Lines("doc.txt")
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(expected, lines, cmpopts.EquateEmpty()), "tick %d", tick)
	}

	histogram := map[int]int64{}
	for tick, count := range histogramOf(expected) {
		histogram[tick] = int64(count)
	}

	assert.Equal(t, histogram, tracker.Histogram())
	require.NoError(t, tracker.Validate())
}
