package burndown

import (
	"fmt"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineDiff returns the line-level diff from oldText to newText. Every rune of a
// Diff's Text stands for one line, so utf8.RuneCountInString gives line counts.
func LineDiff(oldText, newText string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	src, dst, _ := dmp.DiffLinesToRunes(oldText, newText)
	diffs := dmp.DiffMainRunes(src, dst, false)

	return dmp.DiffCleanupMerge(dmp.DiffCleanupSemanticLossless(diffs))
}

// ApplyDiff replays a line diff produced by LineDiff as edits made at tick.
// A deletion directly followed by an insertion becomes a single replacement.
// The diff must describe exactly Len() old lines; otherwise the file is left
// unchanged and ErrOutOfRange is returned.
func (file *File) ApplyDiff(tick int, diffs []diffmatchpatch.Diff) error {
	err := checkTick(tick)
	if err != nil {
		return err
	}

	oldLines := 0

	for _, edit := range diffs {
		if edit.Type != diffmatchpatch.DiffInsert {
			oldLines += utf8.RuneCountInString(edit.Text)
		}
	}

	if oldLines != file.Len() {
		return fmt.Errorf("%w: diff covers %d lines, file has %d", ErrOutOfRange, oldLines, file.Len())
	}

	applier := &diffApplier{file: file, tick: tick}

	for _, edit := range diffs {
		switch edit.Type {
		case diffmatchpatch.DiffEqual:
			applier.flushPending()
			applier.position += utf8.RuneCountInString(edit.Text)
		case diffmatchpatch.DiffInsert:
			applier.handleInsert(edit)
		case diffmatchpatch.DiffDelete:
			applier.pending = edit
		}
	}

	applier.flushPending()

	return applier.err
}

// diffApplier holds the cursor state while a diff is replayed on a file.
type diffApplier struct {
	file     *File
	tick     int
	position int
	pending  diffmatchpatch.Diff
	err      error
}

func (d *diffApplier) update(insLength, delLength int) {
	if d.err != nil {
		return
	}

	d.err = d.file.Update(d.tick, d.position, insLength, delLength)
}

func (d *diffApplier) applySingle(edit diffmatchpatch.Diff) {
	length := utf8.RuneCountInString(edit.Text)

	if edit.Type == diffmatchpatch.DiffInsert {
		d.update(length, 0)
		d.position += length
	} else {
		d.update(0, length)
	}
}

func (d *diffApplier) flushPending() {
	if d.pending.Text != "" {
		d.applySingle(d.pending)
		d.pending.Text = ""
	}
}

func (d *diffApplier) handleInsert(edit diffmatchpatch.Diff) {
	if d.pending.Text == "" {
		d.pending = edit

		return
	}

	length := utf8.RuneCountInString(edit.Text)
	d.update(length, utf8.RuneCountInString(d.pending.Text))
	d.position += length
	d.pending.Text = ""
}
