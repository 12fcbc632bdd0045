package tools

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffContext is the number of unchanged lines kept around each change.
const diffContext = 3

type diffLine struct {
	kind LineKind
	text string
}

// BuildUpdatePatch renders an apply_patch Update block that turns
// oldContent into newContent. Identical inputs yield a block with no hunks.
func BuildUpdatePatch(path, oldContent, newContent string) string {
	lines := lineDiff(oldContent, newContent)

	var b strings.Builder
	b.WriteString(patchBegin + "\n")
	b.WriteString(headerUpdate + path + "\n")
	for _, h := range groupHunks(lines) {
		b.WriteString(h)
	}
	b.WriteString(patchEnd + "\n")
	return b.String()
}

// BuildFileDiff renders the hunks turning oldContent into newContent under
// "--- path" / "+++ path" headers. Identical inputs yield only the headers.
func BuildFileDiff(path, oldContent, newContent string) string {
	var b strings.Builder
	b.WriteString("--- " + path + "\n")
	b.WriteString("+++ " + path + "\n")
	for _, h := range groupHunks(lineDiff(oldContent, newContent)) {
		b.WriteString(h)
	}
	return b.String()
}

// CountLineChanges returns the number of added and removed lines.
func CountLineChanges(oldContent, newContent string) (added, removed int) {
	for _, l := range lineDiff(oldContent, newContent) {
		switch l.kind {
		case LineAddition:
			added++
		case LineRemoval:
			removed++
		}
	}
	return added, removed
}

// lineDiff computes a line-level diff of two texts.
func lineDiff(oldContent, newContent string) []diffLine {
	dmp := diffmatchpatch.New()
	a, b, table := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, table)

	var out []diffLine
	for _, d := range diffs {
		kind := LineContext
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			kind = LineAddition
		case diffmatchpatch.DiffDelete:
			kind = LineRemoval
		}
		for _, line := range splitLines(d.Text) {
			out = append(out, diffLine{kind: kind, text: line})
		}
	}
	return out
}

// groupHunks selects changed lines plus surrounding context and renders
// each contiguous run as one hunk.
func groupHunks(lines []diffLine) []string {
	keep := make([]bool, len(lines))
	for i, l := range lines {
		if l.kind == LineContext {
			continue
		}
		for j := max(i-diffContext, 0); j <= min(i+diffContext, len(lines)-1); j++ {
			keep[j] = true
		}
	}

	var hunks []string
	oldLine, newLine := 1, 1
	for i := 0; i < len(lines); {
		if !keep[i] {
			oldLine, newLine = advance(lines[i].kind, oldLine, newLine)
			i++
			continue
		}

		oldStart, newStart := oldLine, newLine
		var body strings.Builder
		oldLen, newLen := 0, 0
		for ; i < len(lines) && keep[i]; i++ {
			l := lines[i]
			switch l.kind {
			case LineContext:
				body.WriteString(" " + l.text + "\n")
				oldLen++
				newLen++
			case LineRemoval:
				body.WriteString("-" + l.text + "\n")
				oldLen++
			case LineAddition:
				body.WriteString("+" + l.text + "\n")
				newLen++
			}
			oldLine, newLine = advance(l.kind, oldLine, newLine)
		}
		header := fmt.Sprintf("@@ -%d,%d +%d,%d @@\n", oldStart, oldLen, newStart, newLen)
		hunks = append(hunks, header+body.String())
	}
	return hunks
}

func advance(kind LineKind, oldLine, newLine int) (int, int) {
	switch kind {
	case LineContext:
		return oldLine + 1, newLine + 1
	case LineRemoval:
		return oldLine + 1, newLine
	default:
		return oldLine, newLine + 1
	}
}
