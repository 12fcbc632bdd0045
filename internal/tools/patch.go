package tools

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Patch format markers.
const (
	patchBegin     = "*** Begin Patch"
	patchEnd       = "*** End Patch"
	headerAdd      = "*** Add File: "
	headerDelete   = "*** Delete File: "
	headerUpdate   = "*** Update File: "
	hunkHeaderMark = "@@"
)

// PatchKind is the operation of one patch block.
type PatchKind int

const (
	PatchAdd PatchKind = iota
	PatchDelete
	PatchUpdate
)

// PatchBlock is one *** Begin Patch / *** End Patch section.
type PatchBlock struct {
	Kind  PatchKind
	Path  string
	Lines []string // Add: file content lines
	Hunks []Hunk   // Update
}

// LineKind classifies a hunk line.
type LineKind int

const (
	LineContext LineKind = iota
	LineRemoval
	LineAddition
)

// HunkLine is one line of a hunk body.
type HunkLine struct {
	Kind LineKind
	Text string
}

// Hunk is a run of lines anchored at a 1-based line of the original file.
type Hunk struct {
	StartOld int
	Lines    []HunkLine
}

// ParsePatch splits input into blocks. Text outside blocks is ignored.
func ParsePatch(input string) ([]PatchBlock, error) {
	lines := splitLines(input)
	var blocks []PatchBlock

	for i := 0; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != patchBegin {
			continue
		}

		i++
		if i >= len(lines) {
			return nil, errors.New("Patch block missing header line")
		}
		kind, path, err := parsePatchHeader(lines[i])
		if err != nil {
			return nil, err
		}

		var body []string
		for i+1 < len(lines) {
			i++
			if strings.TrimSpace(lines[i]) == patchEnd {
				break
			}
			body = append(body, lines[i])
		}

		block := PatchBlock{Kind: kind, Path: path}
		switch kind {
		case PatchAdd:
			block.Lines = body
		case PatchUpdate:
			if block.Hunks, err = parseHunks(body); err != nil {
				return nil, err
			}
		}
		blocks = append(blocks, block)
	}

	return blocks, nil
}

func parsePatchHeader(header string) (PatchKind, string, error) {
	h := strings.TrimSpace(header)
	switch {
	case strings.HasPrefix(h, headerAdd):
		return PatchAdd, strings.TrimSpace(strings.TrimPrefix(h, headerAdd)), nil
	case strings.HasPrefix(h, headerDelete):
		return PatchDelete, strings.TrimSpace(strings.TrimPrefix(h, headerDelete)), nil
	case strings.HasPrefix(h, headerUpdate):
		return PatchUpdate, strings.TrimSpace(strings.TrimPrefix(h, headerUpdate)), nil
	}
	return 0, "", fmt.Errorf("Unrecognized patch header: %s", header)
}

// parseHunks reads hunks from an Update body. Lines before the first
// header are ignored; unprefixed lines count as context.
func parseHunks(lines []string) ([]Hunk, error) {
	var hunks []Hunk
	var current *Hunk

	for _, line := range lines {
		if strings.HasPrefix(line, hunkHeaderMark) {
			start, err := parseHunkHeader(line)
			if err != nil {
				return nil, err
			}
			hunks = append(hunks, Hunk{StartOld: start})
			current = &hunks[len(hunks)-1]
			continue
		}
		if current == nil {
			continue
		}

		hl := HunkLine{Kind: LineContext, Text: line}
		switch {
		case strings.HasPrefix(line, "+"):
			hl = HunkLine{Kind: LineAddition, Text: line[1:]}
		case strings.HasPrefix(line, "-"):
			hl = HunkLine{Kind: LineRemoval, Text: line[1:]}
		case strings.HasPrefix(line, " "):
			hl.Text = line[1:]
		}
		current.Lines = append(current.Lines, hl)
	}
	return hunks, nil
}

// parseHunkHeader returns the old-file start of "@@ -start,len +s,l @@".
// An unparsable start defaults to 1.
func parseHunkHeader(header string) (int, error) {
	for _, tok := range strings.Fields(header) {
		if !strings.HasPrefix(tok, "-") {
			continue
		}
		spec, _, _ := strings.Cut(strings.TrimLeft(tok, "-"), ",")
		start, err := strconv.Atoi(spec)
		if err != nil {
			return 1, nil
		}
		return start, nil
	}
	return 0, fmt.Errorf("Malformed hunk header: %s", header)
}

// applyHunks applies hunks to original and returns the new lines.
func applyHunks(original []string, hunks []Hunk) ([]string, error) {
	result := make([]string, 0, len(original))
	cursor := 1

	for _, h := range hunks {
		target := max(h.StartOld, 1)
		for cursor < target && cursor <= len(original) {
			result = append(result, original[cursor-1])
			cursor++
		}

		for _, line := range h.Lines {
			switch line.Kind {
			case LineContext:
				if cursor > len(original) {
					return nil, errors.New("Patch context exceeds file length")
				}
				current := original[cursor-1]
				if current != line.Text {
					return nil, fmt.Errorf("Context mismatch while applying patch: expected '%s', found '%s'", line.Text, current)
				}
				result = append(result, current)
				cursor++
			case LineRemoval:
				if cursor > len(original) {
					return nil, errors.New("Patch removal exceeds file length")
				}
				current := original[cursor-1]
				if current != line.Text {
					return nil, fmt.Errorf("Removal mismatch while applying patch: expected '%s', found '%s'", line.Text, current)
				}
				cursor++
			case LineAddition:
				result = append(result, line.Text)
			}
		}
	}

	for cursor <= len(original) {
		result = append(result, original[cursor-1])
		cursor++
	}
	return result, nil
}

// joinLines renders lines as file content with a trailing newline.
func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
