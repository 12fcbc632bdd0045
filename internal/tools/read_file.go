package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// maxReadChars caps the text returned by read_file.
const maxReadChars = 16000

// ReadFileTool reads a file, optionally limited to a line range.
type ReadFileTool struct{}

type readFileArgs struct {
	Path      string `json:"path"`
	StartLine *int   `json:"start_line"`
	EndLine   *int   `json:"end_line"`
}

func (t *ReadFileTool) Name() string {
	return "read_file"
}

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file. Accepts optional start/end line numbers."
}

func (t *ReadFileTool) InputSchema() map[string]any {
	return objectSchema(map[string]any{
		"path":       prop("string", "Path to the file (relative to the working directory)."),
		"start_line": prop("integer", "Optional starting line number (1-based)."),
		"end_line":   prop("integer", "Optional ending line number (1-based, inclusive)."),
	}, "path")
}

func (t *ReadFileTool) Execute(ctx context.Context, ec ExecContext, raw json.RawMessage) (ToolResult, error) {
	var args readFileArgs
	if err := decodeArgs(t.Name(), raw, &args); err != nil {
		return ToolResult{}, err
	}
	if args.Path == "" {
		return ToolResult{}, missingField(t.Name(), "path")
	}

	full, err := statFile(t.Name(), ec, args.Path, "'%s' is a directory")
	if err != nil {
		return ToolResult{}, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return ToolResult{}, execErrorf(t.Name(), "Failed to read '%s': %v", args.Path, err)
	}

	return NewSuccessResult(sliceContent(string(data), args.StartLine, args.EndLine)), nil
}

// sliceContent returns the whole text when no range is given, otherwise
// the inclusive line range with numbered lines. Bounds are clamped.
func sliceContent(content string, startLine, endLine *int) string {
	if startLine == nil && endLine == nil {
		return truncateRead(content)
	}

	lines := splitLines(content)
	total := len(lines)

	start := 1
	if startLine != nil {
		start = *startLine
	}
	start = min(max(start, 1), max(total, 1))

	end := total
	if endLine != nil {
		end = *endLine
	}
	end = min(max(end, start), total)

	var b strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%6d | %s\n", i, lines[i-1])
	}
	if b.Len() == 0 {
		return fmt.Sprintf("No content in requested range (%d-%d)", start, end)
	}
	return truncateRead(b.String())
}

func truncateRead(text string) string {
	if len(text) <= maxReadChars {
		return text
	}
	cut := maxReadChars
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return fmt.Sprintf("%s\n... (truncated, %d total chars)", text[:cut], len(text))
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
