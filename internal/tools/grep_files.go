package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// GrepFilesTool does a literal, case-sensitive substring search in one file.
type GrepFilesTool struct{}

type grepArgs struct {
	Path    string `json:"path"`
	Pattern string `json:"pattern"`
}

func (t *GrepFilesTool) Name() string {
	return "grep_files"
}

func (t *GrepFilesTool) Description() string {
	return "Search for a text pattern inside a single file (simple substring match)."
}

func (t *GrepFilesTool) InputSchema() map[string]any {
	return objectSchema(map[string]any{
		"path":    prop("string", "File to search (relative to working directory)."),
		"pattern": prop("string", "Substring to search for (case-sensitive)."),
	}, "path", "pattern")
}

func (t *GrepFilesTool) Execute(ctx context.Context, ec ExecContext, raw json.RawMessage) (ToolResult, error) {
	var args grepArgs
	if err := decodeArgs(t.Name(), raw, &args); err != nil {
		return ToolResult{}, err
	}
	if args.Path == "" {
		return ToolResult{}, missingField(t.Name(), "path")
	}

	full, err := statFile(t.Name(), ec, args.Path, "'%s' is a directory; grep_files expects a file")
	if err != nil {
		return ToolResult{}, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return ToolResult{}, execErrorf(t.Name(), "Failed to read '%s': %v", args.Path, err)
	}

	var matches strings.Builder
	for i, line := range splitLines(string(data)) {
		if strings.Contains(line, args.Pattern) {
			fmt.Fprintf(&matches, "%6d | %s\n", i+1, line)
		}
	}

	if matches.Len() == 0 {
		return NewSuccessResult(fmt.Sprintf("No matches for '%s' in %s", args.Pattern, args.Path)), nil
	}
	return NewSuccessResult(matches.String()), nil
}
