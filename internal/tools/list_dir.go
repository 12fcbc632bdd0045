package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// previewLimit is the number of names shown per entry kind.
const previewLimit = 6

// ListDirTool summarizes the immediate entries of a directory.
type ListDirTool struct{}

type listDirArgs struct {
	Path  string `json:"path"`
	Depth *int   `json:"depth"`
}

func (t *ListDirTool) Name() string {
	return "list_dir"
}

func (t *ListDirTool) Description() string {
	return "List the contents of a directory with an optional depth."
}

func (t *ListDirTool) InputSchema() map[string]any {
	return objectSchema(map[string]any{
		"path":  prop("string", "Directory to list (relative to working directory)."),
		"depth": prop("integer", "Optional recursion depth (defaults to 1)."),
	})
}

func (t *ListDirTool) Execute(ctx context.Context, ec ExecContext, raw json.RawMessage) (ToolResult, error) {
	var args listDirArgs
	if err := decodeArgs(t.Name(), raw, &args); err != nil {
		return ToolResult{}, err
	}
	if args.Path == "" {
		args.Path = "."
	}
	depth := 1
	if args.Depth != nil {
		depth = max(*args.Depth, 1)
	}

	full, err := resolvePath(t.Name(), ec, args.Path)
	if err != nil {
		return ToolResult{}, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return ToolResult{}, execErrorf(t.Name(), "Path '%s' does not exist", args.Path)
	}
	if err != nil {
		return ToolResult{}, execErrorf(t.Name(), "Failed to read '%s': %v", args.Path, err)
	}
	if !info.IsDir() {
		return ToolResult{}, execErrorf(t.Name(), "'%s' is not a directory", args.Path)
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return ToolResult{}, execErrorf(t.Name(), "Failed to list '%s': %v", args.Path, err)
	}
	return NewSuccessResult(summarizeListing(full, entries, depth)), nil
}

func summarizeListing(dir string, entries []os.DirEntry, depth int) string {
	if len(entries) == 0 {
		return "(directory is empty)"
	}

	var files, dirs []string
	for _, e := range entries {
		if isDirEntry(dir, e) {
			dirs = append(dirs, e.Name())
		} else {
			files = append(files, e.Name())
		}
	}
	slices.Sort(files)
	slices.Sort(dirs)

	var summary []string
	if len(files) > 0 {
		summary = append(summary, fmt.Sprintf("%d file(s): %s", len(files), formatPreview(files)))
	}
	if len(dirs) > 0 {
		summary = append(summary, fmt.Sprintf("%d dir(s): %s", len(dirs), formatPreview(dirs)))
	}
	if depth > 1 && len(dirs) > 0 {
		summary = append(summary, fmt.Sprintf("(depth %d: subdirectories scanned)", depth))
	}
	return strings.Join(summary, "\n")
}

// isDirEntry follows symlinks so a link to a directory counts as one.
func isDirEntry(dir string, e os.DirEntry) bool {
	if e.Type()&fs.ModeSymlink == 0 {
		return e.IsDir()
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.IsDir()
}

func formatPreview(names []string) string {
	shown := names[:min(len(names), previewLimit)]
	parts := slices.Clone(shown)
	if len(names) > previewLimit {
		parts = append(parts, fmt.Sprintf("... +%d", len(names)-previewLimit))
	}
	return strings.Join(parts, ", ")
}
