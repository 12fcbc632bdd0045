package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"zarz/internal/fileutil"
	"zarz/internal/logging"
	"zarz/internal/security"
)

// ApplyPatchTool edits files using the *** Begin Patch block format.
type ApplyPatchTool struct{}

type applyPatchArgs struct {
	Patch string `json:"patch"`
}

func (t *ApplyPatchTool) Name() string {
	return "apply_patch"
}

func (t *ApplyPatchTool) Description() string {
	return "Apply a patch made of *** Begin Patch / *** End Patch blocks that add, delete or update files."
}

func (t *ApplyPatchTool) InputSchema() map[string]any {
	return objectSchema(map[string]any{
		"patch": prop("string", "Patch text. Each block starts with '*** Begin Patch', then one of '*** Add File: p', '*** Delete File: p' or '*** Update File: p', and ends with '*** End Patch'. Update blocks contain unified-diff hunks starting with '@@ -start,len +start,len @@'."),
	}, "patch")
}

// stagedFile is the pending state of one path while a patch is validated.
type stagedFile struct {
	display string
	content string
	exists  bool
	mode    os.FileMode
	touched bool
}

func (t *ApplyPatchTool) Execute(ctx context.Context, ec ExecContext, raw json.RawMessage) (ToolResult, error) {
	var args applyPatchArgs
	if err := decodeArgs(t.Name(), raw, &args); err != nil {
		return ToolResult{}, err
	}

	blocks, err := ParsePatch(args.Patch)
	if err != nil {
		return ToolResult{}, execErrorf(t.Name(), "%v", err)
	}
	if len(blocks) == 0 {
		return ToolResult{}, execErrorf(t.Name(), "No patch blocks were provided")
	}

	staged := make(map[string]*stagedFile)
	var order []string
	var summary []string

	load := func(display string) (string, *stagedFile, error) {
		full, err := resolvePath(t.Name(), ec, display)
		if err != nil {
			return "", nil, err
		}
		if sf, ok := staged[full]; ok {
			return full, sf, nil
		}
		sf := &stagedFile{display: display, mode: fileutil.FileMode(full, 0o644)}
		data, err := os.ReadFile(full)
		switch {
		case err == nil:
			sf.content = string(data)
			sf.exists = true
		case errors.Is(err, fs.ErrNotExist):
		default:
			return "", nil, execErrorf(t.Name(), "Failed to read '%s': %v", display, err)
		}
		staged[full] = sf
		order = append(order, full)
		return full, sf, nil
	}

	for _, block := range blocks {
		if err := security.CheckRelative(block.Path); err != nil {
			return ToolResult{}, execErrorf(t.Name(), "%v", err)
		}
		_, sf, err := load(block.Path)
		if err != nil {
			return ToolResult{}, err
		}

		switch block.Kind {
		case PatchAdd:
			var b strings.Builder
			for _, line := range block.Lines {
				b.WriteString(strings.TrimPrefix(line, "+"))
				b.WriteByte('\n')
			}
			sf.content = b.String()
			sf.exists = true
			sf.touched = true
			summary = append(summary, "Added "+block.Path)

		case PatchDelete:
			if !sf.exists {
				summary = append(summary, fmt.Sprintf("Skipped deleting %s (file missing)", block.Path))
				continue
			}
			sf.content = ""
			sf.exists = false
			sf.touched = true
			summary = append(summary, "Deleted "+block.Path)

		case PatchUpdate:
			if !sf.exists {
				return ToolResult{}, execErrorf(t.Name(), "Cannot update '%s': file does not exist", block.Path)
			}
			updated, err := applyHunks(splitLines(sf.content), block.Hunks)
			if err != nil {
				return ToolResult{}, execErrorf(t.Name(), "Failed to apply patch to %s: %v", block.Path, err)
			}
			sf.content = joinLines(updated)
			sf.touched = true
			summary = append(summary, "Updated "+block.Path)
		}
	}

	tx := fileutil.NewTransaction()
	for _, full := range order {
		sf := staged[full]
		if !sf.touched {
			continue
		}
		if sf.exists {
			err = tx.Write(full, []byte(sf.content), sf.mode)
		} else {
			err = tx.Delete(full)
		}
		if err != nil {
			return ToolResult{}, execErrorf(t.Name(), "%v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return ToolResult{}, execErrorf(t.Name(), "Failed to write patch: %v", err)
	}

	logging.Debug("patch applied", "blocks", len(blocks), "files", tx.Len())
	return NewSuccessResult(strings.Join(summary, "\n")), nil
}
