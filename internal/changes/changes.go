// Package changes turns ```file:<path> fences in model answers into
// whole-file changes that are reviewed as diffs and written together.
package changes

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"zarz/internal/fileutil"
	"zarz/internal/security"
	"zarz/internal/tools"
)

const (
	fenceOpen  = "```file:"
	fenceClose = "```"
)

// Block is one complete file body proposed by the model.
type Block struct {
	Path    string
	Content string
}

// ParseBlocks extracts file fences from text in order of appearance. A
// later fence for the same path replaces the earlier one. A fence left
// open runs to the end of text. Contents always end with a newline.
func ParseBlocks(text string) []Block {
	var blocks []Block
	index := make(map[string]int)

	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		rest, ok := strings.CutPrefix(strings.TrimLeft(lines[i], " \t"), fenceOpen)
		if !ok {
			continue
		}
		path := normalizePath(rest)

		var body []string
		for i++; i < len(lines); i++ {
			line := strings.TrimSuffix(lines[i], "\r")
			if strings.TrimSpace(line) == fenceClose {
				break
			}
			body = append(body, line)
		}
		if path == "" {
			continue
		}

		content := strings.Join(body, "\n")
		if content != "" {
			content += "\n"
		}
		if at, seen := index[path]; seen {
			blocks[at].Content = content
			continue
		}
		index[path] = len(blocks)
		blocks = append(blocks, Block{Path: path, Content: content})
	}
	return blocks
}

// StripBlocks removes file fences from text, leaving the prose around them.
func StripBlocks(text string) string {
	var out []string
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		if !strings.HasPrefix(strings.TrimLeft(lines[i], " \t"), fenceOpen) {
			out = append(out, lines[i])
			continue
		}
		for i++; i < len(lines) && strings.TrimSpace(lines[i]) != fenceClose; i++ {
		}
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\r\n")
}

func normalizePath(raw string) string {
	p := strings.TrimSpace(raw)
	for {
		switch {
		case strings.HasPrefix(p, "./"):
			p = p[2:]
		case strings.HasPrefix(p, `.\`):
			p = p[2:]
		default:
			return strings.ReplaceAll(p, `\`, "/")
		}
	}
}

// Change is the difference between a file on disk and a proposed body.
type Change struct {
	Path     string
	Original string
	Updated  string
	Exists   bool
}

// Unchanged reports whether applying c would leave the file as it is.
func (c Change) Unchanged() bool {
	return c.Exists && c.Original == c.Updated
}

// Diff renders the line diff of c.
func (c Change) Diff() string {
	return tools.BuildFileDiff(c.Path, c.Original, c.Updated)
}

// Title is the one-line heading of c, such as "Update(main.go)".
func (c Change) Title() string {
	if !c.Exists {
		return "Create(" + c.Path + ")"
	}
	return "Update(" + c.Path + ")"
}

// Stats describes the size of c.
func (c Change) Stats() string {
	added, removed := tools.CountLineChanges(c.Original, c.Updated)
	if !c.Exists {
		return fmt.Sprintf("Created %s with %d %s", c.Path, added, plural(added, "line"))
	}
	return fmt.Sprintf("Updated %s with %d %s and %d %s",
		c.Path, added, plural(added, "addition"), removed, plural(removed, "removal"))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// Plan reads the current content behind every block. Block paths must be
// relative, stay inside the policy's working directory and clear its deny
// list.
func Plan(policy *security.PathPolicy, blocks []Block) ([]Change, error) {
	list := make([]Change, 0, len(blocks))
	for _, b := range blocks {
		full, err := resolve(policy, b.Path)
		if err != nil {
			return nil, err
		}

		c := Change{Path: b.Path, Updated: b.Content}
		data, err := os.ReadFile(full)
		switch {
		case err == nil:
			c.Original = string(data)
			c.Exists = true
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read %s: %w", b.Path, err)
		}
		list = append(list, c)
	}
	return list, nil
}

// Apply writes every change that modifies its file in one transaction:
// either all of them land or none do. It returns the changes written.
func Apply(policy *security.PathPolicy, list []Change) ([]Change, error) {
	tx := fileutil.NewTransaction()
	var written []Change
	for _, c := range list {
		if c.Unchanged() {
			continue
		}
		full, err := resolve(policy, c.Path)
		if err != nil {
			return nil, err
		}
		if err := tx.Write(full, []byte(c.Updated), fileutil.FileMode(full, 0o644)); err != nil {
			return nil, err
		}
		written = append(written, c)
	}
	if tx.Len() == 0 {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to write changes: %w", err)
	}
	return written, nil
}

func resolve(policy *security.PathPolicy, path string) (string, error) {
	if err := security.CheckRelative(path); err != nil {
		return "", err
	}
	return policy.Resolve(path)
}

// Pending holds changes proposed during a conversation until they are
// applied or discarded.
type Pending struct {
	mu      sync.Mutex
	changes []Change
}

// Stage adds list to the pending set. A change to an already pending
// path replaces its body but keeps the original read from disk.
// Changes that would not modify their file are skipped. Stage returns the
// number of changes now pending.
func (p *Pending) Stage(list []Change) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range list {
		at := -1
		for i := range p.changes {
			if p.changes[i].Path == c.Path {
				at = i
				break
			}
		}
		if at >= 0 {
			c.Original = p.changes[at].Original
			c.Exists = p.changes[at].Exists
			p.changes = append(p.changes[:at], p.changes[at+1:]...)
		}
		if c.Unchanged() {
			continue
		}
		p.changes = append(p.changes, c)
	}
	return len(p.changes)
}

// List returns the pending changes in staging order.
func (p *Pending) List() []Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Change(nil), p.changes...)
}

// Len returns the number of pending changes.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.changes)
}

// Clear discards every pending change and returns how many there were.
func (p *Pending) Clear() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.changes)
	p.changes = nil
	return n
}
