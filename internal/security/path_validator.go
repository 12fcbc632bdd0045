package security

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"zarz/internal/logging"
)

// PathPolicy resolves tool paths against a working directory and rejects
// paths matching any denied glob.
type PathPolicy struct {
	workDir string
	denied  []string
}

// NewPathPolicy creates a policy rooted at workDir. Invalid glob patterns
// are logged and ignored.
func NewPathPolicy(workDir string, denied []string) *PathPolicy {
	valid := make([]string, 0, len(denied))
	for _, pattern := range denied {
		pattern = filepath.ToSlash(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			logging.Warn("ignoring invalid denied path pattern", "pattern", pattern)
			continue
		}
		valid = append(valid, pattern)
	}
	return &PathPolicy{
		workDir: filepath.Clean(workDir),
		denied:  valid,
	}
}

// WorkDir returns the directory relative paths are resolved against.
func (p *PathPolicy) WorkDir() string {
	return p.workDir
}

// Resolve joins a relative path onto the working directory and checks it
// against the deny list. Absolute paths are kept as given.
func (p *PathPolicy) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.Contains(path, "\x00") {
		return "", fmt.Errorf("null byte in path")
	}

	resolved := path
	if !filepath.IsAbs(path) {
		resolved = filepath.Join(p.workDir, path)
	}
	resolved = filepath.Clean(resolved)

	if pattern, denied := p.match(resolved); denied {
		return "", fmt.Errorf("access to '%s' is denied by pattern %q", path, pattern)
	}
	return resolved, nil
}

// match reports the first denied pattern matching abs. Patterns are tried
// against the path relative to the working directory and the absolute path.
func (p *PathPolicy) match(abs string) (string, bool) {
	if len(p.denied) == 0 {
		return "", false
	}

	candidates := []string{filepath.ToSlash(abs)}
	if rel, err := filepath.Rel(p.workDir, abs); err == nil && !strings.HasPrefix(rel, "..") {
		candidates = append(candidates, filepath.ToSlash(rel))
	}

	for _, pattern := range p.denied {
		for _, candidate := range candidates {
			if ok, _ := doublestar.Match(pattern, candidate); ok {
				return pattern, true
			}
		}
	}
	return "", false
}

// CheckRelative rejects absolute paths and paths containing a ".."
// component. Patch targets must stay inside the working directory.
func CheckRelative(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") || filepath.VolumeName(path) != "" {
		return fmt.Errorf("unsafe path '%s': absolute paths are not allowed", path)
	}
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return fmt.Errorf("unsafe path '%s': parent directory components are not allowed", path)
		}
	}
	return nil
}
