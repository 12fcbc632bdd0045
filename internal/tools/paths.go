package tools

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// resolvePath turns a tool path argument into an absolute path.
func resolvePath(tool string, ec ExecContext, p string) (string, error) {
	if ec.Paths != nil {
		resolved, err := ec.Paths.Resolve(p)
		if err != nil {
			return "", execErrorf(tool, "%v", err)
		}
		return resolved, nil
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return filepath.Join(ec.WorkDir, p), nil
}

// statFile resolves p and requires it to be an existing regular file.
// isDirMsg is the error text used when p names a directory.
func statFile(tool string, ec ExecContext, p, isDirMsg string) (string, error) {
	full, err := resolvePath(tool, ec, p)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", execErrorf(tool, "File '%s' does not exist", p)
	}
	if err != nil {
		return "", execErrorf(tool, "Failed to read '%s': %v", p, err)
	}
	if info.IsDir() {
		return "", execErrorf(tool, isDirMsg, p)
	}
	return full, nil
}

// splitLines splits text into lines without their terminators. A trailing
// newline does not produce an empty final line; "\r\n" endings are trimmed.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, trimCR(text[start:i]))
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, trimCR(text[start:]))
	}
	return lines
}

func trimCR(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\r' {
		return s[:n-1]
	}
	return s
}
