package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"zarz/internal/logging"
)

// BashToolName is the name the bash tool is exposed under.
const BashToolName = "bash"

// DefaultBashTimeout bounds a single bash command.
const DefaultBashTimeout = 2 * time.Minute

// BashSpec describes the bash tool to the model.
func BashSpec() ToolSpec {
	return ToolSpec{
		Name:        BashToolName,
		Description: "Execute bash commands to search files, read file contents, or perform other system operations. Use this to understand the codebase context better.",
		InputSchema: objectSchema(map[string]any{
			"command": prop("string", `The bash command to execute (e.g., 'find . -name "*.go"', 'grep -r "function_name" internal/', 'cat cmd/zarz/main.go')`),
		}, "command"),
	}
}

// BashRunner runs one-shot shell commands. A non-zero exit status is not
// an error; its output is returned like any other.
type BashRunner struct {
	workDir string
	timeout time.Duration
}

// NewBashRunner creates a runner for workDir. A zero timeout selects
// DefaultBashTimeout.
func NewBashRunner(workDir string, timeout time.Duration) *BashRunner {
	if timeout <= 0 {
		timeout = DefaultBashTimeout
	}
	return &BashRunner{workDir: workDir, timeout: timeout}
}

// Run executes command with sh -c (cmd /C on Windows).
func (r *BashRunner) Run(ctx context.Context, command string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(execCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(execCtx, "sh", "-c", command)
	}
	cmd.Dir = r.workDir
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	logging.Debug("bash command finished", "command", command, "duration", time.Since(start), "error", err)

	if execCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %v", r.timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("failed to execute bash command: %w", err)
		}
	}

	return buildBashOutput(stdout.String(), stderr.String()), nil
}

func buildBashOutput(stdout, stderr string) string {
	stdout = strings.ToValidUTF8(stdout, "\uFFFD")
	stderr = strings.ToValidUTF8(stderr, "\uFFFD")

	var b strings.Builder
	b.WriteString(stdout)
	if stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("STDERR:\n")
		b.WriteString(stderr)
	}
	if b.Len() == 0 {
		return "(command produced no output)"
	}
	return b.String()
}
