package tools

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"zarz/internal/unifiedexec"
)

// ExecDefaults are applied when an exec_command call omits a field.
type ExecDefaults struct {
	Shell     string
	Login     bool
	YieldTime time.Duration
}

// ExecOption configures the exec tools.
type ExecOption func(*ExecDefaults)

// WithExecDefaults replaces the shell, login and yield defaults.
func WithExecDefaults(d ExecDefaults) ExecOption {
	return func(cur *ExecDefaults) {
		*cur = d
	}
}

func newExecDefaults(opts []ExecOption) ExecDefaults {
	d := ExecDefaults{Login: true, YieldTime: unifiedexec.DefaultYieldTime}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// ExecCommandTool starts a command in a persistent PTY session.
type ExecCommandTool struct {
	sessions *unifiedexec.Manager
	defaults ExecDefaults
}

type execCommandArgs struct {
	Cmd         string `json:"cmd"`
	Shell       string `json:"shell"`
	Login       *bool  `json:"login"`
	YieldTimeMS *int64 `json:"yield_time_ms"`
}

// NewExecCommandTool creates exec_command over sessions.
func NewExecCommandTool(sessions *unifiedexec.Manager, opts ...ExecOption) *ExecCommandTool {
	return &ExecCommandTool{sessions: sessions, defaults: newExecDefaults(opts)}
}

func (t *ExecCommandTool) Name() string {
	return "exec_command"
}

func (t *ExecCommandTool) Description() string {
	return "Run a shell command inside an interactive session and return recent output."
}

func (t *ExecCommandTool) InputSchema() map[string]any {
	return objectSchema(map[string]any{
		"cmd":           prop("string", "Command line to execute."),
		"shell":         prop("string", "Shell binary to use (defaults to /bin/bash)."),
		"login":         prop("boolean", "Run the shell as a login shell (defaults to true)."),
		"yield_time_ms": prop("integer", "How long to wait for output before returning, in milliseconds."),
	}, "cmd")
}

func (t *ExecCommandTool) Execute(ctx context.Context, ec ExecContext, raw json.RawMessage) (ToolResult, error) {
	var args execCommandArgs
	if err := decodeArgs(t.Name(), raw, &args); err != nil {
		return ToolResult{}, err
	}
	if args.Cmd == "" {
		return ToolResult{}, missingField(t.Name(), "cmd")
	}

	req := unifiedexec.ExecRequest{
		Cmd:       args.Cmd,
		Shell:     args.Shell,
		Login:     t.defaults.Login,
		YieldTime: yieldOf(args.YieldTimeMS, t.defaults.YieldTime),
	}
	if req.Shell == "" {
		req.Shell = t.defaults.Shell
	}
	if args.Login != nil {
		req.Login = *args.Login
	}

	resp, err := t.sessions.ExecCommand(ctx, req)
	if err != nil {
		return ToolResult{}, execErrorf(t.Name(), "%v", err)
	}
	return NewSuccessResult(resp.Display()), nil
}

// WriteStdinTool sends input to a session started by exec_command.
type WriteStdinTool struct {
	sessions *unifiedexec.Manager
	defaults ExecDefaults
}

type writeStdinArgs struct {
	SessionID   *int32 `json:"session_id"`
	Chars       string `json:"chars"`
	YieldTimeMS *int64 `json:"yield_time_ms"`
}

// NewWriteStdinTool creates write_stdin over sessions.
func NewWriteStdinTool(sessions *unifiedexec.Manager, opts ...ExecOption) *WriteStdinTool {
	return &WriteStdinTool{sessions: sessions, defaults: newExecDefaults(opts)}
}

func (t *WriteStdinTool) Name() string {
	return "write_stdin"
}

func (t *WriteStdinTool) Description() string {
	return "Send characters to a running exec_command session."
}

func (t *WriteStdinTool) InputSchema() map[string]any {
	return objectSchema(map[string]any{
		"session_id":    prop("integer", "Session id returned by exec_command."),
		"chars":         prop("string", "Characters to write; may be empty to poll for output."),
		"yield_time_ms": prop("integer", "How long to wait for output before returning, in milliseconds."),
	}, "session_id", "chars")
}

func (t *WriteStdinTool) Execute(ctx context.Context, ec ExecContext, raw json.RawMessage) (ToolResult, error) {
	var args writeStdinArgs
	if err := decodeArgs(t.Name(), raw, &args); err != nil {
		return ToolResult{}, err
	}
	if args.SessionID == nil {
		return ToolResult{}, missingField(t.Name(), "session_id")
	}

	resp, err := t.sessions.WriteStdin(ctx, unifiedexec.WriteRequest{
		SessionID: *args.SessionID,
		Chars:     args.Chars,
		YieldTime: yieldOf(args.YieldTimeMS, t.defaults.YieldTime),
	})
	if errors.Is(err, unifiedexec.ErrSessionNotFound) {
		return ToolResult{}, execErrorf(t.Name(), "Unknown session id %d", *args.SessionID)
	}
	if err != nil {
		return ToolResult{}, execErrorf(t.Name(), "%v", err)
	}
	return NewSuccessResult(resp.Display()), nil
}

func yieldOf(ms *int64, def time.Duration) time.Duration {
	if ms == nil || *ms <= 0 {
		return def
	}
	return time.Duration(*ms) * time.Millisecond
}
