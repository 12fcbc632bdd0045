package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"zarz/internal/logging"
)

// maxLineSize bounds a single JSON-RPC line read from a server.
const maxLineSize = 8 * 1024 * 1024

// Transport moves newline-delimited JSON-RPC messages to and from a server.
type Transport interface {
	// Send writes one message followed by a newline.
	Send(msg *JSONRPCMessage) error

	// Receive blocks for the next message. It returns io.EOF once the
	// server's output is closed and a *ProtocolError for a malformed line.
	Receive() (*JSONRPCMessage, error)

	// Close releases the transport and any process behind it.
	Close() error
}

// SafeEnvVars is the whitelist of environment variables inherited by MCP
// server processes. Entries from the server config are added on top.
var SafeEnvVars = []string{
	"PATH",
	"HOME",
	"USER",
	"SHELL",
	"TERM",
	"LANG",
	"LC_ALL",
	"LC_CTYPE",
	"TMPDIR",
	"TMP",
	"TEMP",
	"XDG_CONFIG_HOME",
	"XDG_DATA_HOME",
	"XDG_CACHE_HOME",
	"XDG_RUNTIME_DIR",
	"SYSTEMROOT",
	"APPDATA",
	"NODE_PATH",
	"NPM_CONFIG_PREFIX",
	"PYTHONPATH",
	"VIRTUAL_ENV",
}

// buildSafeEnv creates the environment for a server process.
func buildSafeEnv(extra map[string]string) []string {
	env := make([]string, 0, len(SafeEnvVars)+len(extra))
	hasPath := false
	for _, key := range SafeEnvVars {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
			if key == "PATH" {
				hasPath = true
			}
		}
	}
	if !hasPath {
		env = append(env, "PATH=/usr/local/bin:/usr/bin:/bin")
	}
	for k, v := range extra {
		env = append(env, k+"="+os.ExpandEnv(v))
	}
	return env
}

// lineTransport implements Transport over a reader/writer pair.
type lineTransport struct {
	w       io.Writer
	scanner *bufio.Scanner

	mu     sync.Mutex
	closed bool
}

// NewStreamTransport returns a Transport reading server messages from r and
// writing client messages to w.
func NewStreamTransport(r io.Reader, w io.Writer) Transport {
	return newLineTransport(r, w)
}

func newLineTransport(r io.Reader, w io.Writer) *lineTransport {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &lineTransport{w: w, scanner: scanner}
}

func (t *lineTransport) Send(msg *JSONRPCMessage) error {
	msg.JSONRPC = "2.0"
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}
	if _, err := t.w.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	logging.Debug("MCP message sent", "method", msg.Method, "id", string(msg.ID))
	return nil
}

func (t *lineTransport) Receive() (*JSONRPCMessage, error) {
	for t.scanner.Scan() {
		line := bytes.TrimSpace(t.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg JSONRPCMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, &ProtocolError{Message: fmt.Sprintf("failed to parse JSON-RPC message: %s", truncateLine(line))}
		}
		return &msg, nil
	}

	if err := t.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read error: %w", err)
	}
	return nil, io.EOF
}

func (t *lineTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func truncateLine(line []byte) string {
	const max = 200
	if len(line) > max {
		return string(line[:max]) + "..."
	}
	return string(line)
}

// StdioTransport runs an MCP server as a child process and talks to it over
// its stdin and stdout. Stderr lines are logged.
type StdioTransport struct {
	*lineTransport

	cmd        *exec.Cmd
	stdout     io.Closer
	stderr     io.Closer
	stderrDone chan struct{}

	// readMu is held for the duration of a Receive so Close can wait for
	// the reader to leave the pipe before reaping the process.
	readMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewStdioTransport starts command with args. The returned error is a
// *StartupError when the process cannot be spawned.
func NewStdioTransport(name, command string, args []string, env map[string]string) (*StdioTransport, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", append([]string{"/c", command}, args...)...)
	} else {
		cmd = exec.Command(command, args...)
	}
	cmd.Env = buildSafeEnv(env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &StartupError{Server: name, Err: fmt.Errorf("stdin pipe unavailable: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		if closeErr := stdin.Close(); closeErr != nil {
			logging.Debug("error closing stdin during cleanup", "error", closeErr)
		}
		return nil, &StartupError{Server: name, Err: fmt.Errorf("stdout pipe unavailable: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		if closeErr := stdin.Close(); closeErr != nil {
			logging.Debug("error closing stdin during cleanup", "error", closeErr)
		}
		return nil, &StartupError{Server: name, Err: fmt.Errorf("stderr pipe unavailable: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		if closeErr := stdin.Close(); closeErr != nil {
			logging.Debug("error closing stdin during cleanup", "error", closeErr)
		}
		return nil, &StartupError{Server: name, Err: err}
	}

	t := &StdioTransport{
		lineTransport: newLineTransport(stdout, stdin),
		cmd:           cmd,
		stdout:        stdout,
		stderr:        stderr,
		stderrDone:    make(chan struct{}),
	}

	go t.logStderr(name, stderr)

	logging.Debug("MCP stdio transport started",
		"server", name,
		"command", command,
		"args", strings.Join(args, " "),
		"pid", cmd.Process.Pid)

	return t, nil
}

func (t *StdioTransport) logStderr(name string, stderr io.Reader) {
	defer close(t.stderrDone)
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		logging.Debug("MCP server stderr", "server", name, "line", scanner.Text())
	}
}

// Receive reads the next message from the server's stdout.
func (t *StdioTransport) Receive() (*JSONRPCMessage, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	return t.lineTransport.Receive()
}

// Close closes stdin, kills the process and reaps it once no goroutine is
// reading its output pipes. Safe to call twice.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		if err := t.lineTransport.Close(); err != nil {
			logging.Debug("error closing MCP server stdin", "error", err)
		}
		if t.cmd.Process != nil {
			if err := t.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				t.closeErr = fmt.Errorf("failed to kill MCP server: %w", err)
			}
		}

		// A grandchild can keep the pipes open after the kill, so close our
		// ends to unblock the readers.
		for _, pipe := range []io.Closer{t.stdout, t.stderr} {
			if err := pipe.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				logging.Debug("error closing MCP server pipe", "error", err)
			}
		}
		t.readMu.Lock()
		t.readMu.Unlock()
		<-t.stderrDone

		// Wait returns the kill signal as an error; only reaping matters here.
		_ = t.cmd.Wait()
	})
	return t.closeErr
}
