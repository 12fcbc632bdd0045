// Package unifiedexec runs shell commands on pseudo-terminals and keeps the
// ones that outlive a call around as numbered sessions that later calls can
// write to.
package unifiedexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"zarz/internal/logging"
)

// DefaultYieldTime bounds how long a call waits for output and for the
// command to exit.
const DefaultYieldTime = 250 * time.Millisecond

// ErrSessionNotFound is returned for unknown or already finished session ids.
var ErrSessionNotFound = errors.New("session not found")

// ExecRequest starts a new command.
type ExecRequest struct {
	Cmd       string
	Shell     string
	Login     bool
	YieldTime time.Duration
}

// WriteRequest sends input to a running session.
type WriteRequest struct {
	SessionID int32
	Chars     string
	YieldTime time.Duration
}

// Manager owns all exec sessions. A session stays registered after its
// child exits until a response has reported the exit code.
type Manager struct {
	workDir string
	nextID  atomic.Int32

	mu       sync.Mutex
	sessions map[int32]*session
}

// NewManager creates a manager whose commands run in workDir.
func NewManager(workDir string) *Manager {
	return &Manager{
		workDir:  workDir,
		sessions: make(map[int32]*session),
	}
}

// DefaultShell returns the shell used when a request names none.
func DefaultShell() string {
	if runtime.GOOS == "windows" {
		return "cmd"
	}
	return "/bin/bash"
}

// ExecCommand spawns req.Cmd on a new PTY and returns the output produced
// within the yield window. The response carries an exit code when the
// command already finished and a session id otherwise.
func (m *Manager) ExecCommand(ctx context.Context, req ExecRequest) (*Response, error) {
	start := time.Now()
	id := m.nextID.Add(1)

	cmd := buildCommand(req)
	cmd.Dir = m.workDir
	cmd.Env = buildEnv()

	m.mu.Lock()
	s, err := startSession(id, cmd)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to start %q: %w", req.Cmd, err)
	}
	m.sessions[id] = s
	m.mu.Unlock()

	logging.Debug("exec session started", "session", id, "shell", cmd.Path, "pid", cmd.Process.Pid)

	return m.respond(ctx, s, req.YieldTime, start), nil
}

// WriteStdin queues req.Chars for the session's terminal and returns the
// output produced within the yield window. An empty Chars only polls.
func (m *Manager) WriteStdin(ctx context.Context, req WriteRequest) (*Response, error) {
	start := time.Now()

	m.mu.Lock()
	s, ok := m.sessions[req.SessionID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session %d: %w", req.SessionID, ErrSessionNotFound)
	}

	if req.Chars != "" {
		select {
		case s.stdin <- []byte(req.Chars):
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return m.respond(ctx, s, req.YieldTime, start), nil
}

func (m *Manager) respond(ctx context.Context, s *session, yield time.Duration, start time.Time) *Response {
	if yield <= 0 {
		yield = DefaultYieldTime
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < yield {
			yield = max(left, 0)
		}
	}

	s.poll.Lock()
	defer s.poll.Unlock()

	output := s.collect(max(yield-time.Since(start), 0))

	resp := &Response{Output: output, WallTime: time.Since(start)}
	if code, exited := s.ExitCode(); exited {
		resp.ExitCode = &code
		m.remove(s.id)
	} else {
		id := s.id
		resp.SessionID = &id
	}
	return resp
}

// remove forgets a session once its exit code has been reported.
func (m *Manager) remove(id int32) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown kills every remaining session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.kill()
	}
	if len(sessions) > 0 {
		logging.Debug("exec sessions killed", "count", len(sessions))
	}
}

func buildCommand(req ExecRequest) *exec.Cmd {
	shell := req.Shell
	if shell == "" {
		shell = DefaultShell()
	}

	base := strings.ToLower(shell)
	if strings.HasSuffix(base, "cmd") || strings.HasSuffix(base, "cmd.exe") {
		return exec.Command(shell, "/C", req.Cmd)
	}
	if req.Login {
		return exec.Command(shell, "-lc", req.Cmd)
	}
	return exec.Command(shell, "-c", req.Cmd)
}

func buildEnv() []string {
	env := os.Environ()
	for _, e := range env {
		if strings.HasPrefix(e, "TERM=") {
			return env
		}
	}
	return append(env, "TERM=xterm-256color")
}
