package unifiedexec

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("pty sessions are not supported on windows")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func TestExecCommandEcho(t *testing.T) {
	requireShell(t)
	m := NewManager(t.TempDir())
	defer m.Shutdown()

	// A quick command must finish inside the default yield every time.
	for i := range 25 {
		resp, err := m.ExecCommand(context.Background(), ExecRequest{Cmd: "echo hi", Shell: "/bin/sh"})
		if err != nil {
			t.Fatalf("run %d: ExecCommand: %v", i, err)
		}
		if !strings.Contains(resp.Output, "hi") {
			t.Errorf("run %d: output = %q, want it to contain hi", i, resp.Output)
		}
		if resp.ExitCode == nil || *resp.ExitCode != 0 || resp.SessionID != nil {
			t.Fatalf("run %d: want exit code 0 and no session id, got %+v", i, resp)
		}
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d after reported exits, want 0", m.Count())
	}
}

func TestExecCommandExitCode(t *testing.T) {
	requireShell(t)
	m := NewManager(t.TempDir())
	defer m.Shutdown()

	resp, err := m.ExecCommand(context.Background(), ExecRequest{Cmd: "echo out; exit 3", Shell: "/bin/sh"})
	if err != nil {
		t.Fatalf("ExecCommand: %v", err)
	}
	if resp.ExitCode == nil || *resp.ExitCode != 3 {
		t.Fatalf("exit code = %v, want 3 (%+v)", resp.ExitCode, resp)
	}
	if !strings.Contains(resp.Output, "out") {
		t.Errorf("output = %q", resp.Output)
	}
}

func TestFinishedSessionReportsExitCode(t *testing.T) {
	requireShell(t)
	m := NewManager(t.TempDir())
	defer m.Shutdown()
	ctx := context.Background()

	resp, err := m.ExecCommand(ctx, ExecRequest{Cmd: "sleep 0.3; echo done", Shell: "/bin/sh", YieldTime: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("ExecCommand: %v", err)
	}
	if resp.SessionID == nil {
		t.Fatalf("command finished within 20ms: %+v", resp)
	}
	id := *resp.SessionID

	// Let the child exit before anyone asks about it.
	time.Sleep(600 * time.Millisecond)
	if m.Count() != 1 {
		t.Fatalf("Count = %d, exited session should stay registered until reported", m.Count())
	}

	resp, err = m.WriteStdin(ctx, WriteRequest{SessionID: id})
	if err != nil {
		t.Fatalf("WriteStdin on exited session: %v", err)
	}
	if resp.ExitCode == nil || *resp.ExitCode != 0 || resp.SessionID != nil {
		t.Fatalf("want exit code 0, got %+v", resp)
	}
	if !strings.Contains(resp.Output, "done") {
		t.Errorf("output = %q, want it to contain done", resp.Output)
	}

	if _, err := m.WriteStdin(ctx, WriteRequest{SessionID: id}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("reported session error = %v, want ErrSessionNotFound", err)
	}
}

func TestExecCommandCatAndWriteStdin(t *testing.T) {
	requireShell(t)
	m := NewManager(t.TempDir())
	defer m.Shutdown()
	ctx := context.Background()

	resp, err := m.ExecCommand(ctx, ExecRequest{Cmd: "cat", Shell: "/bin/sh", YieldTime: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("ExecCommand: %v", err)
	}
	if resp.SessionID == nil {
		t.Fatalf("cat exited early: %+v", resp)
	}
	id := *resp.SessionID

	resp, err = m.WriteStdin(ctx, WriteRequest{SessionID: id, Chars: "hello\n", YieldTime: 500 * time.Millisecond})
	if err != nil {
		t.Fatalf("WriteStdin: %v", err)
	}
	if !strings.Contains(resp.Output, "hello") {
		t.Errorf("output = %q, want it to contain hello", resp.Output)
	}
	if resp.SessionID == nil || *resp.SessionID != id {
		t.Errorf("session should still be running: %+v", resp)
	}

	// Ctrl-D ends cat; the exit code is reported once, then the session is gone.
	deadline := time.Now().Add(5 * time.Second)
	resp, err = m.WriteStdin(ctx, WriteRequest{SessionID: id, Chars: "\x04", YieldTime: 500 * time.Millisecond})
	for err == nil && resp.ExitCode == nil && time.Now().Before(deadline) {
		resp, err = m.WriteStdin(ctx, WriteRequest{SessionID: id, YieldTime: 200 * time.Millisecond})
	}
	if err != nil {
		t.Fatalf("WriteStdin after EOF: %v", err)
	}
	if resp.ExitCode == nil || *resp.ExitCode != 0 {
		t.Fatalf("cat exit = %+v, want exit code 0", resp)
	}

	if _, err := m.WriteStdin(ctx, WriteRequest{SessionID: id, Chars: "x"}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("finished session error = %v, want ErrSessionNotFound", err)
	}
}

func TestWriteStdinUnknownSession(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.WriteStdin(context.Background(), WriteRequest{SessionID: 42, Chars: "x"})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionIDsIncrease(t *testing.T) {
	requireShell(t)
	m := NewManager(t.TempDir())
	defer m.Shutdown()
	ctx := context.Background()

	var ids []int32
	for range 2 {
		resp, err := m.ExecCommand(ctx, ExecRequest{Cmd: "sleep 5", Shell: "/bin/sh", YieldTime: 50 * time.Millisecond})
		if err != nil {
			t.Fatalf("ExecCommand: %v", err)
		}
		if resp.SessionID == nil {
			t.Fatalf("sleep exited early: %+v", resp)
		}
		ids = append(ids, *resp.SessionID)
	}
	if ids[0] != 1 || ids[1] != 2 {
		t.Errorf("ids = %v, want [1 2]", ids)
	}
	if m.Count() != 2 {
		t.Errorf("Count = %d, want 2", m.Count())
	}
}

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		req  ExecRequest
		want []string
	}{
		{ExecRequest{Cmd: "ls", Shell: "/bin/bash", Login: true}, []string{"/bin/bash", "-lc", "ls"}},
		{ExecRequest{Cmd: "ls", Shell: "/bin/sh"}, []string{"/bin/sh", "-c", "ls"}},
		{ExecRequest{Cmd: "dir", Shell: "cmd", Login: true}, []string{"cmd", "/C", "dir"}},
	}
	for _, tt := range tests {
		got := buildCommand(tt.req).Args
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("buildCommand(%+v) = %q, want %q", tt.req, got, tt.want)
		}
	}
}

func TestResponseDisplay(t *testing.T) {
	code := 0
	id := int32(3)
	tests := []struct {
		resp Response
		want string
	}{
		{
			Response{Output: "hi\n", ExitCode: &code, WallTime: 1500 * time.Millisecond},
			"Wall time: 1.500 seconds\nExit code: 0\nOutput:\nhi\n",
		},
		{
			Response{SessionID: &id, WallTime: 250 * time.Millisecond},
			"Wall time: 0.250 seconds\nSession ID: 3 (still running)\nOutput:\n(no output)",
		},
	}
	for _, tt := range tests {
		if got := tt.resp.Display(); got != tt.want {
			t.Errorf("Display() = %q, want %q", got, tt.want)
		}
	}
}

func TestConcurrentWritesShareOneQueue(t *testing.T) {
	requireShell(t)
	m := NewManager(t.TempDir())
	defer m.Shutdown()
	ctx := context.Background()

	resp, err := m.ExecCommand(ctx, ExecRequest{Cmd: "cat", Shell: "/bin/sh", YieldTime: 50 * time.Millisecond})
	if err != nil || resp.SessionID == nil {
		t.Fatalf("ExecCommand = %+v, %v", resp, err)
	}
	id := *resp.SessionID

	outputs := make(chan string, 2)
	for _, word := range []string{"left", "right"} {
		go func() {
			r, err := m.WriteStdin(ctx, WriteRequest{SessionID: id, Chars: word + "\n", YieldTime: 300 * time.Millisecond})
			if err != nil {
				t.Errorf("WriteStdin(%s): %v", word, err)
				outputs <- ""
				return
			}
			outputs <- r.Output
		}()
	}
	combined := <-outputs + <-outputs
	for _, word := range []string{"left", "right"} {
		if !strings.Contains(combined, word) {
			t.Errorf("combined output %q is missing %s", combined, word)
		}
	}
}
