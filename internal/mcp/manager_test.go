package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type fakeSession struct {
	name    string
	tools   []Tool
	listErr error

	mu      sync.Mutex
	stopped int
	calls   []string
}

func (f *fakeSession) Name() string           { return f.name }
func (f *fakeSession) ServerInfo() ServerInfo { return ServerInfo{Name: f.name, Version: "test"} }

func (f *fakeSession) ListTools(context.Context) ([]Tool, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tools, nil
}

func (f *fakeSession) CallTool(_ context.Context, name string, _ map[string]any) (*CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	return &CallToolResult{Content: []ContentBlock{{Type: "text", Text: f.name + ":" + name}}}, nil
}

func (f *fakeSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	if f.stopped > 1 {
		return errors.New("already stopped")
	}
	return nil
}

// fakeStarter starts sessions from a fixed table; names missing from the
// table fail to start.
type fakeStarter struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	started  []string
}

func (s *fakeStarter) start(_ context.Context, name string, _ ServerConfig) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, name)
	sess, ok := s.sessions[name]
	if !ok {
		return nil, &StartupError{Server: name, Err: errors.New("executable not found")}
	}
	return sess, nil
}

func TestManagerLoadFromConfigIsolatesFailures(t *testing.T) {
	good := &fakeSession{name: "good", tools: []Tool{{Name: "a"}, {Name: "b"}}}
	starter := &fakeStarter{sessions: map[string]*fakeSession{"good": good}}
	m := NewManager(WithStarter(starter.start))

	m.LoadFromConfig(context.Background(), map[string]ServerConfig{
		"good":   StdioServer("good-server", nil, nil),
		"broken": StdioServer("missing-binary", nil, nil),
		"remote": HTTPServer("https://example.invalid/mcp", nil),
	})

	if got := m.ServerNames(); fmt.Sprint(got) != "[good]" {
		t.Fatalf("ServerNames = %v, want [good]", got)
	}

	status := m.Status()
	if len(status) != 3 {
		t.Fatalf("Status has %d entries, want 3", len(status))
	}
	for _, st := range status {
		switch st.Name {
		case "good":
			if !st.Running || st.Error != "" {
				t.Errorf("good status = %+v", st)
			}
		case "broken", "remote":
			if st.Running || st.Error == "" {
				t.Errorf("%s status = %+v", st.Name, st)
			}
		}
	}
	if len(starter.started) != 2 {
		t.Errorf("starter called for %v; http entries must not be started", starter.started)
	}
}

func TestManagerGetAllToolsSkipsFailingClient(t *testing.T) {
	starter := &fakeStarter{sessions: map[string]*fakeSession{
		"one": {name: "one", tools: []Tool{{Name: "x"}}},
		"two": {name: "two", listErr: errors.New("boom")},
	}}
	m := NewManager(WithStarter(starter.start))
	m.LoadFromConfig(context.Background(), map[string]ServerConfig{
		"one": StdioServer("one", nil, nil),
		"two": StdioServer("two", nil, nil),
	})

	tools := m.GetAllTools(context.Background())
	if len(tools) != 1 || len(tools["one"]) != 1 {
		t.Fatalf("GetAllTools = %+v", tools)
	}
	if _, ok := tools["two"]; ok {
		t.Error("failing client contributed tools")
	}
}

func TestManagerCallTool(t *testing.T) {
	starter := &fakeStarter{sessions: map[string]*fakeSession{"srv": {name: "srv"}}}
	m := NewManager(WithStarter(starter.start))
	m.LoadFromConfig(context.Background(), map[string]ServerConfig{"srv": StdioServer("srv", nil, nil)})

	res, err := m.CallTool(context.Background(), "srv", "echo", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if FormatToolResult(res) != "srv:echo" {
		t.Errorf("result = %q", FormatToolResult(res))
	}

	_, err = m.CallTool(context.Background(), "nope", "echo", nil)
	if !errors.Is(err, ErrServerNotFound) {
		t.Errorf("unknown server error = %v, want ErrServerNotFound", err)
	}
}

func TestManagerStopAll(t *testing.T) {
	a := &fakeSession{name: "a"}
	b := &fakeSession{name: "b"}
	starter := &fakeStarter{sessions: map[string]*fakeSession{"a": a, "b": b}}
	m := NewManager(WithStarter(starter.start))
	m.LoadFromConfig(context.Background(), map[string]ServerConfig{
		"a": StdioServer("a", nil, nil),
		"b": StdioServer("b", nil, nil),
	})

	m.StopAll()
	if a.stopped != 1 || b.stopped != 1 {
		t.Errorf("stop counts = %d, %d; want 1, 1", a.stopped, b.stopped)
	}
	if m.HasServers() {
		t.Error("manager still has servers after StopAll")
	}

	// A second StopAll has nothing left to stop.
	m.StopAll()
	if a.stopped != 1 {
		t.Errorf("client stopped again: %d", a.stopped)
	}
}

func TestManagerReload(t *testing.T) {
	keep := &fakeSession{name: "keep"}
	drop := &fakeSession{name: "drop"}
	starter := &fakeStarter{sessions: map[string]*fakeSession{
		"keep": keep,
		"drop": drop,
		"new":  {name: "new"},
	}}
	m := NewManager(WithStarter(starter.start))
	ctx := context.Background()

	m.LoadFromConfig(ctx, map[string]ServerConfig{
		"keep": StdioServer("keep", nil, nil),
		"drop": StdioServer("drop", nil, nil),
	})

	m.Reload(ctx, map[string]ServerConfig{
		"keep": StdioServer("keep", nil, nil),
		"new":  StdioServer("new", nil, nil),
	})

	if got := m.ServerNames(); fmt.Sprint(got) != "[keep new]" {
		t.Fatalf("ServerNames after reload = %v", got)
	}
	if drop.stopped != 1 {
		t.Errorf("removed server stopped %d times, want 1", drop.stopped)
	}
	if keep.stopped != 0 {
		t.Errorf("unchanged server was restarted")
	}
}

func TestManagerRemoveUnknownServer(t *testing.T) {
	m := NewManager()
	if err := m.RemoveServer("ghost"); !errors.Is(err, ErrServerNotFound) {
		t.Errorf("RemoveServer = %v, want ErrServerNotFound", err)
	}
}
