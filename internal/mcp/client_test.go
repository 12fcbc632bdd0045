package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedServer answers client requests over in-memory pipes.
type scriptedServer struct {
	mu       sync.Mutex
	received []JSONRPCMessage
}

// reply returns the lines to write back for msg; hangup closes the
// server's output after writing them.
type replyFunc func(msg JSONRPCMessage) (lines []string, hangup bool)

func newScriptedClient(t *testing.T, reply replyFunc) (*Client, *scriptedServer) {
	t.Helper()

	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()
	srv := &scriptedServer{}

	go func() {
		defer serverW.Close()
		defer serverR.Close()
		scanner := bufio.NewScanner(serverR)
		for scanner.Scan() {
			var msg JSONRPCMessage
			if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
				return
			}
			srv.mu.Lock()
			srv.received = append(srv.received, msg)
			srv.mu.Unlock()

			lines, hangup := reply(msg)
			for _, line := range lines {
				if _, err := io.WriteString(serverW, line+"\n"); err != nil {
					return
				}
			}
			if hangup {
				return
			}
		}
	}()

	c := NewClient("test", NewStreamTransport(clientR, clientW))
	t.Cleanup(func() {
		c.Stop()
		serverR.Close()
	})
	return c, srv
}

func (s *scriptedServer) methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.received))
	for _, m := range s.received {
		out = append(out, m.Method)
	}
	return out
}

func result(msg JSONRPCMessage, body string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":%s}`, msg.ID, body)
}

const initResult = `{"protocolVersion":"2024-11-05","capabilities":{"tools":{}},"serverInfo":{"name":"fake","version":"1.2.3"}}`

func standardReplies(extra replyFunc) replyFunc {
	return func(msg JSONRPCMessage) ([]string, bool) {
		switch msg.Method {
		case MethodInitialize:
			return []string{result(msg, initResult)}, false
		case MethodInitialized:
			return nil, false
		}
		return extra(msg)
	}
}

func TestClientNotInitialized(t *testing.T) {
	c, _ := newScriptedClient(t, func(JSONRPCMessage) ([]string, bool) { return nil, false })

	ctx := context.Background()
	if _, err := c.ListTools(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ListTools error = %v, want ErrNotInitialized", err)
	}
	if _, err := c.CallTool(ctx, "x", nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("CallTool error = %v, want ErrNotInitialized", err)
	}
	if _, err := c.ListResources(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ListResources error = %v, want ErrNotInitialized", err)
	}
	if _, err := c.ListPrompts(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ListPrompts error = %v, want ErrNotInitialized", err)
	}
}

func TestClientHandshakeAndListTools(t *testing.T) {
	c, srv := newScriptedClient(t, standardReplies(func(msg JSONRPCMessage) ([]string, bool) {
		if msg.Method != MethodToolsList {
			return nil, false
		}
		return []string{
			`{"jsonrpc":"2.0","method":"notifications/message","params":{"level":"info","data":{"message":"listing"}}}`,
			`{"jsonrpc":"2.0","id":999,"result":{}}`,
			result(msg, `{"tools":[{"name":"echo","description":"Echo text","inputSchema":{"type":"object"}}]}`),
		}, false
	}))

	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !c.IsInitialized() {
		t.Fatal("client not initialized after handshake")
	}
	if info := c.ServerInfo(); info.Name != "fake" || info.Version != "1.2.3" {
		t.Errorf("ServerInfo = %+v", info)
	}

	tools, err := c.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "echo" || tools[0].Description != "Echo text" {
		t.Fatalf("tools = %+v", tools)
	}

	want := []string{MethodInitialize, MethodInitialized, MethodToolsList}
	got := srv.methods()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("server saw %v, want %v", got, want)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if string(srv.received[0].ID) != "1" || string(srv.received[2].ID) != "2" {
		t.Errorf("request ids = %s, %s; want 1, 2", srv.received[0].ID, srv.received[2].ID)
	}
	if len(srv.received[1].ID) != 0 {
		t.Errorf("initialized notification carried id %s", srv.received[1].ID)
	}
}

func TestClientInitializeParams(t *testing.T) {
	c, srv := newScriptedClient(t, standardReplies(func(JSONRPCMessage) ([]string, bool) { return nil, false }))
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	srv.mu.Lock()
	params, _ := json.Marshal(srv.received[0].Params)
	srv.mu.Unlock()

	var got InitializeParams
	if err := json.Unmarshal(params, &got); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if got.ProtocolVersion != ProtocolVersion {
		t.Errorf("protocolVersion = %q", got.ProtocolVersion)
	}
	if got.ClientInfo.Name != "zarz" {
		t.Errorf("clientInfo.name = %q", got.ClientInfo.Name)
	}
	for _, key := range []string{"tools", "resources", "prompts"} {
		if _, ok := got.Capabilities[key]; !ok {
			t.Errorf("capabilities missing %q", key)
		}
	}
}

func TestClientCallToolErrorObject(t *testing.T) {
	c, _ := newScriptedClient(t, standardReplies(func(msg JSONRPCMessage) ([]string, bool) {
		return []string{fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"error":{"code":-32602,"message":"bad args"}}`, msg.ID)}, false
	}))

	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err := c.CallTool(ctx, "echo", map[string]any{"text": "hi"})
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ProtocolError", err)
	}
	if perr.Code != -32602 || perr.Message != "bad args" {
		t.Errorf("ProtocolError = %+v", perr)
	}
	if got := perr.Error(); got != "MCP error: bad args (code: -32602)" {
		t.Errorf("Error() = %q", got)
	}
}

func TestClientCallToolResult(t *testing.T) {
	c, srv := newScriptedClient(t, standardReplies(func(msg JSONRPCMessage) ([]string, bool) {
		return []string{result(msg, `{"content":[{"type":"text","text":"hello"}],"isError":false}`)}, false
	}))

	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	res, err := c.CallTool(ctx, "echo", map[string]any{"text": "hello"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if FormatToolResult(res) != "hello" {
		t.Errorf("result = %+v", res)
	}

	srv.mu.Lock()
	params, _ := json.Marshal(srv.received[2].Params)
	srv.mu.Unlock()
	if string(params) != `{"arguments":{"text":"hello"},"name":"echo"}` {
		t.Errorf("tools/call params = %s", params)
	}
}

func TestClientServerClosed(t *testing.T) {
	c, _ := newScriptedClient(t, standardReplies(func(JSONRPCMessage) ([]string, bool) {
		return nil, true
	}))

	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err := c.ListTools(ctx)
	var perr *ProtocolError
	if !errors.As(err, &perr) || perr.Message != "server closed connection" {
		t.Fatalf("error = %v, want server closed connection", err)
	}

	// Later calls fail instead of blocking.
	if _, err := c.ListPrompts(ctx); err == nil {
		t.Fatalf("second call error = %v", err)
	}
}

func TestClientMalformedLine(t *testing.T) {
	c, _ := newScriptedClient(t, standardReplies(func(msg JSONRPCMessage) ([]string, bool) {
		return []string{"this is not json"}, false
	}))

	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	_, err := c.ListTools(ctx)
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ProtocolError", err)
	}
}

func TestClientStopIsIdempotent(t *testing.T) {
	c, _ := newScriptedClient(t, standardReplies(func(JSONRPCMessage) ([]string, bool) { return nil, false }))
	if err := c.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if err := c.Initialize(context.Background()); !errors.Is(err, ErrClientStopped) {
		t.Errorf("Initialize after Stop = %v, want ErrClientStopped", err)
	}
}

func TestClientStopReleasesReader(t *testing.T) {
	// More unsolicited messages than the incoming queue holds, and nobody
	// reading them.
	var lines strings.Builder
	for range 40 {
		lines.WriteString(`{"jsonrpc":"2.0","method":"notifications/progress"}` + "\n")
	}
	c := NewClient("test", NewStreamTransport(strings.NewReader(lines.String()), io.Discard))

	deadline := time.Now().Add(2 * time.Second)
	for len(c.incoming) < cap(c.incoming) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(c.incoming) != cap(c.incoming) {
		t.Fatalf("queue holds %d messages, want it full", len(c.incoming))
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-c.readerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop still blocked after Stop")
	}
}

func TestMatchesID(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`7`, true},
		{`"7"`, true},
		{`8`, false},
		{`null`, false},
		{``, false},
		{`"abc"`, false},
	}
	for _, tt := range tests {
		m := JSONRPCMessage{ID: json.RawMessage(tt.raw)}
		if got := m.MatchesID(7); got != tt.want {
			t.Errorf("MatchesID(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
