package client

import (
	"encoding/json"
	"strings"
	"testing"

	"zarz/internal/tools"
)

func sampleCalls() []tools.ToolCall {
	return []tools.ToolCall{
		{ID: "call_1", Name: "read_file", Input: json.RawMessage(`{"path":"a.txt"}`)},
		{ID: "call_2", Name: "bash"},
	}
}

func TestAssistantMessageToolRole(t *testing.T) {
	msg := DialectToolRole.AssistantMessage("checking", sampleCalls())

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, want := range []string{
		`"role":"assistant"`,
		`"content":"checking"`,
		`"id":"call_1","type":"function","function":{"name":"read_file","arguments":"{\"path\":\"a.txt\"}"}`,
		`"arguments":"{}"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("marshaled message missing %s\n%s", want, got)
		}
	}
}

func TestAssistantMessageAnthropic(t *testing.T) {
	msg := DialectAnthropic.AssistantMessage("checking", sampleCalls())

	if len(msg.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(msg.Blocks))
	}
	if msg.Blocks[0].Type != BlockText || msg.Blocks[0].Text != "checking" {
		t.Errorf("first block = %+v", msg.Blocks[0])
	}
	if msg.Blocks[2].Type != BlockToolUse || string(msg.Blocks[2].Input) != "{}" {
		t.Errorf("empty input should become {}: %+v", msg.Blocks[2])
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"content":[{"type":"text","text":"checking"}`) {
		t.Errorf("content should marshal as block array: %s", data)
	}
}

func TestToolResultMessages(t *testing.T) {
	results := []ToolResult{
		{CallID: "call_1", Name: "read_file", Content: "hello"},
		{CallID: "call_2", Name: "bash", Content: "ERROR: boom", IsError: true},
	}

	toolRole := DialectToolRole.ToolResultMessages(results)
	if len(toolRole) != 2 {
		t.Fatalf("tool-role: expected 2 messages, got %d", len(toolRole))
	}
	if toolRole[1].Role != RoleTool || toolRole[1].ToolCallID != "call_2" || toolRole[1].Content != "ERROR: boom" {
		t.Errorf("tool-role message = %+v", toolRole[1])
	}

	anth := DialectAnthropic.ToolResultMessages(results)
	if len(anth) != 1 || anth[0].Role != RoleUser {
		t.Fatalf("anthropic: expected one user message, got %+v", anth)
	}
	if len(anth[0].Blocks) != 2 || anth[0].Blocks[1].ToolUseID != "call_2" || !anth[0].Blocks[1].IsError {
		t.Errorf("anthropic blocks = %+v", anth[0].Blocks)
	}

	if DialectAnthropic.ToolResultMessages(nil) != nil {
		t.Error("no results should render no messages")
	}
}

func TestInitialMessages(t *testing.T) {
	msgs := DialectToolRole.InitialMessages("sys", "prompt")
	if len(msgs) != 2 || msgs[0].Role != RoleSystem || msgs[1].Content != "prompt" {
		t.Errorf("tool-role initial = %+v", msgs)
	}
	if msgs := DialectToolRole.InitialMessages("", "prompt"); len(msgs) != 1 {
		t.Errorf("empty system should be omitted: %+v", msgs)
	}

	anth := DialectAnthropic.InitialMessages("sys", "prompt")
	if len(anth) != 1 || anth[0].Role != RoleUser || anth[0].Blocks[0].Text != "prompt" {
		t.Errorf("anthropic initial = %+v", anth)
	}
}

func TestDecodeWireResolvesResultNames(t *testing.T) {
	for _, d := range []Dialect{DialectToolRole, DialectAnthropic} {
		t.Run(d.String(), func(t *testing.T) {
			var msgs []WireMessage
			msgs = append(msgs, d.InitialMessages("sys", "what is in a.txt?")...)
			msgs = append(msgs, d.AssistantMessage("let me look", sampleCalls()))
			msgs = append(msgs, d.ToolResultMessages([]ToolResult{
				{CallID: "call_1", Content: "hello"},
				{CallID: "call_2", Content: "(command produced no output)"},
			})...)

			turns := DecodeWire(msgs)

			var assistant, tool *Turn
			for i := range turns {
				switch turns[i].Role {
				case RoleAssistant:
					assistant = &turns[i]
				case RoleTool:
					if tool != nil {
						t.Fatal("tool results should collapse into one turn")
					}
					tool = &turns[i]
				}
			}
			if assistant == nil || tool == nil {
				t.Fatalf("missing turns: %+v", turns)
			}
			if assistant.Text != "let me look" || len(assistant.ToolCalls) != 2 {
				t.Errorf("assistant turn = %+v", assistant)
			}
			if string(assistant.ToolCalls[0].Input) != `{"path":"a.txt"}` {
				t.Errorf("input = %s", assistant.ToolCalls[0].Input)
			}
			if len(tool.Results) != 2 || tool.Results[0].Name != "read_file" || tool.Results[1].Name != "bash" {
				t.Errorf("tool turn = %+v", tool)
			}
		})
	}
}

func TestWireMessageUnmarshal(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		text   string
		blocks int
	}{
		{"string content", `{"role":"user","content":"hi"}`, "hi", 0},
		{"block content", `{"role":"user","content":[{"type":"tool_result","tool_use_id":"x","content":"ok"}]}`, "", 1},
		{"null content", `{"role":"assistant","content":null,"tool_calls":[{"id":"a","type":"function","function":{"name":"n","arguments":"{}"}}]}`, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m WireMessage
			if err := json.Unmarshal([]byte(tt.input), &m); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if m.Content != tt.text || len(m.Blocks) != tt.blocks {
				t.Errorf("got content=%q blocks=%d", m.Content, len(m.Blocks))
			}
		})
	}
}

func TestSplitSystem(t *testing.T) {
	req := &CompletionRequest{SystemPrompt: "fallback", UserPrompt: "hi"}

	system, turns := splitSystem(req, DialectToolRole)
	if system != "fallback" || len(turns) != 1 || turns[0].Text != "hi" {
		t.Errorf("seeded: system=%q turns=%+v", system, turns)
	}

	req.Messages = []WireMessage{
		{Role: RoleSystem, Content: "explicit"},
		{Role: RoleUser, Content: "hi"},
	}
	system, turns = splitSystem(req, DialectToolRole)
	if system != "explicit" || len(turns) != 1 {
		t.Errorf("explicit: system=%q turns=%+v", system, turns)
	}
}

func TestArgumentsJSON(t *testing.T) {
	tests := map[string]string{
		"":              "{}",
		"  ":            "{}",
		"{not json":     "{}",
		`{"cmd":"ls"}`:  `{"cmd":"ls"}`,
		` {"a":1} `:     `{"a":1}`,
	}
	for in, want := range tests {
		if got := string(argumentsJSON(in)); got != want {
			t.Errorf("argumentsJSON(%q) = %s, want %s", in, got, want)
		}
	}
}
