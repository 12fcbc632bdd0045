package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"zarz/internal/tools"
)

// Wire roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Content block types used by the Anthropic dialect.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// WireMessage is one message of a provider conversation. Content is
// serialized as a string unless Blocks is set, in which case the block
// array takes its place.
type WireMessage struct {
	Role       string
	Content    string
	Blocks     []ContentBlock
	ToolCalls  []WireToolCall
	ToolCallID string
}

// ContentBlock is an Anthropic-style content block.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// WireToolCall is an OpenAI-style tool call. Arguments is a JSON string.
type WireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function WireFunction `json:"function"`
}

// WireFunction names the function of a WireToolCall.
type WireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireMessageJSON struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []WireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m WireMessage) MarshalJSON() ([]byte, error) {
	var content any = m.Content
	if m.Blocks != nil {
		content = m.Blocks
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessageJSON{
		Role:       m.Role,
		Content:    raw,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *WireMessage) UnmarshalJSON(data []byte) error {
	var in wireMessageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = WireMessage{Role: in.Role, ToolCalls: in.ToolCalls, ToolCallID: in.ToolCallID}

	raw := bytes.TrimSpace(in.Content)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &m.Blocks); err != nil {
			return fmt.Errorf("invalid content blocks: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &m.Content); err != nil {
			return fmt.Errorf("invalid message content: %w", err)
		}
	}
	return nil
}

// Turn is a dialect-independent view of one wire message, the form SDK
// adapters translate from.
type Turn struct {
	Role      string
	Text      string
	ToolCalls []tools.ToolCall
	Results   []ToolResult
}

// DecodeWire converts messages of either dialect into turns. Tool
// results are attributed to the tool named by the earlier call with the
// same id. Consecutive tool results collapse into one RoleTool turn.
func DecodeWire(msgs []WireMessage) []Turn {
	names := make(map[string]string)
	var turns []Turn

	addResults := func(results []ToolResult) {
		if n := len(turns); n > 0 && turns[n-1].Role == RoleTool {
			turns[n-1].Results = append(turns[n-1].Results, results...)
			return
		}
		turns = append(turns, Turn{Role: RoleTool, Results: results})
	}

	for _, m := range msgs {
		var text []string
		if m.Content != "" {
			text = append(text, m.Content)
		}

		switch m.Role {
		case RoleTool:
			addResults([]ToolResult{{
				CallID:  m.ToolCallID,
				Name:    names[m.ToolCallID],
				Content: m.Content,
			}})

		case RoleAssistant:
			turn := Turn{Role: RoleAssistant}
			for _, tc := range m.ToolCalls {
				call := tools.ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: argumentsJSON(tc.Function.Arguments)}
				names[call.ID] = call.Name
				turn.ToolCalls = append(turn.ToolCalls, call)
			}
			for _, b := range m.Blocks {
				switch b.Type {
				case BlockText:
					text = append(text, b.Text)
				case BlockToolUse:
					call := tools.ToolCall{ID: b.ID, Name: b.Name, Input: inputJSON(b.Input)}
					names[call.ID] = call.Name
					turn.ToolCalls = append(turn.ToolCalls, call)
				}
			}
			turn.Text = strings.Join(text, "\n")
			turns = append(turns, turn)

		default:
			var results []ToolResult
			for _, b := range m.Blocks {
				switch b.Type {
				case BlockText:
					text = append(text, b.Text)
				case BlockToolResult:
					results = append(results, ToolResult{
						CallID:  b.ToolUseID,
						Name:    names[b.ToolUseID],
						Content: b.Content,
						IsError: b.IsError,
					})
				}
			}
			if len(results) > 0 {
				addResults(results)
			}
			if len(text) > 0 || len(results) == 0 {
				turns = append(turns, Turn{Role: m.Role, Text: strings.Join(text, "\n")})
			}
		}
	}
	return turns
}

// splitSystem decodes the request conversation and separates system
// turns from the rest. When the conversation carries no system turn the
// request's SystemPrompt is used.
func splitSystem(req *CompletionRequest, d Dialect) (string, []Turn) {
	var system []string
	var rest []Turn
	for _, t := range DecodeWire(req.conversation(d)) {
		if t.Role == RoleSystem {
			system = append(system, t.Text)
			continue
		}
		rest = append(rest, t)
	}
	if len(system) == 0 {
		return req.SystemPrompt, rest
	}
	return strings.Join(system, "\n\n"), rest
}

// argumentsJSON turns an OpenAI argument string into raw JSON, falling
// back to an empty object for blank or malformed input.
func argumentsJSON(args string) json.RawMessage {
	args = strings.TrimSpace(args)
	if args == "" || !json.Valid([]byte(args)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}

func inputJSON(input json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(input)) == 0 {
		return json.RawMessage("{}")
	}
	return input
}

// mustJSON encodes SDK-decoded arguments back to raw JSON.
func mustJSON(args map[string]any) json.RawMessage {
	if args == nil {
		return json.RawMessage("{}")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// argsMap decodes tool input into a map for SDKs that want one.
func argsMap(input json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(input) == 0 {
		return args
	}
	if err := json.Unmarshal(input, &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
