package client

import (
	"zarz/internal/tools"
)

// Dialect is the shape a provider expects for tool calls and results.
type Dialect int

const (
	// DialectToolRole: assistant messages carry tool_calls and each result
	// is a role "tool" message (OpenAI, GLM, Gemini, Ollama).
	DialectToolRole Dialect = iota

	// DialectAnthropic: tool_use blocks in the assistant message and
	// tool_result blocks in one user message.
	DialectAnthropic
)

func (d Dialect) String() string {
	switch d {
	case DialectAnthropic:
		return "anthropic"
	default:
		return "tool-role"
	}
}

// InitialMessages seeds a conversation with the system and user prompts.
// Anthropic carries the system prompt out of band.
func (d Dialect) InitialMessages(system, prompt string) []WireMessage {
	if d == DialectAnthropic {
		return []WireMessage{{Role: RoleUser, Blocks: []ContentBlock{{Type: BlockText, Text: prompt}}}}
	}

	var msgs []WireMessage
	if system != "" {
		msgs = append(msgs, WireMessage{Role: RoleSystem, Content: system})
	}
	return append(msgs, WireMessage{Role: RoleUser, Content: prompt})
}

// AssistantMessage renders a model response that requested tool calls.
func (d Dialect) AssistantMessage(text string, calls []tools.ToolCall) WireMessage {
	if d == DialectAnthropic {
		var blocks []ContentBlock
		if text != "" {
			blocks = append(blocks, ContentBlock{Type: BlockText, Text: text})
		}
		for _, c := range calls {
			blocks = append(blocks, ContentBlock{
				Type:  BlockToolUse,
				ID:    c.ID,
				Name:  c.Name,
				Input: inputJSON(c.Input),
			})
		}
		return WireMessage{Role: RoleAssistant, Blocks: blocks}
	}

	msg := WireMessage{Role: RoleAssistant, Content: text}
	for _, c := range calls {
		msg.ToolCalls = append(msg.ToolCalls, WireToolCall{
			ID:   c.ID,
			Type: "function",
			Function: WireFunction{
				Name:      c.Name,
				Arguments: string(inputJSON(c.Input)),
			},
		})
	}
	return msg
}

// ToolResultMessages renders the results of one round of tool calls.
func (d Dialect) ToolResultMessages(results []ToolResult) []WireMessage {
	if len(results) == 0 {
		return nil
	}

	if d == DialectAnthropic {
		blocks := make([]ContentBlock, 0, len(results))
		for _, r := range results {
			blocks = append(blocks, ContentBlock{
				Type:      BlockToolResult,
				ToolUseID: r.CallID,
				Content:   r.Content,
				IsError:   r.IsError,
			})
		}
		return []WireMessage{{Role: RoleUser, Blocks: blocks}}
	}

	msgs := make([]WireMessage, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, WireMessage{Role: RoleTool, Content: r.Content, ToolCallID: r.CallID})
	}
	return msgs
}
