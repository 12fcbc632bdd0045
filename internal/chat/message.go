package chat

import (
	"encoding/json"
	"fmt"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolMessageKind distinguishes a tool request from its result.
type ToolMessageKind string

const (
	ToolCommand ToolMessageKind = "command"
	ToolOutput  ToolMessageKind = "output"
)

// Metadata correlates tool messages by call id.
type Metadata struct {
	ToolCallID    string          `json:"tool_call_id,omitempty"`
	Kind          ToolMessageKind `json:"tool_message_kind,omitempty"`
	ToolArguments json.RawMessage `json:"tool_arguments,omitempty"`
}

// Message is one entry of the conversation history. Server and Tool are
// set only for RoleTool messages.
type Message struct {
	Role     Role      `json:"role"`
	Server   string    `json:"server,omitempty"`
	Tool     string    `json:"tool,omitempty"`
	Content  string    `json:"content"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// NewMessage creates a plain user, assistant or system message.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// NewToolMessage creates a tool message without call metadata, as used by
// the text-only tool protocol.
func NewToolMessage(server, tool, content string) Message {
	return Message{Role: RoleTool, Server: server, Tool: tool, Content: content}
}

// NewToolCommand records a model's request to run server.tool.
func NewToolCommand(server, tool, callID, content string, args json.RawMessage) Message {
	return Message{
		Role:    RoleTool,
		Server:  server,
		Tool:    tool,
		Content: content,
		Metadata: &Metadata{
			ToolCallID:    callID,
			Kind:          ToolCommand,
			ToolArguments: args,
		},
	}
}

// NewToolOutput records the result of the call with callID.
func NewToolOutput(server, tool, callID, content string) Message {
	return Message{
		Role:    RoleTool,
		Server:  server,
		Tool:    tool,
		Content: content,
		Metadata: &Metadata{
			ToolCallID: callID,
			Kind:       ToolOutput,
		},
	}
}

// CallID returns the tool call id, or "" when the message has none.
func (m Message) CallID() string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata.ToolCallID
}

// Kind returns the tool message kind, or "" when the message has none.
func (m Message) Kind() ToolMessageKind {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata.Kind
}

// Label returns the transcript prefix of the message.
func (m Message) Label() string {
	switch m.Role {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case RoleTool:
		return fmt.Sprintf("Tool[%s.%s]", m.Server, m.Tool)
	}
	return string(m.Role)
}
