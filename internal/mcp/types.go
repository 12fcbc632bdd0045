package mcp

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// JSON-RPC 2.0 types

// JSONRPCMessage is a JSON-RPC 2.0 request, response, or notification.
// ID is kept raw so responses can be matched without float conversion.
type JSONRPCMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// hasID reports whether the message carries a non-null id.
func (m *JSONRPCMessage) hasID() bool {
	id := bytes.TrimSpace(m.ID)
	return len(id) > 0 && !bytes.Equal(id, []byte("null"))
}

// IsNotification returns true if the message has no id.
func (m *JSONRPCMessage) IsNotification() bool {
	return !m.hasID()
}

// IsResponse returns true if the message has an id and no method.
func (m *JSONRPCMessage) IsResponse() bool {
	return m.hasID() && m.Method == ""
}

// MatchesID reports whether the message id equals id. Numeric and
// string-encoded numeric ids both match.
func (m *JSONRPCMessage) MatchesID(id uint64) bool {
	if !m.hasID() {
		return false
	}
	raw := bytes.TrimSpace(m.ID)
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		got, err := strconv.ParseUint(n.String(), 10, 64)
		return err == nil && got == id
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		got, err := strconv.ParseUint(s, 10, 64)
		return err == nil && got == id
	}
	return false
}

func rawID(id uint64) json.RawMessage {
	return json.RawMessage(strconv.FormatUint(id, 10))
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCP protocol types

// ServerInfo identifies the MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities describes what the server offers. Unknown capability
// sections are kept raw.
type ServerCapabilities struct {
	Tools     json.RawMessage `json:"tools,omitempty"`
	Resources json.RawMessage `json:"resources,omitempty"`
	Prompts   json.RawMessage `json:"prompts,omitempty"`
	Logging   json.RawMessage `json:"logging,omitempty"`
}

// ClientInfo identifies this client to the server.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams are the parameters for the initialize request.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

// InitializeResult is the result of the initialize request.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

// Tool describes a tool exposed by a server. InputSchema is forwarded
// as received.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ListToolsResult is the result of the tools/list request.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams are the parameters for the tools/call request.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResult is the result of the tools/call request.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is one item of tool output.
type ContentBlock struct {
	Type     string    `json:"type"` // "text", "image", "resource"
	Text     string    `json:"text,omitempty"`
	MIMEType string    `json:"mimeType,omitempty"`
	Data     string    `json:"data,omitempty"`
	Resource *Resource `json:"resource,omitempty"`
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
	Text        string `json:"text,omitempty"`
}

// ListResourcesResult is the result of the resources/list request.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// Prompt represents an MCP prompt template.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes an argument for a prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ListPromptsResult is the result of the prompts/list request.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// logMessageParams is the payload of a notifications/message notification.
type logMessageParams struct {
	Level  string `json:"level"`
	Logger string `json:"logger"`
	Data   struct {
		Message string `json:"message"`
	} `json:"data"`
}

// ProtocolVersion is the MCP revision this client speaks.
const ProtocolVersion = "2024-11-05"

// MCP method names
const (
	MethodInitialize    = "initialize"
	MethodInitialized   = "notifications/initialized"
	MethodToolsList     = "tools/list"
	MethodToolsCall     = "tools/call"
	MethodResourcesList = "resources/list"
	MethodPromptsList   = "prompts/list"
	MethodLogMessage    = "notifications/message"
)
