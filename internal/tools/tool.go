package tools

import (
	"context"
	"encoding/json"

	"zarz/internal/security"
)

// Tool defines the interface for all built-in tools.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// InputSchema returns the JSON Schema of the tool's arguments.
	InputSchema() map[string]any

	// Execute runs the tool with the given raw JSON arguments.
	Execute(ctx context.Context, ec ExecContext, args json.RawMessage) (ToolResult, error)
}

// ToolSpec is the model-facing description of a tool.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// SpecOf returns the spec of t.
func SpecOf(t Tool) ToolSpec {
	return ToolSpec{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.InputSchema(),
	}
}

// ToolCall is one invocation requested by a model.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ExecContext carries per-call execution state.
type ExecContext struct {
	// WorkDir is the directory relative paths resolve against.
	WorkDir string

	// Paths, when set, resolves and vets every path a tool touches.
	Paths *security.PathPolicy
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	Content string
	Success bool
}

// NewSuccessResult creates a successful tool result.
func NewSuccessResult(content string) ToolResult {
	return ToolResult{Content: content, Success: true}
}

// objectSchema builds a top-level object schema.
func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	p := map[string]any{"type": typ}
	if description != "" {
		p["description"] = description
	}
	return p
}
