package client

import (
	"context"

	"zarz/internal/tools"
)

// CompletionProvider is one model backend.
type CompletionProvider interface {
	// Name returns the provider name used in configuration.
	Name() string

	// Dialect returns the message shape the provider expects for tool
	// call follow-ups.
	Dialect() Dialect

	// Complete issues a single non-streaming completion.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is a provider-neutral completion request.
//
// When Messages is empty the provider builds the conversation from
// SystemPrompt and UserPrompt. Otherwise Messages is the full
// conversation in the provider's dialect; SystemPrompt still applies.
type CompletionRequest struct {
	Model           string
	SystemPrompt    string
	UserPrompt      string
	Messages        []WireMessage
	Tools           []tools.ToolSpec
	MaxOutputTokens int
	Temperature     float64
	ReasoningEffort string // low, medium, high; honored by OpenAI only
}

// CompletionResponse is a provider-neutral completion result.
type CompletionResponse struct {
	Text       string
	ToolCalls  []tools.ToolCall
	StopReason string
}

// HasToolCalls reports whether the model asked for tool execution.
func (r *CompletionResponse) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// ToolResult is the outcome of one tool call, sent back to the model.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// conversation returns the request messages, seeding them from the
// prompts when the caller did not supply any.
func (r *CompletionRequest) conversation(d Dialect) []WireMessage {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	return d.InitialMessages(r.SystemPrompt, r.UserPrompt)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
