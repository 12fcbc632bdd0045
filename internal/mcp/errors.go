package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by client operations called before the
	// initialize handshake completed.
	ErrNotInitialized = errors.New("MCP client not initialized")

	// ErrServerNotFound is returned when a call names an unknown server.
	ErrServerNotFound = errors.New("MCP server not found")

	// ErrClientStopped is returned by operations on a stopped client.
	ErrClientStopped = errors.New("MCP client stopped")

	// ErrUnsupportedTransport is returned for Http and Sse server entries.
	ErrUnsupportedTransport = errors.New("only stdio MCP servers are supported")
)

// StartupError reports that a server process could not be spawned.
type StartupError struct {
	Server string
	Err    error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("failed to start MCP server %q: %v", e.Server, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a malformed exchange or a JSON-RPC error object.
// Code is zero for transport-level failures.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("MCP error: %s (code: %d)", e.Message, e.Code)
	}
	return "MCP protocol error: " + e.Message
}

// errServerClosed is the ProtocolError for EOF before a matching response.
func errServerClosed() error {
	return &ProtocolError{Message: "server closed connection"}
}

func serverNotFound(name string) error {
	return fmt.Errorf("%w: %s", ErrServerNotFound, name)
}
