package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const legacyCallMarker = "CALL_MCP_TOOL"

// legacyCall is a CALL_MCP_TOOL request found in model text.
type legacyCall struct {
	// Prefix is the trimmed prose before the marker, if any.
	Prefix string

	// Command is the request line as written by the model.
	Command string

	Server    string
	Tool      string
	Arguments map[string]any // nil when args were null
}

// parseLegacyCall looks for a single-line
//
//	CALL_MCP_TOOL server=<server> tool=<tool> args=<json>
//
// request in text. It returns nil, nil when the marker is absent.
func parseLegacyCall(text string) (*legacyCall, error) {
	idx := strings.Index(text, legacyCallMarker)
	if idx < 0 {
		return nil, nil
	}

	call := &legacyCall{Prefix: strings.TrimSpace(text[:idx])}

	line := strings.TrimSpace(text[idx:])
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		if strings.TrimSpace(line[nl+1:]) != "" {
			return nil, errors.New("Additional text found after MCP tool call. Tool calls must be on a single line.")
		}
		line = line[:nl]
	}
	line = strings.TrimSpace(line)
	call.Command = line

	remainder := strings.TrimSpace(strings.TrimPrefix(line, legacyCallMarker))
	parts := strings.SplitN(remainder, " ", 3)
	switch len(parts) {
	case 1:
		return nil, errors.New("Missing tool component in MCP tool call")
	case 2:
		return nil, errors.New("Missing args component in MCP tool call")
	}
	serverPart, toolPart, argsPart := parts[0], parts[1], parts[2]

	server, ok := strings.CutPrefix(serverPart, "server=")
	if !ok {
		return nil, errors.New("Expected server=<server_name> in MCP tool call")
	}
	tool, ok := strings.CutPrefix(toolPart, "tool=")
	if !ok {
		return nil, errors.New("Expected tool=<tool_name> in MCP tool call")
	}
	argsRaw, ok := strings.CutPrefix(argsPart, "args=")
	if !ok {
		return nil, errors.New("Expected args=<json> in MCP tool call")
	}
	if server == "" {
		return nil, errors.New("Server name cannot be empty in MCP tool call")
	}
	if tool == "" {
		return nil, errors.New("Tool name cannot be empty in MCP tool call")
	}
	call.Server = server
	call.Tool = tool

	argsRaw = strings.TrimSpace(argsRaw)
	if strings.EqualFold(argsRaw, "null") {
		return call, nil
	}

	var value any
	if err := json.Unmarshal([]byte(argsRaw), &value); err != nil {
		return nil, fmt.Errorf("Failed to parse MCP tool call arguments as JSON: %w", err)
	}
	switch v := value.(type) {
	case nil:
	case map[string]any:
		call.Arguments = v
	default:
		return nil, errors.New("Tool arguments must be a JSON object or null")
	}
	return call, nil
}
