package mcp

import (
	"fmt"
	"strings"
)

// FormatToolResult renders tool output content as plain text. Text blocks
// are kept verbatim; images and resources are summarized.
func FormatToolResult(result *CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	parts := make([]string, 0, len(result.Content))
	for _, block := range result.Content {
		switch block.Type {
		case "image":
			parts = append(parts, fmt.Sprintf("Image content returned (mime type: %s)", block.MIMEType))
		case "resource":
			parts = append(parts, "Resource: "+resourceLabel(block.Resource))
		default:
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func resourceLabel(r *Resource) string {
	if r == nil {
		return ""
	}
	if r.Name == "" {
		return r.URI
	}
	return fmt.Sprintf("%s (%s)", r.Name, r.URI)
}

// RenderToolOutput formats a call result for the conversation. Empty
// output gets a placeholder and error results are prefixed with "ERROR: ".
func RenderToolOutput(result *CallToolResult) (string, bool) {
	isError := result != nil && result.IsError
	text := FormatToolResult(result)
	if strings.TrimSpace(text) == "" {
		text = "MCP tool returned no content."
	}
	if isError && !strings.HasPrefix(text, "ERROR") {
		text = "ERROR: " + text
	}
	return text, isError
}
