package app

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"zarz/internal/mcp"
)

// DefaultSystemPrompt is sent with every completion unless the
// configuration replaces it.
const DefaultSystemPrompt = `You are Zarz, an interactive command-line assistant for software engineering tasks.

## Tools

You can call a ` + "`bash`" + ` tool to understand the codebase before answering. Use it proactively to:
- Search for files: ` + "`find . -name \"*.go\"`" + `
- Search code content: ` + "`grep -rn \"FuncName\" internal/`" + `
- Read file contents: ` + "`cat path/to/file.go`" + ` or ` + "`head -n 40 file.go`" + `
- Check git state: ` + "`git log --oneline -10`" + ` or ` + "`git diff`" + `

Built-in tools read files, list directories, search file contents, apply patches and run interactive commands. Tool results arrive as Tool[server.tool] messages.

To propose a whole-file rewrite for the user to review, reply with a fence in this exact form:
` + "```file:relative/path.go" + `
<entire file content>
` + "```" + `
The user applies proposed files with /apply. Prefer the apply_patch tool for small edits.

Tone and style:
- Only use emojis if the user explicitly requests it
- Responses should be short and concise
- Focus on facts and problem-solving

Conversation format:
- The prompt includes the recent transcript using prefixes like "User:", "Assistant:", and "Tool[server.tool]:".
- Always respond in the voice of "Assistant" to the most recent user message.

MCP tool usage:
- When the prompt lists available MCP tools, you may request one by replying exactly: CALL_MCP_TOOL server=<server_name> tool=<tool_name> args=<json_object>
- The JSON must be minified on a single line. Use {} when no arguments are required.
- Do not include any additional text when making a tool request. Wait for Tool[...] messages that show the results, then continue the conversation.
`

const (
	// respondInstruction closes every transcript prompt.
	respondInstruction = "Respond as the assistant to the latest user message."

	// noMCPToolsNotice replaces the tool section when MCP is configured
	// but no server offers tools.
	noMCPToolsNotice = "No MCP tools are currently available."

	maxToolsPerServer = 8
	maxSchemaSnippet  = 200
)

// toolPromptSection lists MCP tools for providers that only understand
// the CALL_MCP_TOOL text protocol.
func toolPromptSection(toolsByServer map[string][]mcp.Tool) string {
	var b strings.Builder
	b.WriteString("Available MCP tools:\n")
	b.WriteString("Use CALL_MCP_TOOL server=<server_name> tool=<tool_name> args=<json_object> to request a tool.\n")
	b.WriteString("Only request a tool when it will help solve the task.\n")

	servers := make([]string, 0, len(toolsByServer))
	for name := range toolsByServer {
		servers = append(servers, name)
	}
	slices.Sort(servers)

	for _, server := range servers {
		fmt.Fprintf(&b, "\nServer %s:\n", server)

		ordered := slices.Clone(toolsByServer[server])
		slices.SortFunc(ordered, func(a, b mcp.Tool) int { return strings.Compare(a.Name, b.Name) })

		for _, t := range ordered[:min(len(ordered), maxToolsPerServer)] {
			description := t.Description
			if description == "" {
				description = "No description provided"
			}
			fmt.Fprintf(&b, "  - %s: %s\n", t.Name, description)

			if schema, err := json.Marshal(schemaOrNull(t.InputSchema)); err == nil {
				fmt.Fprintf(&b, "      schema: %s\n", truncateInline(string(schema), maxSchemaSnippet))
			}
		}
		if len(ordered) > maxToolsPerServer {
			fmt.Fprintf(&b, "  - ... (%d more)\n", len(ordered)-maxToolsPerServer)
		}
	}
	return b.String()
}

// schemaOrNull keeps a missing schema rendering as null rather than {}.
func schemaOrNull(schema map[string]any) any {
	if schema == nil {
		return nil
	}
	return schema
}

// truncateInline flattens text to one line of at most maxChars runes,
// dropping control characters other than newline and tab.
func truncateInline(text string, maxChars int) string {
	var b strings.Builder
	count := 0
	for _, r := range text {
		if count >= maxChars {
			b.WriteString("... (truncated)")
			break
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
		count++
	}
	return strings.ReplaceAll(b.String(), "\n", " ")
}

// truncateForDisplay keeps the first maxChars runes of text.
func truncateForDisplay(text string, maxChars int) string {
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	return string([]rune(text)[:maxChars]) + "\n... (truncated)"
}

const (
	maxHistoryOutput = 8000
	maxPreviewOutput = 4000
)

// truncateForHistory caps tool output before it is written to history.
func truncateForHistory(text string) string {
	if utf8.RuneCountInString(text) <= maxHistoryOutput {
		return text
	}
	return truncateForDisplay(text, maxHistoryOutput) + "\n... (truncated for conversation history)"
}

// truncateForPreview caps tool output shown while a turn runs.
func truncateForPreview(text string) string {
	return truncateForDisplay(text, maxPreviewOutput)
}
