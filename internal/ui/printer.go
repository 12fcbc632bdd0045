package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"zarz/internal/app"
	"zarz/internal/changes"
	"zarz/internal/chat"
	"zarz/internal/mcp"
)

// maxResultLines bounds the tool output preview shown after each call.
const maxResultLines = 12

// Printer writes REPL output. It implements app.Observer.
type Printer struct {
	out      io.Writer
	styles   *Styles
	renderer *glamour.TermRenderer // nil renders markdown as plain text
	spinner  *Spinner              // nil disables the spinner

	mu sync.Mutex
}

var _ app.Observer = (*Printer)(nil)

// PrinterOption configures a Printer.
type PrinterOption func(*Printer)

// WithMarkdown renders assistant text with glamour at the given wrap
// width.
func WithMarkdown(width int) PrinterOption {
	return func(p *Printer) {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			p.renderer = renderer
		}
	}
}

// WithSpinner shows a spinner while the model is thinking.
func WithSpinner() PrinterOption {
	return func(p *Printer) {
		p.spinner = NewSpinner(p.out, p.styles.Spinner)
	}
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer, opts ...PrinterOption) *Printer {
	p := &Printer{out: out, styles: NewStyles(out)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Styles returns the printer's styles.
func (p *Printer) Styles() *Styles {
	return p.styles
}

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}

// Printf writes unstyled formatted text.
func (p *Printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// Info prints a dimmed status line.
func (p *Printer) Info(msg string) {
	p.println(p.styles.Dim.Render(msg))
}

// Success prints a confirmation line.
func (p *Printer) Success(msg string) {
	p.println(p.styles.Success.Render(MessageIcons["success"] + " " + msg))
}

// Error prints an error line.
func (p *Printer) Error(err error) {
	p.println(p.styles.Error.Render("Error: " + err.Error()))
}

// Banner prints the startup header.
func (p *Printer) Banner(version, provider, model, workDir string) {
	p.println(p.styles.Header.Render("zarz " + version))
	p.println(p.styles.Dim.Render(fmt.Sprintf("%s / %s  ·  %s", provider, model, workDir)))
	p.println(p.styles.Dim.Render("Type /help for commands, /exit to quit."))
	p.println("")
}

// OnAssistantText renders model prose. Proposed file bodies are left out;
// the REPL summarizes them as pending changes.
func (p *Printer) OnAssistantText(text string) {
	text = changes.StripBlocks(text)
	if strings.TrimSpace(text) == "" {
		return
	}
	if p.renderer != nil {
		if rendered, err := p.renderer.Render(text); err == nil {
			p.println(strings.TrimRight(rendered, "\n"))
			return
		}
	}
	p.println(p.styles.AssistantText.Render(text))
}

// OnToolStart prints the tool request line.
func (p *Printer) OnToolStart(server, tool, command string) {
	if server == app.ServerShell {
		p.println(p.styles.ToolCall.Render("  $ " + command))
		return
	}
	p.println(p.styles.ToolCall.Render(fmt.Sprintf("  ▸ %s.%s %s", server, tool, strings.TrimPrefix(command, tool+" "))))
}

// OnToolResult prints the head of a tool's output.
func (p *Printer) OnToolResult(server, tool, preview string, isError bool) {
	if isError {
		p.println(p.styles.Warning.Render(fmt.Sprintf("  %s %s.%s returned an error.", MessageIcons["warning"], server, tool)))
	}

	trimmed := strings.TrimSpace(preview)
	if trimmed == "" {
		return
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > maxResultLines {
		hidden := len(lines) - maxResultLines
		lines = append(lines[:maxResultLines], fmt.Sprintf("... (%d more lines)", hidden))
	}
	for _, line := range lines {
		p.println(p.styles.ToolResult.Render("    " + line))
	}
}

// OnWarning prints a warning line.
func (p *Printer) OnWarning(msg string) {
	p.println(p.styles.Warning.Render("Warning: " + msg))
}

// OnThinking starts or stops the spinner.
func (p *Printer) OnThinking(active bool) {
	if p.spinner == nil {
		return
	}
	if active {
		p.spinner.Start("Thinking...")
	} else {
		p.spinner.Stop()
	}
}

// MCPStatus prints the running servers and the tools they offer.
func (p *Printer) MCPStatus(statuses []mcp.ServerStatus, toolsByServer map[string][]mcp.Tool) {
	if len(statuses) == 0 {
		p.Info("No MCP servers configured. Add one with: zarz mcp add <name> --command <cmd>")
		return
	}

	p.println(p.styles.Header.Render("MCP servers"))
	for _, st := range statuses {
		icon := MessageIcons["active"]
		state := "running"
		if !st.Running {
			icon = MessageIcons["pending"]
			state = "stopped"
			if st.Error != "" {
				state = "failed: " + st.Error
			}
		}
		p.Printf("  %s %s (%s)\n", icon, p.styles.CommandName.Render(st.Name), state)

		for _, t := range toolsByServer[st.Name] {
			desc := t.Description
			if desc == "" {
				desc = "No description provided"
			}
			p.println(p.styles.Dim.Render(fmt.Sprintf("      - %s: %s", t.Name, desc)))
		}
	}
}

// FileChange prints the heading and size of a proposed file change.
func (p *Printer) FileChange(c changes.Change) {
	p.println(p.styles.Success.Render(MessageIcons["active"] + " " + c.Title()))
	p.println(p.styles.Dim.Render("  ⎿ " + c.Stats()))
}

// Diff prints a line diff with added and removed lines colored.
func (p *Printer) Diff(diff string) {
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			p.println(p.styles.CommandName.Render(line))
		case strings.HasPrefix(line, "@@"):
			p.println(p.styles.Dim.Render(line))
		case strings.HasPrefix(line, "+"):
			p.println(p.styles.DiffAdded.Render(line))
		case strings.HasPrefix(line, "-"):
			p.println(p.styles.DiffRemoved.Render(line))
		default:
			p.println(line)
		}
	}
}

// Sessions prints stored session summaries.
func (p *Printer) Sessions(list []chat.Summary) {
	if len(list) == 0 {
		p.Info("No saved sessions found.")
		return
	}
	for _, s := range list {
		p.Printf("%s  %s  %s\n",
			p.styles.CommandName.Render(shortID(s.ID)),
			s.UpdatedAt.Local().Format("2006-01-02 15:04"),
			s.Title)
		p.println(p.styles.Dim.Render(fmt.Sprintf("          %s / %s, %d messages", s.Provider, s.Model, s.MessageCount)))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
