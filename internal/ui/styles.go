package ui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Colors for the UI theme.
var (
	ColorPrimary   = lipgloss.Color("#A78BFA") // Soft Purple (Lavender 400)
	ColorSecondary = lipgloss.Color("#22D3EE") // Bright Cyan (Cyan 400)
	ColorSuccess   = lipgloss.Color("#059669") // Emerald 600
	ColorWarning   = lipgloss.Color("#D97706") // Amber 600
	ColorError     = lipgloss.Color("#DC2626") // Red 600
	ColorMuted     = lipgloss.Color("#9CA3AF") // Gray 400
	ColorText      = lipgloss.Color("#F1F5F9") // Slate 100
	ColorDim       = lipgloss.Color("#6B7280") // Gray 500
)

// MessageIcons provides consistent icons for different message types.
var MessageIcons = map[string]string{
	"success": "✓",
	"error":   "✗",
	"warning": "⚠",
	"info":    "ℹ",
	"active":  "●",
	"pending": "○",
}

// Styles contains all the lipgloss styles used by the REPL.
type Styles struct {
	Header        lipgloss.Style
	UserPrompt    lipgloss.Style
	AssistantText lipgloss.Style
	ToolCall      lipgloss.Style
	ToolResult    lipgloss.Style
	Error         lipgloss.Style
	Warning       lipgloss.Style
	Success       lipgloss.Style
	Dim           lipgloss.Style
	Spinner       lipgloss.Style
	CommandName   lipgloss.Style
	DiffAdded     lipgloss.Style
	DiffRemoved   lipgloss.Style
}

// NewStyles builds the styles for output written to w. Color support is
// detected on w, so a plain writer gets unstyled text.
func NewStyles(w io.Writer) *Styles {
	r := lipgloss.NewRenderer(w)
	return &Styles{
		Header: r.NewStyle().
			Bold(true).
			Foreground(ColorPrimary),

		UserPrompt: r.NewStyle().
			Foreground(ColorSecondary).
			Bold(true),

		AssistantText: r.NewStyle().
			Foreground(ColorText),

		ToolCall: r.NewStyle().
			Foreground(ColorSecondary),

		ToolResult: r.NewStyle().
			Foreground(ColorMuted),

		Error: r.NewStyle().
			Foreground(ColorError).
			Bold(true),

		Warning: r.NewStyle().
			Foreground(ColorWarning),

		Success: r.NewStyle().
			Foreground(ColorSuccess),

		Dim: r.NewStyle().
			Foreground(ColorDim),

		Spinner: r.NewStyle().
			Foreground(ColorPrimary),

		CommandName: r.NewStyle().
			Foreground(ColorSecondary).
			Bold(true),

		DiffAdded: r.NewStyle().
			Foreground(ColorSuccess),

		DiffRemoved: r.NewStyle().
			Foreground(ColorError),
	}
}
