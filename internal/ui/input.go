package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const maxHistorySize = 100

// ErrInterrupted is returned by ReadLine when the user presses Ctrl+C.
var ErrInterrupted = errors.New("interrupted")

// LineReader reads one line of user input. It returns io.EOF when input
// ends.
type LineReader interface {
	ReadLine(prompt string) (string, error)
}

// inputModel is a single-line bubbletea editor with history.
type inputModel struct {
	input        textinput.Model
	history      []string
	historyIndex int // len(history) means the new line
	savedInput   string

	value string
	err   error
	done  bool
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.value = m.input.Value()
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC:
			m.err = ErrInterrupted
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlD:
			if m.input.Value() == "" {
				m.err = io.EOF
				m.done = true
				return m, tea.Quit
			}
		case tea.KeyUp:
			if m.historyIndex > 0 {
				if m.historyIndex == len(m.history) {
					m.savedInput = m.input.Value()
				}
				m.historyIndex--
				m.input.SetValue(m.history[m.historyIndex])
				m.input.CursorEnd()
			}
			return m, nil
		case tea.KeyDown:
			if m.historyIndex < len(m.history) {
				m.historyIndex++
				if m.historyIndex == len(m.history) {
					m.input.SetValue(m.savedInput)
				} else {
					m.input.SetValue(m.history[m.historyIndex])
				}
				m.input.CursorEnd()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done {
		return ""
	}
	return m.input.View()
}

// TerminalReader edits lines interactively with a bubbletea text input.
type TerminalReader struct {
	in      io.Reader
	out     io.Writer
	styles  *Styles
	history []string
}

// NewTerminalReader creates a reader for an interactive terminal.
func NewTerminalReader(in io.Reader, out io.Writer, styles *Styles) *TerminalReader {
	return &TerminalReader{in: in, out: out, styles: styles}
}

// ReadLine shows prompt and returns the entered line. The submitted line
// stays on screen after the editor closes.
func (r *TerminalReader) ReadLine(prompt string) (string, error) {
	ti := textinput.New()
	ti.Prompt = r.styles.UserPrompt.Render(prompt)
	ti.Placeholder = "Ask anything, or /help"
	ti.Focus()

	model := inputModel{input: ti, history: r.history, historyIndex: len(r.history)}
	p := tea.NewProgram(model, tea.WithInput(r.in), tea.WithOutput(r.out))

	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	m := final.(inputModel)
	if m.err != nil {
		return "", m.err
	}

	fmt.Fprintln(r.out, r.styles.UserPrompt.Render(prompt)+m.value)
	if m.value != "" && (len(r.history) == 0 || r.history[len(r.history)-1] != m.value) {
		r.history = append(r.history, m.value)
		if len(r.history) > maxHistorySize {
			r.history = r.history[len(r.history)-maxHistorySize:]
		}
	}
	return m.value, nil
}

// ScannerReader reads lines from a non-interactive stream such as a pipe.
type ScannerReader struct {
	scanner *bufio.Scanner
}

// NewScannerReader creates a reader over in.
func NewScannerReader(in io.Reader) *ScannerReader {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ScannerReader{scanner: scanner}
}

// ReadLine returns the next line; the prompt is not echoed.
func (r *ScannerReader) ReadLine(string) (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
