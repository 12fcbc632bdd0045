package ui

import (
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// spinnerModel is a minimal bubbletea program showing a spinner and a label.
type spinnerModel struct {
	spinner spinner.Model
	label   string
	done    bool
}

type stopSpinnerMsg struct{}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stopSpinnerMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + m.label
}

// Spinner shows an animated status line while the model is working.
// It is safe to Start and Stop from any goroutine; Stop waits until the
// line is erased.
type Spinner struct {
	out   io.Writer
	style lipgloss.Style

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewSpinner creates a spinner writing to out.
func NewSpinner(out io.Writer, style lipgloss.Style) *Spinner {
	return &Spinner{out: out, style: style}
}

// Start shows label with an animated spinner. A running spinner is
// restarted with the new label.
func (s *Spinner) Start(label string) {
	s.Stop()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = s.style

	p := tea.NewProgram(spinnerModel{spinner: sp, label: label},
		tea.WithOutput(s.out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	done := make(chan struct{})

	s.mu.Lock()
	s.program = p
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		_, _ = p.Run()
	}()
}

// Stop erases the spinner. It is a no-op when nothing is shown.
func (s *Spinner) Stop() {
	s.mu.Lock()
	p, done := s.program, s.done
	s.program, s.done = nil, nil
	s.mu.Unlock()

	if p == nil {
		return
	}
	p.Send(stopSpinnerMsg{})
	<-done
}
