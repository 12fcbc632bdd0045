package chat

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"zarz/internal/client"
)

const (
	// maxPromptToolChars caps one tool message in the transcript.
	maxPromptToolChars = 4000

	// missingOutput is recorded for a tool call that never produced output.
	missingOutput = "Output:\nERROR: Tool call ended without returning output."
)

// Session represents a chat session: the message history plus files the
// user pinned into the prompt.
type Session struct {
	WorkDir string

	mu        sync.RWMutex
	id        string // storage id, empty until first saved
	title     string
	createdAt time.Time
	updatedAt time.Time
	messages  []Message
	files     map[string]string
}

// NewSession creates an empty session rooted at workDir.
func NewSession(workDir string) *Session {
	return &Session{
		WorkDir: workDir,
		files:   make(map[string]string),
	}
}

// AddMessage appends m to the history.
func (s *Session) AddMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// Add appends a plain message.
func (s *Session) Add(role Role, content string) {
	s.AddMessage(NewMessage(role, content))
}

// Messages returns a copy of the history.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// MessageCount returns the number of messages in the history.
func (s *Session) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// LoadFile reads path (relative to WorkDir) and pins its content into
// the prompt's file section.
func (s *Session) LoadFile(path string) error {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.WorkDir, path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	s.SetFile(path, string(data))
	return nil
}

// SetFile pins content under path.
func (s *Session) SetFile(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
}

// HasFile reports whether path is pinned.
func (s *Session) HasFile(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[path]
	return ok
}

// Files returns the pinned paths, sorted.
func (s *Session) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.files))
}

// Clear drops the history, pinned files and storage identity, so the
// next save starts a new snapshot.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.files = make(map[string]string)
	s.id = ""
	s.title = ""
	s.createdAt = time.Time{}
	s.updatedAt = time.Time{}
}

// ID returns the storage id, or "" if the session was never saved.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Title returns the stored title or one derived from the history.
func (s *Session) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.title != "" {
		return s.title
	}
	return deriveTitle(s.messages)
}

// BuildPromptWithContext renders the history as a plain-text transcript.
// Tool output is truncated; pinned files are appended sorted by path
// when includeFiles is set.
func (s *Session) BuildPromptWithContext(includeFiles bool) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Working Directory: %s\n\n", s.WorkDir)
	b.WriteString("Conversation transcript (most recent last):\n\n")

	for _, m := range s.messages {
		content := m.Content
		if m.Role == RoleTool {
			content = truncateForPrompt(content, maxPromptToolChars)
		}
		b.WriteString(m.Label())
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteString("\n\n")
	}

	if includeFiles && len(s.files) > 0 {
		b.WriteString("## Current Files\n\n")
		for _, p := range slices.Sorted(maps.Keys(s.files)) {
			fmt.Fprintf(&b, "<file path=\"%s\">\n%s\n</file>\n\n", p, s.files[p])
		}
	}

	return b.String()
}

// BuildOpenAIMessages renders the history in the tool-role dialect.
// Command messages with an id become assistant tool_calls, Output
// messages with an id become role "tool" results, and any other tool
// message degrades to assistant text.
func (s *Session) BuildOpenAIMessages() []client.WireMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]client.WireMessage, 0, len(s.messages))
	for _, m := range s.messages {
		switch m.Role {
		case RoleUser:
			items = append(items, client.WireMessage{Role: client.RoleUser, Content: m.Content})
		case RoleAssistant:
			items = append(items, client.WireMessage{Role: client.RoleAssistant, Content: m.Content})
		case RoleSystem:
			items = append(items, client.WireMessage{Role: client.RoleSystem, Content: m.Content})
		case RoleTool:
			items = append(items, toolWireMessage(m))
		}
	}
	return items
}

func toolWireMessage(m Message) client.WireMessage {
	id := m.CallID()
	switch {
	case m.Kind() == ToolCommand && id != "":
		args := "{}"
		if len(m.Metadata.ToolArguments) > 0 {
			args = string(m.Metadata.ToolArguments)
		}
		return client.WireMessage{
			Role:    client.RoleAssistant,
			Content: m.Content,
			ToolCalls: []client.WireToolCall{{
				ID:       id,
				Type:     "function",
				Function: client.WireFunction{Name: m.Tool, Arguments: args},
			}},
		}
	case m.Kind() == ToolOutput && id != "":
		return client.WireMessage{Role: client.RoleTool, Content: m.Content, ToolCallID: id}
	default:
		return client.WireMessage{Role: client.RoleAssistant, Content: m.Content}
	}
}

// NormalizeToolHistory inserts a synthetic error Output right after every
// Command whose call id has no Output following it. It returns the
// number of messages inserted.
func (s *Session) NormalizeToolHistory() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	type pendingCall struct {
		server, tool string
		insertAt     int
		hasOutput    bool
	}
	pending := make(map[string]*pendingCall)

	for i, m := range s.messages {
		id := m.CallID()
		if id == "" {
			continue
		}
		switch m.Kind() {
		case ToolCommand:
			if m.Role == RoleTool {
				pending[id] = &pendingCall{server: m.Server, tool: m.Tool, insertAt: i + 1}
			}
		case ToolOutput:
			if p, ok := pending[id]; ok {
				p.hasOutput = true
			}
		}
	}

	type insert struct {
		at  int
		msg Message
	}
	var inserts []insert
	for id, p := range pending {
		if p.hasOutput {
			continue
		}
		inserts = append(inserts, insert{at: p.insertAt, msg: NewToolOutput(p.server, p.tool, id, missingOutput)})
	}
	if len(inserts) == 0 {
		return 0
	}

	// Highest position first keeps earlier positions valid.
	slices.SortFunc(inserts, func(a, b insert) int { return b.at - a.at })
	for _, in := range inserts {
		at := min(in.at, len(s.messages))
		s.messages = slices.Insert(s.messages, at, in.msg)
	}
	return len(inserts)
}

// snapshot captures the session for persistence. It returns false when
// there is nothing to save.
func (s *Session) snapshot(now time.Time, newID func() string) (*Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == 0 {
		return nil, false
	}
	if s.id == "" {
		s.id = newID()
	}
	if s.createdAt.IsZero() {
		s.createdAt = now
	}
	s.updatedAt = now
	if s.title == "" {
		s.title = deriveTitle(s.messages)
	}

	return &Snapshot{
		ID:               s.id,
		Title:            s.title,
		CreatedAt:        s.createdAt,
		UpdatedAt:        s.updatedAt,
		WorkingDirectory: s.WorkDir,
		MessageCount:     len(s.messages),
		Messages:         slices.Clone(s.messages),
	}, true
}

// SessionFromSnapshot restores a saved session.
func SessionFromSnapshot(snap *Snapshot) *Session {
	s := NewSession(snap.WorkingDirectory)
	s.id = snap.ID
	s.title = snap.Title
	s.createdAt = snap.CreatedAt
	s.updatedAt = snap.UpdatedAt
	s.messages = slices.Clone(snap.Messages)
	return s
}

func truncateForPrompt(text string, maxChars int) string {
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars]) + "... (truncated)"
}
