package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"zarz/internal/fileutil"
)

const (
	defaultTitle  = "Untitled session"
	maxTitleChars = 80
)

// Snapshot is the persisted form of a session.
type Snapshot struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	WorkingDirectory string    `json:"working_directory"`
	MessageCount     int       `json:"message_count"`
	Messages         []Message `json:"messages"`
}

// Summary describes a stored session without its messages.
type Summary struct {
	ID           string
	Title        string
	UpdatedAt    time.Time
	Provider     string
	Model        string
	MessageCount int
}

// Store keeps session snapshots as <dir>/<id>.json.
type Store struct {
	dir   string
	now   func() time.Time
	newID func() string
}

// NewStore creates a store rooted at dir. The directory is created on
// first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now, newID: uuid.NewString}
}

// Dir returns the storage directory.
func (st *Store) Dir() string {
	return st.dir
}

// Save writes s to disk and returns the snapshot. Saving an empty
// session is a no-op that returns nil.
func (st *Store) Save(s *Session, provider, model string) (*Snapshot, error) {
	snap, ok := s.snapshot(st.now().UTC(), st.newID)
	if !ok {
		return nil, nil
	}
	snap.Provider = provider
	snap.Model = model

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize session: %w", err)
	}
	if err := os.MkdirAll(st.dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	if err := fileutil.AtomicWrite(st.path(snap.ID), data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write session file: %w", err)
	}
	return snap, nil
}

// List returns summaries of all readable snapshots, most recently
// updated first. Unreadable files are skipped.
func (st *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(st.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", st.dir, err)
	}

	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		snap, err := readSnapshot(filepath.Join(st.dir, entry.Name()))
		if err != nil {
			continue // Skip invalid files
		}
		summaries = append(summaries, Summary{
			ID:           snap.ID,
			Title:        snap.Title,
			UpdatedAt:    snap.UpdatedAt,
			Provider:     snap.Provider,
			Model:        snap.Model,
			MessageCount: snap.MessageCount,
		})
	}

	slices.SortFunc(summaries, func(a, b Summary) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return summaries, nil
}

// Load reads the snapshot with the given id.
func (st *Store) Load(id string) (*Snapshot, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return nil, fmt.Errorf("invalid session id %q", id)
	}
	snap, err := readSnapshot(st.path(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return snap, nil
}

func (st *Store) path(id string) string {
	return filepath.Join(st.dir, id+".json")
}

func readSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse stored session data: %w", err)
	}
	return &snap, nil
}

// deriveTitle uses the first non-blank line of the first user message.
func deriveTitle(messages []Message) string {
	title := defaultTitle
search:
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		for line := range strings.Lines(m.Content) {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				title = trimmed
				break search
			}
		}
	}

	if utf8.RuneCountInString(title) > maxTitleChars {
		return string([]rune(title)[:maxTitleChars]) + "…"
	}
	return title
}
