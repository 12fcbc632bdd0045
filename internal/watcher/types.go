package watcher

import "time"

// Operation is what happened to a watched file, as seen after the
// debounce interval.
type Operation string

const (
	OpModify Operation = "modify" // the file exists, whether new or rewritten
	OpDelete Operation = "delete"
)

// Config holds watcher configuration.
type Config struct {
	Debounce time.Duration
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{Debounce: 500 * time.Millisecond}
}

// ChangeHandler is called once a watched file has been quiet for the
// debounce interval.
type ChangeHandler func(path string, op Operation)
