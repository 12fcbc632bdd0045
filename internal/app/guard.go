package app

import (
	"fmt"
	"sync"

	"zarz/internal/logging"
)

// DefaultBashRepeatLimit is the run number at which a repeated bash
// command is refused.
const DefaultBashRepeatLimit = 10

// repeatGuard counts bash commands by their literal text.
type repeatGuard struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
}

func newRepeatGuard(limit int) *repeatGuard {
	if limit <= 0 {
		limit = DefaultBashRepeatLimit
	}
	return &repeatGuard{limit: limit, counts: make(map[string]int)}
}

// admit records one more request for command. It returns a non-empty
// warning when the request reaches the limit and must not run.
func (g *repeatGuard) admit(command string) string {
	g.mu.Lock()
	g.counts[command]++
	count := g.counts[command]
	g.mu.Unlock()

	if count < g.limit {
		return ""
	}
	logging.Warn("repeated bash command refused", "command", command, "count", count)
	return fmt.Sprintf("WARNING: the command %q has been requested %d times in this session and was not run again. "+
		"Use the output you already have or try a different approach.", command, count)
}

func (g *repeatGuard) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.counts)
}
