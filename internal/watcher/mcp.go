package watcher

import (
	"context"

	"zarz/internal/config"
	"zarz/internal/logging"
	"zarz/internal/mcp"
)

// Reloader applies a new server set. *mcp.Manager implements it.
type Reloader interface {
	Reload(ctx context.Context, servers map[string]mcp.ServerConfig)
}

// WatchMCPConfig reloads MCP servers whenever the file at path changes.
// A file that fails to parse leaves the running servers untouched. The
// returned watcher is already started.
func WatchMCPConfig(ctx context.Context, path string, r Reloader, cfg Config) (*Watcher, error) {
	w, err := NewWatcher([]string{path}, cfg, func(changed string, op Operation) {
		store, err := config.LoadMCPStore(changed)
		if err != nil {
			logging.Warn("ignoring invalid MCP config", "path", changed, "error", err)
			return
		}
		servers := store.Servers()
		logging.Info("MCP config changed, reloading servers", "path", changed, "op", string(op), "servers", len(servers))
		r.Reload(ctx, servers)
	})
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return nil, err
	}
	return w, nil
}
