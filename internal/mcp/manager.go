package mcp

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"zarz/internal/logging"
)

// Session is the part of a client the manager depends on. *Client
// implements it.
type Session interface {
	Name() string
	ServerInfo() ServerInfo
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error)
	Stop() error
}

// StartFunc launches one configured server and completes its handshake.
type StartFunc func(ctx context.Context, name string, cfg ServerConfig) (Session, error)

// defaultServerTimeout is the per-server startup timeout.
const defaultServerTimeout = 15 * time.Second

// Manager owns the running MCP clients keyed by server name.
type Manager struct {
	mu       sync.RWMutex
	configs  map[string]ServerConfig
	clients  map[string]Session
	failures map[string]string

	start   StartFunc
	timeout time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStarter replaces the function used to launch servers.
func WithStarter(start StartFunc) ManagerOption {
	return func(m *Manager) { m.start = start }
}

// WithStartTimeout bounds each server's startup and handshake.
func WithStartTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewManager creates an empty manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		configs:  make(map[string]ServerConfig),
		clients:  make(map[string]Session),
		failures: make(map[string]string),
		timeout:  defaultServerTimeout,
	}
	m.start = func(ctx context.Context, name string, cfg ServerConfig) (Session, error) {
		return Start(ctx, name, cfg, m.timeout)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// startResult holds the result of a single server start attempt.
type startResult struct {
	name    string
	cfg     ServerConfig
	session Session
	err     error
}

// LoadFromConfig starts every configured server in parallel. A server that
// fails to start is logged and skipped; the rest still load.
func (m *Manager) LoadFromConfig(ctx context.Context, servers map[string]ServerConfig) {
	results := m.startAll(ctx, servers)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, res := range results {
		m.register(res)
	}
}

// startAll launches servers concurrently without holding the manager lock.
func (m *Manager) startAll(ctx context.Context, servers map[string]ServerConfig) []startResult {
	if len(servers) == 0 {
		return nil
	}

	results := make(chan startResult, len(servers))
	var wg sync.WaitGroup

	for name, cfg := range servers {
		if cfg.Kind != KindStdio {
			logging.Warn("MCP server skipped: unsupported transport", "name", name, "type", cfg.Kind)
			results <- startResult{name: name, cfg: cfg, err: ErrUnsupportedTransport}
			continue
		}

		wg.Add(1)
		go func(name string, cfg ServerConfig) {
			defer wg.Done()

			startCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			session, err := m.start(startCtx, name, cfg)
			results <- startResult{name: name, cfg: cfg, session: session, err: err}
		}(name, cfg)
	}

	wg.Wait()
	close(results)

	out := make([]startResult, 0, len(servers))
	for res := range results {
		out = append(out, res)
	}
	return out
}

// register records one start result. Must be called with m.mu held.
func (m *Manager) register(res startResult) {
	m.configs[res.name] = res.cfg
	if res.err != nil {
		m.failures[res.name] = res.err.Error()
		logging.Warn("failed to start MCP server", "name", res.name, "error", res.err)
		return
	}

	if old, ok := m.clients[res.name]; ok {
		stopSession(old)
	}
	delete(m.failures, res.name)
	m.clients[res.name] = res.session

	info := res.session.ServerInfo()
	logging.Info("MCP server started", "name", res.name, "server", info.Name, "version", info.Version)
}

// AddServer starts one server and registers it under name, replacing any
// running client with the same name.
func (m *Manager) AddServer(ctx context.Context, name string, cfg ServerConfig) error {
	if cfg.Kind != KindStdio {
		return fmt.Errorf("%s (%s): %w", name, cfg.Kind, ErrUnsupportedTransport)
	}

	startCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	session, err := m.start(startCtx, name, cfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.register(startResult{name: name, cfg: cfg, session: session, err: err})
	return err
}

// RemoveServer stops and forgets a server.
func (m *Manager) RemoveServer(name string) error {
	m.mu.Lock()
	session, ok := m.clients[name]
	_, known := m.configs[name]
	delete(m.clients, name)
	delete(m.configs, name)
	delete(m.failures, name)
	m.mu.Unlock()

	if !ok && !known {
		return serverNotFound(name)
	}
	if ok {
		stopSession(session)
		logging.Info("MCP server removed", "name", name)
	}
	return nil
}

// Reload brings the running set in line with servers: removed and changed
// entries are stopped, new and changed entries are started.
func (m *Manager) Reload(ctx context.Context, servers map[string]ServerConfig) {
	m.mu.RLock()
	var stale []string
	for name, cfg := range m.configs {
		next, ok := servers[name]
		if !ok || !next.Equal(cfg) {
			stale = append(stale, name)
		}
	}
	toStart := make(map[string]ServerConfig)
	for name, cfg := range servers {
		prev, ok := m.configs[name]
		if !ok || !prev.Equal(cfg) {
			toStart[name] = cfg
		}
	}
	m.mu.RUnlock()

	for _, name := range stale {
		if err := m.RemoveServer(name); err != nil {
			logging.Debug("MCP reload: remove failed", "name", name, "error", err)
		}
	}

	if len(stale) > 0 || len(toStart) > 0 {
		logging.Info("MCP servers reloading", "stopped", len(stale), "starting", len(toStart))
	}
	m.LoadFromConfig(ctx, toStart)
}

// GetAllTools lists tools from every running client. A client that fails
// contributes nothing; the error is logged.
func (m *Manager) GetAllTools(ctx context.Context) map[string][]Tool {
	m.mu.RLock()
	sessions := make(map[string]Session, len(m.clients))
	for name, s := range m.clients {
		sessions[name] = s
	}
	m.mu.RUnlock()

	result := make(map[string][]Tool, len(sessions))
	for _, name := range sortedKeys(sessions) {
		tools, err := sessions[name].ListTools(ctx)
		if err != nil {
			logging.Warn("failed to list MCP tools", "server", name, "error", err)
			continue
		}
		result[name] = tools
	}
	return result
}

// CallTool invokes tool on the named server.
func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]any) (*CallToolResult, error) {
	m.mu.RLock()
	session, ok := m.clients[server]
	m.mu.RUnlock()
	if !ok {
		return nil, serverNotFound(server)
	}

	logging.Debug("MCP tool call", "server", server, "tool", tool)
	return session.CallTool(ctx, tool, args)
}

// HasServers reports whether any client is running.
func (m *Manager) HasServers() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients) > 0
}

// ServerNames returns the names of running servers, sorted.
func (m *Manager) ServerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.clients)
}

// ServerStatus contains status information about a configured server.
type ServerStatus struct {
	Name    string
	Kind    ServerKind
	Running bool
	Server  ServerInfo
	Error   string
}

// Status reports every configured server, sorted by name.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(m.configs))
	for _, name := range sortedKeys(m.configs) {
		st := ServerStatus{Name: name, Kind: m.configs[name].Kind, Error: m.failures[name]}
		if s, ok := m.clients[name]; ok {
			st.Running = true
			st.Server = s.ServerInfo()
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// StopAll drains the client map and stops each client. Stop errors are
// logged, not returned.
func (m *Manager) StopAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]Session)
	m.mu.Unlock()

	for _, name := range sortedKeys(clients) {
		stopSession(clients[name])
	}
	logging.Debug("MCP manager stopped", "servers", len(clients))
}

func stopSession(s Session) {
	if err := s.Stop(); err != nil {
		logging.Warn("MCP client stop error", "name", s.Name(), "error", err)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
