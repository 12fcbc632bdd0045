package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"zarz/internal/fileutil"
	"zarz/internal/mcp"
)

// MCPStore is the persisted list of MCP servers (mcp.json).
type MCPStore struct {
	path string

	mu      sync.RWMutex
	servers map[string]mcp.ServerConfig
}

type mcpFile struct {
	Servers map[string]mcp.ServerConfig `json:"mcpServers"`
}

// LoadMCPStore reads path. A missing file yields an empty store.
func LoadMCPStore(path string) (*MCPStore, error) {
	s := &MCPStore{path: path, servers: make(map[string]mcp.ServerConfig)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read MCP config file: %w", err)
	}

	var file mcpFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse MCP config file %s: %w", path, err)
	}
	if file.Servers != nil {
		s.servers = file.Servers
	}
	return s, nil
}

// Path returns the backing file.
func (s *MCPStore) Path() string {
	return s.path
}

// Servers returns a copy of all configured servers.
func (s *MCPStore) Servers() map[string]mcp.ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.servers)
}

// Names returns the server names in sorted order.
func (s *MCPStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.servers))
}

// Get returns the configuration of name.
func (s *MCPStore) Get(name string) (mcp.ServerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.servers[name]
	return cfg, ok
}

// Add inserts or replaces name.
func (s *MCPStore) Add(name string, cfg mcp.ServerConfig) error {
	if name == "" {
		return errors.New("server name must not be empty")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("server %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[name] = cfg
	return nil
}

// Remove deletes name and reports whether it existed.
func (s *MCPStore) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[name]; !ok {
		return false
	}
	delete(s.servers, name)
	return true
}

// Save writes the store atomically.
func (s *MCPStore) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(mcpFile{Servers: s.servers}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to serialize MCP config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return fileutil.AtomicWrite(s.path, append(data, '\n'), 0600)
}
