package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"zarz/internal/logging"
	"zarz/internal/unifiedexec"
)

// Registry manages the collection of available tools.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// NewDefaultRegistry registers the built-in tools. Exec tools share sessions.
func NewDefaultRegistry(sessions *unifiedexec.Manager, opts ...ExecOption) *Registry {
	r := NewRegistry()
	r.MustRegister(&ReadFileTool{})
	r.MustRegister(&ListDirTool{})
	r.MustRegister(&GrepFilesTool{})
	r.MustRegister(&ApplyPatchTool{})
	r.MustRegister(NewExecCommandTool(sessions, opts...))
	r.MustRegister(NewWriteStdinTool(sessions, opts...))
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}

	r.tools[name] = tool
	return nil
}

// MustRegister adds a tool to the registry and logs a warning on error.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		logging.Warn("failed to register tool", "tool", tool.Name(), "error", err)
	}
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Specs returns the specs of all tools, sorted by name.
func (r *Registry) Specs() []ToolSpec {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, SpecOf(r.tools[name]))
	}
	return specs
}

// Execute runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, ec ExecContext, args json.RawMessage) (ToolResult, error) {
	tool, ok := r.Get(name)
	if !ok {
		return ToolResult{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	start := time.Now()
	result, err := tool.Execute(ctx, ec, args)
	logging.Debug("tool executed",
		"tool", name,
		"duration", time.Since(start),
		"success", err == nil && result.Success,
		"error", err)
	return result, err
}
