package app

import (
	"slices"

	"zarz/internal/logging"
	"zarz/internal/mcp"
	"zarz/internal/tools"
)

// Server labels recorded on tool messages that do not come from MCP.
const (
	ServerShell   = "shell"
	ServerBuiltin = "builtin"
)

// ToolKind says where a cataloged tool is executed.
type ToolKind int

const (
	ToolBash ToolKind = iota
	ToolBuiltin
	ToolMCP
)

// RegisteredTool is one entry of the dispatch table.
type RegisteredTool struct {
	Kind ToolKind

	// Name is the registry name for ToolBuiltin.
	Name string

	// Server and Tool identify an MCP tool.
	Server string
	Tool   string
}

// Labels returns the server and tool names recorded in history.
func (t RegisteredTool) Labels() (server, tool string) {
	switch t.Kind {
	case ToolBash:
		return ServerShell, tools.BashToolName
	case ToolBuiltin:
		return ServerBuiltin, t.Name
	default:
		return t.Server, t.Tool
	}
}

// Catalog is the merged tool list offered to the model in one turn.
type Catalog struct {
	specs    []tools.ToolSpec
	dispatch map[string]RegisteredTool
}

// NewCatalog merges the bash tool, the built-in specs and the MCP tools
// of every server. MCP names are qualified and their schemas sanitized.
// On a name clash the earlier entry wins.
func NewCatalog(builtins []tools.ToolSpec, mcpTools map[string][]mcp.Tool) *Catalog {
	c := &Catalog{dispatch: make(map[string]RegisteredTool)}
	c.add(tools.BashSpec(), RegisteredTool{Kind: ToolBash})

	for _, spec := range builtins {
		c.add(spec, RegisteredTool{Kind: ToolBuiltin, Name: spec.Name})
	}

	servers := make([]string, 0, len(mcpTools))
	for name := range mcpTools {
		servers = append(servers, name)
	}
	slices.Sort(servers)

	for _, server := range servers {
		for _, t := range mcpTools[server] {
			spec := tools.ToolSpec{
				Name:        mcp.QualifyToolName(server, t.Name),
				Description: t.Description,
				InputSchema: mcp.SanitizeSchema(t.InputSchema),
			}
			if spec.Description == "" {
				spec.Description = "MCP tool " + t.Name + " from server " + server
			}
			c.add(spec, RegisteredTool{Kind: ToolMCP, Server: server, Tool: t.Name})
		}
	}
	return c
}

func (c *Catalog) add(spec tools.ToolSpec, rt RegisteredTool) {
	if _, exists := c.dispatch[spec.Name]; exists {
		logging.Warn("duplicate tool name skipped", "tool", spec.Name)
		return
	}
	c.dispatch[spec.Name] = rt
	c.specs = append(c.specs, spec)
}

// Specs returns the tool specs in catalog order.
func (c *Catalog) Specs() []tools.ToolSpec {
	return slices.Clone(c.specs)
}

// Lookup resolves a model-facing tool name.
func (c *Catalog) Lookup(name string) (RegisteredTool, bool) {
	rt, ok := c.dispatch[name]
	return rt, ok
}

// Len returns the number of tools.
func (c *Catalog) Len() int {
	return len(c.specs)
}
