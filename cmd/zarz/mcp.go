package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"zarz/internal/config"
	"zarz/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Manage MCP servers",
		Long:  `List, inspect, add and remove the MCP servers stored in mcp.json.`,
	}

	mcpCmd.AddCommand(newMCPListCmd())
	mcpCmd.AddCommand(newMCPGetCmd())
	mcpCmd.AddCommand(newMCPAddCmd())
	mcpCmd.AddCommand(newMCPRemoveCmd())

	return mcpCmd
}

func loadMCPStore() (*config.MCPStore, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return config.LoadMCPStore(cfg.MCPConfigPath())
}

func newMCPListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadMCPStore()
			if err != nil {
				return err
			}

			names := store.Names()
			if len(names) == 0 {
				cmd.Printf("No MCP servers configured in %s\n", store.Path())
				return nil
			}
			for _, name := range names {
				cfg, _ := store.Get(name)
				cmd.Printf("%s\t%s\n", name, describeServer(cfg))
			}
			return nil
		},
	}
}

func describeServer(cfg mcp.ServerConfig) string {
	switch cfg.Kind {
	case mcp.KindStdio:
		return strings.TrimSpace(fmt.Sprintf("stdio: %s %s", cfg.Command, strings.Join(cfg.Args, " ")))
	default:
		return fmt.Sprintf("%s: %s", cfg.Kind, cfg.URL)
	}
}

func newMCPGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show one MCP server's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadMCPStore()
			if err != nil {
				return err
			}
			server, ok := store.Get(args[0])
			if !ok {
				return fmt.Errorf("no MCP server named %s (run 'zarz mcp list' to see all configured servers)", args[0])
			}
			cmd.Print(formatServerDetails(args[0], server))
			return nil
		},
	}
}

// formatServerDetails renders every field of a server entry, with env
// and header keys sorted.
func formatServerDetails(name string, cfg mcp.ServerConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MCP Server: %s\n", name)
	fmt.Fprintf(&b, "  Type: %s\n", cfg.Kind)
	if cfg.Kind == mcp.KindStdio {
		fmt.Fprintf(&b, "  Command: %s\n", cfg.Command)
		if len(cfg.Args) > 0 {
			fmt.Fprintf(&b, "  Args: %s\n", strings.Join(cfg.Args, " "))
		}
		if len(cfg.Env) > 0 {
			b.WriteString("  Environment:\n")
			for _, k := range slices.Sorted(maps.Keys(cfg.Env)) {
				fmt.Fprintf(&b, "    %s=%s\n", k, cfg.Env[k])
			}
		}
		return b.String()
	}

	fmt.Fprintf(&b, "  URL: %s\n", cfg.URL)
	if len(cfg.Headers) > 0 {
		b.WriteString("  Headers:\n")
		for _, k := range slices.Sorted(maps.Keys(cfg.Headers)) {
			fmt.Fprintf(&b, "    %s: %s\n", k, cfg.Headers[k])
		}
	}
	return b.String()
}

func newMCPAddCmd() *cobra.Command {
	var (
		command string
		cmdArgs []string
		env     []string
		url     string
		sse     bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or replace an MCP server",
		Example: `  zarz mcp add fs --command npx --args -y,@modelcontextprotocol/server-filesystem,.
  zarz mcp add docs --url https://example.com/mcp`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			server, err := buildServerConfig(command, cmdArgs, env, url, sse)
			if err != nil {
				return err
			}

			store, err := loadMCPStore()
			if err != nil {
				return err
			}
			if err := store.Add(name, server); err != nil {
				return err
			}
			if err := store.Save(); err != nil {
				return fmt.Errorf("failed to save %s: %w", store.Path(), err)
			}
			cmd.Printf("Added MCP server %s (%s)\n", name, describeServer(server))
			return nil
		},
	}

	cmd.Flags().StringVar(&command, "command", "", "command that starts a stdio server")
	cmd.Flags().StringSliceVar(&cmdArgs, "args", nil, "arguments for --command")
	cmd.Flags().StringArrayVar(&env, "env", nil, "environment variable for the server, as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&url, "url", "", "URL of an HTTP server")
	cmd.Flags().BoolVar(&sse, "sse", false, "the --url server speaks SSE")
	cmd.MarkFlagsMutuallyExclusive("command", "url")
	cmd.MarkFlagsOneRequired("command", "url")

	return cmd
}

// buildServerConfig turns add flags into a server entry.
func buildServerConfig(command string, args, env []string, url string, sse bool) (mcp.ServerConfig, error) {
	if command == "" {
		if len(args) > 0 || len(env) > 0 {
			return mcp.ServerConfig{}, fmt.Errorf("--args and --env require --command")
		}
		if sse {
			return mcp.SSEServer(url, nil), nil
		}
		return mcp.HTTPServer(url, nil), nil
	}
	if sse {
		return mcp.ServerConfig{}, fmt.Errorf("--sse requires --url")
	}

	var vars map[string]string
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return mcp.ServerConfig{}, fmt.Errorf("invalid --env %q, expected KEY=VALUE", kv)
		}
		if vars == nil {
			vars = make(map[string]string)
		}
		vars[key] = value
	}
	return mcp.StdioServer(command, args, vars), nil
}

func newMCPRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove an MCP server",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadMCPStore()
			if err != nil {
				return err
			}
			if !store.Remove(args[0]) {
				return fmt.Errorf("no MCP server named %s", args[0])
			}
			if err := store.Save(); err != nil {
				return fmt.Errorf("failed to save %s: %w", store.Path(), err)
			}
			cmd.Printf("Removed MCP server %s\n", args[0])
			return nil
		},
	}
}
