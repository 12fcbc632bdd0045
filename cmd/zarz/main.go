package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"zarz/internal/app"
	"zarz/internal/chat"
	"zarz/internal/client"
	"zarz/internal/config"
	"zarz/internal/logging"
	"zarz/internal/mcp"
	"zarz/internal/security"
	"zarz/internal/tools"
	"zarz/internal/ui"
	"zarz/internal/unifiedexec"
	"zarz/internal/watcher"
)

var (
	version  = "0.1.0"
	cfgFile  string
	provider string
	model    string
	message  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zarz",
		Short: "AI coding assistant for the terminal",
		Long: `Zarz lets a language model work in your project: it runs shell commands,
reads and patches files, and calls tools from MCP servers you configure.`,
		SilenceUsage: true,
		RunE:         runApp,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $ZARZ_HOME/config.yaml or ~/.zarz/config.yaml)")
	rootCmd.Flags().StringVar(&provider, "provider", "", "model provider: anthropic, openai, glm, gemini or ollama")
	rootCmd.Flags().StringVar(&model, "model", "", "model to use (default depends on the provider)")
	rootCmd.Flags().StringVarP(&message, "message", "m", "", "send one message and exit instead of starting the REPL")

	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newRewriteCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("zarz version %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration, applies the --provider and --model
// flags and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if provider != "" {
		cfg.Provider = strings.ToLower(provider)
	}
	if model != "" {
		cfg.Model = model
	}
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			return nil, fmt.Errorf("%w (set it in %s or the environment)", err, cfg.Path())
		}
		return nil, err
	}
	return cfg, nil
}

func runApp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logging.EnableFileLogging(config.Dir(), logging.ParseLevel(cfg.Logging.Level)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
	}
	defer logging.Close()

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	llm, err := client.NewProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create %s provider: %w", cfg.Provider, err)
	}

	sessions := unifiedexec.NewManager(workDir)
	defer sessions.Shutdown()
	registry := tools.NewDefaultRegistry(sessions, tools.WithExecDefaults(tools.ExecDefaults{
		Shell:     cfg.Exec.Shell,
		Login:     cfg.Exec.Login,
		YieldTime: cfg.Exec.YieldTime,
	}))
	paths := security.NewPathPolicy(workDir, cfg.Tools.DeniedPaths)
	execCtx := tools.ExecContext{
		WorkDir: workDir,
		Paths:   paths,
	}

	interactive := message == "" && term.IsTerminal(int(os.Stdin.Fd()))
	printer := newPrinter(term.IsTerminal(int(os.Stdout.Fd())))

	var manager *mcp.Manager
	if cfg.MCP.Enabled {
		manager, err = startMCP(ctx, cfg, printer)
		if err != nil {
			return err
		}
		defer manager.StopAll()
	}

	session := chat.NewSession(workDir)
	opts := []app.Option{
		app.WithRegistry(registry, execCtx),
		app.WithBashRunner(tools.NewBashRunner(workDir, cfg.Exec.BashTimeout)),
		app.WithObserver(printer),
	}
	if manager != nil {
		opts = append(opts, app.WithMCP(manager))
	}
	orch := app.NewOrchestrator(llm, session, app.SettingsFromConfig(cfg), opts...)

	var reader ui.LineReader = ui.NewScannerReader(os.Stdin)
	if interactive {
		reader = ui.NewTerminalReader(os.Stdin, os.Stdout, printer.Styles())
	}
	repl := ui.NewREPL(ui.REPLConfig{
		Orchestrator: orch,
		Store:        chat.NewStore(config.SessionsDir()),
		MCP:          manager,
		Printer:      printer,
		Reader:       reader,
		Paths:        paths,
		NewProvider:  providerFactory(cfg),
	})

	if message != "" {
		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
		return repl.Turn(turnCtx, message)
	}

	printer.Banner(version, llm.Name(), orch.Model(), workDir)
	return repl.Run(ctx)
}

// providerFactory builds providers for /model from a copy of cfg, so the
// switch is validated like a startup choice.
func providerFactory(cfg *config.Config) ui.ProviderFactory {
	return func(ctx context.Context, provider, model string) (client.CompletionProvider, error) {
		next := *cfg
		next.Provider = provider
		next.Model = model
		if err := next.Validate(); err != nil {
			return nil, err
		}
		return client.NewProvider(ctx, &next)
	}
}

func newPrinter(tty bool) *ui.Printer {
	if !tty {
		return ui.NewPrinter(os.Stdout)
	}
	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = min(w-4, 120)
	}
	return ui.NewPrinter(os.Stdout, ui.WithMarkdown(width), ui.WithSpinner())
}

// startMCP launches the servers from mcp.json and, when enabled, reloads
// them as the file changes.
func startMCP(ctx context.Context, cfg *config.Config, printer *ui.Printer) (*mcp.Manager, error) {
	mcp.ClientVersion = version
	path := cfg.MCPConfigPath()

	store, err := config.LoadMCPStore(path)
	if err != nil {
		return nil, err
	}

	manager := mcp.NewManager()
	manager.LoadFromConfig(ctx, store.Servers())
	for _, st := range manager.Status() {
		if st.Error != "" {
			printer.OnWarning(fmt.Sprintf("MCP server %s failed to start: %s", st.Name, st.Error))
		}
	}

	if cfg.MCP.Watch {
		w, err := watcher.WatchMCPConfig(ctx, path, manager, watcher.DefaultConfig())
		if err != nil {
			logging.Warn("MCP config watching disabled", "path", path, "error", err)
		} else {
			go func() {
				<-ctx.Done()
				_ = w.Stop()
			}()
		}
	}
	return manager, nil
}
