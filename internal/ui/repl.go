package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"zarz/internal/app"
	"zarz/internal/changes"
	"zarz/internal/chat"
	"zarz/internal/client"
	"zarz/internal/config"
	"zarz/internal/logging"
	"zarz/internal/mcp"
	"zarz/internal/security"
	"zarz/internal/tools"
)

const (
	promptText = "> "

	// interruptWindow is how soon a second Ctrl+C must follow the first
	// to quit.
	interruptWindow = 2 * time.Second
)

// CommandInfo describes a slash command for /help.
type CommandInfo struct {
	Name        string
	Usage       string
	Description string
}

var commands = []CommandInfo{
	{Name: "/help", Description: "Show this help"},
	{Name: "/apply", Description: "Write the pending file changes"},
	{Name: "/diff", Description: "Show the pending file changes"},
	{Name: "/undo", Description: "Discard the pending file changes"},
	{Name: "/edit", Usage: "/edit <file>", Description: "Load a file into the prompt"},
	{Name: "/files", Description: "List loaded files"},
	{Name: "/model", Usage: "/model [provider] <model>", Description: "Switch to another model or provider"},
	{Name: "/clear", Description: "Clear conversation history"},
	{Name: "/mcp", Description: "Show MCP servers and available tools"},
	{Name: "/save", Description: "Save the conversation now"},
	{Name: "/sessions", Description: "List saved sessions"},
	{Name: "/resume", Usage: "/resume <id or title>", Description: "Resume a saved session"},
	{Name: "/copy", Description: "Copy the last response to the clipboard"},
	{Name: "/patch", Usage: "/patch <old> <new>", Description: "Print the apply_patch block that turns file old into file new"},
	{Name: "/exit", Description: "Exit the session"},
}

// ProviderFactory creates the provider /model switches to.
type ProviderFactory func(ctx context.Context, provider, model string) (client.CompletionProvider, error)

// REPLConfig holds the collaborators of a REPL.
type REPLConfig struct {
	Orchestrator *app.Orchestrator
	Store        *chat.Store  // nil disables persistence
	MCP          *mcp.Manager // nil when MCP is disabled
	Printer      *Printer
	Reader       LineReader

	// Paths guards the files proposed changes may write. Defaults to the
	// session's working directory with no denied paths.
	Paths *security.PathPolicy

	// NewProvider backs /model; nil disables switching.
	NewProvider ProviderFactory
}

// REPL is the interactive prompt loop.
type REPL struct {
	orch        *app.Orchestrator
	store       *chat.Store
	mcp         *mcp.Manager
	printer     *Printer
	reader      LineReader
	paths       *security.PathPolicy
	newProvider ProviderFactory

	pending       changes.Pending
	copyText      func(string) error
	lastAnswer    string
	lastInterrupt time.Time
}

// NewREPL creates a REPL from cfg.
func NewREPL(cfg REPLConfig) *REPL {
	paths := cfg.Paths
	if paths == nil {
		paths = security.NewPathPolicy(cfg.Orchestrator.Session().WorkDir, nil)
	}
	return &REPL{
		orch:        cfg.Orchestrator,
		store:       cfg.Store,
		mcp:         cfg.MCP,
		printer:     cfg.Printer,
		reader:      cfg.Reader,
		paths:       paths,
		newProvider: cfg.NewProvider,
		copyText:    clipboard.WriteAll,
	}
}

// Run reads and handles input until /exit, end of input or a double
// Ctrl+C.
func (r *REPL) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, err := r.reader.ReadLine(promptText)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, ErrInterrupted):
			if time.Since(r.lastInterrupt) < interruptWindow {
				return nil
			}
			r.lastInterrupt = time.Now()
			r.printer.Info("Press Ctrl+C again or type /exit to quit.")
			continue
		case err != nil:
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if r.HandleCommand(ctx, input) {
				return nil
			}
			continue
		}

		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		err = r.Turn(turnCtx, input)
		stop()
		if errors.Is(err, context.Canceled) {
			r.printer.Info("Request cancelled.")
		}
	}
}

// Turn runs one model turn for input, stages the files its answer
// proposes and saves the session. The error is returned after it has
// been printed.
func (r *REPL) Turn(ctx context.Context, input string) error {
	answer, err := r.orch.HandleTurn(ctx, input)
	if err == nil {
		r.lastAnswer = answer
		r.stageProposedFiles(answer)
	} else if !errors.Is(err, context.Canceled) {
		r.printer.Error(err)
	}
	r.persist()
	return err
}

// stageProposedFiles summarizes the file fences in answer and adds them
// to the pending changes.
func (r *REPL) stageProposedFiles(answer string) {
	blocks := changes.ParseBlocks(answer)
	if len(blocks) == 0 {
		return
	}
	list, err := changes.Plan(r.paths, blocks)
	if err != nil {
		r.printer.Error(fmt.Errorf("proposed files ignored: %w", err))
		return
	}
	for _, c := range list {
		if c.Unchanged() {
			r.printer.Info("No changes for " + c.Path)
			continue
		}
		r.printer.FileChange(c)
	}
	if n := r.pending.Stage(list); n > 0 {
		r.printer.Info(fmt.Sprintf("%d pending change(s). Review with /diff, then /apply or /undo.", n))
	}
}

func (r *REPL) persist() {
	if r.store == nil {
		return
	}
	if _, err := r.store.Save(r.orch.Session(), r.orch.ProviderName(), r.orch.Model()); err != nil {
		logging.Warn("failed to save session", "error", err)
		r.printer.OnWarning(fmt.Sprintf("Failed to save session history: %v", err))
	}
}

// HandleCommand runs a slash command. It returns true when the REPL
// should exit.
func (r *REPL) HandleCommand(ctx context.Context, input string) bool {
	name, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch name {
	case "/exit", "/quit":
		return true
	case "/help":
		r.showHelp()
	case "/apply":
		r.applyPending()
	case "/diff":
		r.showPending()
	case "/undo":
		r.printer.Success(fmt.Sprintf("Cleared %d pending change(s)", r.pending.Clear()))
	case "/edit":
		r.editFile(args)
	case "/files":
		r.listFiles()
	case "/model":
		r.switchModel(ctx, args)
	case "/clear":
		r.orch.Reset()
		r.lastAnswer = ""
		r.printer.Success("Conversation history cleared")
	case "/mcp":
		r.showMCP(ctx)
	case "/save":
		r.save()
	case "/sessions":
		r.listSessions()
	case "/resume":
		r.resume(args)
	case "/copy":
		r.copyLast()
	case "/patch":
		r.patch(args)
	default:
		r.printer.OnWarning(fmt.Sprintf("Unknown command %s. Type /help for commands.", name))
	}
	return false
}

func (r *REPL) showHelp() {
	r.printer.Printf("%s\n", r.printer.Styles().Header.Render("Commands"))
	for _, c := range commands {
		usage := c.Usage
		if usage == "" {
			usage = c.Name
		}
		r.printer.Printf("  %-26s %s\n", usage, c.Description)
	}
}

func (r *REPL) showMCP(ctx context.Context) {
	if r.mcp == nil {
		r.printer.Info("MCP support is disabled.")
		return
	}
	r.printer.MCPStatus(r.mcp.Status(), r.mcp.GetAllTools(ctx))
}

func (r *REPL) save() {
	if r.store == nil {
		r.printer.Info("Session storage is not available.")
		return
	}
	snap, err := r.store.Save(r.orch.Session(), r.orch.ProviderName(), r.orch.Model())
	switch {
	case err != nil:
		r.printer.Error(err)
	case snap == nil:
		r.printer.Info("Nothing to save yet.")
	default:
		r.printer.Success(fmt.Sprintf("Session saved as %s (%s)", snap.ID, snap.Title))
	}
}

func (r *REPL) listSessions() {
	if r.store == nil {
		r.printer.Info("Session storage is not available.")
		return
	}
	list, err := r.store.List()
	if err != nil {
		r.printer.Error(err)
		return
	}
	r.printer.Sessions(list)
}

// resume switches to the newest saved session whose id starts with
// query or whose title contains it.
func (r *REPL) resume(query string) {
	if r.store == nil {
		r.printer.Info("Session storage is not available.")
		return
	}
	list, err := r.store.List()
	if err != nil {
		r.printer.Error(err)
		return
	}
	if len(list) == 0 {
		r.printer.Info("No saved sessions found.")
		return
	}
	if query == "" {
		r.printer.Sessions(list)
		r.printer.Info("Use /resume <id or title> to pick one.")
		return
	}

	needle := strings.ToLower(query)
	var match *chat.Summary
	for i := range list {
		if strings.HasPrefix(strings.ToLower(list[i].ID), needle) || strings.Contains(strings.ToLower(list[i].Title), needle) {
			match = &list[i]
			break
		}
	}
	if match == nil {
		r.printer.Info(fmt.Sprintf("No saved session matches '%s'.", query))
		return
	}

	snap, err := r.store.Load(match.ID)
	if err != nil {
		r.printer.Error(err)
		return
	}

	current := r.orch.Session().WorkDir
	restored := chat.SessionFromSnapshot(snap)
	restored.WorkDir = current
	r.orch.SetSession(restored)
	r.lastAnswer = ""
	r.pending.Clear()

	r.printer.Success(fmt.Sprintf("Resumed %s (%d messages)", snap.Title, snap.MessageCount))
	if snap.WorkingDirectory != current {
		r.printer.Info("Note: saved session was created in " + snap.WorkingDirectory)
	}
	if snap.Provider != r.orch.ProviderName() || snap.Model != r.orch.Model() {
		r.printer.Info(fmt.Sprintf("Note: session was recorded with %s / %s; continuing with %s / %s",
			snap.Provider, snap.Model, r.orch.ProviderName(), r.orch.Model()))
	}
}

func (r *REPL) copyLast() {
	if r.lastAnswer == "" {
		r.printer.Info("Nothing to copy yet.")
		return
	}
	if err := r.copyText(r.lastAnswer); err != nil {
		r.printer.Error(fmt.Errorf("failed to copy to clipboard: %w", err))
		return
	}
	r.printer.Success("Copied last response to clipboard")
}

func (r *REPL) patch(args string) {
	paths := strings.Fields(args)
	if len(paths) != 2 {
		r.printer.Info("Usage: /patch <old> <new>")
		return
	}

	workDir := r.orch.Session().WorkDir
	var contents [2]string
	for i, p := range paths {
		full := p
		if !filepath.IsAbs(full) {
			full = filepath.Join(workDir, p)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			r.printer.Error(fmt.Errorf("failed to read %s: %w", p, err))
			return
		}
		contents[i] = string(data)
	}

	r.printer.Printf("%s", tools.BuildUpdatePatch(paths[0], contents[0], contents[1]))
}

func (r *REPL) showPending() {
	list := r.pending.List()
	if len(list) == 0 {
		r.printer.Info("No pending changes")
		return
	}
	for _, c := range list {
		r.printer.FileChange(c)
		r.printer.Diff(c.Diff())
		r.printer.Printf("\n")
	}
}

// applyPending writes every pending change together. On failure nothing
// is written and the changes stay pending.
func (r *REPL) applyPending() {
	list := r.pending.List()
	if len(list) == 0 {
		r.printer.Info("No pending changes to apply")
		return
	}
	written, err := changes.Apply(r.paths, list)
	if err != nil {
		r.printer.Error(err)
		return
	}
	r.pending.Clear()

	session := r.orch.Session()
	for _, c := range written {
		// Keep loaded files in step with what is now on disk.
		if session.HasFile(c.Path) {
			session.SetFile(c.Path, c.Updated)
		}
		verb := "Updated"
		if !c.Exists {
			verb = "Created"
		}
		r.printer.Success(verb + " " + c.Path)
	}
	logging.Info("pending changes applied", "files", len(written))
}

func (r *REPL) editFile(arg string) {
	if arg == "" {
		r.printer.Info("Usage: /edit <file>")
		return
	}
	path := filepath.ToSlash(filepath.Clean(arg))
	if _, err := r.paths.Resolve(path); err != nil {
		r.printer.Error(err)
		return
	}
	if err := r.orch.Session().LoadFile(path); err != nil {
		r.printer.Error(err)
		return
	}
	r.printer.Success("Loaded " + path + " for editing")
}

func (r *REPL) listFiles() {
	files := r.orch.Session().Files()
	if len(files) == 0 {
		r.printer.Info("No files currently loaded")
		return
	}
	r.printer.Printf("Currently loaded files:\n")
	for _, f := range files {
		r.printer.Printf("  %s\n", f)
	}
}

func (r *REPL) switchModel(ctx context.Context, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		r.printer.Printf("Current: %s / %s\n", r.orch.ProviderName(), r.orch.Model())
		r.printer.Info("Usage: /model [provider] <model>")
		for _, p := range config.Providers {
			r.printer.Printf("  %-10s default %s\n", p, config.DefaultModel(p))
		}
		return
	}
	if r.newProvider == nil {
		r.printer.Info("Switching models is not available in this session.")
		return
	}

	provider, model, err := modelTarget(fields, r.orch.ProviderName())
	if err != nil {
		r.printer.Error(err)
		return
	}
	llm, err := r.newProvider(ctx, provider, model)
	if err != nil {
		r.printer.Error(fmt.Errorf("failed to switch to %s: %w", provider, err))
		return
	}
	r.orch.SetProvider(llm, model)
	r.printer.Success(fmt.Sprintf("Switched to %s / %s", llm.Name(), model))
}

// modelTarget reads /model arguments: "<provider> <model>", "<provider>"
// for its default model, or "<model>" with the provider taken from the
// model name and falling back to current.
func modelTarget(fields []string, current string) (provider, model string, err error) {
	first := strings.ToLower(fields[0])
	if slices.Contains(config.Providers, first) {
		if len(fields) > 1 {
			return first, fields[1], nil
		}
		return first, config.DefaultModel(first), nil
	}
	if len(fields) > 1 {
		return "", "", fmt.Errorf("%w: %q", config.ErrUnknownProvider, fields[0])
	}

	name := strings.ToLower(fields[0])
	switch {
	case strings.HasPrefix(name, "claude"):
		return config.ProviderAnthropic, fields[0], nil
	case strings.HasPrefix(name, "gpt"), strings.HasPrefix(name, "o1"), strings.HasPrefix(name, "o3"), strings.HasPrefix(name, "o4"):
		return config.ProviderOpenAI, fields[0], nil
	case strings.HasPrefix(name, "glm"):
		return config.ProviderGLM, fields[0], nil
	case strings.HasPrefix(name, "gemini"):
		return config.ProviderGemini, fields[0], nil
	}
	return current, fields[0], nil
}
