package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"zarz/internal/chat"
	"zarz/internal/client"
	"zarz/internal/config"
	"zarz/internal/logging"
	"zarz/internal/mcp"
	"zarz/internal/tools"
)

// Defaults for Settings fields left at zero.
const (
	DefaultMaxToolRounds = 25
	DefaultMaxMCPCalls   = 5
)

// CommandRunner runs one-shot shell commands for the bash tool.
// *tools.BashRunner implements it.
type CommandRunner interface {
	Run(ctx context.Context, command string) (string, error)
}

// Settings are the per-request model parameters and turn limits.
type Settings struct {
	Model           string
	SystemPrompt    string
	MaxOutputTokens int
	Temperature     float64
	ReasoningEffort string

	MaxToolRounds     int
	BashRepeatLimit   int
	MaxMCPCalls       int
	StructuredHistory bool
}

// SettingsFromConfig extracts orchestrator settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Model:             cfg.ResolvedModel(),
		SystemPrompt:      cfg.SystemPrompt,
		MaxOutputTokens:   cfg.MaxOutputTokens,
		Temperature:       cfg.Temperature,
		ReasoningEffort:   cfg.ReasoningEffort,
		MaxToolRounds:     cfg.Agent.MaxToolRounds,
		BashRepeatLimit:   cfg.Agent.BashRepeatLimit,
		MaxMCPCalls:       cfg.Agent.MaxMCPCalls,
		StructuredHistory: cfg.Agent.StructuredHistory,
	}
}

func (s Settings) withDefaults() Settings {
	if s.SystemPrompt == "" {
		s.SystemPrompt = DefaultSystemPrompt
	}
	if s.MaxToolRounds <= 0 {
		s.MaxToolRounds = DefaultMaxToolRounds
	}
	if s.BashRepeatLimit <= 0 {
		s.BashRepeatLimit = DefaultBashRepeatLimit
	}
	if s.MaxMCPCalls <= 0 {
		s.MaxMCPCalls = DefaultMaxMCPCalls
	}
	return s
}

// Orchestrator runs user turns: it calls the provider, executes the tools
// the model asks for and records everything in the session.
type Orchestrator struct {
	provider client.CompletionProvider
	settings Settings

	registry *tools.Registry
	execCtx  tools.ExecContext
	mcp      *mcp.Manager
	bash     CommandRunner
	observer Observer

	mu      sync.Mutex
	session *chat.Session
	guard   *repeatGuard
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRegistry exposes the built-in tools of r, executed with ec.
func WithRegistry(r *tools.Registry, ec tools.ExecContext) Option {
	return func(o *Orchestrator) {
		o.registry = r
		o.execCtx = ec
	}
}

// WithMCP exposes the tools of every server m runs. A nil manager means
// MCP is disabled for the session.
func WithMCP(m *mcp.Manager) Option {
	return func(o *Orchestrator) {
		o.mcp = m
	}
}

// WithBashRunner replaces the runner behind the bash tool.
func WithBashRunner(r CommandRunner) Option {
	return func(o *Orchestrator) {
		o.bash = r
	}
}

// WithObserver sets the receiver of live turn events.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// NewOrchestrator creates an orchestrator that records into session.
func NewOrchestrator(provider client.CompletionProvider, session *chat.Session, settings Settings, opts ...Option) *Orchestrator {
	settings = settings.withDefaults()
	o := &Orchestrator{
		provider: provider,
		settings: settings,
		session:  session,
		observer: NopObserver{},
		guard:    newRepeatGuard(settings.BashRepeatLimit),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bash == nil {
		o.bash = tools.NewBashRunner(session.WorkDir, 0)
	}
	if o.execCtx.WorkDir == "" {
		o.execCtx.WorkDir = session.WorkDir
	}
	return o
}

// Session returns the session turns are recorded in.
func (o *Orchestrator) Session() *chat.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// SetSession switches to s and resets the repeated-command counters.
func (o *Orchestrator) SetSession(s *chat.Session) {
	o.mu.Lock()
	o.session = s
	o.mu.Unlock()
	o.guard.reset()
}

// Reset clears the current session and the repeated-command counters.
func (o *Orchestrator) Reset() {
	o.Session().Clear()
	o.guard.reset()
}

// ProviderName returns the name of the active provider.
func (o *Orchestrator) ProviderName() string {
	return o.provider.Name()
}

// Model returns the model requests are sent to.
func (o *Orchestrator) Model() string {
	return o.settings.Model
}

// SetProvider switches the provider and model used by later turns. The
// history is kept. Not safe to call while a turn is running.
func (o *Orchestrator) SetProvider(provider client.CompletionProvider, model string) {
	o.provider = provider
	o.settings.Model = model
	logging.Info("provider switched", "provider", provider.Name(), "model", model)
}

// HandleTurn records input as a user message, runs the model and its
// tool requests to completion and returns the final assistant text.
// Tool failures are fed back to the model; only provider errors and
// cancellation are returned.
func (o *Orchestrator) HandleTurn(ctx context.Context, input string) (string, error) {
	session := o.Session()
	session.Add(chat.RoleUser, input)

	mcpTools := o.snapshotMCPTools(ctx)
	var builtins []tools.ToolSpec
	if o.registry != nil {
		builtins = o.registry.Specs()
	}
	catalog := NewCatalog(builtins, mcpTools)

	var section string
	switch {
	case len(mcpTools) > 0:
		section = toolPromptSection(mcpTools)
	case o.mcp != nil:
		section = noMCPToolsNotice
	}

	logging.Debug("turn started", "provider", o.provider.Name(), "tools", catalog.Len())

	legacyCalls := 0
	refused := false
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := o.runToolRounds(ctx, session, catalog, section)
		if err != nil {
			return "", err
		}
		text := resp.Text

		call, parseErr := parseLegacyCall(text)
		if parseErr != nil {
			session.Add(chat.RoleAssistant, text)
			o.observer.OnAssistantText(text)
			o.observer.OnWarning(parseErr.Error())
			return text, nil
		}
		if call == nil {
			session.Add(chat.RoleAssistant, text)
			o.observer.OnAssistantText(text)
			return text, nil
		}

		if call.Prefix != "" {
			session.Add(chat.RoleAssistant, call.Prefix)
			o.observer.OnAssistantText(call.Prefix)
		} else {
			note := fmt.Sprintf("Calling MCP tool %s.%s...", call.Server, call.Tool)
			session.Add(chat.RoleAssistant, note)
			o.observer.OnAssistantText(note)
		}
		session.Add(chat.RoleAssistant, call.Command)
		o.observer.OnToolStart(call.Server, call.Tool, call.Command)

		var refusal string
		switch {
		case o.mcp == nil:
			refusal = "ERROR: MCP tools are not available in this session."
		case legacyCalls >= o.settings.MaxMCPCalls:
			refusal = "ERROR: MCP tool call limit reached for this request."
		}
		if refusal != "" {
			session.AddMessage(chat.NewToolMessage(call.Server, call.Tool, refusal))
			o.observer.OnToolResult(call.Server, call.Tool, refusal, true)
			if refused {
				// The model ignored the previous refusal.
				o.observer.OnWarning("MCP tool request refused again; ending the turn.")
				return text, nil
			}
			refused = true
			continue
		}

		output, isError := o.callMCP(ctx, call.Server, call.Tool, call.Arguments)
		legacyCalls++
		session.AddMessage(chat.NewToolMessage(call.Server, call.Tool, truncateForHistory(output)))
		o.observer.OnToolResult(call.Server, call.Tool, truncateForPreview(output), isError)
	}
}

// runToolRounds issues the completion for the current transcript and
// keeps executing structured tool calls until the model stops asking
// for them or the round limit is hit.
func (o *Orchestrator) runToolRounds(ctx context.Context, session *chat.Session, catalog *Catalog, section string) (*client.CompletionResponse, error) {
	dialect := o.provider.Dialect()
	req := &client.CompletionRequest{
		Model:           o.settings.Model,
		SystemPrompt:    o.settings.SystemPrompt,
		Tools:           catalog.Specs(),
		MaxOutputTokens: o.settings.MaxOutputTokens,
		Temperature:     o.settings.Temperature,
		ReasoningEffort: o.settings.ReasoningEffort,
	}

	var messages []client.WireMessage
	if o.settings.StructuredHistory {
		if n := session.NormalizeToolHistory(); n > 0 {
			logging.Debug("normalized dangling tool calls", "count", n)
		}
		if section != "" {
			req.SystemPrompt += "\n\n" + section
		}
		messages = session.BuildOpenAIMessages()
		req.Messages = messages
	} else {
		var prompt strings.Builder
		if section != "" {
			prompt.WriteString(section)
			prompt.WriteString("\n\n")
		}
		prompt.WriteString(session.BuildPromptWithContext(true))
		prompt.WriteString(respondInstruction)
		req.UserPrompt = prompt.String()
		messages = dialect.InitialMessages(req.SystemPrompt, req.UserPrompt)
	}

	resp, err := o.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	for round := 0; resp.HasToolCalls(); round++ {
		if round >= o.settings.MaxToolRounds {
			logging.Warn("tool round limit reached", "rounds", round)
			o.observer.OnWarning(fmt.Sprintf("Tool round limit (%d) reached; remaining tool calls were not run.", o.settings.MaxToolRounds))
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if strings.TrimSpace(resp.Text) != "" {
			session.Add(chat.RoleAssistant, resp.Text)
			o.observer.OnAssistantText(resp.Text)
		}

		messages = append(messages, dialect.AssistantMessage(resp.Text, resp.ToolCalls))
		results := make([]client.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, o.executeCall(ctx, session, catalog, call))
		}
		messages = append(messages, dialect.ToolResultMessages(results)...)

		req.UserPrompt = ""
		req.Messages = messages
		resp, err = o.complete(ctx, req)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (o *Orchestrator) complete(ctx context.Context, req *client.CompletionRequest) (*client.CompletionResponse, error) {
	o.observer.OnThinking(true)
	start := time.Now()
	resp, err := o.provider.Complete(ctx, req)
	o.observer.OnThinking(false)
	if err != nil {
		return nil, fmt.Errorf("%s completion failed: %w", o.provider.Name(), err)
	}
	logging.Debug("completion finished",
		"provider", o.provider.Name(),
		"duration", time.Since(start),
		"tool_calls", len(resp.ToolCalls),
		"stop_reason", resp.StopReason)
	return resp, nil
}

// executeCall runs one structured call and records its Command and
// Output messages.
func (o *Orchestrator) executeCall(ctx context.Context, session *chat.Session, catalog *Catalog, call tools.ToolCall) client.ToolResult {
	args := call.Input
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	rt, known := catalog.Lookup(call.Name)
	if !known {
		rt = RegisteredTool{Kind: ToolBuiltin, Name: call.Name}
	}
	server, tool := rt.Labels()
	command := commandLine(rt, tool, args)

	session.AddMessage(chat.NewToolCommand(server, tool, call.ID, "Command: "+command, args))
	o.observer.OnToolStart(server, tool, command)

	var output string
	var isError bool
	if known {
		output, isError = o.dispatch(ctx, rt, args)
	} else {
		output, isError = fmt.Sprintf("ERROR: %v: %s", tools.ErrToolNotFound, call.Name), true
	}
	logging.Debug("tool call finished", "server", server, "tool", tool, "error", isError)

	stored := truncateForHistory(output)
	session.AddMessage(chat.NewToolOutput(server, tool, call.ID, "Output:\n"+stored))
	o.observer.OnToolResult(server, tool, truncateForPreview(output), isError)

	return client.ToolResult{CallID: call.ID, Name: call.Name, Content: stored, IsError: isError}
}

// dispatch executes rt and converts every failure into an "ERROR: "
// output for the model.
func (o *Orchestrator) dispatch(ctx context.Context, rt RegisteredTool, args json.RawMessage) (string, bool) {
	switch rt.Kind {
	case ToolBash:
		return o.runBash(ctx, args)

	case ToolBuiltin:
		if o.registry == nil {
			return fmt.Sprintf("ERROR: %v: %s", tools.ErrToolNotFound, rt.Name), true
		}
		result, err := o.registry.Execute(ctx, rt.Name, o.execCtx, args)
		if err != nil {
			return "ERROR: " + err.Error(), true
		}
		if !result.Success {
			return errorOutput(result.Content), true
		}
		return result.Content, false

	default:
		var arguments map[string]any
		if err := json.Unmarshal(args, &arguments); err != nil {
			return fmt.Sprintf("ERROR: invalid arguments for %s.%s: %v", rt.Server, rt.Tool, err), true
		}
		return o.callMCP(ctx, rt.Server, rt.Tool, arguments)
	}
}

func (o *Orchestrator) runBash(ctx context.Context, args json.RawMessage) (string, bool) {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &input); err != nil || strings.TrimSpace(input.Command) == "" {
		return "ERROR: bash requires a non-empty \"command\" string", true
	}

	if warning := o.guard.admit(input.Command); warning != "" {
		return warning, true
	}

	output, err := o.bash.Run(ctx, input.Command)
	if err != nil {
		return "ERROR: " + err.Error(), true
	}
	return output, false
}

func (o *Orchestrator) callMCP(ctx context.Context, server, tool string, args map[string]any) (string, bool) {
	if o.mcp == nil {
		return "ERROR: MCP tools are not available in this session.", true
	}
	result, err := o.mcp.CallTool(ctx, server, tool, args)
	if err != nil {
		return "ERROR: " + err.Error(), true
	}
	return mcp.RenderToolOutput(result)
}

// snapshotMCPTools lists MCP tools for this turn. Failures leave a
// server out rather than failing the turn.
func (o *Orchestrator) snapshotMCPTools(ctx context.Context) map[string][]mcp.Tool {
	if o.mcp == nil || !o.mcp.HasServers() {
		return nil
	}
	all := o.mcp.GetAllTools(ctx)
	for server, list := range all {
		if len(list) == 0 {
			delete(all, server)
		}
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

// commandLine renders a call on one line for history and display.
func commandLine(rt RegisteredTool, tool string, args json.RawMessage) string {
	if rt.Kind == ToolBash {
		var input struct {
			Command string `json:"command"`
		}
		if json.Unmarshal(args, &input) == nil && input.Command != "" {
			return input.Command
		}
	}
	return tool + " " + compactJSON(args)
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func errorOutput(text string) string {
	if strings.TrimSpace(text) == "" {
		return "ERROR: tool failed without output"
	}
	if strings.HasPrefix(text, "ERROR") {
		return text
	}
	return "ERROR: " + text
}
