package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"zarz/internal/logging"
)

// ClientVersion is reported to servers in clientInfo.
var ClientVersion = "0.1.0"

// DefaultRequestTimeout bounds a single request/response round trip.
const DefaultRequestTimeout = 60 * time.Second

// Client is one JSON-RPC session with an MCP server. Requests are
// correlated by reading incoming messages in order until the one with the
// matching id arrives, so at most one request is outstanding at a time.
type Client struct {
	name      string
	transport Transport
	timeout   time.Duration

	nextID atomic.Uint64
	reqMu  sync.Mutex

	incoming   chan incomingMessage
	stopped    chan struct{}
	stopOnce   sync.Once
	readerDone chan struct{}

	mu           sync.RWMutex
	initialized  bool
	serverInfo   ServerInfo
	capabilities ServerCapabilities
}

type incomingMessage struct {
	msg *JSONRPCMessage
	err error
}

// NewClient wraps an already connected transport. Call Initialize before
// any other operation.
func NewClient(name string, transport Transport) *Client {
	c := &Client{
		name:       name,
		transport:  transport,
		timeout:    DefaultRequestTimeout,
		incoming:   make(chan incomingMessage, 16),
		stopped:    make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Start spawns the server described by cfg and performs the handshake.
func Start(ctx context.Context, name string, cfg ServerConfig, timeout time.Duration) (*Client, error) {
	if cfg.Kind != KindStdio {
		return nil, fmt.Errorf("%s (%s): %w", name, cfg.Kind, ErrUnsupportedTransport)
	}

	transport, err := NewStdioTransport(name, cfg.Command, cfg.Args, cfg.Env)
	if err != nil {
		return nil, err
	}

	c := NewClient(name, transport)
	if timeout > 0 {
		c.timeout = timeout
	}

	if err := c.Initialize(ctx); err != nil {
		if stopErr := c.Stop(); stopErr != nil {
			logging.Debug("error stopping MCP server after failed handshake", "server", name, "error", stopErr)
		}
		return nil, fmt.Errorf("MCP server %q handshake failed: %w", name, err)
	}
	return c, nil
}

// readLoop moves transport messages into the incoming channel. Parse errors
// are forwarded and reading continues; any other error or Stop ends the loop.
func (c *Client) readLoop() {
	defer close(c.readerDone)
	defer close(c.incoming)
	for {
		msg, err := c.transport.Receive()
		if !c.deliver(incomingMessage{msg: msg, err: err}) {
			return
		}
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				continue
			}
			return
		}
	}
}

// deliver hands one message to sendRequest. It reports false once the
// client is stopped and nobody will read the queue again.
func (c *Client) deliver(in incomingMessage) bool {
	select {
	case c.incoming <- in:
		return true
	case <-c.stopped:
		return false
	}
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// ServerInfo returns the info captured during the handshake.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Capabilities returns the capabilities captured during the handshake.
func (c *Client) Capabilities() ServerCapabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capabilities
}

// IsInitialized reports whether the handshake completed.
func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// Initialize performs the initialize / notifications/initialized handshake.
func (c *Client) Initialize(ctx context.Context) error {
	if c.IsInitialized() {
		return nil
	}

	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
			"prompts":   map[string]any{},
		},
		ClientInfo: ClientInfo{
			Name:    "zarz",
			Version: ClientVersion,
		},
	}

	raw, err := c.sendRequest(ctx, MethodInitialize, params)
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return &ProtocolError{Message: fmt.Sprintf("failed to parse initialize response: %v", err)}
	}

	c.mu.Lock()
	c.serverInfo = result.ServerInfo
	c.capabilities = result.Capabilities
	c.initialized = true
	c.mu.Unlock()

	if err := c.notify(MethodInitialized, nil); err != nil {
		return fmt.Errorf("failed to send initialized notification: %w", err)
	}

	logging.Info("MCP server initialized",
		"name", c.name,
		"server", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion)

	return nil
}

// ListTools retrieves the server's tools.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result ListToolsResult
	if err := c.call(ctx, MethodToolsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool. Nil args are omitted from the request.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	var result CallToolResult
	params := CallToolParams{Name: name, Arguments: args}
	if err := c.call(ctx, MethodToolsCall, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListResources retrieves the server's resources.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	var result ListResourcesResult
	if err := c.call(ctx, MethodResourcesList, nil, &result); err != nil {
		return nil, err
	}
	return result.Resources, nil
}

// ListPrompts retrieves the server's prompts.
func (c *Client) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var result ListPromptsResult
	if err := c.call(ctx, MethodPromptsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Prompts, nil
}

// call sends a request that requires a completed handshake and decodes
// its result into out.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	if !c.IsInitialized() {
		return ErrNotInitialized
	}

	raw, err := c.sendRequest(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProtocolError{Message: fmt.Sprintf("failed to parse %s response: %v", method, err)}
	}
	return nil
}

// sendRequest writes one request and reads messages until the response
// with the same id arrives.
func (c *Client) sendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	select {
	case <-c.stopped:
		return nil, ErrClientStopped
	default:
	}

	id := c.nextID.Add(1)
	msg := &JSONRPCMessage{
		ID:     rawID(id),
		Method: method,
		Params: params,
	}
	if err := c.transport.Send(msg); err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", method, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	for {
		var in incomingMessage
		var ok bool
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s request: %w", method, ctx.Err())
		case in, ok = <-c.incoming:
		}

		if !ok {
			return nil, errServerClosed()
		}
		if in.err != nil {
			if errors.Is(in.err, io.EOF) {
				return nil, errServerClosed()
			}
			return nil, in.err
		}

		resp := in.msg
		switch {
		case resp.IsNotification():
			c.handleNotification(resp)
			continue
		case resp.Method != "":
			c.rejectServerRequest(resp)
			continue
		case !resp.MatchesID(id):
			logging.Warn("MCP response for unknown request", "server", c.name, "id", string(resp.ID), "want", id)
			continue
		}

		if resp.Error != nil {
			return nil, &ProtocolError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		if len(resp.Result) == 0 {
			return nil, &ProtocolError{Message: "no result in response"}
		}
		return resp.Result, nil
	}
}

// notify sends a notification; no response is expected.
func (c *Client) notify(method string, params any) error {
	return c.transport.Send(&JSONRPCMessage{Method: method, Params: params})
}

func (c *Client) handleNotification(msg *JSONRPCMessage) {
	if msg.Method != MethodLogMessage {
		logging.Debug("MCP notification received", "server", c.name, "method", msg.Method)
		return
	}

	data, err := json.Marshal(msg.Params)
	if err != nil {
		return
	}
	var params logMessageParams
	if err := json.Unmarshal(data, &params); err != nil || params.Data.Message == "" {
		logging.Debug("MCP notification received", "server", c.name, "method", msg.Method)
		return
	}
	logging.Info("MCP notification", "server", c.name, "level", params.Level, "message", params.Data.Message)
}

// rejectServerRequest answers server-initiated requests, which this client
// does not implement.
func (c *Client) rejectServerRequest(msg *JSONRPCMessage) {
	logging.Debug("MCP server request ignored", "server", c.name, "method", msg.Method)
	reply := &JSONRPCMessage{
		ID:    msg.ID,
		Error: &Error{Code: ErrCodeMethodNotFound, Message: "method not supported by client: " + msg.Method},
	}
	if err := c.transport.Send(reply); err != nil {
		logging.Debug("failed to reject MCP server request", "server", c.name, "error", err)
	}
}

// Stop closes the transport, killing the server process. Safe to call
// more than once.
func (c *Client) Stop() error {
	first := false
	c.stopOnce.Do(func() {
		first = true
		close(c.stopped)
	})
	if !first {
		return nil
	}

	c.mu.Lock()
	c.initialized = false
	c.mu.Unlock()

	return c.transport.Close()
}
